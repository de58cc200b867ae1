// Package objectstest — поддельный S3 (path-style) на httptest для тестов.
package objectstest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// Server — S3 в памяти: HeadBucket, HeadObject, PutObject, CopyObject.
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	buckets map[string]map[string][]byte
	copies  int
	puts    int
}

// New запускает сервер с пустыми bucket'ами и закрывает его по t.Cleanup.
func New(t testing.TB, buckets ...string) *Server {
	t.Helper()

	s := &Server{buckets: make(map[string]map[string][]byte)}
	for _, b := range buckets {
		s.buckets[b] = make(map[string][]byte)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// PutObject кладёт объект напрямую, минуя HTTP.
func (s *Server) PutObject(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buckets[bucket] == nil {
		s.buckets[bucket] = make(map[string][]byte)
	}
	s.buckets[bucket][key] = append([]byte(nil), data...)
}

// Object возвращает содержимое объекта.
func (s *Server) Object(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.buckets[bucket][key]
	return data, ok
}

// Keys возвращает количество объектов в bucket.
func (s *Server) Keys(bucket string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets[bucket])
}

// Copies возвращает количество выполненных CopyObject.
func (s *Server) Copies() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copies
}

// Puts возвращает количество выполненных PutObject.
func (s *Server) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func etag(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")

	s.mu.Lock()
	defer s.mu.Unlock()

	objects, bucketOK := s.buckets[bucket]

	switch {
	case r.Method == http.MethodHead && key == "":
		if !bucketOK {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodHead:
		data, ok := objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("ETag", etag(data))
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodPut && r.Header.Get("X-Amz-Copy-Source") != "":
		src, _ := url.PathUnescape(strings.TrimPrefix(r.Header.Get("X-Amz-Copy-Source"), "/"))
		srcBucket, srcKey, _ := strings.Cut(src, "/")
		data, ok := s.buckets[srcBucket][srcKey]
		if !ok || !bucketOK {
			writeError(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		objects[key] = append([]byte(nil), data...)
		s.copies++
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<CopyObjectResult><ETag>%s</ETag><LastModified>%s</LastModified></CopyObjectResult>`,
			etag(data), time.Now().UTC().Format("2006-01-02T15:04:05.000Z"))

	case r.Method == http.MethodPut:
		if !bucketOK {
			writeError(w, http.StatusNotFound, "NoSuchBucket")
			return
		}
		data, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "IncompleteBody")
			return
		}
		objects[key] = data
		s.puts++
		w.Header().Set("ETag", etag(data))
		w.WriteHeader(http.StatusOK)

	default:
		writeError(w, http.StatusNotImplemented, "NotImplemented")
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>%s</Code><Message>%s</Message></Error>`, code, code)
}
