package permits

import (
	"bytes"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// WriteParquet пишет строки в один Parquet-файл.
func WriteParquet(w io.Writer, rows []Permit) error {
	pw := parquet.NewGenericWriter[Permit](w)
	if _, err := pw.Write(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

// EncodeParquet возвращает Parquet-файл в памяти.
func EncodeParquet(rows []Permit) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteParquet(&buf, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadParquet читает строки из Parquet-файла.
func ReadParquet(data []byte) ([]Permit, error) {
	rows, err := parquet.Read[Permit](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read parquet: %w", err)
	}
	return rows, nil
}

// Chunk — один файл чанкованной выгрузки.
type Chunk struct {
	Name string
	Data []byte
	Rows int
}

// ChunkName возвращает имя файла i-го чанка: {base}_{i:03}.parquet.
func ChunkName(base string, i int) string {
	return fmt.Sprintf("%s_%03d.parquet", base, i)
}

// EncodeChunks делит строки на чанки по size и кодирует каждый в отдельный файл.
// size <= 0 — один чанк. Пустой набор строк даёт один пустой файл.
func EncodeChunks(base string, rows []Permit, size int) ([]Chunk, error) {
	if size <= 0 || len(rows) == 0 {
		size = max(len(rows), 1)
	}

	var chunks []Chunk
	for i := 0; i == 0 || i*size < len(rows); i++ {
		start := i * size
		end := min(start+size, len(rows))

		data, err := EncodeParquet(rows[start:end])
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		chunks = append(chunks, Chunk{Name: ChunkName(base, i), Data: data, Rows: end - start})
	}
	return chunks, nil
}
