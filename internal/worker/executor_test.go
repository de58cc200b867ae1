package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/olmax99/dockerflaskapi/internal/domain"
	"github.com/olmax99/dockerflaskapi/internal/fence"
	"github.com/olmax99/dockerflaskapi/internal/objects"
	"github.com/olmax99/dockerflaskapi/internal/objects/objectstest"
	"github.com/olmax99/dockerflaskapi/internal/permits"
	"github.com/olmax99/dockerflaskapi/internal/repo"
	"github.com/olmax99/dockerflaskapi/internal/task"
)

// --- Fakes ---

type fakeCatalog struct {
	mu         sync.Mutex
	stacks     map[string]*domain.Stack
	partitions map[string]domain.Partition
	err        error
}

func newFakeCatalog(stacks ...domain.Stack) *fakeCatalog {
	c := &fakeCatalog{
		stacks:     make(map[string]*domain.Stack),
		partitions: make(map[string]domain.Partition),
	}
	for i := range stacks {
		c.stacks[stacks[i].Name] = &stacks[i]
	}
	return c
}

func (c *fakeCatalog) GetStack(_ context.Context, name string) (*domain.Stack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	s, ok := c.stacks[name]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (c *fakeCatalog) EnsurePartition(_ context.Context, p *domain.Partition) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	key := p.Database + "/" + p.Table + "/" + p.Value
	if existing, ok := c.partitions[key]; ok {
		if existing.JobID == p.JobID && existing.Fence > p.Fence {
			return false, repo.ErrStaleFence
		}
		if existing.JobID == p.JobID {
			existing.Fence = p.Fence
			c.partitions[key] = existing
		}
		return false, nil
	}
	c.partitions[key] = *p
	return true, nil
}

type fakeSource struct {
	records []permits.Record
	err     error
}

func (s *fakeSource) Fetch(context.Context) ([]permits.Record, error) {
	return s.records, s.err
}

// --- Helpers ---

var testStack = domain.Stack{
	Name:     "permits-dev",
	Bucket:   "store",
	Prefix:   "permits/parquet",
	Database: "permits_db",
	Table:    "permits",
}

func newUnitTask(t *testing.T, u task.Unit) *domain.Task {
	t.Helper()

	payload, err := task.Encode(u)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return &domain.Task{
		ID:      uuid.New(),
		JobID:   uuid.New(),
		Kind:    u.Kind(),
		State:   domain.TaskStateRunning,
		Payload: payload,
		Attempt: 1,
	}
}

func newObjectStore(t *testing.T, srv *objectstest.Server) *objects.Store {
	t.Helper()

	store, err := objects.New(context.Background(), objects.Config{
		Endpoint:  srv.URL,
		AccessKey: "test",
		SecretKey: "test",
	})
	if err != nil {
		t.Fatalf("objects.New: %v", err)
	}
	return store
}

func newFencer(t *testing.T) *fence.Fencer {
	t.Helper()

	mini := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return fence.New(rdb, fence.Config{})
}

// --- Ingest ---

func TestIngestExecutor_WritesLakeFile(t *testing.T) {
	srv := objectstest.New(t, "lake")
	jobID := uuid.New()

	e := &IngestExecutor{
		Source: &fakeSource{records: []permits.Record{
			{"application_number": "P-1", "estimated_cost": "1200.5"},
			{"application_number": "P-2", "estimated_cost": 800},
		}},
		Objects:    newObjectStore(t, srv),
		LakeBucket: "lake",
	}

	result, err := e.Execute(context.Background(), newUnitTask(t, task.IngestReport{JobID: jobID, CalledAt: time.Now()}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Error != "" {
		t.Fatalf("unexpected logical error: %s", result.Error)
	}

	data, ok := srv.Object("lake", domain.LakeKey(jobID))
	if !ok {
		t.Fatal("lake file was not written")
	}
	rows, err := permits.ReadParquet(data)
	if err != nil {
		t.Fatalf("ReadParquet: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 rows, got %d", len(rows))
	}
	if result.Outputs["file_path"] != "s3://lake/"+domain.LakeKey(jobID) {
		t.Errorf("file_path = %v", result.Outputs["file_path"])
	}
}

func TestIngestExecutor_Chunked(t *testing.T) {
	srv := objectstest.New(t, "lake")
	records := make([]permits.Record, 5)
	for i := range records {
		records[i] = permits.Record{"application_number": i}
	}

	e := &IngestExecutor{
		Source:     &fakeSource{records: records},
		Objects:    newObjectStore(t, srv),
		LakeBucket: "lake",
	}

	result, err := e.Execute(context.Background(), newUnitTask(t, task.IngestReport{JobID: uuid.New(), ChunkSize: 2}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	files, _ := result.Outputs["files"].([]string)
	if len(files) != 3 {
		t.Errorf("expected 3 chunk files, got %v", files)
	}
	if srv.Keys("lake") != 3 {
		t.Errorf("expected 3 objects in lake, got %d", srv.Keys("lake"))
	}
}

func TestIngestExecutor_UpstreamErrorIsInfrastructure(t *testing.T) {
	srv := objectstest.New(t, "lake")
	e := &IngestExecutor{
		Source:     &fakeSource{err: permits.ErrUpstream},
		Objects:    newObjectStore(t, srv),
		LakeBucket: "lake",
	}

	_, err := e.Execute(context.Background(), newUnitTask(t, task.IngestReport{JobID: uuid.New()}))
	if !errors.Is(err, permits.ErrUpstream) {
		t.Errorf("expected upstream error, got %v", err)
	}
}

// --- Verify ---

func TestVerifySourceExecutor(t *testing.T) {
	srv := objectstest.New(t, "lake")
	present := uuid.New()
	srv.PutObject("lake", domain.LakeKey(present), []byte("PAR1"))

	e := &VerifySourceExecutor{Objects: newObjectStore(t, srv), LakeBucket: "lake"}

	tests := []struct {
		name    string
		jobID   uuid.UUID
		wantErr bool
	}{
		{"present", present, false},
		{"missing", uuid.New(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := e.Execute(context.Background(), newUnitTask(t, task.VerifySource{JobID: tt.jobID}))
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if (result.Error != "") != tt.wantErr {
				t.Errorf("Error = %q, wantErr %v", result.Error, tt.wantErr)
			}
		})
	}
}

func TestVerifyTargetExecutor(t *testing.T) {
	srv := objectstest.New(t, "store")
	missingBucket := testStack
	missingBucket.Name = "permits-gone"
	missingBucket.Bucket = "gone"

	e := &VerifyTargetExecutor{
		Catalog: newFakeCatalog(testStack, missingBucket),
		Objects: newObjectStore(t, srv),
	}

	tests := []struct {
		name    string
		stack   string
		wantErr bool
	}{
		{"registered", testStack.Name, false},
		{"unknown stack", "permits-nope", true},
		{"bucket missing", missingBucket.Name, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := e.Execute(context.Background(), newUnitTask(t, task.VerifyTarget{Stack: tt.stack}))
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if (result.Error != "") != tt.wantErr {
				t.Errorf("Error = %q, wantErr %v", result.Error, tt.wantErr)
			}
			if !tt.wantErr {
				stack, ok := result.Outputs["stack"].(*domain.Stack)
				if !ok || stack.Bucket != testStack.Bucket {
					t.Errorf("stack output = %#v", result.Outputs["stack"])
				}
			}
		})
	}
}

func TestVerifyTargetExecutor_CatalogErrorIsInfrastructure(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.err = errors.New("connection refused")
	e := &VerifyTargetExecutor{Catalog: catalog}

	if _, err := e.Execute(context.Background(), newUnitTask(t, task.VerifyTarget{Stack: "x"})); err == nil {
		t.Error("expected infrastructure error")
	}
}

// --- Update partition ---

func TestUpdatePartitionExecutor_Idempotent(t *testing.T) {
	catalog := newFakeCatalog()
	fencer := newFencer(t)
	jobID := uuid.New()

	token, err := fencer.Acquire(context.Background(), jobID.String())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	e := &UpdatePartitionExecutor{Catalog: catalog, Fence: fencer}
	unit := task.UpdatePartition{JobID: jobID, Stack: testStack, Partition: "2026-10-18", Fence: token}

	first, err := e.Execute(context.Background(), newUnitTask(t, unit))
	if err != nil || first.Error != "" {
		t.Fatalf("first Execute: %v %v", err, first)
	}
	if first.Outputs["created"] != true {
		t.Errorf("first run created = %v, want true", first.Outputs["created"])
	}

	second, err := e.Execute(context.Background(), newUnitTask(t, unit))
	if err != nil || second.Error != "" {
		t.Fatalf("second Execute: %v %v", err, second)
	}
	if second.Outputs["created"] != false {
		t.Errorf("second run created = %v, want false", second.Outputs["created"])
	}
	if len(catalog.partitions) != 1 {
		t.Errorf("expected exactly one partition, got %d", len(catalog.partitions))
	}
	if loc := second.Outputs["location"]; loc != "s3://store/permits/parquet/dt=2026-10-18/" {
		t.Errorf("location = %v", loc)
	}
}

func TestUpdatePartitionExecutor_RejectsStaleToken(t *testing.T) {
	catalog := newFakeCatalog()
	fencer := newFencer(t)
	jobID := uuid.New()
	ctx := context.Background()

	stale, _ := fencer.Acquire(ctx, jobID.String())
	if _, err := fencer.Acquire(ctx, jobID.String()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	e := &UpdatePartitionExecutor{Catalog: catalog, Fence: fencer}
	unit := task.UpdatePartition{JobID: jobID, Stack: testStack, Partition: "2026-10-18", Fence: stale}

	result, err := e.Execute(ctx, newUnitTask(t, unit))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Error == "" {
		t.Error("expected stale token to be rejected")
	}
	if len(catalog.partitions) != 0 {
		t.Error("stale writer must not create partitions")
	}
}

func TestUpdatePartitionExecutor_CatalogRejectsOlderToken(t *testing.T) {
	catalog := newFakeCatalog()
	jobID := uuid.New()
	ctx := context.Background()

	// Без fencer: новый token виден только каталогу
	e := &UpdatePartitionExecutor{Catalog: catalog}
	newer := task.UpdatePartition{JobID: jobID, Stack: testStack, Partition: "2026-10-18", Fence: 2}
	if res, err := e.Execute(ctx, newUnitTask(t, newer)); err != nil || res.Error != "" {
		t.Fatalf("newer Execute: %v %v", err, res)
	}

	older := newer
	older.Fence = 1
	result, err := e.Execute(ctx, newUnitTask(t, older))
	if err != nil {
		t.Fatalf("older Execute: %v", err)
	}
	if result.Error == "" {
		t.Error("expected older token to be rejected by the catalog")
	}

	other := newer
	other.JobID = uuid.New()
	other.Fence = 1
	result, err = e.Execute(ctx, newUnitTask(t, other))
	if err != nil || result.Error != "" {
		t.Fatalf("other job Execute: %v %v", err, result)
	}
	if result.Outputs["created"] != false {
		t.Error("partition of another job must be reused")
	}
}

// --- Copy ---

func TestCopyToTargetExecutor_Idempotent(t *testing.T) {
	srv := objectstest.New(t, "lake", "store")
	jobID := uuid.New()
	srv.PutObject("lake", domain.LakeKey(jobID), []byte("PAR1 permits PAR1"))

	fencer := newFencer(t)
	token, _ := fencer.Acquire(context.Background(), jobID.String())

	e := &CopyToTargetExecutor{Objects: newObjectStore(t, srv), Fence: fencer, LakeBucket: "lake"}
	unit := task.CopyToTarget{JobID: jobID, Stack: testStack, Partition: "2026-10-18", Fence: token}

	first, err := e.Execute(context.Background(), newUnitTask(t, unit))
	if err != nil || first.Error != "" {
		t.Fatalf("first Execute: %v %v", err, first)
	}
	if first.Outputs["copied"] != true {
		t.Errorf("first run copied = %v, want true", first.Outputs["copied"])
	}

	dstKey := testStack.ObjectKey("2026-10-18", jobID)
	if data, ok := srv.Object("store", dstKey); !ok || string(data) != "PAR1 permits PAR1" {
		t.Fatalf("target object %s missing or wrong", dstKey)
	}

	second, err := e.Execute(context.Background(), newUnitTask(t, unit))
	if err != nil || second.Error != "" {
		t.Fatalf("second Execute: %v %v", err, second)
	}
	if second.Outputs["copied"] != false {
		t.Errorf("second run copied = %v, want false", second.Outputs["copied"])
	}
	if srv.Copies() != 1 {
		t.Errorf("expected 1 copy, got %d", srv.Copies())
	}
}

func TestCopyToTargetExecutor_OverwritesDifferentContent(t *testing.T) {
	srv := objectstest.New(t, "lake", "store")
	jobID := uuid.New()
	srv.PutObject("lake", domain.LakeKey(jobID), []byte("new content"))
	srv.PutObject("store", testStack.ObjectKey("2026-10-18", jobID), []byte("old"))

	e := &CopyToTargetExecutor{Objects: newObjectStore(t, srv), LakeBucket: "lake"}
	unit := task.CopyToTarget{JobID: jobID, Stack: testStack, Partition: "2026-10-18", Fence: 1}

	result, err := e.Execute(context.Background(), newUnitTask(t, unit))
	if err != nil || result.Error != "" {
		t.Fatalf("Execute: %v %v", err, result)
	}
	if result.Outputs["copied"] != true {
		t.Error("expected overwrite of different content")
	}
	data, _ := srv.Object("store", testStack.ObjectKey("2026-10-18", jobID))
	if string(data) != "new content" {
		t.Errorf("target = %q", data)
	}
}

func TestCopyToTargetExecutor_SourceMissing(t *testing.T) {
	srv := objectstest.New(t, "lake", "store")
	e := &CopyToTargetExecutor{Objects: newObjectStore(t, srv), LakeBucket: "lake"}
	unit := task.CopyToTarget{JobID: uuid.New(), Stack: testStack, Partition: "2026-10-18", Fence: 1}

	result, err := e.Execute(context.Background(), newUnitTask(t, unit))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Error == "" {
		t.Error("expected logical failure for missing source")
	}
	if srv.Copies() != 0 {
		t.Error("nothing must be copied")
	}
}

// raceStore запускает onHead при первом Head в bucket назначения,
// имитируя новый запуск promote посреди копирования.
type raceStore struct {
	*objects.Store
	bucket string
	once   sync.Once
	onHead func()
}

func (s *raceStore) Head(ctx context.Context, bucket, key string) (*objects.ObjectInfo, error) {
	if bucket == s.bucket {
		s.once.Do(s.onHead)
	}
	return s.Store.Head(ctx, bucket, key)
}

func TestCopyToTargetExecutor_RechecksFenceBeforeCopy(t *testing.T) {
	srv := objectstest.New(t, "lake", "store")
	jobID := uuid.New()
	srv.PutObject("lake", domain.LakeKey(jobID), []byte("PAR1 permits PAR1"))

	ctx := context.Background()
	fencer := newFencer(t)
	token, _ := fencer.Acquire(ctx, jobID.String())

	store := &raceStore{
		Store:  newObjectStore(t, srv),
		bucket: "store",
		onHead: func() {
			if _, err := fencer.Acquire(ctx, jobID.String()); err != nil {
				t.Errorf("Acquire: %v", err)
			}
		},
	}
	e := &CopyToTargetExecutor{Objects: store, Fence: fencer, LakeBucket: "lake"}
	unit := task.CopyToTarget{JobID: jobID, Stack: testStack, Partition: "2026-10-18", Fence: token}

	result, err := e.Execute(ctx, newUnitTask(t, unit))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Error == "" {
		t.Error("expected copy to be rejected after a newer token was issued")
	}
	if srv.Copies() != 0 {
		t.Errorf("expected no copies, got %d", srv.Copies())
	}
}

func TestExecutor_MalformedPayload(t *testing.T) {
	e := &VerifySourceExecutor{LakeBucket: "lake"}
	tk := &domain.Task{
		ID:      uuid.New(),
		Kind:    domain.TaskKindVerifySource,
		Payload: map[string]any{"job_id": "not-a-uuid"},
	}

	result, err := e.Execute(context.Background(), tk)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Error == "" {
		t.Error("expected decode failure")
	}
}
