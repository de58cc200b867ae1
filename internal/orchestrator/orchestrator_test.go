package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/olmax99/dockerflaskapi/internal/backend"
	"github.com/olmax99/dockerflaskapi/internal/domain"
	"github.com/olmax99/dockerflaskapi/internal/fence"
	"github.com/olmax99/dockerflaskapi/internal/objects"
	"github.com/olmax99/dockerflaskapi/internal/objects/objectstest"
	"github.com/olmax99/dockerflaskapi/internal/pipeline"
	"github.com/olmax99/dockerflaskapi/internal/repo"
	"github.com/olmax99/dockerflaskapi/internal/worker"
)

// --- Fakes ---

type memCatalog struct {
	mu         sync.Mutex
	stacks     map[string]domain.Stack
	partitions map[string]bool
}

func newMemCatalog(stacks ...domain.Stack) *memCatalog {
	c := &memCatalog{stacks: make(map[string]domain.Stack), partitions: make(map[string]bool)}
	for _, s := range stacks {
		c.stacks[s.Name] = s
	}
	return c
}

func (c *memCatalog) GetStack(_ context.Context, name string) (*domain.Stack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stacks[name]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &s, nil
}

func (c *memCatalog) EnsurePartition(_ context.Context, p *domain.Partition) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := p.Database + "." + p.Table + "/" + p.Value
	if c.partitions[key] {
		return false, nil
	}
	c.partitions[key] = true
	return true, nil
}

// --- Helpers ---

var (
	testStack = domain.Stack{
		Name:     "permits-dev",
		Bucket:   "store",
		Prefix:   "permits/parquet",
		Database: "permits_db",
		Table:    "permits",
	}
	fixedNow = time.Date(2026, 10, 18, 22, 30, 0, 0, time.UTC)
)

type env struct {
	orch    *Orchestrator
	s3      *objectstest.Server
	catalog *memCatalog
	fence   *fence.Local
}

func newEnv(t *testing.T) *env {
	t.Helper()

	srv := objectstest.New(t, "lake", "store")
	store, err := objects.New(context.Background(), objects.Config{
		Endpoint:  srv.URL,
		AccessKey: "test",
		SecretKey: "test",
	})
	if err != nil {
		t.Fatalf("objects.New: %v", err)
	}

	catalog := newMemCatalog(testStack)
	fencer := fence.NewLocal()

	registry := worker.DefaultRegistry(worker.Deps{
		Objects:    store,
		Catalog:    catalog,
		Fence:      fencer,
		LakeBucket: "lake",
	})

	return &env{
		orch:    newOrchestrator(t, backend.RunnerFunc(registry.Run), fencer, time.Second),
		s3:      srv,
		catalog: catalog,
		fence:   fencer,
	}
}

func newOrchestrator(t *testing.T, runner backend.Runner, fencer Fencer, stageTimeout time.Duration) *Orchestrator {
	t.Helper()

	b := backend.NewMemory(runner, backend.MemoryConfig{Workers: 4})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		b.Close(ctx)
	})

	return New(Config{
		Backend:      b,
		Fence:        fencer,
		StageTimeout: stageTimeout,
		LakeBucket:   "lake",
		Now:          func() time.Time { return fixedNow },
	})
}

// --- Promote ---

func TestOrchestrator_PromoteSuccess(t *testing.T) {
	e := newEnv(t)
	jobID := uuid.New()
	e.s3.PutObject("lake", domain.LakeKey(jobID), []byte("PAR1 rows PAR1"))

	res, err := e.orch.Promote(context.Background(), jobID, testStack.Name)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if res.Failed() {
		t.Fatalf("unexpected failure: %v", res.Error)
	}
	if res.State != domain.TaskStateSuccess || res.StoppedAt != -1 {
		t.Errorf("State = %s, StoppedAt = %d", res.State, res.StoppedAt)
	}
	if res.Partition != "2026-10-18" {
		t.Errorf("Partition = %s", res.Partition)
	}
	if len(res.Stages) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(res.Stages))
	}

	// Порядок членов группы — порядок dispatch'а
	verify := res.Stages[0].Members
	if verify[0].Kind != domain.TaskKindVerifySource || verify[1].Kind != domain.TaskKindVerifyTarget {
		t.Errorf("verify members out of order: %s, %s", verify[0].Kind, verify[1].Kind)
	}

	if _, ok := e.s3.Object("store", testStack.ObjectKey("2026-10-18", jobID)); !ok {
		t.Error("file was not copied into partition")
	}
	if e.orch.ActiveJobs() != 0 {
		t.Error("job must be released after promote")
	}
}

func TestOrchestrator_PromoteIsRepeatable(t *testing.T) {
	e := newEnv(t)
	jobID := uuid.New()
	e.s3.PutObject("lake", domain.LakeKey(jobID), []byte("PAR1 rows PAR1"))
	ctx := context.Background()

	first, err := e.orch.Promote(ctx, jobID, testStack.Name)
	if err != nil || first.Failed() {
		t.Fatalf("first Promote: %v %v", err, first.Error)
	}

	second, err := e.orch.Promote(ctx, jobID, testStack.Name)
	if err != nil || second.Failed() {
		t.Fatalf("second Promote: %v %v", err, second.Error)
	}

	if v := second.Stages[1].Members[0].Value["created"]; v != false {
		t.Errorf("second update-partition created = %v, want false", v)
	}
	if v := second.Stages[2].Members[0].Value["copied"]; v != false {
		t.Errorf("second copy copied = %v, want false", v)
	}
	if e.s3.Copies() != 1 {
		t.Errorf("expected 1 copy, got %d", e.s3.Copies())
	}
	if first.JobID == second.JobID {
		t.Error("each promote must get its own job id")
	}
}

func TestOrchestrator_PromoteSourceMissingHaltsAtVerify(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.orch.Promote(ctx, uuid.New(), testStack.Name)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if res.State != domain.TaskStateFailure || res.StoppedAt != 0 {
		t.Fatalf("State = %s, StoppedAt = %d", res.State, res.StoppedAt)
	}
	if !errors.Is(res.Error, pipeline.ErrTaskFailure) {
		t.Errorf("expected TaskFailure, got %v", res.Error)
	}
	if len(res.Error.Members) != 1 || res.Error.Members[0].Kind != domain.TaskKindVerifySource {
		t.Errorf("unexpected failed members: %+v", res.Error.Members)
	}

	// Стадии 2 и 3 не отправлялись
	status, err := e.orch.CheckJob(ctx, res.JobID)
	if err != nil {
		t.Fatalf("CheckJob: %v", err)
	}
	if len(status.Tasks) != 2 {
		t.Errorf("expected only verify tasks, got %d", len(status.Tasks))
	}
	if status.State != domain.TaskStateFailure {
		t.Errorf("job state = %s", status.State)
	}
	if len(e.catalog.partitions) != 0 {
		t.Error("partition must not be created")
	}
}

func TestOrchestrator_PromoteReportsAllVerifyFailures(t *testing.T) {
	e := newEnv(t)

	res, err := e.orch.Promote(context.Background(), uuid.New(), "permits-unknown")
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if res.Error == nil || len(res.Error.Members) != 2 {
		t.Fatalf("expected both verify members to fail, got %+v", res.Error)
	}
}

func TestOrchestrator_PromoteStageTimeout(t *testing.T) {
	block := make(chan struct{})
	runner := backend.RunnerFunc(func(ctx context.Context, tk *domain.Task) (map[string]any, error) {
		if tk.Kind == domain.TaskKindVerifyTarget {
			<-block
		}
		return map[string]any{"stack": testStack}, nil
	})
	orch := newOrchestrator(t, runner, fence.NewLocal(), 50*time.Millisecond)
	t.Cleanup(func() { close(block) })

	res, err := orch.Promote(context.Background(), uuid.New(), testStack.Name)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if !errors.Is(res.Error, pipeline.ErrStageTimeout) {
		t.Fatalf("expected StageTimeout, got %v", res.Error)
	}
	if res.State != domain.TaskStateRunning {
		t.Errorf("State = %s, want RUNNING", res.State)
	}
	if res.Stages[0].Members[0].State != domain.TaskStateSuccess {
		t.Error("finished member must still be reported")
	}
}

func TestOrchestrator_PromoteMalformedTargetIsProtocolError(t *testing.T) {
	runner := backend.RunnerFunc(func(context.Context, *domain.Task) (map[string]any, error) {
		return map[string]any{"stack": "not-a-stack"}, nil
	})
	orch := newOrchestrator(t, runner, fence.NewLocal(), time.Second)

	res, err := orch.Promote(context.Background(), uuid.New(), testStack.Name)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if !errors.Is(res.Error, pipeline.ErrBackendProtocol) {
		t.Fatalf("expected BackendProtocolError, got %v", res.Error)
	}
	if res.StoppedAt != 1 {
		t.Errorf("StoppedAt = %d, want 1", res.StoppedAt)
	}
}

type failingFencer struct{}

func (failingFencer) Acquire(context.Context, string) (int64, error) {
	return 0, errors.New("redis: connection refused")
}

func TestOrchestrator_PromoteFenceUnavailable(t *testing.T) {
	runner := backend.RunnerFunc(func(context.Context, *domain.Task) (map[string]any, error) {
		t.Error("nothing must be dispatched")
		return nil, nil
	})
	orch := newOrchestrator(t, runner, failingFencer{}, time.Second)

	res, err := orch.Promote(context.Background(), uuid.New(), testStack.Name)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if !errors.Is(res.Error, pipeline.ErrDispatchFailure) {
		t.Errorf("expected DispatchFailure, got %v", res.Error)
	}
}

func TestOrchestrator_PromoteRejectsConcurrentSameJob(t *testing.T) {
	started := make(chan struct{}, 2)
	block := make(chan struct{})
	runner := backend.RunnerFunc(func(context.Context, *domain.Task) (map[string]any, error) {
		started <- struct{}{}
		<-block
		return nil, errors.New("stop")
	})
	orch := newOrchestrator(t, runner, fence.NewLocal(), 5*time.Second)

	jobID := uuid.New()
	done := make(chan struct{})
	go func() {
		defer close(done)
		orch.Promote(context.Background(), jobID, testStack.Name)
	}()
	<-started

	_, err := orch.Promote(context.Background(), jobID, testStack.Name)
	if !errors.Is(err, ErrJobAlreadyActive) {
		t.Errorf("expected ErrJobAlreadyActive, got %v", err)
	}

	close(block)
	<-done
}

func TestOrchestrator_PromoteInvalidArgs(t *testing.T) {
	orch := newOrchestrator(t, backend.RunnerFunc(func(context.Context, *domain.Task) (map[string]any, error) {
		return nil, nil
	}), fence.NewLocal(), time.Second)

	if _, err := orch.Promote(context.Background(), uuid.Nil, "x"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := orch.Promote(context.Background(), uuid.New(), ""); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

// --- Ingest / checks ---

func TestOrchestrator_SubmitIngestAndCheckTask(t *testing.T) {
	runner := backend.RunnerFunc(func(_ context.Context, tk *domain.Task) (map[string]any, error) {
		return map[string]any{"rows": 3}, nil
	})
	orch := newOrchestrator(t, runner, fence.NewLocal(), time.Second)
	ctx := context.Background()

	ack, err := orch.SubmitIngest(ctx)
	if err != nil {
		t.Fatalf("SubmitIngest: %v", err)
	}
	if ack.SyncRunnerJobID != "permits_"+ack.JobID.String() {
		t.Errorf("SyncRunnerJobID = %s", ack.SyncRunnerJobID)
	}
	if ack.FilePath != "s3://lake/data/"+ack.JobID.String()+".parquet" {
		t.Errorf("FilePath = %s", ack.FilePath)
	}
	if !ack.CalledAt.Equal(fixedNow) {
		t.Errorf("CalledAt = %v", ack.CalledAt)
	}

	h, err := orch.CheckTask(ctx, ack.TaskID, time.Second)
	if err != nil {
		t.Fatalf("CheckTask: %v", err)
	}
	if h.State != domain.TaskStateSuccess || h.Result == nil || h.Result.Value["rows"] != 3 {
		t.Errorf("unexpected handle: %+v", h)
	}

	if _, err := orch.CheckTask(ctx, uuid.New(), 0); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
	if _, err := orch.CheckJob(ctx, uuid.New()); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}
