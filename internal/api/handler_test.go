package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/olmax99/dockerflaskapi/internal/backend"
	"github.com/olmax99/dockerflaskapi/internal/domain"
	"github.com/olmax99/dockerflaskapi/internal/orchestrator"
	"github.com/olmax99/dockerflaskapi/internal/pipeline"
	"github.com/olmax99/dockerflaskapi/internal/repo"
	"github.com/olmax99/dockerflaskapi/internal/task"
)

// --- Fakes ---

type fakeService struct {
	ack       *orchestrator.IngestAck
	promote   *orchestrator.PromoteResult
	handle    domain.Handle
	job       *orchestrator.JobStatus
	err       error
	gotWait   time.Duration
	gotStack  string
	gotSource uuid.UUID
}

func (s *fakeService) SubmitIngest(context.Context) (*orchestrator.IngestAck, error) {
	return s.ack, s.err
}

func (s *fakeService) Promote(_ context.Context, source uuid.UUID, stack string) (*orchestrator.PromoteResult, error) {
	s.gotSource, s.gotStack = source, stack
	return s.promote, s.err
}

func (s *fakeService) CheckTask(_ context.Context, _ uuid.UUID, wait time.Duration) (domain.Handle, error) {
	s.gotWait = wait
	return s.handle, s.err
}

func (s *fakeService) CheckJob(context.Context, uuid.UUID) (*orchestrator.JobStatus, error) {
	return s.job, s.err
}

type fakeCatalog struct {
	stacks     []domain.Stack
	partitions []domain.Partition
}

func (c *fakeCatalog) ListStacks(context.Context) ([]domain.Stack, error) {
	return c.stacks, nil
}

func (c *fakeCatalog) GetStack(_ context.Context, name string) (*domain.Stack, error) {
	for i := range c.stacks {
		if c.stacks[i].Name == name {
			return &c.stacks[i], nil
		}
	}
	return nil, repo.ErrNotFound
}

func (c *fakeCatalog) ListPartitions(context.Context, string, string) ([]domain.Partition, error) {
	return c.partitions, nil
}

// failingBackend отвечает одной и той же ошибкой на любой вызов.
type failingBackend struct {
	err error
}

func (b failingBackend) Dispatch(context.Context, task.Unit, backend.DispatchOptions) (domain.Handle, error) {
	return domain.Handle{}, b.err
}

func (b failingBackend) Poll(context.Context, uuid.UUID) (domain.Handle, error) {
	return domain.Handle{}, b.err
}

func (b failingBackend) Await(context.Context, uuid.UUID, time.Duration) (domain.Handle, error) {
	return domain.Handle{}, b.err
}

func (b failingBackend) PollJob(context.Context, uuid.UUID) ([]domain.Handle, error) {
	return nil, b.err
}

// --- Helpers ---

func newTestServer(t *testing.T, svc Service, catalog *fakeCatalog) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	NewHandler(Config{Service: svc, Catalog: catalog, MaxWait: 5 * time.Second}).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return resp, body
}

// --- Tests ---

func TestSubmitReport(t *testing.T) {
	jobID := uuid.New()
	svc := &fakeService{ack: &orchestrator.IngestAck{
		JobID:           jobID,
		SyncRunnerJobID: "permits_" + jobID.String(),
		TaskID:          uuid.New(),
		FilePath:        "s3://lake/data/" + jobID.String() + ".parquet",
	}}
	srv := newTestServer(t, svc, &fakeCatalog{})

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/permits/report")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	data := body["data"].(map[string]any)
	if data["sync_runner_job_id"] != "permits_"+jobID.String() {
		t.Errorf("sync_runner_job_id = %v", data["sync_runner_job_id"])
	}
}

func TestSubmitReport_BackendUnavailable(t *testing.T) {
	svc := &fakeService{err: orchestrator.ErrBackendUnavailable}
	srv := newTestServer(t, svc, &fakeCatalog{})

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/permits/report")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["error"].(map[string]any)["code"] != string(ErrCodeUnavailable) {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestPromoteToDataStore_Status(t *testing.T) {
	tests := []struct {
		name   string
		result *orchestrator.PromoteResult
		err    error
		want   int
	}{
		{
			name:   "success",
			result: &orchestrator.PromoteResult{State: domain.TaskStateSuccess, StoppedAt: -1},
			want:   http.StatusCreated,
		},
		{
			name: "failure",
			result: &orchestrator.PromoteResult{
				State:     domain.TaskStateFailure,
				StoppedAt: 0,
				Error: &pipeline.Error{
					Kind:      pipeline.KindTaskFailure,
					StageName: "verify",
					Members:   []pipeline.MemberError{{Index: 0, Kind: domain.TaskKindVerifySource, Cause: "source not found"}},
				},
			},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "timeout",
			result: &orchestrator.PromoteResult{
				State: domain.TaskStateRunning,
				Error: &pipeline.Error{Kind: pipeline.KindStageTimeout},
			},
			want: http.StatusAccepted,
		},
		{
			name: "already active",
			err:  orchestrator.ErrJobAlreadyActive,
			want: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{promote: tt.result, err: tt.err}
			srv := newTestServer(t, svc, &fakeCatalog{})
			source := uuid.New()

			resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/permits/to-data-store/"+source.String()+"/permits-dev")
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if svc.gotSource != source || svc.gotStack != "permits-dev" {
				t.Errorf("service got %s / %s", svc.gotSource, svc.gotStack)
			}
			if tt.result != nil && tt.result.Error != nil {
				failure := body["data"].(map[string]any)["failure"].(map[string]any)
				if failure["kind"] != string(tt.result.Error.Kind) {
					t.Errorf("failure kind = %v", failure["kind"])
				}
			}
		})
	}
}

func TestPromoteToDataStore_InvalidJobID(t *testing.T) {
	srv := newTestServer(t, &fakeService{}, &fakeCatalog{})

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/v1/permits/to-data-store/nope/permits-dev")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestGetTask(t *testing.T) {
	id := uuid.New()
	svc := &fakeService{handle: domain.Handle{
		ID:     id,
		Kind:   domain.TaskKindIngestReport,
		State:  domain.TaskStateSuccess,
		Result: &domain.Result{Value: map[string]any{"rows": 10}},
	}}
	srv := newTestServer(t, svc, &fakeCatalog{})

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/tasks/"+id.String()+"?wait=2s")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if svc.gotWait != 2*time.Second {
		t.Errorf("wait = %v", svc.gotWait)
	}
	data := body["data"].(map[string]any)
	if data["state"] != "SUCCESS" || data["result"].(map[string]any)["rows"] != float64(10) {
		t.Errorf("unexpected data: %v", data)
	}

	// wait ограничен MaxWait
	do(t, http.MethodGet, srv.URL+"/api/v1/tasks/"+id.String()+"?wait=600")
	if svc.gotWait != 5*time.Second {
		t.Errorf("wait = %v, want capped 5s", svc.gotWait)
	}
}

func TestGetTask_Errors(t *testing.T) {
	svc := &fakeService{err: orchestrator.ErrTaskNotFound}
	srv := newTestServer(t, svc, &fakeCatalog{})

	if resp, _ := do(t, http.MethodGet, srv.URL+"/api/v1/tasks/"+uuid.NewString()); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown task status = %d", resp.StatusCode)
	}
	if resp, _ := do(t, http.MethodGet, srv.URL+"/api/v1/tasks/"+uuid.NewString()+"?wait=later"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad wait status = %d", resp.StatusCode)
	}

	svc.err = errors.New("boom")
	if resp, _ := do(t, http.MethodGet, srv.URL+"/api/v1/jobs/"+uuid.NewString()); resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("internal error status = %d", resp.StatusCode)
	}
}

func TestGetJob(t *testing.T) {
	jobID := uuid.New()
	svc := &fakeService{job: &orchestrator.JobStatus{
		JobID: jobID,
		State: domain.TaskStateRunning,
		Tasks: []domain.Handle{
			{ID: uuid.New(), JobID: jobID, Kind: domain.TaskKindVerifySource, State: domain.TaskStateSuccess, Result: &domain.Result{}},
			{ID: uuid.New(), JobID: jobID, Kind: domain.TaskKindVerifyTarget, State: domain.TaskStatePending},
		},
	}}
	srv := newTestServer(t, svc, &fakeCatalog{})

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/jobs/"+jobID.String())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	data := body["data"].(map[string]any)
	if data["state"] != "RUNNING" || len(data["tasks"].([]any)) != 2 {
		t.Errorf("unexpected data: %v", data)
	}
}

func TestStacks(t *testing.T) {
	catalog := &fakeCatalog{
		stacks: []domain.Stack{{Name: "permits-dev", Bucket: "store", Database: "db", Table: "permits"}},
		partitions: []domain.Partition{
			{Database: "db", Table: "permits", Value: "2026-10-18", Location: "s3://store/dt=2026-10-18/"},
		},
	}
	srv := newTestServer(t, &fakeService{}, catalog)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/stacks")
	if resp.StatusCode != http.StatusOK || body["total"] != float64(1) {
		t.Errorf("list stacks: %d %v", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/stacks/permits-dev/partitions")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("partitions status = %d", resp.StatusCode)
	}
	parts := body["data"].([]any)
	if len(parts) != 1 || parts[0].(map[string]any)["value"] != "2026-10-18" {
		t.Errorf("unexpected partitions: %v", parts)
	}

	if resp, _ := do(t, http.MethodGet, srv.URL+"/api/v1/stacks/unknown"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown stack status = %d", resp.StatusCode)
	}
}

func TestBackendErrors_AreClassified(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unavailable", backend.ErrUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{"protocol", backend.ErrProtocol, http.StatusBadGateway, "BAD_GATEWAY"},
		{"unknown", errors.New("connection reset by peer"), http.StatusBadGateway, "BAD_GATEWAY"},
		{"not found", backend.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orch := orchestrator.New(orchestrator.Config{Backend: failingBackend{err: tt.err}})
			srv := newTestServer(t, orch, &fakeCatalog{})

			for _, path := range []string{"/api/v1/tasks/", "/api/v1/jobs/"} {
				resp, body := do(t, http.MethodGet, srv.URL+path+uuid.NewString())
				if resp.StatusCode != tt.wantStatus {
					t.Errorf("GET %s status = %d, want %d", path, resp.StatusCode, tt.wantStatus)
				}
				detail, _ := body["error"].(map[string]any)
				if detail["code"] != tt.wantCode {
					t.Errorf("GET %s code = %v, want %s", path, detail["code"], tt.wantCode)
				}
			}
		})
	}
}

func TestSubmitReport_UnavailableBackend(t *testing.T) {
	orch := orchestrator.New(orchestrator.Config{Backend: failingBackend{err: backend.ErrUnavailable}})
	srv := newTestServer(t, orch, &fakeCatalog{})

	if resp, _ := do(t, http.MethodPost, srv.URL+"/api/v1/permits/report"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}
