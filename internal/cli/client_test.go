package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestClient_SubmitReport(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/permits/report" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		writeJSON(w, http.StatusCreated, map[string]any{"data": map[string]any{
			"job_id":             "0190a1b2-0000-7000-8000-000000000001",
			"sync_runner_job_id": "permits_0190a1b2-0000-7000-8000-000000000001",
			"task":               "0190a1b2-0000-7000-8000-000000000002",
			"file_path":          "s3://lake/data/0190a1b2-0000-7000-8000-000000000001.parquet",
		}})
	})

	ack, err := client.SubmitReport()
	if err != nil {
		t.Fatalf("SubmitReport: %v", err)
	}
	if ack.TaskID != "0190a1b2-0000-7000-8000-000000000002" {
		t.Errorf("TaskID = %q", ack.TaskID)
	}
	if !strings.HasPrefix(ack.SyncRunnerJobID, "permits_") {
		t.Errorf("SyncRunnerJobID = %q", ack.SyncRunnerJobID)
	}
}

func TestClient_PromoteFailureIsResult(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/permits/to-data-store/job-1/permits-dev" {
			t.Errorf("path = %s", r.URL.Path)
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"data": map[string]any{
			"state": "FAILURE",
			"stages": []map[string]any{{
				"index": 0,
				"name":  "verify",
				"members": []map[string]any{
					{"kind": "VERIFY_SOURCE", "state": "FAILURE", "cause": "source not found", "resolved": true},
				},
			}},
			"failure": map[string]any{"kind": "TaskFailure", "stage": 0, "stage_name": "verify", "message": "source not found"},
		}})
	})

	res, err := client.Promote("job-1", "permits-dev")
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if res.State != "FAILURE" || res.Failure == nil || res.Failure.StageName != "verify" {
		t.Errorf("unexpected result %+v", res)
	}
	if len(res.Stages) != 1 || res.Stages[0].Members[0].Cause != "source not found" {
		t.Errorf("stages = %+v", res.Stages)
	}
}

func TestClient_APIError(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]any{"error": map[string]any{
			"code":    "CONFLICT",
			"message": "job already has an active promote",
		}})
	})

	_, err := client.Promote("job-1", "permits-dev")
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "CONFLICT: job already has an active promote" {
		t.Errorf("err = %v", err)
	}
}

func TestClient_GetTaskWait(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("wait"); got != "5s" {
			t.Errorf("wait = %q", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"id":     "t-1",
			"state":  "SUCCESS",
			"result": map[string]any{"rows": 3, "file_path": "s3://lake/data/x.parquet"},
		}})
	})

	task, err := client.GetTask("t-1", 5*time.Second)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.State != "SUCCESS" {
		t.Errorf("State = %q", task.State)
	}
	if got := taskDetail(task); got != "file_path=s3://lake/data/x.parquet rows=3" {
		t.Errorf("detail = %q", got)
	}
}

func TestStackListCmd(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]any{
				{"name": "permits-dev", "bucket": "b", "prefix": "p", "database": "d", "table": "t"},
			},
			"total": 1,
		})
	})

	var stdout, stderr bytes.Buffer
	out := &Output{w: &stdout, errW: &stderr}

	cmd := NewStackCmd(func() *Client { return client }, func() *Output { return out })
	cmd.SetArgs([]string{"list"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !strings.Contains(stdout.String(), "permits-dev") {
		t.Errorf("output = %q", stdout.String())
	}
}
