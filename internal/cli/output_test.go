package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestOutput_PromoteFailureListsMembers(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := &Output{w: &stdout, errW: &stderr}

	err := out.Promote(&PromoteResponse{
		State: "FAILURE",
		Stages: []StageResponse{{
			Index: 1,
			Name:  "verify",
			Members: []MemberResponse{
				{Kind: "VERIFY_SOURCE", State: "SUCCESS", Value: map[string]any{"size": 42}, Resolved: true},
				{Kind: "VERIFY_TARGET", State: "FAILURE", Cause: "stack not registered", Resolved: true},
			},
		}},
		Failure: &FailureResponse{
			Kind:      "TaskFailure",
			Stage:     1,
			StageName: "verify",
			Message:   "1 of 2 members failed",
			Members: []MemberErrorResponse{
				{Index: 1, TaskID: "t-2", Kind: "VERIFY_TARGET", Cause: "stack not registered"},
			},
		},
	})
	if err == nil || err.Error() != "promote FAILURE: TaskFailure" {
		t.Fatalf("err = %v", err)
	}

	table := stdout.String()
	if !strings.Contains(table, "size=42") || !strings.Contains(table, "stack not registered") {
		t.Errorf("table = %q", table)
	}
	msgs := stderr.String()
	if !strings.Contains(msgs, "Stopped at stage 1 (verify)") {
		t.Errorf("stderr = %q", msgs)
	}
	if !strings.Contains(msgs, "member 1 VERIFY_TARGET t-2: stack not registered") {
		t.Errorf("member errors not listed: %q", msgs)
	}
}

func TestOutput_PromoteUnresolvedMember(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := &Output{w: &stdout, errW: &stderr}

	err := out.Promote(&PromoteResponse{
		State: "FAILURE",
		Stages: []StageResponse{{
			Index:   2,
			Name:    "copy",
			Members: []MemberResponse{{Kind: "COPY_TO_TARGET", State: "RUNNING"}},
		}},
		Failure: &FailureResponse{Kind: "Timeout", Stage: 2, StageName: "copy", Message: "stage timed out"},
	})
	if err == nil {
		t.Fatal("expected error for timed out promote")
	}
	if !strings.Contains(stdout.String(), "(unresolved)") {
		t.Errorf("table = %q", stdout.String())
	}
}

func TestOutput_JSONMode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := &Output{jsonMode: true, w: &stdout, errW: &stderr}

	out.Task(&TaskResponse{ID: "t-1", State: "SUCCESS", Result: map[string]any{"rows": 3}})

	var got TaskResponse
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("stdout is not JSON: %v (%q)", err, stdout.String())
	}
	if got.ID != "t-1" || got.State != "SUCCESS" {
		t.Errorf("got %+v", got)
	}
}

func TestPromoteCmd_Success(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"state":         "SUCCESS",
			"source_job_id": "job-1",
			"stack":         "permits-dev",
			"partition":     "2026-10-18",
			"duration_ms":   1500,
			"stages": []map[string]any{{
				"index": 3,
				"name":  "copy",
				"members": []map[string]any{
					{"kind": "COPY_TO_TARGET", "state": "SUCCESS", "value": map[string]any{"copied": true}, "resolved": true},
				},
			}},
		}})
	})

	var stdout, stderr bytes.Buffer
	out := &Output{w: &stdout, errW: &stderr}

	cmd := NewPromoteCmd(func() *Client { return client }, func() *Output { return out })
	cmd.SetArgs([]string{"job-1", "permits-dev"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !strings.Contains(stdout.String(), "copied=true") {
		t.Errorf("stdout = %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "Promoted job-1 into permits-dev partition 2026-10-18 in 1500ms") {
		t.Errorf("stderr = %q", stderr.String())
	}
}
