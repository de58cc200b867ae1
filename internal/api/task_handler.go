package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// GetTask возвращает состояние task.
// GET /api/v1/tasks/{id}?wait=2s
//
// wait — сколько ждать финального состояния (duration или секунды).
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	wait, err := parseWait(r.URL.Query().Get("wait"))
	if err != nil {
		BadRequest(w, "invalid wait")
		return
	}
	wait = min(wait, h.maxWait)

	handle, err := h.service.CheckTask(r.Context(), id, wait)
	if HandleServiceError(w, h.log(r), err) {
		return
	}

	Success(w, TaskFromHandle(handle))
}

// GetJob возвращает сводное состояние job и его tasks.
// GET /api/v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	status, err := h.service.CheckJob(r.Context(), id)
	if HandleServiceError(w, h.log(r), err) {
		return
	}

	Success(w, JobFromStatus(status))
}

func parseWait(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return max(d, 0), nil
}
