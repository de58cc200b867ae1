package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/olmax99/dockerflaskapi/internal/domain"
)

// SubmitReport запускает выгрузку отчёта в data lake.
// POST /api/v1/permits/report
func (h *Handler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	ack, err := h.service.SubmitIngest(r.Context())
	if HandleServiceError(w, h.log(r), err) {
		return
	}

	Created(w, ack)
}

// PromoteToDataStore продвигает файл ingest job'а в партицию stack.
// POST /api/v1/permits/to-data-store/{job_id}/{stack_name}
func (h *Handler) PromoteToDataStore(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("job_id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	result, err := h.service.Promote(r.Context(), jobID, r.PathValue("stack_name"))
	if HandleServiceError(w, h.log(r), err) {
		return
	}

	status := http.StatusCreated
	switch result.State {
	case domain.TaskStateRunning:
		status = http.StatusAccepted
	case domain.TaskStateFailure:
		status = http.StatusUnprocessableEntity
	}

	JSON(w, status, DataResponse{Data: PromoteFromResult(result)})
}
