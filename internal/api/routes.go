package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		RequestLogger(h.logger),
		Recovery(),
		Logging(),
	)

	// Permits
	mux.Handle("POST /api/v1/permits/report", chain(http.HandlerFunc(h.SubmitReport)))
	mux.Handle("POST /api/v1/permits/to-data-store/{job_id}/{stack_name}", chain(http.HandlerFunc(h.PromoteToDataStore)))

	// Tasks & jobs
	mux.Handle("GET /api/v1/tasks/{id}", chain(http.HandlerFunc(h.GetTask)))
	mux.Handle("GET /api/v1/jobs/{id}", chain(http.HandlerFunc(h.GetJob)))

	// Stacks
	mux.Handle("GET /api/v1/stacks", chain(http.HandlerFunc(h.ListStacks)))
	mux.Handle("GET /api/v1/stacks/{name}", chain(http.HandlerFunc(h.GetStack)))
	mux.Handle("GET /api/v1/stacks/{name}/partitions", chain(http.HandlerFunc(h.ListPartitions)))
}
