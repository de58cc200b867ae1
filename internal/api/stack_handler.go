package api

import (
	"net/http"
)

// ListStacks возвращает зарегистрированные stack'и.
// GET /api/v1/stacks
func (h *Handler) ListStacks(w http.ResponseWriter, r *http.Request) {
	stacks, err := h.catalog.ListStacks(r.Context())
	if HandleRepoError(w, h.log(r), err, "") {
		return
	}

	result := make([]StackResponse, len(stacks))
	for i, s := range stacks {
		result[i] = StackFromDomain(s)
	}

	List(w, result, len(result))
}

// GetStack возвращает stack по имени.
// GET /api/v1/stacks/{name}
func (h *Handler) GetStack(w http.ResponseWriter, r *http.Request) {
	stack, err := h.catalog.GetStack(r.Context(), r.PathValue("name"))
	if HandleRepoError(w, h.log(r), err, "stack not found") {
		return
	}

	Success(w, StackFromDomain(*stack))
}

// ListPartitions возвращает партиции таблицы stack.
// GET /api/v1/stacks/{name}/partitions
func (h *Handler) ListPartitions(w http.ResponseWriter, r *http.Request) {
	stack, err := h.catalog.GetStack(r.Context(), r.PathValue("name"))
	if HandleRepoError(w, h.log(r), err, "stack not found") {
		return
	}

	partitions, err := h.catalog.ListPartitions(r.Context(), stack.Database, stack.Table)
	if HandleRepoError(w, h.log(r), err, "") {
		return
	}

	result := make([]PartitionResponse, len(partitions))
	for i, p := range partitions {
		result[i] = PartitionFromDomain(p)
	}

	List(w, result, len(result))
}
