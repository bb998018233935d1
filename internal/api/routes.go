package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Operations
	mux.Handle("POST /api/v1/operations", chain(http.HandlerFunc(h.StartOperation)))
	mux.Handle("GET /api/v1/operations", chain(http.HandlerFunc(h.ListOperations)))
	mux.Handle("GET /api/v1/operations/{id}", chain(http.HandlerFunc(h.GetOperation)))
	mux.Handle("POST /api/v1/operations/{id}/abort", chain(http.HandlerFunc(h.AbortOperation)))
	mux.Handle("POST /api/v1/operations/{id}/resume", chain(http.HandlerFunc(h.ResumeOperation)))
	mux.Handle("GET /api/v1/operations/{id}/messages", chain(http.HandlerFunc(h.ListOperationMessages)))
}
