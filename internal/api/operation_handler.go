package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/Convoy/internal/domain"
	"github.com/shaiso/Convoy/internal/engine"
	"github.com/shaiso/Convoy/internal/repo"
	"github.com/shaiso/Convoy/internal/telemetry"
)

// StartOperation обрабатывает POST /api/v1/operations.
func (h *Handler) StartOperation(w http.ResponseWriter, r *http.Request) {
	var req StartOperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		BadRequest(w, err.Error())
		return
	}

	op, err := h.starter.Start(r.Context(), engine.StartRequest{
		Type:       domain.ProcessType(req.Type),
		Namespace:  req.Namespace,
		SpaceID:    req.SpaceID,
		OrgID:      req.OrgID,
		User:       req.User,
		Descriptor: []byte(req.Descriptor),
	})
	if err != nil {
		if errors.Is(err, repo.ErrConflictingOperation) {
			Conflict(w, "another operation on the same MTA is already running")
			return
		}
		// Ошибка парсинга дескриптора — вина клиента.
		BadRequest(w, err.Error())
		return
	}

	telemetry.FromContext(r.Context()).Info("operation started",
		"operation_id", op.ID,
		"type", op.Type,
		"mta_id", op.MTAID,
	)
	Accepted(w, op)
}

// ListOperations обрабатывает GET /api/v1/operations.
func (h *Handler) ListOperations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repo.OperationFilter{
		MTAID:   q.Get("mta_id"),
		SpaceID: q.Get("space_id"),
		State:   domain.OperationState(q.Get("state")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			BadRequest(w, "invalid limit parameter")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			BadRequest(w, "invalid offset parameter")
			return
		}
		filter.Offset = n
	}

	ops, err := h.operations.List(r.Context(), filter)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	List(w, ops, len(ops))
}

// GetOperation обрабатывает GET /api/v1/operations/{id}.
func (h *Handler) GetOperation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.operationID(w, r)
	if !ok {
		return
	}

	op, err := h.operations.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "operation not found") {
		return
	}
	Success(w, op)
}

// AbortOperation обрабатывает POST /api/v1/operations/{id}/abort.
func (h *Handler) AbortOperation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.operationID(w, r)
	if !ok {
		return
	}

	if err := h.starter.Abort(r.Context(), id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			InvalidState(w, "operation is not running")
			return
		}
		InternalError(w, h.logger, err)
		return
	}
	Accepted(w, map[string]string{"id": id.String(), "status": "abort requested"})
}

// ResumeOperation обрабатывает POST /api/v1/operations/{id}/resume.
func (h *Handler) ResumeOperation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.operationID(w, r)
	if !ok {
		return
	}

	op, err := h.starter.Resume(r.Context(), id)
	if err != nil {
		if errors.Is(err, engine.ErrNotResumable) {
			InvalidState(w, err.Error())
			return
		}
		if HandleRepoError(w, h.logger, err, "operation not found") {
			return
		}
	}
	Accepted(w, op)
}

// ListOperationMessages обрабатывает GET /api/v1/operations/{id}/messages.
//
// Параметр after задаёт id последнего уже полученного сообщения:
// CLI использует его для инкрементального tail логов операции.
func (h *Handler) ListOperationMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.operationID(w, r)
	if !ok {
		return
	}

	var afterID int64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			BadRequest(w, "invalid after parameter")
			return
		}
		afterID = n
	}

	if _, err := h.operations.GetByID(r.Context(), id); HandleRepoError(w, h.logger, err, "operation not found") {
		return
	}

	msgs, err := h.progress.ListByOperation(r.Context(), id, afterID)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	List(w, msgs, len(msgs))
}

// operationID извлекает и валидирует UUID операции из пути запроса.
func (h *Handler) operationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid operation id")
		return uuid.Nil, false
	}
	return id, true
}
