// Package handler exposes the audit log to administrators over HTTP.
package handler

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"election-voting/auth/internal/audit/domain"
	auditrepo "election-voting/auth/internal/audit/repository"
	"election-voting/auth/internal/platform/httpx"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Handler serves GET /admin/audit-logs. Mount behind the admin gate.
type Handler struct {
	repo auditrepo.Repository
	log  *zap.Logger
}

// NewHandler returns a Handler reading from repo.
func NewHandler(repo auditrepo.Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, log: logger}
}

type listResponse struct {
	AuditLogs []*domain.AuditLog `json:"auditLogs"`
	Limit     int32              `json:"limit"`
	Offset    int32              `json:"offset"`
}

// List returns audit entries newest first, filtered by the optional voterId and
// action query parameters and paged with limit and offset.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.Filter{VoterID: q.Get("voterId"), Limit: defaultPageSize}
	if s := q.Get("action"); s != "" {
		a, ok := domain.ParseAction(s)
		if !ok {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "unknown action")
			return
		}
		f.Action = a
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil || n <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		f.Limit = int32(min(n, maxPageSize))
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil || n < 0 {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "offset must be a non-negative integer")
			return
		}
		f.Offset = int32(n)
	}

	logs, err := h.repo.List(r.Context(), f)
	if err != nil {
		h.log.Error("audit: list failed", zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if logs == nil {
		logs = []*domain.AuditLog{}
	}
	httpx.WriteJSON(w, http.StatusOK, listResponse{AuditLogs: logs, Limit: f.Limit, Offset: f.Offset})
}
