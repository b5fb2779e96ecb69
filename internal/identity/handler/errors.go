package handler

import (
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"election-voting/auth/internal/identity/service"
	"election-voting/auth/internal/platform/httpx"
	"election-voting/auth/internal/security"
)

// Error codes returned in the "code" field of error bodies.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeTokenExpired       = "token_expired"
	CodeTokenInvalid       = "token_invalid"
	CodeSessionExpired     = "session_expired"
	CodeInvalidOTP         = "invalid_otp"
	CodeConflict           = "conflict"
	CodeInvalidRequest     = "invalid_request"
	CodeNotFound           = "not_found"
	CodeInternal           = "internal_error"
)

type apiError struct {
	status int
	code   string
	msg    string
}

// classify maps a service error to its HTTP status, code and client-safe message.
// Anomaly rejections share one generic answer so the client learns nothing about detection.
func classify(err error) apiError {
	switch {
	case errors.Is(err, httpx.ErrBadRequest):
		return apiError{http.StatusBadRequest, CodeInvalidRequest, "invalid request body"}
	case errors.Is(err, service.ErrInvalidArgument):
		return apiError{http.StatusBadRequest, CodeInvalidRequest, err.Error()}
	case errors.Is(err, service.ErrInvalidCredentials):
		return apiError{http.StatusUnauthorized, CodeInvalidCredentials, "invalid email or password"}
	case service.IsSessionKilled(err):
		return apiError{http.StatusUnauthorized, CodeSessionExpired, "session expired, please log in again"}
	case errors.Is(err, security.ErrTokenExpired):
		return apiError{http.StatusUnauthorized, CodeTokenExpired, "token expired"}
	case errors.Is(err, security.ErrTokenInvalid):
		return apiError{http.StatusUnauthorized, CodeTokenInvalid, "invalid token"}
	case errors.Is(err, service.ErrInvalidOTP):
		return apiError{http.StatusUnauthorized, CodeInvalidOTP, "invalid verification code"}
	case errors.Is(err, service.ErrEmailAlreadyRegistered):
		return apiError{http.StatusConflict, CodeConflict, "email already registered"}
	case errors.Is(err, service.ErrTwoFactorAlreadyEnabled):
		return apiError{http.StatusConflict, CodeConflict, "two-factor authentication already enabled"}
	case errors.Is(err, service.ErrTwoFactorNotEnabled):
		return apiError{http.StatusConflict, CodeConflict, "two-factor authentication not enabled"}
	case errors.Is(err, service.ErrVoterNotFound):
		return apiError{http.StatusNotFound, CodeNotFound, "voter not found"}
	default:
		return apiError{http.StatusInternalServerError, CodeInternal, "internal server error"}
	}
}

// endsSession reports whether err means the refresh cookie is useless; the
// client is then logged out by clearing both cookies.
func endsSession(err error) bool {
	return service.IsSessionKilled(err) ||
		errors.Is(err, security.ErrTokenExpired) ||
		errors.Is(err, security.ErrTokenInvalid)
}

// writeError writes the mapped error. Internal errors are logged with the request id.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	e := classify(err)
	if e.status >= http.StatusInternalServerError {
		h.log.Error("auth request failed",
			zap.String("op", op),
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Error(err))
	}
	httpx.WriteError(w, e.status, e.code, e.msg)
}
