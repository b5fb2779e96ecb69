// Package handler exposes the auth service over HTTP: registration, login,
// refresh, logout, 2FA enrollment and the admin session kill.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"election-voting/auth/internal/identity/service"
	"election-voting/auth/internal/platform/httpx"
	"election-voting/auth/internal/security"
	"election-voting/auth/internal/server/middleware"
	voterdomain "election-voting/auth/internal/voter/domain"
)

// Handler serves the /auth routes. Sessions travel only in HttpOnly cookies.
type Handler struct {
	auth    *service.AuthService
	cookies security.CookiePolicy
	log     *zap.Logger
}

// NewHandler returns a Handler backed by auth. logger may be nil.
func NewHandler(auth *service.AuthService, cookies security.CookiePolicy, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{auth: auth, cookies: cookies, log: logger}
}

// Routes returns the /auth router. sensitive wraps the brute-forceable
// endpoints; it runs after the optional access-token check so the limiter can
// key on the voter. A nil sensitive leaves those endpoints unlimited.
func (h *Handler) Routes(authn *middleware.Authenticator, sensitive func(http.Handler) http.Handler) chi.Router {
	if sensitive == nil {
		sensitive = func(next http.Handler) http.Handler { return next }
	}
	r := chi.NewRouter()
	r.Post("/register", h.Register)
	r.With(authn.Optional, sensitive).Post("/login", h.Login)
	r.With(authn.Optional).Post("/logout", h.Logout)
	r.Post("/logout-all", h.LogoutAll)
	r.Post("/refresh", h.Refresh)
	r.With(sensitive).Post("/2fa/verify-login", h.VerifyLogin)

	r.Group(func(r chi.Router) {
		r.Use(authn.Require)
		r.Get("/me", h.Me)
		r.Post("/2fa/disable", h.DisableTwoFactor)
		r.With(sensitive).Post("/password", h.ChangePassword)
		r.With(sensitive).Post("/2fa/setup", h.SetupTwoFactor)
		r.With(sensitive).Post("/2fa/verify", h.ConfirmTwoFactor)
	})
	return r
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type confirmTwoFactorRequest struct {
	Secret string `json:"secret"`
	Code   string `json:"code"`
}

type verifyLoginRequest struct {
	ChallengeToken string `json:"challengeToken"`
	Code           string `json:"code"`
}

type voterResponse struct {
	Voter voterdomain.Profile `json:"voter"`
}

type sessionResponse struct {
	Voter            voterdomain.Profile `json:"voter"`
	AccessExpiresAt  time.Time           `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time           `json:"refreshExpiresAt"`
}

type challengeResponse struct {
	RequiresTwoFactor bool      `json:"requires2FA"`
	ChallengeToken    string    `json:"challengeToken"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

type setupTwoFactorResponse struct {
	QRCode     string `json:"qrCode"`
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauthUrl"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type revokedResponse struct {
	Revoked int64 `json:"revoked"`
}

func requestMeta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{IP: middleware.ClientIP(r), UserAgent: middleware.UserAgent(r)}
}

// Register handles POST /auth/register. New voters are never admins; extra body
// fields such as isAdmin are ignored.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := httpx.DecodeJSONLenient(r, &req); err != nil {
		h.writeError(w, r, "register", err)
		return
	}
	p, err := h.auth.Register(r.Context(), req.Email, req.Password, requestMeta(r))
	if err != nil {
		h.writeError(w, r, "register", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, voterResponse{Voter: *p})
}

// Login handles POST /auth/login. Voters with 2FA receive a challenge token in
// the body and no cookies.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "login", err)
		return
	}
	res, err := h.auth.Login(r.Context(), req.Email, req.Password, requestMeta(r))
	if err != nil {
		h.writeError(w, r, "login", err)
		return
	}
	if res.RequiresTwoFactor() {
		httpx.WriteJSON(w, http.StatusOK, challengeResponse{
			RequiresTwoFactor: true,
			ChallengeToken:    res.ChallengeToken,
			ExpiresAt:         res.ChallengeExpiresAt,
		})
		return
	}
	h.writeSession(w, res.Session)
}

// VerifyLogin handles POST /auth/2fa/verify-login.
func (h *Handler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	var req verifyLoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "verify_login", err)
		return
	}
	sess, err := h.auth.CompleteChallenge(r.Context(), req.ChallengeToken, req.Code, requestMeta(r))
	if err != nil {
		h.writeError(w, r, "verify_login", err)
		return
	}
	h.writeSession(w, sess)
}

// Refresh handles POST /auth/refresh. Any rejection of the refresh cookie
// clears both cookies.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	sess, err := h.auth.Refresh(r.Context(), middleware.RefreshToken(r), requestMeta(r))
	if err != nil {
		if endsSession(err) {
			h.cookies.Clear(w)
		}
		h.writeError(w, r, "refresh", err)
		return
	}
	h.writeSession(w, sess)
}

// Logout handles POST /auth/logout. Cookies are always cleared and a repeated
// call succeeds.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	voterID, _ := middleware.VoterID(r.Context())
	err := h.auth.Logout(r.Context(), voterID, middleware.RefreshToken(r), requestMeta(r))
	h.cookies.Clear(w)
	if err != nil {
		h.writeError(w, r, "logout", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

// LogoutAll handles POST /auth/logout-all using the refresh cookie.
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.auth.LogoutAll(r.Context(), middleware.RefreshToken(r), requestMeta(r))
	if err != nil {
		if endsSession(err) {
			h.cookies.Clear(w)
		}
		h.writeError(w, r, "logout_all", err)
		return
	}
	h.cookies.Clear(w)
	httpx.WriteJSON(w, http.StatusOK, revokedResponse{Revoked: n})
}

// Me handles GET /auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	voterID, _ := middleware.VoterID(r.Context())
	p, err := h.auth.Me(r.Context(), voterID)
	if err != nil {
		h.writeError(w, r, "me", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, voterResponse{Voter: *p})
}

// ChangePassword handles POST /auth/password. Every session ends, this one included.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "change_password", err)
		return
	}
	voterID, _ := middleware.VoterID(r.Context())
	if err := h.auth.ChangePassword(r.Context(), voterID, req.CurrentPassword, req.NewPassword, requestMeta(r)); err != nil {
		h.writeError(w, r, "change_password", err)
		return
	}
	h.cookies.Clear(w)
	httpx.WriteJSON(w, http.StatusOK, messageResponse{Message: "password changed, please log in again"})
}

// SetupTwoFactor handles POST /auth/2fa/setup.
func (h *Handler) SetupTwoFactor(w http.ResponseWriter, r *http.Request) {
	voterID, _ := middleware.VoterID(r.Context())
	e, err := h.auth.SetupTwoFactor(r.Context(), voterID, requestMeta(r))
	if err != nil {
		h.writeError(w, r, "2fa_setup", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, http.StatusOK, setupTwoFactorResponse{QRCode: e.QRCode, Secret: e.Secret, OTPAuthURL: e.OTPAuthURL})
}

// ConfirmTwoFactor handles POST /auth/2fa/verify.
func (h *Handler) ConfirmTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req confirmTwoFactorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "2fa_verify", err)
		return
	}
	voterID, _ := middleware.VoterID(r.Context())
	if err := h.auth.ConfirmTwoFactor(r.Context(), voterID, req.Secret, req.Code, requestMeta(r)); err != nil {
		h.writeError(w, r, "2fa_verify", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, messageResponse{Message: "two-factor authentication enabled"})
}

// DisableTwoFactor handles POST /auth/2fa/disable.
func (h *Handler) DisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	voterID, _ := middleware.VoterID(r.Context())
	if err := h.auth.DisableTwoFactor(r.Context(), voterID, requestMeta(r)); err != nil {
		h.writeError(w, r, "2fa_disable", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, messageResponse{Message: "two-factor authentication disabled"})
}

// RevokeSessions handles POST /admin/voters/{voterID}/revoke-sessions. Mount behind the admin gate.
func (h *Handler) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	adminID, _ := middleware.VoterID(r.Context())
	n, err := h.auth.RevokeVoterSessions(r.Context(), adminID, chi.URLParam(r, "voterID"), requestMeta(r))
	if err != nil {
		h.writeError(w, r, "revoke_sessions", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, revokedResponse{Revoked: n})
}

func (h *Handler) writeSession(w http.ResponseWriter, sess *service.Session) {
	h.cookies.SetSession(w, sess.AccessToken, sess.RefreshToken)
	httpx.WriteJSON(w, http.StatusOK, sessionResponse{
		Voter:            sess.Voter,
		AccessExpiresAt:  sess.AccessExpiresAt,
		RefreshExpiresAt: sess.RefreshExpiresAt,
	})
}
