package domain

import "time"

// Action is the closed set of security events the auth service records.
type Action string

const (
	ActionRegister           Action = "REGISTER"
	ActionLoginSuccess       Action = "LOGIN_SUCCESS"
	ActionLoginFailure       Action = "LOGIN_FAILURE"
	ActionLogout             Action = "LOGOUT"
	ActionLogoutAll          Action = "LOGOUT_ALL"
	ActionRefreshToken       Action = "REFRESH_TOKEN"
	ActionTokenReuse         Action = "TOKEN_REUSE"
	ActionTokenRevoked       Action = "TOKEN_REVOKED"
	ActionIPMismatch         Action = "IP_MISMATCH"
	ActionUAMismatch         Action = "UA_MISMATCH"
	ActionTwoFactorSetup     Action = "2FA_SETUP"
	ActionTwoFactorEnabled   Action = "2FA_ENABLED"
	ActionTwoFactorDisabled  Action = "2FA_DISABLED"
	ActionTwoFactorChallenge Action = "2FA_CHALLENGE"
	ActionTwoFactorSuccess   Action = "2FA_SUCCESS"
	ActionTwoFactorFailure   Action = "2FA_FAILED"
	ActionPasswordChanged    Action = "PASSWORD_CHANGED"
	ActionSessionsRevoked    Action = "SESSIONS_REVOKED"
	ActionRateLimited        Action = "RATE_LIMITED"
)

var actions = map[Action]struct{}{
	ActionRegister: {}, ActionLoginSuccess: {}, ActionLoginFailure: {}, ActionLogout: {},
	ActionLogoutAll: {}, ActionRefreshToken: {}, ActionTokenReuse: {}, ActionTokenRevoked: {},
	ActionIPMismatch: {}, ActionUAMismatch: {}, ActionTwoFactorSetup: {}, ActionTwoFactorEnabled: {},
	ActionTwoFactorDisabled: {}, ActionTwoFactorChallenge: {}, ActionTwoFactorSuccess: {},
	ActionTwoFactorFailure: {}, ActionPasswordChanged: {}, ActionSessionsRevoked: {}, ActionRateLimited: {},
}

// Valid reports whether a is one of the defined actions.
func (a Action) Valid() bool {
	_, ok := actions[a]
	return ok
}

// AuditLog is one append-only security event.
type AuditLog struct {
	ID        string         `json:"id"`
	VoterID   *string        `json:"voterId"` // nil for unauthenticated failures
	Action    Action         `json:"action"`
	IP        string         `json:"ip"`
	UserAgent string         `json:"userAgent"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Filter narrows an audit listing. Zero values mean "any".
type Filter struct {
	VoterID string
	Action  Action
	Limit   int32
	Offset  int32
}

// ParseAction returns the Action named by s, or false if s is not a known action.
func ParseAction(s string) (Action, bool) {
	a := Action(s)
	return a, a.Valid()
}
