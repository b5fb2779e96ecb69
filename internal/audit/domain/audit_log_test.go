package domain

import "testing"

func TestAction_Valid(t *testing.T) {
	for _, a := range []Action{ActionTokenReuse, ActionIPMismatch, ActionTwoFactorFailure, ActionRefreshToken} {
		if !a.Valid() {
			t.Errorf("%s should be valid", a)
		}
	}
	for _, a := range []Action{"", "token_reuse", "DELETE_EVERYTHING"} {
		if a.Valid() {
			t.Errorf("%q should be invalid", a)
		}
	}
}

func TestParseAction(t *testing.T) {
	if a, ok := ParseAction("2FA_FAILED"); !ok || a != ActionTwoFactorFailure {
		t.Errorf("ParseAction(2FA_FAILED) = %q, %v", a, ok)
	}
	if _, ok := ParseAction("2fa_failed"); ok {
		t.Error("ParseAction should be case-sensitive")
	}
}
