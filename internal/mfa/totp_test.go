package mfa

import (
	"strings"
	"testing"
	"time"
)

func TestTOTP_Enroll(t *testing.T) {
	tp := NewTOTP("ElectionVoting")
	e, err := tp.Enroll("voter@example.com")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if e.Secret == "" {
		t.Fatal("secret empty")
	}
	if !strings.HasPrefix(e.OTPAuthURL, "otpauth://totp/") || !strings.Contains(e.OTPAuthURL, "issuer=ElectionVoting") {
		t.Errorf("OTPAuthURL = %q", e.OTPAuthURL)
	}
	if !strings.HasPrefix(e.QRCode, "data:image/png;base64,") {
		t.Errorf("QRCode prefix = %q", e.QRCode[:min(len(e.QRCode), 30)])
	}
	other, _ := tp.Enroll("voter@example.com")
	if other.Secret == e.Secret {
		t.Error("two enrollments produced the same secret")
	}
}

func TestTOTP_VerifyWindow(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 15, 0, time.UTC)
	tp := &TOTP{Issuer: "x", Now: func() time.Time { return base }}
	e, err := tp.Enroll("v")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	tests := []struct {
		name   string
		offset time.Duration
		want   bool
	}{
		{"current step", 0, true},
		{"previous step", -Period, true},
		{"next step", Period, true},
		{"two steps back", -2 * Period, false},
		{"two steps ahead", 2 * Period, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := tp.Code(e.Secret, base.Add(tt.offset))
			if err != nil {
				t.Fatalf("Code: %v", err)
			}
			if got := tp.Verify(e.Secret, code); got != tt.want {
				t.Errorf("Verify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTOTP_VerifyRejectsMalformed(t *testing.T) {
	tp := NewTOTP("x")
	e, _ := tp.Enroll("v")
	for _, code := range []string{"", "12345", "1234567", "abcdef"} {
		if tp.Verify(e.Secret, code) {
			t.Errorf("Verify(%q) = true", code)
		}
	}
	if tp.Verify("", "123456") {
		t.Error("Verify with empty secret = true")
	}
}
