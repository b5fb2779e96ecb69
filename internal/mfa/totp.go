// Package mfa implements RFC 6238 time-based one-time passwords for voter 2FA:
// secret generation, otpauth provisioning QR codes, and code verification.
package mfa

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// Period is the TOTP time step.
	Period = 30 * time.Second
	// Skew is the number of adjacent steps accepted on either side of the current one.
	Skew = 1

	qrSize = 256
)

var validateOpts = totp.ValidateOpts{
	Period:    uint(Period / time.Second),
	Skew:      Skew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Enrollment is handed to the voter during 2FA setup. Nothing in it is persisted
// until the voter proves possession by confirming a code.
type Enrollment struct {
	Secret     string
	OTPAuthURL string
	QRCode     string // data:image/png;base64,...
}

// TOTP generates and verifies codes. Now may be replaced in tests.
type TOTP struct {
	Issuer string
	Now    func() time.Time
}

// NewTOTP returns a TOTP using issuer as the label shown by authenticator apps.
func NewTOTP(issuer string) *TOTP {
	return &TOTP{Issuer: issuer, Now: time.Now}
}

// Enroll generates a fresh base32 secret for accountName and renders its provisioning QR code.
func (t *TOTP) Enroll(accountName string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      t.Issuer,
		AccountName: accountName,
		Period:      validateOpts.Period,
		Digits:      validateOpts.Digits,
		Algorithm:   validateOpts.Algorithm,
	})
	if err != nil {
		return nil, fmt.Errorf("mfa: generating totp key: %w", err)
	}
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return nil, fmt.Errorf("mfa: rendering qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("mfa: encoding qr code: %w", err)
	}
	return &Enrollment{
		Secret:     key.Secret(),
		OTPAuthURL: key.URL(),
		QRCode:     "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// Verify reports whether code is valid for secret at the current time, accepting
// one step of clock drift either way. Malformed input is simply invalid.
func (t *TOTP) Verify(secret, code string) bool {
	code = strings.TrimSpace(code)
	if secret == "" || len(code) != validateOpts.Digits.Length() {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, t.now(), validateOpts)
	return err == nil && ok
}

// Code returns the code for secret at time at. Used by the seed tool and tests.
func (t *TOTP) Code(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, validateOpts)
}

func (t *TOTP) now() time.Time {
	if t.Now == nil {
		return time.Now()
	}
	return t.Now()
}
