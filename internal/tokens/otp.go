package tokens

import (
	"crypto/rand"
	"encoding/base32"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"github.com/pquerna/otp/totp"
)

const (
	// MFAExpiresIn is how long a completed second factor stays valid.
	MFAExpiresIn = 48 * time.Hour
	// HOTPValidity bounds both code lifetime and the re-send window.
	HOTPValidity = 15 * time.Minute
	TOTPPeriod   = 30
)

var (
	hotpOpts = hotp.ValidateOpts{Digits: otp.DigitsEight, Algorithm: otp.AlgorithmSHA512}
	totpOpts = totp.ValidateOpts{Period: TOTPPeriod, Skew: 1, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1}
)

func NewOTPSecret() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b), nil
}

func GenerateHOTP(secret string, counter uint64) (string, error) {
	return hotp.GenerateCodeCustom(secret, counter, hotpOpts)
}

func VerifyHOTP(code, secret string, counter uint64) bool {
	ok, err := hotp.ValidateCustom(code, counter, secret, hotpOpts)
	return err == nil && ok
}

func GenerateTOTP(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, totpOpts)
}

// MatchTOTPStep reports which step inside the skew window code belongs to.
func MatchTOTPStep(code, secret string, at time.Time) (int64, bool) {
	exact := totpOpts
	exact.Skew = 0
	for i := -int(totpOpts.Skew); i <= int(totpOpts.Skew); i++ {
		t := at.Add(time.Duration(i) * TOTPPeriod * time.Second)
		if ok, err := totp.ValidateCustom(code, secret, t, exact); err == nil && ok {
			return TOTPStep(t), true
		}
	}
	return 0, false
}

// StepStart is the first instant of a TOTP step.
func StepStart(step int64) time.Time {
	return time.Unix(step*TOTPPeriod, 0).UTC()
}

// NewTOTPKey returns a secret and the otpauth:// URI an authenticator app
// can scan.
func NewTOTPKey(issuer, account string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      TOTPPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// TOTPStep identifies the 30 second window a code belongs to.
func TOTPStep(at time.Time) int64 {
	return at.Unix() / TOTPPeriod
}
