package tokens

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	// MFAAuthTime is the unix time of the last completed second factor.
	MFAAuthTime *int64 `json:"mfa_auth_time,omitempty"`
	// SensitiveContent only ever travels inside an encrypted token.
	SensitiveContent string `json:"sen_con,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) MFATime() (time.Time, bool) {
	if c.MFAAuthTime == nil {
		return time.Time{}, false
	}
	return time.Unix(*c.MFAAuthTime, 0).UTC(), true
}
