package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Skotchmaster/data_delivery/internal/clock"
	"github.com/Skotchmaster/data_delivery/internal/errs"
	"github.com/Skotchmaster/data_delivery/internal/hash"
	"github.com/Skotchmaster/data_delivery/internal/keys"
	"github.com/Skotchmaster/data_delivery/internal/logging"
	"github.com/Skotchmaster/data_delivery/internal/mailer"
	"github.com/Skotchmaster/data_delivery/internal/models"
	"github.com/Skotchmaster/data_delivery/internal/repo"
	"github.com/Skotchmaster/data_delivery/internal/tokens"
	"github.com/Skotchmaster/data_delivery/internal/transport"
)

const totpIssuer = "Data Delivery System"

type AuthService struct {
	Repo     *repo.GormRepo
	Tokens   *tokens.Service
	Keys     *keys.Engine
	Accounts *AccountService
	Mail     *mailer.Async
	Clock    clock.Clock
	Events   EventPublisher
}

type TokenResult struct {
	Token                string
	SecondFactorRequired bool
}

// IssueToken checks the password and returns an encrypted token that
// carries the password-derived user key. When no second factor was
// completed in the last 48 hours the token is marked pending and a one-time
// code is mailed.
func (s *AuthService) IssueToken(ctx context.Context, username, password string) (*TokenResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.issue_token", "username", username)

	if username == "" || password == "" {
		return nil, errs.Authentication("Missing or incorrect credentials")
	}
	user, err := s.Repo.GetUser(ctx, username)
	if err != nil {
		if isNotFound(err) {
			l.Warn("login_failed", "status", 401, "reason", "unknown user")
			return nil, errs.Authentication("Incorrect username or password")
		}
		return nil, internal("load user", err)
	}
	if !hash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "status", 401, "reason", "wrong password")
		return nil, errs.Authentication("Incorrect username or password")
	}
	if !user.Active {
		l.Warn("login_failed", "status", 403, "reason", "deactivated")
		return nil, errs.AccessDenied("Your account has been deactivated")
	}

	now := s.Clock.Now()
	var mfaAt *time.Time
	if user.MFAVerifiedAt != nil && now.Sub(*user.MFAVerifiedAt) < tokens.MFAExpiresIn {
		mfaAt = user.MFAVerifiedAt
	}

	userKey := s.Keys.DeriveUserKey(password, user.KDFSalt)
	token, err := s.Tokens.Encrypt(s.Tokens.NewClaims(user.Username, mfaAt, hex.EncodeToString(userKey)))
	if err != nil {
		return nil, internal("encrypt token", err)
	}

	pending := mfaAt == nil
	if pending {
		if err := s.sendHOTP(ctx, user); err != nil {
			l.Error("hotp_failed", "error", err)
			return nil, err
		}
	}
	l.Info("token_issued", "second_factor_required", pending)
	publish(ctx, s.Events, ActionEvent{Action: "token_issued", Username: user.Username, At: now})
	return &TokenResult{Token: token, SecondFactorRequired: pending}, nil
}

// VerifyToken returns a nil user when the token is valid but its subject
// is missing, no longer exists or has been deactivated.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (*models.User, *tokens.Claims, error) {
	claims, err := s.Tokens.Verify(token)
	if err != nil {
		return nil, nil, err
	}
	if claims.Subject == "" {
		return nil, claims, nil
	}
	user, err := s.Repo.GetUser(ctx, claims.Subject)
	if err != nil {
		if isNotFound(err) {
			return nil, claims, nil
		}
		return nil, nil, internal("load user", err)
	}
	if !user.Active {
		return nil, claims, nil
	}
	return user, claims, nil
}

// Authenticate resolves a token into a session. Without a completed second
// factor only the second factor endpoint itself is reachable, signalled by
// allowPendingMFA.
func (s *AuthService) Authenticate(ctx context.Context, token string, allowPendingMFA bool) (*Session, error) {
	user, claims, err := s.VerifyToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errs.Authentication("Invalid token")
	}

	mfaAt, ok := claims.MFATime()
	if !ok || s.Clock.Now().Sub(mfaAt) >= tokens.MFAExpiresIn {
		if !allowPendingMFA {
			if err := s.sendHOTP(ctx, user); err != nil {
				return nil, err
			}
			return nil, errs.Authentication("Two-factor authentication is required! Please check your primary e-mail!")
		}
	}

	principal, err := s.Accounts.Principal(ctx, user)
	if err != nil {
		return nil, err
	}
	sess := &Session{User: user, Claims: claims, Principal: principal}
	if claims.SensitiveContent != "" {
		key, err := hex.DecodeString(claims.SensitiveContent)
		if err != nil {
			return nil, errs.Authentication("Invalid token")
		}
		sess.UserKey = key
	}
	return sess, nil
}

// sendHOTP mails a fresh code unless one was sent within the validity
// window. Users with TOTP enabled never get mail.
func (s *AuthService) sendHOTP(ctx context.Context, user *models.User) error {
	if user.TOTPEnabled {
		return nil
	}
	now := s.Clock.Now()
	if user.HOTPIssueTime != nil && now.Sub(*user.HOTPIssueTime) < tokens.HOTPValidity {
		return nil
	}
	fields := map[string]any{"hotp_issue_time": now}
	if user.HOTPSecret == "" {
		secret, err := tokens.NewOTPSecret()
		if err != nil {
			return errs.KeyGeneration(err)
		}
		user.HOTPSecret = secret
		fields["hotp_secret"] = secret
	}
	code, err := tokens.GenerateHOTP(user.HOTPSecret, user.HOTPCounter)
	if err != nil {
		return internal("generate hotp", err)
	}
	if err := s.Repo.UpdateUser(ctx, user.Username, fields); err != nil {
		return internal("update user", err)
	}
	user.HOTPIssueTime = &now

	if s.Mail != nil {
		s.Mail.Dispatch(mailer.Message{
			To:      user.Email,
			Subject: "Data Delivery System: authentication code",
			Body: fmt.Sprintf("Your one-time authentication code is %s\n\nIt is valid for %d minutes.\n",
				code, int(tokens.HOTPValidity.Minutes())),
		})
	}
	return nil
}

// SecondFactor checks a one-time code and issues a new encrypted token
// with mfa_auth_time set. The user key from the current token is carried
// over.
func (s *AuthService) SecondFactor(ctx context.Context, sess *Session, req transport.SecondFactorRequest) (string, error) {
	l := logging.FromContext(ctx).With("svc", "auth.second_factor", "username", sess.User.Username)
	user := sess.User
	now := s.Clock.Now()

	if user.TOTPEnabled {
		if req.TOTP == "" {
			return "", errs.Authentication("A TOTP code is required")
		}
		step, ok := tokens.MatchTOTPStep(req.TOTP, user.TOTPSecret, now)
		if !ok {
			l.Warn("second_factor_failed", "status", 401, "reason", "invalid totp")
			return "", errs.Authentication("Invalid TOTP code")
		}
		fresh, err := s.Repo.ConsumeTOTP(ctx, user.Username, tokens.StepStart(step), now)
		if err != nil {
			return "", internal("update user", err)
		}
		if !fresh {
			l.Warn("second_factor_failed", "status", 401, "reason", "totp replay")
			return "", errs.Authentication("The TOTP code has already been used")
		}
	} else {
		if req.HOTP == "" {
			return "", errs.Authentication("A one-time code is required")
		}
		if user.HOTPIssueTime == nil || now.Sub(*user.HOTPIssueTime) >= tokens.HOTPValidity {
			return "", errs.Authentication("The one-time code has expired. Please request a new token")
		}
		if !tokens.VerifyHOTP(req.HOTP, user.HOTPSecret, user.HOTPCounter) {
			l.Warn("second_factor_failed", "status", 401, "reason", "invalid hotp")
			return "", errs.Authentication("Invalid one-time code")
		}
		fresh, err := s.Repo.ConsumeHOTP(ctx, user.Username, user.HOTPCounter, now)
		if err != nil {
			return "", internal("update user", err)
		}
		if !fresh {
			l.Warn("second_factor_failed", "status", 401, "reason", "hotp replay")
			return "", errs.Authentication("The one-time code has already been used")
		}
	}

	token, err := s.Tokens.Encrypt(s.Tokens.NewClaims(user.Username, &now, sess.Claims.SensitiveContent))
	if err != nil {
		return "", internal("encrypt token", err)
	}
	l.Info("second_factor_completed")
	publish(ctx, s.Events, ActionEvent{Action: "second_factor_completed", Username: user.Username, At: now})
	return token, nil
}

// EnableTOTP stores a new secret. TOTP stays off until ActivateTOTP sees a
// valid code for it.
func (s *AuthService) EnableTOTP(ctx context.Context, sess *Session) (*transport.TOTPSetupResponse, error) {
	if sess.User.TOTPEnabled {
		return nil, errs.Validation("TOTP is already enabled")
	}
	secret, uri, err := tokens.NewTOTPKey(totpIssuer, sess.User.Username)
	if err != nil {
		return nil, errs.KeyGeneration(err)
	}
	if err := s.Repo.UpdateUser(ctx, sess.User.Username, map[string]any{"totp_secret": secret}); err != nil {
		return nil, internal("update user", err)
	}
	return &transport.TOTPSetupResponse{Secret: secret, URI: uri}, nil
}

func (s *AuthService) ActivateTOTP(ctx context.Context, sess *Session, code string) error {
	user := sess.User
	if user.TOTPEnabled {
		return errs.Validation("TOTP is already enabled")
	}
	if user.TOTPSecret == "" {
		return errs.Validation("TOTP setup has not been started")
	}
	step, ok := tokens.MatchTOTPStep(code, user.TOTPSecret, s.Clock.Now())
	if !ok {
		return errs.Authentication("Invalid TOTP code")
	}
	if err := s.Repo.UpdateUser(ctx, user.Username, map[string]any{
		"totp_enabled":       true,
		"totp_last_verified": tokens.StepStart(step),
	}); err != nil {
		return internal("update user", err)
	}
	logging.FromContext(ctx).Info("totp_activated", "username", user.Username)
	return nil
}
