package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Skotchmaster/data_delivery/internal/access"
	"github.com/Skotchmaster/data_delivery/internal/clock"
	"github.com/Skotchmaster/data_delivery/internal/errs"
	"github.com/Skotchmaster/data_delivery/internal/hash"
	"github.com/Skotchmaster/data_delivery/internal/keys"
	"github.com/Skotchmaster/data_delivery/internal/logging"
	"github.com/Skotchmaster/data_delivery/internal/models"
	"github.com/Skotchmaster/data_delivery/internal/repo"
	"github.com/Skotchmaster/data_delivery/internal/tokens"
	"github.com/Skotchmaster/data_delivery/internal/transport"
)

type AccountService struct {
	Repo   *repo.GormRepo
	Keys   *keys.Engine
	Clock  clock.Clock
	Events EventPublisher
}

func (s *AccountService) Principal(ctx context.Context, u *models.User) (access.Principal, error) {
	p := access.Principal{
		Username: u.Username,
		Role:     u.Role,
		UnitID:   u.UnitID,
		Active:   u.Active,
	}
	if u.Role == models.RoleResearcher {
		ids, err := s.Repo.ProjectIDsForUser(ctx, u.Username)
		if err != nil {
			return p, internal("load project access", err)
		}
		p.Projects = make(map[uint]bool, len(ids))
		for _, id := range ids {
			p.Projects[id] = true
		}
	}
	return p, nil
}

// UnlockPrivateKey opens the user's sealed RSA private key with the key
// carried in their encrypted token.
func (s *AccountService) UnlockPrivateKey(u *models.User, userKey []byte) ([]byte, error) {
	if len(userKey) == 0 {
		return nil, errs.Authentication("This operation requires an encrypted token. Please authenticate again")
	}
	priv, err := s.Keys.OpenUserPrivateKey(userKey, u.PrivateKey, u.PrivateKeyNonce)
	if err != nil {
		return nil, errs.Authentication("Could not unlock your keys. Please authenticate again")
	}
	return priv, nil
}

// CreateUnit is restricted to super-admins. A nil actor is the trusted
// command line.
func (s *AccountService) CreateUnit(ctx context.Context, actor *access.Principal, req transport.NewUnitRequest) (*models.Unit, error) {
	l := logging.FromContext(ctx).With("svc", "accounts.create_unit")
	if actor != nil && (!actor.Active || actor.Role != models.RoleSuperAdmin) {
		return nil, errs.AccessDenied("Only super-admins can create units")
	}
	v, err := transport.ValidateNewUnit(req)
	if err != nil {
		return nil, err
	}
	unit := &models.Unit{Name: v.Name, InternalRef: v.InternalRef}
	if err := s.Repo.CreateUnit(ctx, unit); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errs.Validation("A unit with that name or reference already exists")
		}
		l.Error("create_unit_failed", "error", err)
		return nil, internal("create unit", err)
	}
	l.Info("unit_created", "unit_id", unit.ID, "internal_ref", unit.InternalRef)
	return unit, nil
}

// CreateUser registers an account and its key material. A nil actor is the
// trusted command line; otherwise the actor must manage the target unit.
func (s *AccountService) CreateUser(ctx context.Context, actor *access.Principal, req transport.NewUserRequest) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "accounts.create_user", "username", req.Username)

	v, err := transport.ValidateNewUser(req)
	if err != nil {
		return nil, err
	}
	if actor != nil {
		if err := authorizeUserCreation(*actor, v); err != nil {
			return nil, err
		}
	}
	if v.UnitID != nil {
		if _, err := s.Repo.GetUnit(ctx, *v.UnitID); err != nil {
			if isNotFound(err) {
				return nil, errs.Validation("Unit %d does not exist", *v.UnitID)
			}
			return nil, internal("load unit", err)
		}
	}
	exists, err := s.Repo.UserExists(ctx, v.Username, v.Email)
	if err != nil {
		return nil, internal("check user", err)
	}
	if exists {
		return nil, errs.Validation("The username or email is already registered")
	}

	user, err := s.newUser(v)
	if err != nil {
		l.Error("create_user_failed", "reason", "key material", "error", err)
		return nil, err
	}
	if err := s.Repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errs.Validation("The username or email is already registered")
		}
		l.Error("create_user_failed", "error", err)
		return nil, internal("create user", err)
	}

	by := "cli"
	if actor != nil {
		by = actor.Username
	}
	l.Info("user_created", "role", user.Role, "by", by)
	publish(ctx, s.Events, ActionEvent{Action: "user_created", Username: by, Detail: map[string]any{"user": user.Username, "role": user.Role}, At: s.Clock.Now()})
	return user, nil
}

func authorizeUserCreation(actor access.Principal, v transport.NewUserRequest) error {
	if v.Role == models.RoleSuperAdmin && actor.Role != models.RoleSuperAdmin {
		return errs.AccessDenied("Only super-admins can create super-admins")
	}
	var unit uint
	switch {
	case v.UnitID != nil:
		unit = *v.UnitID
	case actor.UnitID != nil:
		unit = *actor.UnitID
	}
	return access.Authorize(actor, access.ManageUsers, access.Resource{UnitID: unit}).Err()
}

func (s *AccountService) newUser(v transport.NewUserRequest) (*models.User, error) {
	pwHash, err := hash.HashPassword(v.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	salt, err := s.Keys.NewSalt()
	if err != nil {
		return nil, errs.KeyGeneration(err)
	}
	pair, err := s.Keys.GenerateUserKeyPair()
	if err != nil {
		return nil, err
	}
	sealed, nonce, err := s.Keys.SealUserPrivateKey(s.Keys.DeriveUserKey(v.Password, salt), pair.PrivateKey)
	if err != nil {
		return nil, err
	}
	hotpSecret, err := tokens.NewOTPSecret()
	if err != nil {
		return nil, errs.KeyGeneration(err)
	}
	return &models.User{
		Username:        v.Username,
		Name:            v.Name,
		Email:           v.Email,
		Role:            v.Role,
		UnitID:          v.UnitID,
		PasswordHash:    pwHash,
		PublicKey:       pair.PublicKey,
		PrivateKey:      sealed,
		PrivateKeyNonce: nonce,
		KDFSalt:         salt,
		HOTPSecret:      hotpSecret,
		Active:          true,
	}, nil
}

func (s *AccountService) SetActive(ctx context.Context, actor access.Principal, username string, active bool) error {
	l := logging.FromContext(ctx).With("svc", "accounts.set_active", "username", username, "active", active)

	if username == actor.Username {
		return errs.AccessDenied("You cannot change your own account status")
	}
	target, err := s.Repo.GetUser(ctx, username)
	if err != nil {
		if isNotFound(err) {
			return errs.NotFound("User not found: %s", username)
		}
		return internal("load user", err)
	}
	if target.Role == models.RoleSuperAdmin && actor.Role != models.RoleSuperAdmin {
		return errs.AccessDenied("Only super-admins can change the status of super-admins")
	}
	var unit uint
	switch {
	case target.UnitID != nil:
		unit = *target.UnitID
	case actor.UnitID != nil:
		unit = *actor.UnitID
	}
	if err := access.Authorize(actor, access.ManageUsers, access.Resource{UnitID: unit}).Err(); err != nil {
		return err
	}
	if target.Active == active {
		return errs.Validation("User is already %s", activeWord(active))
	}
	if err := s.Repo.UpdateUser(ctx, username, map[string]any{"active": active}); err != nil {
		return internal("update user", err)
	}
	l.Info("user_status_changed", "by", actor.Username)
	publish(ctx, s.Events, ActionEvent{Action: "user_" + activeWord(active), Username: actor.Username, Detail: map[string]any{"user": username}, At: s.Clock.Now()})
	return nil
}

func activeWord(active bool) string {
	if active {
		return "activated"
	}
	return "deactivated"
}

// ChangePassword reseals the private key under a key derived from the new
// password. Tokens issued before the change can no longer unlock keys.
func (s *AccountService) ChangePassword(ctx context.Context, sess *Session, oldPassword, newPassword string) error {
	u := sess.User
	if !hash.CheckPassword(u.PasswordHash, oldPassword) {
		return errs.Authentication("Incorrect password")
	}
	if err := transport.ValidatePassword(newPassword); err != nil {
		return err
	}
	priv, err := s.Keys.OpenUserPrivateKey(s.Keys.DeriveUserKey(oldPassword, u.KDFSalt), u.PrivateKey, u.PrivateKeyNonce)
	if err != nil {
		return errs.Authentication("Could not unlock your keys")
	}
	salt, err := s.Keys.NewSalt()
	if err != nil {
		return errs.KeyGeneration(err)
	}
	sealed, nonce, err := s.Keys.SealUserPrivateKey(s.Keys.DeriveUserKey(newPassword, salt), priv)
	if err != nil {
		return err
	}
	pwHash, err := hash.HashPassword(newPassword)
	if err != nil {
		return internal("hash password", err)
	}
	if err := s.Repo.UpdateUser(ctx, u.Username, map[string]any{
		"password_hash":     pwHash,
		"kdf_salt":          salt,
		"private_key":       sealed,
		"private_key_nonce": nonce,
	}); err != nil {
		return internal("update user", err)
	}
	logging.FromContext(ctx).Info("password_changed", "username", u.Username)
	return nil
}
