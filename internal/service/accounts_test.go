package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/data_delivery/internal/errs"
	"github.com/Skotchmaster/data_delivery/internal/models"
	"github.com/Skotchmaster/data_delivery/internal/transport"
)

func TestCreateUserAuthorization(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	gen := env.unit(t, "Genomics", "gen")
	prot := env.unit(t, "Proteomics", "prot")
	env.user(t, "alice", models.RoleUnitAdmin, gen)
	env.user(t, "root", models.RoleSuperAdmin, nil)
	alice := env.login(t, "alice")
	root := env.login(t, "root")

	req := func(username, role string, unit *models.Unit) transport.NewUserRequest {
		r := transport.NewUserRequest{Username: username, Name: username, Email: username + "@example.org", Password: testPassword, Role: role}
		if unit != nil {
			r.UnitID = &unit.ID
		}
		return r
	}

	tests := []struct {
		name  string
		actor *Session
		req   transport.NewUserRequest
		kind  errs.Kind
	}{
		{"unit admin adds researcher", alice, req("rita", models.RoleResearcher, nil), ""},
		{"unit admin adds own unit admin", alice, req("bob", models.RoleUnitAdmin, gen), ""},
		{"unit admin other unit", alice, req("carol", models.RoleUnitAdmin, prot), errs.KindAccessDenied},
		{"unit admin adds super admin", alice, req("boss", models.RoleSuperAdmin, nil), errs.KindAccessDenied},
		{"super admin other unit", root, req("dave", models.RoleUnitAdmin, prot), ""},
		{"duplicate username", root, req("alice", models.RoleResearcher, nil), errs.KindValidation},
		{"weak password", root, transport.NewUserRequest{Username: "weak", Email: "weak@example.org", Password: "password", Role: models.RoleResearcher}, errs.KindValidation},
		{"unknown unit", root, transport.NewUserRequest{Username: "lost", Email: "lost@example.org", Password: testPassword, Role: models.RoleUnitAdmin, UnitID: new(uint)}, errs.KindValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			u, err := env.accounts.CreateUser(env.ctx, &tc.actor.Principal, tc.req)
			if tc.kind == "" {
				require.NoError(t, err)
				assert.Equal(t, tc.req.Username, u.Username)
				assert.NotEmpty(t, u.PublicKey)
				assert.NotEqual(t, testPassword, u.PasswordHash)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.kind, errs.KindOf(err))
		})
	}
}

func TestCreateUnitSuperAdminOnly(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	gen := env.unit(t, "Genomics", "gen")
	env.user(t, "alice", models.RoleUnitAdmin, gen)
	env.user(t, "root", models.RoleSuperAdmin, nil)

	_, err := env.accounts.CreateUnit(env.ctx, &env.login(t, "alice").Principal, transport.NewUnitRequest{Name: "Imaging", InternalRef: "img"})
	assert.ErrorIs(t, err, errs.ErrAccessDenied)

	u, err := env.accounts.CreateUnit(env.ctx, &env.login(t, "root").Principal, transport.NewUnitRequest{Name: "Imaging", InternalRef: "img"})
	require.NoError(t, err)
	assert.Equal(t, "img", u.InternalRef)

	_, err = env.accounts.CreateUnit(env.ctx, nil, transport.NewUnitRequest{Name: "Imaging", InternalRef: "img"})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestSetActive(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	gen := env.unit(t, "Genomics", "gen")
	prot := env.unit(t, "Proteomics", "prot")
	env.user(t, "alice", models.RoleUnitAdmin, gen)
	env.user(t, "bob", models.RoleUnitAdmin, gen)
	env.user(t, "carol", models.RoleUnitAdmin, prot)
	env.user(t, "root", models.RoleSuperAdmin, nil)
	alice := env.login(t, "alice").Principal

	assert.ErrorIs(t, env.accounts.SetActive(env.ctx, alice, "alice", false), errs.ErrAccessDenied)
	assert.ErrorIs(t, env.accounts.SetActive(env.ctx, alice, "carol", false), errs.ErrAccessDenied)
	assert.ErrorIs(t, env.accounts.SetActive(env.ctx, alice, "root", false), errs.ErrAccessDenied)
	assert.ErrorIs(t, env.accounts.SetActive(env.ctx, alice, "ghost", false), errs.ErrNotFound)
	assert.ErrorIs(t, env.accounts.SetActive(env.ctx, alice, "bob", true), errs.ErrValidation)

	bobToken := mustToken(t, env, env.login(t, "bob"))
	require.NoError(t, env.accounts.SetActive(env.ctx, alice, "bob", false))
	_, err := env.auth.IssueToken(env.ctx, "bob", testPassword)
	assert.ErrorIs(t, err, errs.ErrAccessDenied)
	user, _, err := env.auth.VerifyToken(env.ctx, bobToken)
	require.NoError(t, err)
	assert.Nil(t, user)
	_, err = env.auth.Authenticate(env.ctx, bobToken, false)
	assert.ErrorIs(t, err, errs.ErrAuthentication)

	require.NoError(t, env.accounts.SetActive(env.ctx, alice, "bob", true))
	_, err = env.auth.IssueToken(env.ctx, "bob", testPassword)
	assert.NoError(t, err)
}
