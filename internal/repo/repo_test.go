package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/data_delivery/internal/access"
	"github.com/Skotchmaster/data_delivery/internal/models"
	"github.com/Skotchmaster/data_delivery/internal/testutil"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ctx  context.Context
	r    *GormRepo
	unit *models.Unit
	proj *models.Project
}

// user fills the key columns with placeholder bytes.
func user(username, role string, unitID *uint) *models.User {
	return &models.User{
		Username:        username,
		Email:           username + "@example.org",
		Role:            role,
		UnitID:          unitID,
		PasswordHash:    "x",
		PublicKey:       []byte{1},
		PrivateKey:      []byte{2},
		PrivateKeyNonce: []byte{3},
		KDFSalt:         []byte{4},
		Active:          true,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	r := &GormRepo{DB: testutil.NewTestDB(t)}

	unit := &models.Unit{Name: "Genomics", InternalRef: "gen"}
	require.NoError(t, r.CreateUnit(ctx, unit))
	require.NoError(t, r.CreateUser(ctx, user("alice", models.RoleUnitAdmin, &unit.ID)))

	p := &models.Project{
		PublicID:        "gen00001",
		Title:           "Exome",
		Bucket:          "gen00001-bucket",
		CurrentStatus:   models.StatusInProgress,
		UnitID:          unit.ID,
		CreatedBy:       "alice",
		KeyOwner:        "alice",
		PublicKey:       []byte{1},
		PrivateKey:      []byte{2},
		PrivateKeySalt:  []byte{3},
		PrivateKeyNonce: []byte{4},
		DateCreated:     now,
	}
	require.NoError(t, r.CreateProject(ctx, p))
	return &fixture{ctx: ctx, r: r, unit: unit, proj: p}
}

func (f *fixture) file(t *testing.T, name string, size int64) {
	t.Helper()
	require.NoError(t, f.r.CreateFile(f.ctx, &models.File{
		ProjectID:    f.proj.ID,
		Name:         name,
		NameInBucket: "obj-" + name,
		SizeOriginal: size,
		SizeStored:   size / 2,
		PublicKey:    "ab",
		Salt:         "cd",
		Checksum:     "ef",
		DateUploaded: now,
	}))
}

func names(files []models.File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Name)
	}
	return out
}

func TestSchemaConstraints(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	var usersDDL string
	require.NoError(t, f.r.DB.Raw("SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'users'").Scan(&usersDDL).Error)
	require.NotEmpty(t, usersDDL)
	assert.NotContains(t, usersDDL, "project_users")
	assert.NotContains(t, usersDDL, "project_user_keys")

	require.NoError(t, f.r.AddKeyShare(f.ctx, &models.ProjectUserKey{ProjectID: f.proj.ID, Username: "alice", Key: []byte{9}}))
	require.NoError(t, f.r.CreateUser(f.ctx, user("bob", models.RoleUnitAdmin, &f.unit.ID)))

	f.file(t, "a", 10)
	dup := &models.File{
		ProjectID:    f.proj.ID,
		Name:         "b",
		NameInBucket: "obj-a",
		PublicKey:    "ab",
		Salt:         "cd",
		Checksum:     "ef",
		DateUploaded: now,
	}
	assert.Error(t, f.r.CreateFile(f.ctx, dup), "names in the bucket are unique")
}

func TestNextProjectCounter(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for want := 1; want <= 3; want++ {
		var got int
		require.NoError(t, f.r.Transaction(f.ctx, func(tx *GormRepo) error {
			u, err := tx.NextProjectCounter(f.ctx, f.unit.ID)
			got = u.Counter
			return err
		}))
		assert.Equal(t, want, got)
	}
}

func TestFilesInFolderEscapesWildcards(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.file(t, "a_b/one.txt", 1)
	f.file(t, "axb/two.txt", 1)
	f.file(t, "a%/three.txt", 1)
	f.file(t, "a_b.txt", 1)

	got, err := f.r.FilesInFolder(f.ctx, f.proj.ID, "a_b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a_b/one.txt"}, names(got))

	got, err = f.r.FilesInFolder(f.ctx, f.proj.ID, "a%")
	require.NoError(t, err)
	assert.Equal(t, []string{"a%/three.txt"}, names(got))
}

func TestRecomputeProjectSize(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	orig, stored, err := f.r.RecomputeProjectSize(f.ctx, f.proj.ID, now)
	require.NoError(t, err)
	assert.Zero(t, orig)
	assert.Zero(t, stored)

	f.file(t, "a", 100)
	f.file(t, "b", 300)
	orig, stored, err = f.r.RecomputeProjectSize(f.ctx, f.proj.ID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(400), orig)
	assert.Equal(t, int64(200), stored)

	p, err := f.r.GetProject(f.ctx, f.proj.PublicID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), p.SizeOriginal)
	require.NotNil(t, p.DateUpdated)
}

func TestKeyHolders(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	other := &models.Unit{Name: "Proteomics", InternalRef: "prot"}
	require.NoError(t, f.r.CreateUnit(f.ctx, other))
	for _, u := range []*models.User{
		user("bob", models.RoleUnitAdmin, &f.unit.ID),
		user("carol", models.RoleUnitAdmin, &other.ID),
		user("rita", models.RoleResearcher, nil),
		user("root", models.RoleSuperAdmin, nil),
		user("zed", models.RoleUnitAdmin, &f.unit.ID),
	} {
		require.NoError(t, f.r.CreateUser(f.ctx, u))
	}
	require.NoError(t, f.r.UpdateUser(f.ctx, "zed", map[string]any{"active": false}))

	holders, err := f.r.KeyHolders(f.ctx, f.unit.ID)
	require.NoError(t, err)
	got := make([]string, 0, len(holders))
	for _, h := range holders {
		got = append(got, h.Username)
	}
	assert.Equal(t, []string{"alice", "bob", "root"}, got)
}

func TestListProjectsForResearcher(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.r.CreateUser(f.ctx, user("rita", models.RoleResearcher, nil)))

	researcher := access.Principal{Username: "rita", Role: models.RoleResearcher, Active: true}
	got, err := f.r.ListProjects(f.ctx, researcher)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, f.r.AddProjectUser(f.ctx, &models.ProjectUser{ProjectID: f.proj.ID, Username: "rita"}))
	require.NoError(t, f.r.AddProjectUser(f.ctx, &models.ProjectUser{ProjectID: f.proj.ID, Username: "rita"}))
	got, err = f.r.ListProjects(f.ctx, researcher)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "gen00001", got[0].PublicID)
}

func TestStatusHistoryOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.r.AppendStatus(f.ctx, f.proj.ID, models.StatusInProgress, now))
	require.NoError(t, f.r.AppendStatus(f.ctx, f.proj.ID, models.StatusAvailable, now.Add(time.Hour)))

	rows, err := f.r.StatusHistory(f.ctx, f.proj.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.StatusInProgress, rows[0].Status)
	assert.Equal(t, models.StatusAvailable, rows[1].Status)

	p, err := f.r.GetProject(f.ctx, f.proj.PublicID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, p.CurrentStatus)
}
