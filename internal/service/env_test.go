package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/data_delivery/internal/keys"
	"github.com/Skotchmaster/data_delivery/internal/logging"
	"github.com/Skotchmaster/data_delivery/internal/mailer"
	"github.com/Skotchmaster/data_delivery/internal/models"
	"github.com/Skotchmaster/data_delivery/internal/repo"
	"github.com/Skotchmaster/data_delivery/internal/storage"
	"github.com/Skotchmaster/data_delivery/internal/testutil"
	"github.com/Skotchmaster/data_delivery/internal/tokens"
	"github.com/Skotchmaster/data_delivery/internal/transport"
)

const testPassword = "Str0ngPassw0rd"

var testClockStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type outbox struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (o *outbox) Send(ctx context.Context, msg mailer.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}

type recordedEvents struct {
	mu      sync.Mutex
	actions []string
}

func (r *recordedEvents) PublishEvent(ctx context.Context, key string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev, ok := event.(ActionEvent); ok {
		r.actions = append(r.actions, ev.Action)
	}
	return nil
}

type testEnv struct {
	ctx      context.Context
	repo     *repo.GormRepo
	clock    *testutil.StubClock
	store    *storage.Memory
	outbox   *outbox
	mail     *mailer.Async
	events   *recordedEvents
	accounts *AccountService
	auth     *AuthService
	projects *ProjectService
	files    *FileService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	engine := keys.New(2048)
	engine.Argon2 = keys.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1}

	clk := testutil.NewStubClock(testClockStart)
	r := &repo.GormRepo{DB: testutil.NewTestDB(t)}
	store := storage.NewMemory(time.Hour)
	box := &outbox{}
	async := mailer.NewAsync(box, time.Second, logging.Discard())
	events := &recordedEvents{}

	accounts := &AccountService{Repo: r, Keys: engine, Clock: clk, Events: events}
	env := &testEnv{
		ctx:      logging.IntoContext(context.Background(), logging.Discard()),
		repo:     r,
		clock:    clk,
		store:    store,
		outbox:   box,
		mail:     async,
		events:   events,
		accounts: accounts,
		auth: &AuthService{
			Repo:     r,
			Tokens:   tokens.NewService(tokens.Config{Secret: []byte("test-secret-0123456789"), Clock: clk}),
			Keys:     engine,
			Accounts: accounts,
			Mail:     async,
			Clock:    clk,
			Events:   events,
		},
		projects: &ProjectService{Repo: r, Keys: engine, Accounts: accounts, Storage: store, Clock: clk, Events: events},
		files:    &FileService{Repo: r, Storage: store, Clock: clk, Events: events},
	}
	t.Cleanup(async.Wait)
	return env
}

func (e *testEnv) unit(t *testing.T, name, ref string) *models.Unit {
	t.Helper()
	u, err := e.accounts.CreateUnit(e.ctx, nil, transport.NewUnitRequest{Name: name, InternalRef: ref})
	require.NoError(t, err)
	return u
}

func (e *testEnv) user(t *testing.T, username, role string, unit *models.Unit) *models.User {
	t.Helper()
	req := transport.NewUserRequest{
		Username: username,
		Name:     username,
		Email:    username + "@example.org",
		Password: testPassword,
		Role:     role,
	}
	if unit != nil {
		req.UnitID = &unit.ID
	}
	u, err := e.accounts.CreateUser(e.ctx, nil, req)
	require.NoError(t, err)
	return u
}

// login runs the password and one-time code steps and returns a session
// with a completed second factor.
func (e *testEnv) login(t *testing.T, username string) *Session {
	t.Helper()
	res, err := e.auth.IssueToken(e.ctx, username, testPassword)
	require.NoError(t, err)
	if !res.SecondFactorRequired {
		sess, err := e.auth.Authenticate(e.ctx, res.Token, false)
		require.NoError(t, err)
		return sess
	}

	pending, err := e.auth.Authenticate(e.ctx, res.Token, true)
	require.NoError(t, err)
	u, err := e.repo.GetUser(e.ctx, username)
	require.NoError(t, err)
	code, err := tokens.GenerateHOTP(u.HOTPSecret, u.HOTPCounter)
	require.NoError(t, err)

	token, err := e.auth.SecondFactor(e.ctx, pending, transport.SecondFactorRequest{HOTP: code})
	require.NoError(t, err)
	sess, err := e.auth.Authenticate(e.ctx, token, false)
	require.NoError(t, err)
	return sess
}

func (e *testEnv) project(t *testing.T, sess *Session, title string) *models.Project {
	t.Helper()
	p, err := e.projects.CreateProject(e.ctx, sess, transport.CreateProjectRequest{
		Title:       title,
		Description: "Sequencing run",
		PI:          "pi@example.org",
	})
	require.NoError(t, err)
	return p
}

// newFile describes a file whose stored (encrypted) size is stored and
// whose original size is twice that.
func newFile(name string, stored int64) transport.NewFileRequest {
	return transport.NewFileRequest{
		Name:          name,
		NameInBucket:  "obj-" + name,
		Size:          2 * stored,
		SizeProcessed: stored,
		Compressed:    true,
		PublicKey:     "ab12",
		Salt:          "cd34",
		Checksum:      "ef56",
	}
}
