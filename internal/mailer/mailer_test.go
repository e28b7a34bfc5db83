package mailer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/data_delivery/internal/config"
	"github.com/Skotchmaster/data_delivery/internal/logging"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (r *recordingSender) Send(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("no deadline")
	}
	r.msgs = append(r.msgs, msg)
	return r.err
}

func TestAsyncDispatch(t *testing.T) {
	t.Parallel()

	rec := &recordingSender{}
	a := NewAsync(rec, time.Second, logging.Discard())

	a.Dispatch(Message{To: "a@example.org", Subject: "one"})
	a.Dispatch(Message{To: "b@example.org", Subject: "two"})
	a.Wait()

	require.Len(t, rec.msgs, 2)
	subjects := []string{rec.msgs[0].Subject, rec.msgs[1].Subject}
	assert.ElementsMatch(t, []string{"one", "two"}, subjects)
}

func TestAsyncSwallowsFailures(t *testing.T) {
	t.Parallel()

	rec := &recordingSender{err: errors.New("smtp down")}
	a := NewAsync(rec, time.Second, logging.Discard())

	assert.NotPanics(t, func() {
		a.Dispatch(Message{To: "a@example.org"})
		a.Wait()
	})
}

func TestNewSMTP(t *testing.T) {
	t.Parallel()

	s, err := NewSMTP(config.MailConfig{Host: "smtp.example.org", Port: 587, From: "dds@example.org", Username: "u", Password: "p", TimeoutSeconds: 5})
	require.NoError(t, err)
	assert.Equal(t, "dds@example.org", s.from)

	_, err = NewSMTP(config.MailConfig{Port: 25})
	assert.Error(t, err)
}
