package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/data_delivery/internal/access"
	"github.com/Skotchmaster/data_delivery/internal/errs"
	"github.com/Skotchmaster/data_delivery/internal/logging"
	"github.com/Skotchmaster/data_delivery/internal/models"
	"github.com/Skotchmaster/data_delivery/internal/repo"
	"github.com/Skotchmaster/data_delivery/internal/tokens"
)

const eventTimeout = 5 * time.Second

// Session is the authenticated caller of a request.
type Session struct {
	User      *models.User
	Claims    *tokens.Claims
	Principal access.Principal
	// UserKey is the password-derived key carried in an encrypted token.
	// It is nil for plain signed tokens.
	UserKey []byte
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, key string, event any) error
}

type ActionEvent struct {
	Action   string         `json:"action"`
	Username string         `json:"username"`
	Project  string         `json:"project,omitempty"`
	Detail   map[string]any `json:"detail,omitempty"`
	At       time.Time      `json:"at"`
}

func publish(ctx context.Context, p EventPublisher, ev ActionEvent) {
	if p == nil {
		return
	}
	l := logging.FromContext(ctx)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()
	if err := p.PublishEvent(ctx, ev.Username, ev); err != nil {
		l.Warn("event_publish_failed", "action", ev.Action, "error", err)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// internal keeps domain errors as they are and wraps store errors so they
// surface as KindInternal with the cause kept for the log.
func internal(op string, err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func findProject(ctx context.Context, r *repo.GormRepo, publicID string, lock bool) (*models.Project, error) {
	if publicID == "" {
		return nil, errs.Validation("Project ID required")
	}
	var (
		p   *models.Project
		err error
	)
	if lock {
		p, err = r.LockProject(ctx, publicID)
	} else {
		p, err = r.GetProject(ctx, publicID)
	}
	if err != nil {
		if isNotFound(err) {
			return nil, errs.NotFound("The specified project does not exist: %s", publicID)
		}
		return nil, internal("load project", err)
	}
	return p, nil
}

// authorizedProject loads the project and checks the action against it.
func authorizedProject(ctx context.Context, r *repo.GormRepo, sess *Session, publicID string, a access.Action, lock bool) (*models.Project, error) {
	if d := access.AuthorizeRole(sess.Principal, a); !d.Allowed {
		return nil, d.Err()
	}
	p, err := findProject(ctx, r, publicID, lock)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(sess.Principal, a, access.ProjectResource(p)).Err(); err != nil {
		return nil, err
	}
	return p, nil
}
