package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Skotchmaster/data_delivery/internal/access"
	"github.com/Skotchmaster/data_delivery/internal/clock"
	"github.com/Skotchmaster/data_delivery/internal/errs"
	"github.com/Skotchmaster/data_delivery/internal/keys"
	"github.com/Skotchmaster/data_delivery/internal/logging"
	"github.com/Skotchmaster/data_delivery/internal/models"
	"github.com/Skotchmaster/data_delivery/internal/repo"
	"github.com/Skotchmaster/data_delivery/internal/storage"
	"github.com/Skotchmaster/data_delivery/internal/transport"
)

type ProjectService struct {
	Repo     *repo.GormRepo
	Keys     *keys.Engine
	Accounts *AccountService
	Storage  storage.Store
	Clock    clock.Clock
	Events   EventPublisher
}

func publicID(internalRef string, counter int) string {
	return fmt.Sprintf("%s%05d", internalRef, counter)
}

// bucketName follows {publicid}-{yymmddHHMMSSffffff}-{8 hex chars}.
func bucketName(publicID string, created time.Time) (string, error) {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return "", err
	}
	ts := created.UTC().Format("060102150405") + fmt.Sprintf("%06d", created.Nanosecond()/1000)
	return fmt.Sprintf("%s-%s-%s", strings.ToLower(publicID), ts, hex.EncodeToString(suffix)), nil
}

// CreateProject reserves the next public id of the caller's unit, creates
// the project with its first status and key pair, and shares the private
// key with the unit's other administrators. Everything happens in one
// transaction.
func (s *ProjectService) CreateProject(ctx context.Context, sess *Session, req transport.CreateProjectRequest) (*models.Project, error) {
	l := logging.FromContext(ctx).With("svc", "projects.create", "username", sess.User.Username)

	v, err := transport.ValidateCreateProject(req)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(sess.Principal, access.CreateProject, access.Resource{}).Err(); err != nil {
		return nil, err
	}
	ownerSecret, err := s.Accounts.UnlockPrivateKey(sess.User, sess.UserKey)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	var project *models.Project
	err = s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		unit, err := tx.NextProjectCounter(ctx, *sess.Principal.UnitID)
		if err != nil {
			if isNotFound(err) {
				return errs.AccessDenied("Your user is not associated to a unit")
			}
			return err
		}
		pid := publicID(unit.InternalRef, unit.Counter)
		bucket, err := bucketName(pid, now)
		if err != nil {
			return err
		}

		pair, err := s.Keys.GenerateProjectKeyPair(ownerSecret)
		if err != nil {
			return err
		}
		defer pair.Wipe()

		p := &models.Project{
			PublicID:        pid,
			Title:           v.Title,
			Description:     v.Description,
			PI:              v.PI,
			NonSensitive:    v.NonSensitive,
			Bucket:          bucket,
			CurrentStatus:   models.StatusInProgress,
			UnitID:          unit.ID,
			CreatedBy:       sess.User.Username,
			KeyOwner:        sess.User.Username,
			PublicKey:       pair.PublicKey,
			PrivateKey:      pair.EncryptedPrivateKey,
			PrivateKeySalt:  pair.Salt,
			PrivateKeyNonce: pair.Nonce,
			DateCreated:     now,
		}
		if err := tx.CreateProject(ctx, p); err != nil {
			return err
		}
		if err := tx.AppendStatus(ctx, p.ID, models.StatusInProgress, now); err != nil {
			return err
		}
		if err := s.shareWithHolders(ctx, tx, p, sess.User.Username, func(pub []byte) ([]byte, error) {
			return s.Keys.Share(pair, pub)
		}); err != nil {
			return err
		}
		project = p
		return nil
	})
	if err != nil {
		l.Error("create_project_failed", "error", err)
		return nil, internal("create project", err)
	}

	l.Info("project_created", "project", project.PublicID)
	publish(ctx, s.Events, ActionEvent{Action: "project_created", Username: sess.User.Username, Project: project.PublicID, At: now})
	return project, nil
}

// shareWithHolders replaces the project's key shares with one for every
// current key holder except the key owner.
func (s *ProjectService) shareWithHolders(ctx context.Context, tx *repo.GormRepo, p *models.Project, owner string, share func(pub []byte) ([]byte, error)) error {
	holders, err := tx.KeyHolders(ctx, p.UnitID)
	if err != nil {
		return err
	}
	shares := make([]models.ProjectUserKey, 0, len(holders))
	for _, h := range holders {
		if h.Username == owner {
			continue
		}
		k, err := share(h.PublicKey)
		if err != nil {
			return err
		}
		shares = append(shares, models.ProjectUserKey{ProjectID: p.ID, Username: h.Username, Key: k})
	}
	return tx.ReplaceKeyShares(ctx, p.ID, shares)
}

func (s *ProjectService) ListProjects(ctx context.Context, sess *Session) ([]transport.ProjectInfo, error) {
	if err := access.Authorize(sess.Principal, access.ListProjects, access.Resource{}).Err(); err != nil {
		return nil, err
	}
	projects, err := s.Repo.ListProjects(ctx, sess.Principal)
	if err != nil {
		return nil, internal("list projects", err)
	}
	out := make([]transport.ProjectInfo, 0, len(projects))
	for _, p := range projects {
		out = append(out, transport.ProjectInfo{
			ProjectID:    p.PublicID,
			Title:        p.Title,
			PI:           p.PI,
			Status:       p.CurrentStatus,
			CreatedBy:    p.CreatedBy,
			DateCreated:  p.DateCreated,
			DateUpdated:  p.DateUpdated,
			Size:         p.SizeOriginal,
			NonSensitive: p.NonSensitive,
			Access:       access.Authorize(sess.Principal, access.DownloadFile, access.ProjectResource(&p)).Allowed,
		})
	}
	return out, nil
}

func (s *ProjectService) PublicKey(ctx context.Context, sess *Session, publicID string) (string, error) {
	p, err := authorizedProject(ctx, s.Repo, sess, publicID, access.ReadPublicKey, false)
	if err != nil {
		return "", err
	}
	if len(p.PublicKey) == 0 {
		return "", errs.KeyGeneration(errors.New("project has no public key"))
	}
	return hex.EncodeToString(p.PublicKey), nil
}

// PrivateKey returns the project private key hex encoded. The key owner
// unseals the project row; other administrators open their share.
func (s *ProjectService) PrivateKey(ctx context.Context, sess *Session, publicID string) (string, error) {
	l := logging.FromContext(ctx).With("svc", "projects.private_key", "username", sess.User.Username, "project", publicID)

	p, err := authorizedProject(ctx, s.Repo, sess, publicID, access.ReadPrivateKey, false)
	if err != nil {
		l.Warn("private_key_denied", "error", err)
		return "", err
	}
	userPriv, err := s.Accounts.UnlockPrivateKey(sess.User, sess.UserKey)
	if err != nil {
		return "", err
	}

	var priv []byte
	if p.KeyOwner == sess.User.Username {
		priv, err = s.Keys.DecryptProjectPrivateKey(userPriv, &keys.ProjectKeyPair{
			EncryptedPrivateKey: p.PrivateKey,
			Salt:                p.PrivateKeySalt,
			Nonce:               p.PrivateKeyNonce,
		})
	} else {
		var share *models.ProjectUserKey
		share, err = s.Repo.GetKeyShare(ctx, p.ID, sess.User.Username)
		if err != nil {
			if isNotFound(err) {
				return "", errs.AccessDenied("No key has been shared with you for this project yet")
			}
			return "", internal("load key share", err)
		}
		priv, err = s.Keys.OpenProjectKeyShare(share.Key, userPriv)
	}
	if err != nil {
		l.Error("private_key_decrypt_failed", "error", err)
		return "", errs.AccessDenied("Could not decrypt the project private key")
	}

	s.syncShares(ctx, p, priv)

	l.Info("private_key_released")
	publish(ctx, s.Events, ActionEvent{Action: "private_key_released", Username: sess.User.Username, Project: p.PublicID, At: s.Clock.Now()})
	return hex.EncodeToString(priv), nil
}

// syncShares adds shares for administrators that joined after the last
// key generation. Failures are logged only.
func (s *ProjectService) syncShares(ctx context.Context, p *models.Project, priv []byte) {
	l := logging.FromContext(ctx)
	holders, err := s.Repo.KeyHolders(ctx, p.UnitID)
	if err != nil {
		l.Warn("share_sync_failed", "error", err)
		return
	}
	for _, h := range holders {
		if h.Username == p.KeyOwner {
			continue
		}
		if _, err := s.Repo.GetKeyShare(ctx, p.ID, h.Username); err == nil || !isNotFound(err) {
			continue
		}
		k, err := s.Keys.ShareProjectKey(priv, h.PublicKey)
		if err != nil {
			l.Warn("share_sync_failed", "holder", h.Username, "error", err)
			continue
		}
		if err := s.Repo.AddKeyShare(ctx, &models.ProjectUserKey{ProjectID: p.ID, Username: h.Username, Key: k}); err != nil {
			l.Warn("share_sync_failed", "holder", h.Username, "error", err)
		}
	}
}

// ChangeStatus moves the project forward along the status table. Archiving
// or deleting a project removes its file records and stored objects.
func (s *ProjectService) ChangeStatus(ctx context.Context, sess *Session, publicID, newStatus string) (string, error) {
	l := logging.FromContext(ctx).With("svc", "projects.change_status", "username", sess.User.Username, "project", publicID)

	if !models.ValidStatus(newStatus) {
		return "", errs.Validation("Invalid status: %s", newStatus)
	}
	now := s.Clock.Now()
	var (
		bucket  string
		removed []string
		from    string
	)
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		p, err := authorizedProject(ctx, tx, sess, publicID, access.ChangeStatus, true)
		if err != nil {
			return err
		}
		from = p.CurrentStatus
		if !slices.Contains(models.StatusTransitions[from], newStatus) {
			return errs.Validation("Cannot change status from %s to %s", from, newStatus)
		}
		if newStatus == models.StatusArchived || newStatus == models.StatusDeleted {
			files, err := tx.AllFiles(ctx, p.ID)
			if err != nil {
				return err
			}
			ids := make([]uint, 0, len(files))
			for _, f := range files {
				ids = append(ids, f.ID)
				removed = append(removed, f.NameInBucket)
			}
			if err := tx.DeleteFiles(ctx, ids); err != nil {
				return err
			}
			if _, _, err := tx.RecomputeProjectSize(ctx, p.ID, now); err != nil {
				return err
			}
			bucket = p.Bucket
		}
		return tx.AppendStatus(ctx, p.ID, newStatus, now)
	})
	if err != nil {
		return "", internal("change status", err)
	}

	if len(removed) > 0 {
		if err := s.Storage.RemoveObjects(ctx, bucket, removed); err != nil {
			l.Warn("object_cleanup_failed", "bucket", bucket, "count", len(removed), "error", err)
		}
	}
	l.Info("status_changed", "from", from, "to", newStatus)
	publish(ctx, s.Events, ActionEvent{Action: "status_changed", Username: sess.User.Username, Project: publicID, Detail: map[string]any{"from": from, "to": newStatus}, At: now})
	return fmt.Sprintf("%s updated to status %s", publicID, newStatus), nil
}

func (s *ProjectService) StatusHistory(ctx context.Context, sess *Session, publicID string) (*models.Project, []models.ProjectStatus, error) {
	p, err := authorizedProject(ctx, s.Repo, sess, publicID, access.ReadProject, false)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.Repo.StatusHistory(ctx, p.ID)
	if err != nil {
		return nil, nil, internal("status history", err)
	}
	return p, rows, nil
}

// RotateKeys replaces the project key pair and re-shares it. The caller
// becomes the key owner. Projects with files keep their keys since the
// files were encrypted for the old pair.
func (s *ProjectService) RotateKeys(ctx context.Context, sess *Session, publicID string) error {
	l := logging.FromContext(ctx).With("svc", "projects.rotate_keys", "username", sess.User.Username, "project", publicID)

	ownerSecret, err := s.Accounts.UnlockPrivateKey(sess.User, sess.UserKey)
	if err != nil {
		return err
	}
	now := s.Clock.Now()
	err = s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		p, err := authorizedProject(ctx, tx, sess, publicID, access.RotateKeys, true)
		if err != nil {
			return err
		}
		if p.CurrentStatus != models.StatusInProgress {
			return errs.Validation("Keys can only be rotated while the project is In Progress")
		}
		n, err := tx.CountFiles(ctx, p.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return errs.Validation("Cannot rotate the keys of a project that contains files")
		}

		pair, err := s.Keys.GenerateProjectKeyPair(ownerSecret)
		if err != nil {
			return err
		}
		defer pair.Wipe()

		if err := tx.ReplaceProjectKeys(ctx, p.ID, sess.User.Username, pair.PublicKey, pair.EncryptedPrivateKey, pair.Salt, pair.Nonce, now); err != nil {
			return err
		}
		return s.shareWithHolders(ctx, tx, p, sess.User.Username, func(pub []byte) ([]byte, error) {
			return s.Keys.Share(pair, pub)
		})
	})
	if err != nil {
		l.Error("rotate_keys_failed", "error", err)
		return internal("rotate keys", err)
	}
	l.Info("keys_rotated")
	publish(ctx, s.Events, ActionEvent{Action: "keys_rotated", Username: sess.User.Username, Project: publicID, At: now})
	return nil
}

// GrantAccess associates a researcher with a project.
func (s *ProjectService) GrantAccess(ctx context.Context, sess *Session, publicID, username string) error {
	p, err := authorizedProject(ctx, s.Repo, sess, publicID, access.ManageAccess, false)
	if err != nil {
		return err
	}
	target, err := s.Repo.GetUser(ctx, username)
	if err != nil {
		if isNotFound(err) {
			return errs.NotFound("User not found: %s", username)
		}
		return internal("load user", err)
	}
	if target.Role != models.RoleResearcher {
		return errs.Validation("Only researchers are granted project access; administrators reach projects through their unit")
	}
	if err := s.Repo.AddProjectUser(ctx, &models.ProjectUser{ProjectID: p.ID, Username: username}); err != nil {
		return internal("grant access", err)
	}
	logging.FromContext(ctx).Info("project_access_granted", "project", publicID, "user", username, "by", sess.User.Username)
	publish(ctx, s.Events, ActionEvent{Action: "access_granted", Username: sess.User.Username, Project: publicID, Detail: map[string]any{"user": username}, At: s.Clock.Now()})
	return nil
}
