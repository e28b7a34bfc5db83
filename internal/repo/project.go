package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/data_delivery/internal/access"
	"github.com/Skotchmaster/data_delivery/internal/models"
)

func (r *GormRepo) CreateProject(ctx context.Context, p *models.Project) error {
	return r.DB.WithContext(ctx).Create(p).Error
}

func (r *GormRepo) GetProject(ctx context.Context, publicID string) (*models.Project, error) {
	var p models.Project
	if err := r.DB.WithContext(ctx).Where("public_id = ?", publicID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// LockProject reads the project with SELECT ... FOR UPDATE. Must be called
// inside a transaction.
func (r *GormRepo) LockProject(ctx context.Context, publicID string) (*models.Project, error) {
	var p models.Project
	if err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("public_id = ?", publicID).
		First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProjects returns the projects visible to p, newest first.
func (r *GormRepo) ListProjects(ctx context.Context, p access.Principal) ([]models.Project, error) {
	q := r.DB.WithContext(ctx).Model(&models.Project{})
	switch p.Role {
	case models.RoleSuperAdmin:
	case models.RoleUnitAdmin:
		if p.UnitID == nil {
			return nil, nil
		}
		q = q.Where("unit_id = ?", *p.UnitID)
	default:
		q = q.Where("id IN (?)", r.DB.Session(&gorm.Session{NewDB: true}).Model(&models.ProjectUser{}).Select("project_id").Where("username = ?", p.Username))
	}

	var projects []models.Project
	err := q.Order("date_created DESC").Order("id DESC").Find(&projects).Error
	return projects, err
}

func (r *GormRepo) ListUnitProjects(ctx context.Context, unitID uint) ([]models.Project, error) {
	var projects []models.Project
	err := r.DB.WithContext(ctx).Where("unit_id = ?", unitID).Order("id").Find(&projects).Error
	return projects, err
}

// AppendStatus records a new status row and mirrors it on the project.
func (r *GormRepo) AppendStatus(ctx context.Context, projectID uint, status string, at time.Time) error {
	db := r.DB.WithContext(ctx)
	if err := db.Create(&models.ProjectStatus{ProjectID: projectID, Status: status, ChangedAt: at}).Error; err != nil {
		return err
	}
	return db.Model(&models.Project{}).
		Where("id = ?", projectID).
		Updates(map[string]any{"current_status": status, "date_updated": at}).Error
}

func (r *GormRepo) StatusHistory(ctx context.Context, projectID uint) ([]models.ProjectStatus, error) {
	var rows []models.ProjectStatus
	err := r.DB.WithContext(ctx).Where("project_id = ?", projectID).Order("changed_at").Order("id").Find(&rows).Error
	return rows, err
}

// ReplaceProjectKeys swaps every key column at once.
func (r *GormRepo) ReplaceProjectKeys(ctx context.Context, projectID uint, owner string, pub, priv, salt, nonce []byte, at time.Time) error {
	return r.DB.WithContext(ctx).Model(&models.Project{}).
		Where("id = ?", projectID).
		Updates(map[string]any{
			"key_owner":         owner,
			"public_key":        pub,
			"private_key":       priv,
			"private_key_salt":  salt,
			"private_key_nonce": nonce,
			"date_updated":      at,
		}).Error
}

func (r *GormRepo) ReplaceKeyShares(ctx context.Context, projectID uint, shares []models.ProjectUserKey) error {
	db := r.DB.WithContext(ctx)
	if err := db.Where("project_id = ?", projectID).Delete(&models.ProjectUserKey{}).Error; err != nil {
		return err
	}
	if len(shares) == 0 {
		return nil
	}
	return db.Create(&shares).Error
}

func (r *GormRepo) AddKeyShare(ctx context.Context, share *models.ProjectUserKey) error {
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(share).Error
}

func (r *GormRepo) GetKeyShare(ctx context.Context, projectID uint, username string) (*models.ProjectUserKey, error) {
	var share models.ProjectUserKey
	if err := r.DB.WithContext(ctx).
		Where("project_id = ? AND username = ?", projectID, username).
		First(&share).Error; err != nil {
		return nil, err
	}
	return &share, nil
}

func (r *GormRepo) AddProjectUser(ctx context.Context, pu *models.ProjectUser) error {
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(pu).Error
}
