package repo

import (
	"context"
	"time"

	"github.com/Skotchmaster/data_delivery/internal/models"
)

func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	return r.DB.WithContext(ctx).Create(u).Error
}

func (r *GormRepo) GetUser(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormRepo) UserExists(ctx context.Context, username, email string) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&count).Error
	return count > 0, err
}

func (r *GormRepo) UpdateUser(ctx context.Context, username string, fields map[string]any) error {
	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("username = ?", username).
		Updates(fields).Error
}

// ConsumeHOTP spends the outstanding HOTP code at counter and records the
// completed second factor. It reports false when the code was already
// spent or never issued.
func (r *GormRepo) ConsumeHOTP(ctx context.Context, username string, counter uint64, at time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("username = ? AND hotp_counter = ? AND hotp_issue_time IS NOT NULL", username, counter).
		Updates(map[string]any{
			"hotp_counter":    counter + 1,
			"hotp_issue_time": nil,
			"mfa_verified_at": at,
		})
	return res.RowsAffected == 1, res.Error
}

// ConsumeTOTP records a TOTP code from the step starting at stepStart. It
// reports false when a code from that step or a later one was already used.
func (r *GormRepo) ConsumeTOTP(ctx context.Context, username string, stepStart, at time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("username = ? AND (totp_last_verified IS NULL OR totp_last_verified < ?)", username, stepStart).
		Updates(map[string]any{
			"totp_last_verified": stepStart,
			"mfa_verified_at":    at,
		})
	return res.RowsAffected == 1, res.Error
}

// KeyHolders returns the active administrators that must hold a share of a
// project key in unitID: the unit's admins plus every super-admin.
func (r *GormRepo) KeyHolders(ctx context.Context, unitID uint) ([]models.User, error) {
	var users []models.User
	err := r.DB.WithContext(ctx).
		Where("active = ?", true).
		Where("(role = ? AND unit_id = ?) OR role = ?", models.RoleUnitAdmin, unitID, models.RoleSuperAdmin).
		Order("username").
		Find(&users).Error
	return users, err
}

func (r *GormRepo) ProjectIDsForUser(ctx context.Context, username string) ([]uint, error) {
	var ids []uint
	err := r.DB.WithContext(ctx).Model(&models.ProjectUser{}).
		Where("username = ?", username).
		Pluck("project_id", &ids).Error
	return ids, err
}
