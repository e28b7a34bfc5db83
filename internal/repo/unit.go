package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/data_delivery/internal/models"
)

func (r *GormRepo) CreateUnit(ctx context.Context, u *models.Unit) error {
	return r.DB.WithContext(ctx).Create(u).Error
}

func (r *GormRepo) GetUnit(ctx context.Context, id uint) (*models.Unit, error) {
	var unit models.Unit
	if err := r.DB.WithContext(ctx).First(&unit, id).Error; err != nil {
		return nil, err
	}
	return &unit, nil
}

// NextProjectCounter locks the unit row, bumps its counter and returns the
// unit with the new value. Must be called inside a transaction.
func (r *GormRepo) NextProjectCounter(ctx context.Context, unitID uint) (*models.Unit, error) {
	db := r.DB.WithContext(ctx)

	var unit models.Unit
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&unit, unitID).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Unit{}).
		Where("id = ?", unitID).
		Update("counter", gorm.Expr("counter + ?", 1)).Error; err != nil {
		return nil, err
	}
	unit.Counter++
	return &unit, nil
}
