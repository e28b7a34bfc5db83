package repo

import (
	"context"
	"time"

	"github.com/Skotchmaster/data_delivery/internal/models"
)

func (r *GormRepo) CreateFile(ctx context.Context, f *models.File) error {
	return r.DB.WithContext(ctx).Create(f).Error
}

func (r *GormRepo) SaveFile(ctx context.Context, f *models.File) error {
	return r.DB.WithContext(ctx).Save(f).Error
}

func (r *GormRepo) GetFile(ctx context.Context, projectID uint, name string) (*models.File, error) {
	var f models.File
	if err := r.DB.WithContext(ctx).
		Where("project_id = ? AND name = ?", projectID, name).
		First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *GormRepo) CountFiles(ctx context.Context, projectID uint) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.File{}).Where("project_id = ?", projectID).Count(&n).Error
	return n, err
}

func (r *GormRepo) FilesByNames(ctx context.Context, projectID uint, names []string) ([]models.File, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var files []models.File
	err := r.DB.WithContext(ctx).
		Where("project_id = ? AND name IN ?", projectID, names).
		Order("name").
		Find(&files).Error
	return files, err
}

// FilesInFolder returns every file stored below folder at any depth.
func (r *GormRepo) FilesInFolder(ctx context.Context, projectID uint, folder string) ([]models.File, error) {
	var files []models.File
	err := r.DB.WithContext(ctx).
		Where("project_id = ?", projectID).
		Where(`name LIKE ? ESCAPE '\'`, escapeLike(folder)+"/%").
		Order("name").
		Find(&files).Error
	return files, err
}

func (r *GormRepo) AllFiles(ctx context.Context, projectID uint) ([]models.File, error) {
	var files []models.File
	err := r.DB.WithContext(ctx).Where("project_id = ?", projectID).Order("name").Find(&files).Error
	return files, err
}

func (r *GormRepo) DeleteFiles(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Where("id IN ?", ids).Delete(&models.File{}).Error
}

func (r *GormRepo) MarkDownloaded(ctx context.Context, ids []uint, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Model(&models.File{}).
		Where("id IN ?", ids).
		Update("latest_download", at).Error
}

type sizeTotals struct {
	Original int64
	Stored   int64
}

// RecomputeProjectSize sums the project's files and writes the totals back
// to the project row. Callers hold the project lock.
func (r *GormRepo) RecomputeProjectSize(ctx context.Context, projectID uint, at time.Time) (original, stored int64, err error) {
	db := r.DB.WithContext(ctx)

	var totals sizeTotals
	if err := db.Model(&models.File{}).
		Select("COALESCE(SUM(size_original), 0) AS original, COALESCE(SUM(size_stored), 0) AS stored").
		Where("project_id = ?", projectID).
		Scan(&totals).Error; err != nil {
		return 0, 0, err
	}
	if err := db.Model(&models.Project{}).
		Where("id = ?", projectID).
		Updates(map[string]any{
			"size_original": totals.Original,
			"size_stored":   totals.Stored,
			"date_updated":  at,
		}).Error; err != nil {
		return 0, 0, err
	}
	return totals.Original, totals.Stored, nil
}
