package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"marketplace-server/models"
	"marketplace-server/services"
)

// ExperienceStore is the gorm-backed template collaborator. It implements
// both services.ExperienceRepository and services.ExperienceReader.
type ExperienceStore struct {
	db *gorm.DB
}

func NewExperienceStore(db *gorm.DB) *ExperienceStore {
	return &ExperienceStore{db: db}
}

func (s *ExperienceStore) Get(ctx context.Context, id uint) (*models.Experience, error) {
	var exp models.Experience
	err := s.db.WithContext(ctx).First(&exp, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &exp, nil
}

func (s *ExperienceStore) List(ctx context.Context, query services.ExperienceListingQuery) ([]models.Experience, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Experience{})

	if query.ExperienceID != 0 {
		q = q.Where("id = ?", query.ExperienceID)
	}
	if query.OperatorID != 0 {
		q = q.Where("operator_id = ?", query.OperatorID)
	}
	if query.Status != "" {
		q = q.Where("status = ?", query.Status)
	}
	if query.PriceMin != nil {
		q = q.Where("price_per_person >= ?", *query.PriceMin)
	}
	if query.PriceMax != nil {
		q = q.Where("price_per_person <= ?", *query.PriceMax)
	}
	if query.DateFrom != nil {
		q = q.Where("start_date >= ?", *query.DateFrom)
	}
	if query.DateTo != nil {
		q = q.Where("end_date <= ?", *query.DateTo)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []models.Experience
	offset := (query.Page - 1) * query.PageSize
	if err := q.Order("created_at DESC").Offset(offset).Limit(query.PageSize).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListForExpansion fetches published templates that can contribute virtual
// instances: anything with a start date, recurring or not.
func (s *ExperienceStore) ListForExpansion(ctx context.Context, query services.InstanceListingQuery) ([]models.Experience, error) {
	q := s.db.WithContext(ctx).
		Where("status = ?", models.ExperienceStatusPublished).
		Where("start_date IS NOT NULL")

	if query.ExperienceID != 0 {
		q = q.Where("id = ?", query.ExperienceID)
	}
	if query.OperatorID != 0 {
		q = q.Where("operator_id = ?", query.OperatorID)
	}

	var items []models.Experience
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *ExperienceStore) Create(ctx context.Context, exp *models.Experience) error {
	return s.db.WithContext(ctx).Create(exp).Error
}

func (s *ExperienceStore) Save(ctx context.Context, exp *models.Experience) error {
	return s.db.WithContext(ctx).Save(exp).Error
}
