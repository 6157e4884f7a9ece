package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"marketplace-server/models"
	"marketplace-server/services"
)

// InstanceStore is the gorm-backed physical-instance collaborator. Writes are
// expressed so the database can reject stale or duplicate attempts: Create
// relies on the unique (experience_id, date) index, Update and the booked
// counters run conditional UPDATEs.
type InstanceStore struct {
	db *gorm.DB
}

func NewInstanceStore(db *gorm.DB) *InstanceStore {
	return &InstanceStore{db: db}
}

func (s *InstanceStore) GetByExperienceAndDate(ctx context.Context, experienceID uint, date time.Time) (*models.ExperienceInstance, error) {
	var inst models.ExperienceInstance
	err := s.db.WithContext(ctx).
		Where("experience_id = ? AND date = ?", experienceID, date.Format(services.DateKeyLayout)).
		First(&inst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (s *InstanceStore) List(ctx context.Context, query services.InstanceListingQuery) ([]services.CompactInstance, error) {
	q := s.db.WithContext(ctx).Model(&models.ExperienceInstance{})

	if query.ExperienceID != 0 {
		q = q.Where("experience_id = ?", query.ExperienceID)
	}
	if query.OperatorID != 0 {
		q = q.Where("operator_id = ?", query.OperatorID)
	}
	if query.Status != "" {
		q = q.Where("status = ?", query.Status)
	}
	if query.DateFrom != nil {
		q = q.Where("date >= ?", query.DateFrom.Format(services.DateKeyLayout))
	}
	if query.DateTo != nil {
		q = q.Where("date <= ?", query.DateTo.Format(services.DateKeyLayout))
	}

	var rows []models.ExperienceInstance
	if err := q.Order("date").Find(&rows).Error; err != nil {
		return nil, err
	}

	items := make([]services.CompactInstance, 0, len(rows))
	for i := range rows {
		items = append(items, services.CompactFromInstance(&rows[i]))
	}
	return items, nil
}

func (s *InstanceStore) Create(ctx context.Context, inst *models.ExperienceInstance) error {
	err := s.db.WithContext(ctx).Create(inst).Error
	if err != nil && isDuplicateKey(err) {
		return services.ConflictError(
			"instance for experience %d on %s already exists",
			inst.ExperienceID, inst.Date.Format(services.DateKeyLayout),
		)
	}
	return err
}

// Update persists the instance only when the stored booked count still equals
// what the caller read. A concurrent booking in between makes the write lose.
func (s *InstanceStore) Update(ctx context.Context, inst *models.ExperienceInstance, expectedBookedCount int) error {
	res := s.db.WithContext(ctx).Model(inst).
		Where("booked_count = ?", expectedBookedCount).
		Select(
			"status", "booked_count", "available_count",
			"trip_title", "images", "location", "start_time", "meeting_time", "price_per_person",
			"cancellation_reason", "cancelled_by_id", "cancelled_at",
		).
		Updates(inst)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.ConflictError("instance %d was modified concurrently", inst.ID)
	}
	return nil
}

// IncrementBooked atomically adds delta bookings, refusing when the instance
// is not bookable or the capacity ceiling would be crossed.
func (s *InstanceStore) IncrementBooked(ctx context.Context, instanceID uint, delta int) error {
	res := s.db.WithContext(ctx).Model(&models.ExperienceInstance{}).
		Where("id = ? AND status IN ?", instanceID, []string{models.InstanceStatusScheduled, models.InstanceStatusConfirmed}).
		Where("available_count IS NULL OR booked_count + ? <= available_count", delta).
		UpdateColumn("booked_count", gorm.Expr("booked_count + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.ConflictError("not enough spots available on instance %d", instanceID)
	}
	return nil
}

// DecrementBooked atomically releases delta bookings, never going below zero.
func (s *InstanceStore) DecrementBooked(ctx context.Context, instanceID uint, delta int) error {
	res := s.db.WithContext(ctx).Model(&models.ExperienceInstance{}).
		Where("id = ? AND booked_count >= ?", instanceID, delta).
		UpdateColumn("booked_count", gorm.Expr("booked_count - ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.ConflictError("booked count on instance %d would go negative", instanceID)
	}
	return nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "duplicate key")
}
