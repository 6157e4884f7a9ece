package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"marketplace-server/models"
)

// --- Mock collaborators ---

type mockInstanceRepo struct {
	getFn    func(ctx context.Context, experienceID uint, date time.Time) (*models.ExperienceInstance, error)
	listFn   func(ctx context.Context, query InstanceListingQuery) ([]CompactInstance, error)
	createFn func(ctx context.Context, inst *models.ExperienceInstance) error
	updateFn func(ctx context.Context, inst *models.ExperienceInstance, expectedBookedCount int) error
}

func (m *mockInstanceRepo) GetByExperienceAndDate(ctx context.Context, experienceID uint, date time.Time) (*models.ExperienceInstance, error) {
	return m.getFn(ctx, experienceID, date)
}
func (m *mockInstanceRepo) List(ctx context.Context, query InstanceListingQuery) ([]CompactInstance, error) {
	return m.listFn(ctx, query)
}
func (m *mockInstanceRepo) Create(ctx context.Context, inst *models.ExperienceInstance) error {
	return m.createFn(ctx, inst)
}
func (m *mockInstanceRepo) Update(ctx context.Context, inst *models.ExperienceInstance, expectedBookedCount int) error {
	return m.updateFn(ctx, inst, expectedBookedCount)
}

type mockExperienceReader struct {
	getFn  func(ctx context.Context, id uint) (*models.Experience, error)
	listFn func(ctx context.Context, query InstanceListingQuery) ([]models.Experience, error)
}

func (m *mockExperienceReader) Get(ctx context.Context, id uint) (*models.Experience, error) {
	return m.getFn(ctx, id)
}
func (m *mockExperienceReader) ListForExpansion(ctx context.Context, query InstanceListingQuery) ([]models.Experience, error) {
	return m.listFn(ctx, query)
}

func publishedTemplate() *models.Experience {
	count := 10
	price := 80.0
	return &models.Experience{
		ID:               7,
		OperatorID:       42,
		TripTitle:        "Desert Hike",
		Status:           models.ExperienceStatusPublished,
		AvailableCount:   &count,
		PricePerPerson:   &price,
		StartTime:        "09:00",
		IsRecurring:      true,
		RecurringPattern: "FREQ=WEEKLY",
		StartDate:        datePtr(2024, time.January, 1),
		Timezone:         "UTC",
	}
}

func mustDate(key string) time.Time {
	t, err := time.Parse(DateKeyLayout, key)
	if err != nil {
		panic(err)
	}
	return t
}

// --- UpsertForDate ---

func TestUpsertForDate_MaterializesOnFirstWrite(t *testing.T) {
	var created *models.ExperienceInstance
	instances := &mockInstanceRepo{
		getFn: func(ctx context.Context, experienceID uint, date time.Time) (*models.ExperienceInstance, error) {
			return nil, nil
		},
		createFn: func(ctx context.Context, inst *models.ExperienceInstance) error {
			created = inst
			return nil
		},
	}
	experiences := &mockExperienceReader{
		getFn: func(ctx context.Context, id uint) (*models.Experience, error) {
			return publishedTemplate(), nil
		},
	}
	svc := NewInstanceService(instances, experiences)

	blocked := models.InstanceStatusBlocked
	inst, err := svc.UpsertForDate(context.Background(), 7, mustDate("2024-01-08"), InstancePatch{Status: &blocked}, 42, false)

	assert.NoError(t, err)
	assert.NotNil(t, created)
	assert.Equal(t, models.InstanceStatusBlocked, inst.Status)
	assert.Equal(t, 0, inst.BookedCount)
	assert.Equal(t, uint(42), inst.OperatorID)
	assert.Equal(t, "Desert Hike", inst.Snapshot.TripTitle)
	assert.Equal(t, 10, *inst.AvailableCount)
}

func TestUpsertForDate_TemplateNotFound(t *testing.T) {
	experiences := &mockExperienceReader{
		getFn: func(ctx context.Context, id uint) (*models.Experience, error) { return nil, nil },
	}
	svc := NewInstanceService(&mockInstanceRepo{}, experiences)

	_, err := svc.UpsertForDate(context.Background(), 99, mustDate("2024-01-08"), InstancePatch{}, 42, false)

	assert.True(t, IsNotFound(err))
}

func TestUpsertForDate_NotOwner(t *testing.T) {
	experiences := &mockExperienceReader{
		getFn: func(ctx context.Context, id uint) (*models.Experience, error) {
			return publishedTemplate(), nil
		},
	}
	svc := NewInstanceService(&mockInstanceRepo{}, experiences)

	_, err := svc.UpsertForDate(context.Background(), 7, mustDate("2024-01-08"), InstancePatch{}, 1000, false)

	assert.True(t, IsForbidden(err))
}

func TestUpsertForDate_AdminBypassesOwnership(t *testing.T) {
	instances := &mockInstanceRepo{
		getFn: func(ctx context.Context, experienceID uint, date time.Time) (*models.ExperienceInstance, error) {
			return nil, nil
		},
		createFn: func(ctx context.Context, inst *models.ExperienceInstance) error { return nil },
	}
	experiences := &mockExperienceReader{
		getFn: func(ctx context.Context, id uint) (*models.Experience, error) {
			return publishedTemplate(), nil
		},
	}
	svc := NewInstanceService(instances, experiences)

	_, err := svc.UpsertForDate(context.Background(), 7, mustDate("2024-01-08"), InstancePatch{}, 1000, true)

	assert.NoError(t, err)
}

func TestUpsertForDate_CapacityShrinkBelowBookedRejected(t *testing.T) {
	count := 10
	existing := &models.ExperienceInstance{
		ID:             1,
		ExperienceID:   7,
		OperatorID:     42,
		Date:           mustDate("2024-01-08"),
		Status:         models.InstanceStatusScheduled,
		BookedCount:    5,
		AvailableCount: &count,
	}
	updateCalled := false
	instances := &mockInstanceRepo{
		getFn: func(ctx context.Context, experienceID uint, date time.Time) (*models.ExperienceInstance, error) {
			return existing, nil
		},
		updateFn: func(ctx context.Context, inst *models.ExperienceInstance, expected int) error {
			updateCalled = true
			return nil
		},
	}
	experiences := &mockExperienceReader{
		getFn: func(ctx context.Context, id uint) (*models.Experience, error) {
			return publishedTemplate(), nil
		},
	}
	svc := NewInstanceService(instances, experiences)

	three := 3
	_, err := svc.UpsertForDate(context.Background(), 7, mustDate("2024-01-08"),
		InstancePatch{AvailableCount: OptionalInt{Present: true, Value: &three}}, 42, false)

	assert.True(t, IsValidation(err))
	assert.False(t, updateCalled)
}

func TestUpsertForDate_CapacityClearToUnlimited(t *testing.T) {
	count := 10
	existing := &models.ExperienceInstance{
		ID:             1,
		ExperienceID:   7,
		OperatorID:     42,
		Date:           mustDate("2024-01-08"),
		Status:         models.InstanceStatusScheduled,
		BookedCount:    5,
		AvailableCount: &count,
	}
	instances := &mockInstanceRepo{
		getFn: func(ctx context.Context, experienceID uint, date time.Time) (*models.ExperienceInstance, error) {
			return existing, nil
		},
		updateFn: func(ctx context.Context, inst *models.ExperienceInstance, expected int) error {
			assert.Equal(t, 5, expected)
			return nil
		},
	}
	experiences := &mockExperienceReader{
		getFn: func(ctx context.Context, id uint) (*models.Experience, error) {
			return publishedTemplate(), nil
		},
	}
	svc := NewInstanceService(instances, experiences)

	inst, err := svc.UpsertForDate(context.Background(), 7, mustDate("2024-01-08"),
		InstancePatch{AvailableCount: OptionalInt{Present: true, Value: nil}}, 42, false)

	assert.NoError(t, err)
	assert.Nil(t, inst.AvailableCount)
}

func TestUpsertForDate_CancelViaPatchRejected(t *testing.T) {
	existing := &models.ExperienceInstance{
		ID: 1, ExperienceID: 7, OperatorID: 42,
		Date: mustDate("2024-01-08"), Status: models.InstanceStatusScheduled,
	}
	instances := &mockInstanceRepo{
		getFn: func(ctx context.Context, experienceID uint, date time.Time) (*models.ExperienceInstance, error) {
			return existing, nil
		},
	}
	experiences := &mockExperienceReader{
		getFn: func(ctx context.Context, id uint) (*models.Experience, error) {
			return publishedTemplate(), nil
		},
	}
	svc := NewInstanceService(instances, experiences)

	cancelled := models.InstanceStatusCancelled
	_, err := svc.UpsertForDate(context.Background(), 7, mustDate("2024-01-08"),
		InstancePatch{Status: &cancelled}, 42, false)

	assert.True(t, IsValidation(err))
}

func TestUpsertForDate_IllegalTransitionRejected(t *testing.T) {
	existing := &models.ExperienceInstance{
		ID: 1, ExperienceID: 7, OperatorID: 42,
		Date: mustDate("2024-01-08"), Status: models.InstanceStatusScheduled,
	}
	instances := &mockInstanceRepo{
		getFn: func(ctx context.Context, experienceID uint, date time.Time) (*models.ExperienceInstance, error) {
			return existing, nil
		},
	}
	experiences := &mockExperienceReader{
		getFn: func(ctx context.Context, id uint) (*models.Experience, error) {
			return publishedTemplate(), nil
		},
	}
	svc := NewInstanceService(instances, experiences)

	completed := models.InstanceStatusCompleted
	_, err := svc.UpsertForDate(context.Background(), 7, mustDate("2024-01-08"),
		InstancePatch{Status: &completed}, 42, false)

	assert.True(t, IsConflict(err))
}

// --- Cancel ---

func TestCancel_PhantomCancellation(t *testing.T) {
	var created *models.ExperienceInstance
	instances := &mockInstanceRepo{
		getFn: func(ctx context.Context, experienceID uint, date time.Time) (*models.ExperienceInstance, error) {
			return nil, nil
		},
		createFn: func(ctx context.Context, inst *models.ExperienceInstance) error {
			created = inst
			return nil
		},
	}
	experiences := &mockExperienceReader{
		getFn: func(ctx context.Context, id uint) (*models.Experience, error) {
			return publishedTemplate(), nil
		},
	}
	svc := NewInstanceService(instances, experiences)

	inst, err := svc.Cancel(context.Background(), 7, mustDate("2024-01-08"), "guide unavailable", 42)

	assert.NoError(t, err)
	assert.NotNil(t, created)
	assert.Equal(t, models.InstanceStatusCancelled, inst.Status)
	assert.NotNil(t, inst.AvailableCount)
	assert.Equal(t, 0, *inst.AvailableCount)
	assert.Equal(t, "guide unavailable", inst.CancellationReason)
	assert.Equal(t, uint(42), *inst.CancelledByID)
	assert.NotNil(t, inst.CancelledAt)
}

func TestCancel_WithActiveBookingsRejected(t *testing.T) {
	existing := &models.ExperienceInstance{
		ID: 1, ExperienceID: 7, OperatorID: 42,
		Date: mustDate("2024-01-08"), Status: models.InstanceStatusConfirmed, BookedCount: 4,
	}
	instances := &mockInstanceRepo{
		getFn: func(ctx context.Context, experienceID uint, date time.Time) (*models.ExperienceInstance, error) {
			return existing, nil
		},
	}
	svc := NewInstanceService(instances, &mockExperienceReader{})

	_, err := svc.Cancel(context.Background(), 7, mustDate("2024-01-08"), "weather", 42)

	assert.True(t, IsConflict(err))
}

func TestCancel_NotOwner(t *testing.T) {
	existing := &models.ExperienceInstance{
		ID: 1, ExperienceID: 7, OperatorID: 42,
		Date: mustDate("2024-01-08"), Status: models.InstanceStatusScheduled,
	}
	instances := &mockInstanceRepo{
		getFn: func(ctx context.Context, experienceID uint, date time.Time) (*models.ExperienceInstance, error) {
			return existing, nil
		},
	}
	svc := NewInstanceService(instances, &mockExperienceReader{})

	_, err := svc.Cancel(context.Background(), 7, mustDate("2024-01-08"), "weather", 1000)

	assert.True(t, IsForbidden(err))
}

func TestCancel_OperatorRecancelIsIdempotent(t *testing.T) {
	existing := &models.ExperienceInstance{
		ID: 1, ExperienceID: 7, OperatorID: 42,
		Date: mustDate("2024-01-08"), Status: models.InstanceStatusCancelled,
	}
	instances := &mockInstanceRepo{
		getFn: func(ctx context.Context, experienceID uint, date time.Time) (*models.ExperienceInstance, error) {
			return existing, nil
		},
		updateFn: func(ctx context.Context, inst *models.ExperienceInstance, expected int) error {
			return nil
		},
	}
	svc := NewInstanceService(instances, &mockExperienceReader{})

	inst, err := svc.Cancel(context.Background(), 7, mustDate("2024-01-08"), "updated reason", 42)

	assert.NoError(t, err)
	assert.Equal(t, "updated reason", inst.CancellationReason)
}

func TestCancel_CompletedIsTerminal(t *testing.T) {
	existing := &models.ExperienceInstance{
		ID: 1, ExperienceID: 7, OperatorID: 42,
		Date: mustDate("2024-01-08"), Status: models.InstanceStatusCompleted,
	}
	updateCalled := false
	instances := &mockInstanceRepo{
		getFn: func(ctx context.Context, experienceID uint, date time.Time) (*models.ExperienceInstance, error) {
			return existing, nil
		},
		updateFn: func(ctx context.Context, inst *models.ExperienceInstance, expected int) error {
			updateCalled = true
			return nil
		},
	}
	svc := NewInstanceService(instances, &mockExperienceReader{})

	_, err := svc.Cancel(context.Background(), 7, mustDate("2024-01-08"), "too late", 42)

	assert.True(t, IsConflict(err))
	assert.False(t, updateCalled)
	assert.Equal(t, models.InstanceStatusCompleted, existing.Status)
}

func TestCancel_BlockedCannotBeCancelled(t *testing.T) {
	existing := &models.ExperienceInstance{
		ID: 1, ExperienceID: 7, OperatorID: 42,
		Date: mustDate("2024-01-08"), Status: models.InstanceStatusBlocked,
	}
	instances := &mockInstanceRepo{
		getFn: func(ctx context.Context, experienceID uint, date time.Time) (*models.ExperienceInstance, error) {
			return existing, nil
		},
	}
	svc := NewInstanceService(instances, &mockExperienceReader{})

	_, err := svc.Cancel(context.Background(), 7, mustDate("2024-01-08"), "weather", 42)

	assert.True(t, IsConflict(err))
}

func TestAdminCancel_CompletedIsTerminal(t *testing.T) {
	existing := &models.ExperienceInstance{
		ID: 1, ExperienceID: 7, OperatorID: 42,
		Date: mustDate("2024-01-08"), Status: models.InstanceStatusCompleted,
	}
	instances := &mockInstanceRepo{
		getFn: func(ctx context.Context, experienceID uint, date time.Time) (*models.ExperienceInstance, error) {
			return existing, nil
		},
	}
	svc := NewInstanceService(instances, &mockExperienceReader{})

	_, err := svc.AdminCancel(context.Background(), 7, mustDate("2024-01-08"), "policy", 1)

	assert.True(t, IsConflict(err))
}

func TestAdminCancel_DoubleCancelConflicts(t *testing.T) {
	existing := &models.ExperienceInstance{
		ID: 1, ExperienceID: 7, OperatorID: 42,
		Date: mustDate("2024-01-08"), Status: models.InstanceStatusCancelled,
	}
	instances := &mockInstanceRepo{
		getFn: func(ctx context.Context, experienceID uint, date time.Time) (*models.ExperienceInstance, error) {
			return existing, nil
		},
	}
	svc := NewInstanceService(instances, &mockExperienceReader{})

	_, err := svc.AdminCancel(context.Background(), 7, mustDate("2024-01-08"), "policy", 1)

	assert.True(t, IsConflict(err))
}

// --- ListAvailability ---

func TestListAvailability_MergesPhysicalOverVirtual(t *testing.T) {
	instances := &mockInstanceRepo{
		listFn: func(ctx context.Context, query InstanceListingQuery) ([]CompactInstance, error) {
			return []CompactInstance{
				{ExperienceID: 7, Date: "2024-01-08", Status: models.InstanceStatusCancelled},
			}, nil
		},
	}
	experiences := &mockExperienceReader{
		listFn: func(ctx context.Context, query InstanceListingQuery) ([]models.Experience, error) {
			return []models.Experience{*publishedTemplate()}, nil
		},
	}
	svc := NewInstanceService(instances, experiences)

	from := mustDate("2024-01-01")
	to := mustDate("2024-01-31")
	result, err := svc.ListAvailability(context.Background(), InstanceListingQuery{DateFrom: &from, DateTo: &to})

	assert.NoError(t, err)
	assert.Equal(t, 5, result.Total)
	assert.Equal(t, "2024-01-08", result.Items[1].Date)
	assert.Equal(t, models.InstanceStatusCancelled, result.Items[1].Status)
	assert.Equal(t, models.InstanceStatusScheduled, result.Items[0].Status)
	assert.Empty(t, result.Warnings)
}

func TestListAvailability_BadRuleBecomesWarning(t *testing.T) {
	broken := *publishedTemplate()
	broken.ID = 8
	broken.RecurringPattern = "FREQ=NEVERMIND"

	instances := &mockInstanceRepo{
		listFn: func(ctx context.Context, query InstanceListingQuery) ([]CompactInstance, error) {
			return nil, nil
		},
	}
	experiences := &mockExperienceReader{
		listFn: func(ctx context.Context, query InstanceListingQuery) ([]models.Experience, error) {
			return []models.Experience{*publishedTemplate(), broken}, nil
		},
	}
	svc := NewInstanceService(instances, experiences)

	from := mustDate("2024-01-01")
	to := mustDate("2024-01-31")
	result, err := svc.ListAvailability(context.Background(), InstanceListingQuery{DateFrom: &from, DateTo: &to})

	assert.NoError(t, err)
	assert.Equal(t, 5, result.Total) // healthy template still expands
	assert.Len(t, result.Warnings, 1)
}

func TestListAvailability_StatusFilterAppliesAfterMerge(t *testing.T) {
	instances := &mockInstanceRepo{
		listFn: func(ctx context.Context, query InstanceListingQuery) ([]CompactInstance, error) {
			return []CompactInstance{
				{ExperienceID: 7, Date: "2024-01-08", Status: models.InstanceStatusCancelled},
			}, nil
		},
	}
	experiences := &mockExperienceReader{
		listFn: func(ctx context.Context, query InstanceListingQuery) ([]models.Experience, error) {
			return []models.Experience{*publishedTemplate()}, nil
		},
	}
	svc := NewInstanceService(instances, experiences)

	from := mustDate("2024-01-01")
	to := mustDate("2024-01-31")
	result, err := svc.ListAvailability(context.Background(), InstanceListingQuery{
		Status: models.InstanceStatusScheduled, DateFrom: &from, DateTo: &to,
	})

	assert.NoError(t, err)
	assert.Equal(t, 4, result.Total)
	for _, item := range result.Items {
		assert.Equal(t, models.InstanceStatusScheduled, item.Status)
	}
}

func TestListAvailability_Pagination(t *testing.T) {
	instances := &mockInstanceRepo{
		listFn: func(ctx context.Context, query InstanceListingQuery) ([]CompactInstance, error) {
			return nil, nil
		},
	}
	experiences := &mockExperienceReader{
		listFn: func(ctx context.Context, query InstanceListingQuery) ([]models.Experience, error) {
			return []models.Experience{*publishedTemplate()}, nil
		},
	}
	svc := NewInstanceService(instances, experiences)

	from := mustDate("2024-01-01")
	to := mustDate("2024-01-31")
	result, err := svc.ListAvailability(context.Background(), InstanceListingQuery{
		DateFrom: &from, DateTo: &to, Page: 2, PageSize: 2,
	})

	assert.NoError(t, err)
	assert.Equal(t, 5, result.Total)
	assert.Len(t, result.Items, 2)
	assert.Equal(t, "2024-01-15", result.Items[0].Date)
	assert.Equal(t, "2024-01-22", result.Items[1].Date)
}
