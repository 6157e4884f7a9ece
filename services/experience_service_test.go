package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"marketplace-server/models"
)

type mockExperienceRepo struct {
	getFn    func(ctx context.Context, id uint) (*models.Experience, error)
	listFn   func(ctx context.Context, query ExperienceListingQuery) ([]models.Experience, int64, error)
	createFn func(ctx context.Context, exp *models.Experience) error
	saveFn   func(ctx context.Context, exp *models.Experience) error
}

func (m *mockExperienceRepo) Get(ctx context.Context, id uint) (*models.Experience, error) {
	return m.getFn(ctx, id)
}
func (m *mockExperienceRepo) List(ctx context.Context, query ExperienceListingQuery) ([]models.Experience, int64, error) {
	return m.listFn(ctx, query)
}
func (m *mockExperienceRepo) Create(ctx context.Context, exp *models.Experience) error {
	return m.createFn(ctx, exp)
}
func (m *mockExperienceRepo) Save(ctx context.Context, exp *models.Experience) error {
	return m.saveFn(ctx, exp)
}

func completeDraft() *models.Experience {
	price := 60.0
	return &models.Experience{
		ID:               7,
		OperatorID:       42,
		TripTitle:        "Desert Hike",
		ShortDescription: "A half day hike through the dunes",
		PricePerPerson:   &price,
		Location:         []byte(`{"type":"Point","coordinates":[-15.97,18.08]}`),
		Languages:        []byte(`["en","fr"]`),
		Status:           models.ExperienceStatusDraft,
	}
}

func TestCreateExperience_StartsAsDraft(t *testing.T) {
	repo := &mockExperienceRepo{
		createFn: func(ctx context.Context, exp *models.Experience) error {
			exp.ID = 1
			return nil
		},
	}
	svc := NewExperienceService(repo)

	exp := completeDraft()
	exp.ID = 0
	exp.Status = ""
	created, err := svc.Create(context.Background(), exp, 42)

	assert.NoError(t, err)
	assert.Equal(t, models.ExperienceStatusDraft, created.Status)
	assert.Equal(t, uint(42), created.OperatorID)
	assert.True(t, created.Complete)
}

func TestCreateExperience_TitleRequired(t *testing.T) {
	svc := NewExperienceService(&mockExperienceRepo{})

	_, err := svc.Create(context.Background(), &models.Experience{}, 42)

	assert.True(t, IsValidation(err))
}

func TestCreateExperience_IncompleteIsAllowed(t *testing.T) {
	repo := &mockExperienceRepo{
		createFn: func(ctx context.Context, exp *models.Experience) error { return nil },
	}
	svc := NewExperienceService(repo)

	created, err := svc.Create(context.Background(), &models.Experience{TripTitle: "Half-finished"}, 42)

	assert.NoError(t, err)
	assert.False(t, created.Complete)
}

func TestSubmit_CompleteDraft(t *testing.T) {
	exp := completeDraft()
	repo := &mockExperienceRepo{
		getFn:  func(ctx context.Context, id uint) (*models.Experience, error) { return exp, nil },
		saveFn: func(ctx context.Context, e *models.Experience) error { return nil },
	}
	svc := NewExperienceService(repo)

	submitted, err := svc.Submit(context.Background(), 7, 42)

	assert.NoError(t, err)
	assert.Equal(t, models.ExperienceStatusSubmitted, submitted.Status)
}

func TestSubmit_IncompleteRejected(t *testing.T) {
	exp := completeDraft()
	exp.PricePerPerson = nil
	repo := &mockExperienceRepo{
		getFn: func(ctx context.Context, id uint) (*models.Experience, error) { return exp, nil },
	}
	svc := NewExperienceService(repo)

	_, err := svc.Submit(context.Background(), 7, 42)

	assert.True(t, IsValidation(err))
}

func TestSubmit_FromPublishedConflicts(t *testing.T) {
	exp := completeDraft()
	exp.Status = models.ExperienceStatusPublished
	repo := &mockExperienceRepo{
		getFn: func(ctx context.Context, id uint) (*models.Experience, error) { return exp, nil },
	}
	svc := NewExperienceService(repo)

	_, err := svc.Submit(context.Background(), 7, 42)

	assert.True(t, IsConflict(err))
}

func TestSubmit_RejectedCanResubmit(t *testing.T) {
	exp := completeDraft()
	exp.Status = models.ExperienceStatusRejected
	exp.RejectionReason = "needs better photos"
	repo := &mockExperienceRepo{
		getFn:  func(ctx context.Context, id uint) (*models.Experience, error) { return exp, nil },
		saveFn: func(ctx context.Context, e *models.Experience) error { return nil },
	}
	svc := NewExperienceService(repo)

	submitted, err := svc.Submit(context.Background(), 7, 42)

	assert.NoError(t, err)
	assert.Equal(t, models.ExperienceStatusSubmitted, submitted.Status)
}

func TestSubmit_NotOwner(t *testing.T) {
	repo := &mockExperienceRepo{
		getFn: func(ctx context.Context, id uint) (*models.Experience, error) { return completeDraft(), nil },
	}
	svc := NewExperienceService(repo)

	_, err := svc.Submit(context.Background(), 7, 1000)

	assert.True(t, IsForbidden(err))
}

func TestApprove_PublishesAndClearsRejection(t *testing.T) {
	exp := completeDraft()
	exp.Status = models.ExperienceStatusSubmitted
	admin := uint(3)
	exp.RejectionReason = "stale reason"
	exp.RejectedByID = &admin
	repo := &mockExperienceRepo{
		getFn:  func(ctx context.Context, id uint) (*models.Experience, error) { return exp, nil },
		saveFn: func(ctx context.Context, e *models.Experience) error { return nil },
	}
	svc := NewExperienceService(repo)

	published, err := svc.Approve(context.Background(), 7)

	assert.NoError(t, err)
	assert.Equal(t, models.ExperienceStatusPublished, published.Status)
	assert.Empty(t, published.RejectionReason)
	assert.Nil(t, published.RejectedByID)
}

func TestApprove_OnlyFromSubmitted(t *testing.T) {
	repo := &mockExperienceRepo{
		getFn: func(ctx context.Context, id uint) (*models.Experience, error) { return completeDraft(), nil },
	}
	svc := NewExperienceService(repo)

	_, err := svc.Approve(context.Background(), 7)

	assert.True(t, IsConflict(err))
}

func TestReject_RequiresReason(t *testing.T) {
	svc := NewExperienceService(&mockExperienceRepo{})

	_, err := svc.Reject(context.Background(), 7, "", 3)

	assert.True(t, IsValidation(err))
}

func TestReject_RecordsReasonAndAdmin(t *testing.T) {
	exp := completeDraft()
	exp.Status = models.ExperienceStatusSubmitted
	repo := &mockExperienceRepo{
		getFn:  func(ctx context.Context, id uint) (*models.Experience, error) { return exp, nil },
		saveFn: func(ctx context.Context, e *models.Experience) error { return nil },
	}
	svc := NewExperienceService(repo)

	rejected, err := svc.Reject(context.Background(), 7, "needs better photos", 3)

	assert.NoError(t, err)
	assert.Equal(t, models.ExperienceStatusRejected, rejected.Status)
	assert.Equal(t, "needs better photos", rejected.RejectionReason)
	assert.Equal(t, uint(3), *rejected.RejectedByID)
}

func TestArchive_FromAnyState(t *testing.T) {
	exp := completeDraft()
	exp.Status = models.ExperienceStatusPublished
	repo := &mockExperienceRepo{
		getFn:  func(ctx context.Context, id uint) (*models.Experience, error) { return exp, nil },
		saveFn: func(ctx context.Context, e *models.Experience) error { return nil },
	}
	svc := NewExperienceService(repo)

	archived, err := svc.Archive(context.Background(), 7, 42)

	assert.NoError(t, err)
	assert.Equal(t, models.ExperienceStatusArchived, archived.Status)
}

func TestUpdate_ReevaluatesCompleteness(t *testing.T) {
	exp := completeDraft()
	exp.Complete = true
	repo := &mockExperienceRepo{
		getFn:  func(ctx context.Context, id uint) (*models.Experience, error) { return exp, nil },
		saveFn: func(ctx context.Context, e *models.Experience) error { return nil },
	}
	svc := NewExperienceService(repo)

	updated, err := svc.Update(context.Background(), 7, ExperiencePatch{
		AvailableCount: OptionalInt{Present: true, Value: nil},
		PricePerPerson: nil,
		Languages:      []byte(`[]`),
	}, 42)

	assert.NoError(t, err)
	assert.False(t, updated.Complete) // no languages left
	assert.Nil(t, updated.AvailableCount)
}

func TestGet_NotFound(t *testing.T) {
	repo := &mockExperienceRepo{
		getFn: func(ctx context.Context, id uint) (*models.Experience, error) { return nil, nil },
	}
	svc := NewExperienceService(repo)

	_, err := svc.Get(context.Background(), 99)

	assert.True(t, IsNotFound(err))
}
