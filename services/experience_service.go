package services

import (
	"context"
	"time"

	"golang.org/x/exp/slices"
	"gorm.io/datatypes"

	"marketplace-server/models"
)

// ExperiencePatch is a partial template update; nil fields are untouched.
// AvailableCount uses OptionalInt so capacity can be explicitly cleared back
// to unlimited.
type ExperiencePatch struct {
	TripTitle          *string
	ShortDescription   *string
	Images             datatypes.JSON
	Location           datatypes.JSON
	Tags               datatypes.JSON
	Languages          datatypes.JSON
	AvailableCount     OptionalInt
	Duration           *string
	Difficulty         *string
	StartTime          *string
	MeetingTime        *string
	PricePerPerson     *float64
	CancellationPolicy *string
	BookingCutoffHours *int
	IsRecurring        *bool
	RecurringPattern   *string
	IsUponRequest      *bool
	StartDate          *time.Time
	EndDate            *time.Time
	Timezone           *string
	TripSteps          datatypes.JSON
	IncludedItems      datatypes.JSON
	ExcludedItems      datatypes.JSON
	WhatToBring        datatypes.JSON
	AgeNotes           *string
	AdditionalInfo     *string
}

// ExperienceListingQuery filters template listings.
type ExperienceListingQuery struct {
	ExperienceID uint
	OperatorID   uint
	Status       string
	PriceMin     *float64
	PriceMax     *float64
	DateFrom     *time.Time
	DateTo       *time.Time
	Page         int
	PageSize     int
}

// ExperienceListingResult pages template rows straight from the database.
type ExperienceListingResult struct {
	Items    []models.Experience `json:"items"`
	Total    int64               `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"pageSize"`
}

// ExperienceRepository is the persistence collaborator for templates.
// Get returns (nil, nil) when absent.
type ExperienceRepository interface {
	Get(ctx context.Context, id uint) (*models.Experience, error)
	List(ctx context.Context, query ExperienceListingQuery) ([]models.Experience, int64, error)
	Create(ctx context.Context, exp *models.Experience) error
	Save(ctx context.Context, exp *models.Experience) error
}

// ExperienceService owns the template lifecycle:
// draft -> submitted -> published | rejected, with archived as the terminal
// soft delete reachable from any state.
type ExperienceService struct {
	repo ExperienceRepository
}

func NewExperienceService(repo ExperienceRepository) *ExperienceService {
	return &ExperienceService{repo: repo}
}

func (s *ExperienceService) Get(ctx context.Context, id uint) (*models.Experience, error) {
	exp, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, NotFoundError("experience %d not found", id)
	}
	return exp, nil
}

func (s *ExperienceService) List(ctx context.Context, query ExperienceListingQuery) (*ExperienceListingResult, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.PageSize < 1 || query.PageSize > maxPageSize {
		query.PageSize = defaultPageSize
	}
	items, total, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, err
	}
	return &ExperienceListingResult{Items: items, Total: total, Page: query.Page, PageSize: query.PageSize}, nil
}

// Create stores a new draft template for the operator and evaluates the
// completeness flag.
func (s *ExperienceService) Create(ctx context.Context, exp *models.Experience, operatorID uint) (*models.Experience, error) {
	if exp.TripTitle == "" {
		return nil, ValidationError("trip title is required")
	}
	exp.ID = 0
	exp.OperatorID = operatorID
	exp.Status = models.ExperienceStatusDraft
	exp.Complete = isComplete(exp)
	if err := s.repo.Create(ctx, exp); err != nil {
		return nil, err
	}
	return exp, nil
}

// Update applies a partial edit to an owned template and re-evaluates
// completeness.
func (s *ExperienceService) Update(ctx context.Context, id uint, patch ExperiencePatch, operatorID uint) (*models.Experience, error) {
	exp, err := s.getOwned(ctx, id, operatorID)
	if err != nil {
		return nil, err
	}
	applyExperiencePatch(exp, patch)
	exp.Complete = isComplete(exp)
	if err := s.repo.Save(ctx, exp); err != nil {
		return nil, err
	}
	return exp, nil
}

// Submit moves a complete draft (or a rejected template being resubmitted)
// into review.
func (s *ExperienceService) Submit(ctx context.Context, id uint, operatorID uint) (*models.Experience, error) {
	exp, err := s.getOwned(ctx, id, operatorID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains([]string{models.ExperienceStatusDraft, models.ExperienceStatusRejected}, exp.Status) {
		return nil, ConflictError("experience in status %s cannot be submitted", exp.Status)
	}
	if !isComplete(exp) {
		return nil, ValidationError("experience is not complete: needs a title, a description or image, a price, a location and at least one language")
	}
	exp.Complete = true
	exp.Status = models.ExperienceStatusSubmitted
	if err := s.repo.Save(ctx, exp); err != nil {
		return nil, err
	}
	return exp, nil
}

// Approve publishes a submitted template. Approver identity is recorded by
// the caller's audit trail, not on the row.
func (s *ExperienceService) Approve(ctx context.Context, id uint) (*models.Experience, error) {
	exp, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.Status != models.ExperienceStatusSubmitted {
		return nil, ConflictError("only submitted experiences can be published, got %s", exp.Status)
	}
	exp.Status = models.ExperienceStatusPublished
	exp.RejectionReason = ""
	exp.RejectedByID = nil
	if err := s.repo.Save(ctx, exp); err != nil {
		return nil, err
	}
	return exp, nil
}

// Reject sends a submitted template back with a required reason and the
// rejecting admin's id.
func (s *ExperienceService) Reject(ctx context.Context, id uint, reason string, adminID uint) (*models.Experience, error) {
	if reason == "" {
		return nil, ValidationError("rejection reason is required")
	}
	exp, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.Status != models.ExperienceStatusSubmitted {
		return nil, ConflictError("only submitted experiences can be rejected, got %s", exp.Status)
	}
	exp.Status = models.ExperienceStatusRejected
	exp.RejectionReason = reason
	exp.RejectedByID = &adminID
	if err := s.repo.Save(ctx, exp); err != nil {
		return nil, err
	}
	return exp, nil
}

// Archive is the soft delete: terminal, reachable from any state, operator
// initiated.
func (s *ExperienceService) Archive(ctx context.Context, id uint, operatorID uint) (*models.Experience, error) {
	exp, err := s.getOwned(ctx, id, operatorID)
	if err != nil {
		return nil, err
	}
	exp.Status = models.ExperienceStatusArchived
	if err := s.repo.Save(ctx, exp); err != nil {
		return nil, err
	}
	return exp, nil
}

func (s *ExperienceService) getOwned(ctx context.Context, id uint, operatorID uint) (*models.Experience, error) {
	exp, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.OperatorID != operatorID {
		return nil, ForbiddenError("not the owner of experience %d", id)
	}
	return exp, nil
}

// isComplete checks the submission invariant: title, description or at least
// one image, a price, a location and at least one language.
func isComplete(exp *models.Experience) bool {
	if exp.TripTitle == "" {
		return false
	}
	if exp.ShortDescription == "" && len(exp.ImageList()) == 0 {
		return false
	}
	if exp.PricePerPerson == nil {
		return false
	}
	if exp.LocationPoint() == nil {
		return false
	}
	return len(exp.LanguageList()) >= 1
}

func applyExperiencePatch(exp *models.Experience, patch ExperiencePatch) {
	if patch.TripTitle != nil {
		exp.TripTitle = *patch.TripTitle
	}
	if patch.ShortDescription != nil {
		exp.ShortDescription = *patch.ShortDescription
	}
	if patch.Images != nil {
		exp.Images = patch.Images
	}
	if patch.Location != nil {
		exp.Location = patch.Location
	}
	if patch.Tags != nil {
		exp.Tags = patch.Tags
	}
	if patch.Languages != nil {
		exp.Languages = patch.Languages
	}
	if patch.AvailableCount.Present {
		exp.AvailableCount = patch.AvailableCount.Value
	}
	if patch.Duration != nil {
		exp.Duration = *patch.Duration
	}
	if patch.Difficulty != nil {
		exp.Difficulty = *patch.Difficulty
	}
	if patch.StartTime != nil {
		exp.StartTime = *patch.StartTime
	}
	if patch.MeetingTime != nil {
		exp.MeetingTime = *patch.MeetingTime
	}
	if patch.PricePerPerson != nil {
		exp.PricePerPerson = patch.PricePerPerson
	}
	if patch.CancellationPolicy != nil {
		exp.CancellationPolicy = *patch.CancellationPolicy
	}
	if patch.BookingCutoffHours != nil {
		exp.BookingCutoffHours = *patch.BookingCutoffHours
	}
	if patch.IsRecurring != nil {
		exp.IsRecurring = *patch.IsRecurring
	}
	if patch.RecurringPattern != nil {
		exp.RecurringPattern = *patch.RecurringPattern
	}
	if patch.IsUponRequest != nil {
		exp.IsUponRequest = *patch.IsUponRequest
	}
	if patch.StartDate != nil {
		exp.StartDate = patch.StartDate
	}
	if patch.EndDate != nil {
		exp.EndDate = patch.EndDate
	}
	if patch.Timezone != nil {
		exp.Timezone = *patch.Timezone
	}
	if patch.TripSteps != nil {
		exp.TripSteps = patch.TripSteps
	}
	if patch.IncludedItems != nil {
		exp.IncludedItems = patch.IncludedItems
	}
	if patch.ExcludedItems != nil {
		exp.ExcludedItems = patch.ExcludedItems
	}
	if patch.WhatToBring != nil {
		exp.WhatToBring = patch.WhatToBring
	}
	if patch.AgeNotes != nil {
		exp.AgeNotes = *patch.AgeNotes
	}
	if patch.AdditionalInfo != nil {
		exp.AdditionalInfo = *patch.AdditionalInfo
	}
}
