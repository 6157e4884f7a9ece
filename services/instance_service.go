package services

import (
	"context"
	"time"

	"marketplace-server/models"
)

// OptionalInt distinguishes "field not provided" from "explicitly set to
// null": Present=false means leave the stored value alone, Present=true with a
// nil Value means clear it (unlimited capacity).
type OptionalInt struct {
	Present bool
	Value   *int
}

// InstancePatch is a partial update against one physical instance. Nil pointer
// fields are left untouched.
type InstancePatch struct {
	Status         *string
	AvailableCount OptionalInt
	StartTime      *string
	MeetingTime    *string
	PricePerPerson *float64
}

// InstanceListingQuery filters the merged availability calendar.
type InstanceListingQuery struct {
	ExperienceID uint
	OperatorID   uint
	Status       string
	DateFrom     *time.Time
	DateTo       *time.Time
	Page         int
	PageSize     int
}

// InstanceListingResult is the paginated merged calendar. Warnings carry
// per-template expansion failures that degraded instead of failing the query.
type InstanceListingResult struct {
	Items    []CompactInstance `json:"items"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
	Warnings []string          `json:"warnings,omitempty"`
}

// InstanceRepository is the persistence collaborator for physical instances.
// GetByExperienceAndDate returns (nil, nil) when no row exists. Create must
// fail with a conflict when a row for the same (experience, date) already
// exists, and Update must reject writes whose expected booked count is stale.
type InstanceRepository interface {
	GetByExperienceAndDate(ctx context.Context, experienceID uint, date time.Time) (*models.ExperienceInstance, error)
	List(ctx context.Context, query InstanceListingQuery) ([]CompactInstance, error)
	Create(ctx context.Context, inst *models.ExperienceInstance) error
	Update(ctx context.Context, inst *models.ExperienceInstance, expectedBookedCount int) error
}

// ExperienceReader is the read-only template collaborator used for instance
// materialization and recurrence expansion. Get returns (nil, nil) when the
// template does not exist.
type ExperienceReader interface {
	Get(ctx context.Context, id uint) (*models.Experience, error)
	ListForExpansion(ctx context.Context, query InstanceListingQuery) ([]models.Experience, error)
}

// InstanceService owns the per-day instance lifecycle and the merged
// availability listing. Collaborators are injected; the service keeps no
// ambient state.
type InstanceService struct {
	instances   InstanceRepository
	experiences ExperienceReader
}

func NewInstanceService(instances InstanceRepository, experiences ExperienceReader) *InstanceService {
	return &InstanceService{instances: instances, experiences: experiences}
}

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// ListAvailability fetches physical instances matching the filters, expands
// matching templates into virtual occurrences over the window, reconciles the
// two sets and paginates the merged calendar in memory. Virtual instances do
// not exist in storage, so pagination cannot be pushed down to the database;
// the 90-day default window keeps the merged set small.
func (s *InstanceService) ListAvailability(ctx context.Context, query InstanceListingQuery) (*InstanceListingResult, error) {
	page := query.Page
	if page < 1 {
		page = 1
	}
	pageSize := query.PageSize
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	physical, err := s.instances.List(ctx, query)
	if err != nil {
		return nil, err
	}

	templates, err := s.experiences.ListForExpansion(ctx, query)
	if err != nil {
		return nil, err
	}

	var warnings []string
	var virtual []CompactInstance
	for i := range templates {
		exp := &templates[i]
		keys, expandErr := ExpandOccurrences(exp, query.DateFrom, query.DateTo)
		if expandErr != nil {
			// One bad rule must not fail the whole listing.
			warnings = append(warnings, expandErr.Error())
			continue
		}
		for _, key := range keys {
			virtual = append(virtual, CompactFromTemplate(exp, key))
		}
	}

	merged := Reconcile(physical, virtual)
	if query.Status != "" {
		filtered := merged[:0]
		for _, item := range merged {
			if item.Status == query.Status {
				filtered = append(filtered, item)
			}
		}
		merged = filtered
	}

	total := len(merged)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &InstanceListingResult{
		Items:    merged[start:end],
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Warnings: warnings,
	}, nil
}

// UpsertForDate applies a partial update to the physical instance at
// (experienceID, date), materializing one from the template on first write. A
// patch that would shrink capacity below the current booked count is rejected.
func (s *InstanceService) UpsertForDate(ctx context.Context, experienceID uint, date time.Time, patch InstancePatch, actorID uint, isAdmin bool) (*models.ExperienceInstance, error) {
	exp, err := s.experiences.Get(ctx, experienceID)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, NotFoundError("experience %d not found", experienceID)
	}
	if !isAdmin && exp.OperatorID != actorID {
		return nil, ForbiddenError("not the owner of experience %d", experienceID)
	}

	inst, err := s.instances.GetByExperienceAndDate(ctx, experienceID, date)
	if err != nil {
		return nil, err
	}

	if inst == nil {
		inst = MaterializeInstance(exp, date)
		if err := applyPatch(inst, patch); err != nil {
			return nil, err
		}
		if err := s.instances.Create(ctx, inst); err != nil {
			return nil, err
		}
		return inst, nil
	}

	expectedBooked := inst.BookedCount
	if err := applyPatch(inst, patch); err != nil {
		return nil, err
	}
	if err := s.instances.Update(ctx, inst, expectedBooked); err != nil {
		return nil, err
	}
	return inst, nil
}

// Cancel transitions the instance at (experienceID, date) to cancelled. When
// no physical instance exists yet, a phantom cancellation is persisted so the
// date stays unavailable from now on. Instances with active bookings cannot be
// cancelled here; that requires the compensation workflow.
func (s *InstanceService) Cancel(ctx context.Context, experienceID uint, date time.Time, reason string, actorID uint) (*models.ExperienceInstance, error) {
	return s.cancel(ctx, experienceID, date, reason, actorID, false)
}

// AdminCancel is Cancel without the ownership check, for internal callers. It
// additionally refuses to re-cancel an already cancelled instance so that
// double-cancel attempts surface as conflicts instead of silent no-ops.
func (s *InstanceService) AdminCancel(ctx context.Context, experienceID uint, date time.Time, reason string, adminID uint) (*models.ExperienceInstance, error) {
	return s.cancel(ctx, experienceID, date, reason, adminID, true)
}

func (s *InstanceService) cancel(ctx context.Context, experienceID uint, date time.Time, reason string, actorID uint, isAdmin bool) (*models.ExperienceInstance, error) {
	inst, err := s.instances.GetByExperienceAndDate(ctx, experienceID, date)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if inst == nil {
		exp, err := s.experiences.Get(ctx, experienceID)
		if err != nil {
			return nil, err
		}
		if exp == nil {
			return nil, NotFoundError("experience %d not found", experienceID)
		}
		if !isAdmin && exp.OperatorID != actorID {
			return nil, ForbiddenError("not the owner of experience %d", experienceID)
		}

		inst = MaterializeInstance(exp, date)
		zero := 0
		inst.Status = models.InstanceStatusCancelled
		inst.AvailableCount = &zero
		inst.CancellationReason = reason
		inst.CancelledByID = &actorID
		inst.CancelledAt = &now
		if err := s.instances.Create(ctx, inst); err != nil {
			return nil, err
		}
		return inst, nil
	}

	if !isAdmin && inst.OperatorID != actorID {
		return nil, ForbiddenError("not the owner of experience %d", experienceID)
	}
	if inst.BookedCount > 0 {
		return nil, ConflictError("instance has %d active bookings and cannot be cancelled here", inst.BookedCount)
	}
	if isAdmin && inst.Status == models.InstanceStatusCancelled {
		return nil, ConflictError("instance for %s is already cancelled", inst.Date.Format(DateKeyLayout))
	}
	// Re-cancelling updates the reason in place; anything else must be a legal
	// transition, which keeps completed, ongoing and blocked out of reach.
	if inst.Status != models.InstanceStatusCancelled && !inst.CanTransition(models.InstanceStatusCancelled) {
		return nil, ConflictError("cannot transition instance from %s to %s", inst.Status, models.InstanceStatusCancelled)
	}

	inst.Status = models.InstanceStatusCancelled
	inst.CancellationReason = reason
	inst.CancelledByID = &actorID
	inst.CancelledAt = &now
	if err := s.instances.Update(ctx, inst, 0); err != nil {
		return nil, err
	}
	return inst, nil
}

// MaterializeInstance builds a fresh physical instance from the template for
// one date: scheduled, no bookings, template capacity, denormalized snapshot.
func MaterializeInstance(exp *models.Experience, date time.Time) *models.ExperienceInstance {
	return &models.ExperienceInstance{
		ExperienceID:   exp.ID,
		OperatorID:     exp.OperatorID,
		Date:           date,
		Status:         models.InstanceStatusScheduled,
		BookedCount:    0,
		AvailableCount: exp.AvailableCount,
		Snapshot: models.InstanceSnapshot{
			TripTitle:      exp.TripTitle,
			Images:         exp.Images,
			Location:       exp.Location,
			StartTime:      exp.StartTime,
			MeetingTime:    exp.MeetingTime,
			PricePerPerson: exp.PricePerPerson,
		},
	}
}

// applyPatch mutates inst in place, guarding the capacity and status
// invariants. The capacity guard rejects only a genuine shrink below the
// current booked count; edits that leave capacity alone stay legal regardless
// of bookings.
func applyPatch(inst *models.ExperienceInstance, patch InstancePatch) error {
	if patch.AvailableCount.Present {
		if patch.AvailableCount.Value != nil && *patch.AvailableCount.Value < inst.BookedCount {
			return ValidationError(
				"available count %d is below the current booked count %d",
				*patch.AvailableCount.Value, inst.BookedCount,
			)
		}
	}
	if patch.Status != nil && *patch.Status != inst.Status {
		to := *patch.Status
		if to == models.InstanceStatusCancelled {
			return ValidationError("cancellation must go through the cancel operation")
		}
		if !inst.CanTransition(to) {
			return ConflictError("cannot transition instance from %s to %s", inst.Status, to)
		}
		inst.Status = to
	}
	if patch.AvailableCount.Present {
		inst.AvailableCount = patch.AvailableCount.Value
	}
	if patch.StartTime != nil {
		inst.Snapshot.StartTime = *patch.StartTime
	}
	if patch.MeetingTime != nil {
		inst.Snapshot.MeetingTime = *patch.MeetingTime
	}
	if patch.PricePerPerson != nil {
		inst.Snapshot.PricePerPerson = patch.PricePerPerson
	}
	return nil
}

// ParseDateKey parses a calendar-date key ("2006-01-02").
func ParseDateKey(value string) (time.Time, error) {
	t, err := time.Parse(DateKeyLayout, value)
	if err != nil {
		return time.Time{}, ValidationError("invalid date %q, want YYYY-MM-DD", value)
	}
	return t, nil
}
