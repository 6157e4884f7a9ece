package routes

import (
	"time"

	"github.com/kataras/iris/v12"
	"gorm.io/gorm"

	"marketplace-server/models"
	"marketplace-server/services"
	"marketplace-server/storage"
	"marketplace-server/utils"
)

// BookingHandler drives the booking workflow: explorers request a spot on a
// date, operators confirm or decline. The booked counter on the instance is
// only touched by confirmed bookings, through the store's atomic counters.
type BookingHandler struct {
	db            *gorm.DB
	instances     *storage.InstanceStore
	experiences   *storage.ExperienceStore
	notifications *services.NotificationService
}

func NewBookingHandler(db *gorm.DB, instances *storage.InstanceStore, experiences *storage.ExperienceStore, notifications *services.NotificationService) *BookingHandler {
	return &BookingHandler{db: db, instances: instances, experiences: experiences, notifications: notifications}
}

type createBookingInput struct {
	ExperienceID uint   `json:"experienceID" validate:"required"`
	Date         string `json:"date" validate:"required"`
	HeadCount    int    `json:"headCount" validate:"required,min=1"`
	Notes        string `json:"notes"`
}

// Create requests a booking for one date. The instance is materialized on the
// spot when the date only existed virtually so far; a lost race against a
// concurrent materialization falls back to the winner's row.
func (h *BookingHandler) Create(ctx iris.Context) {
	explorerID := ctx.Values().Get("userID").(uint)

	var input createBookingInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	date, err := services.ParseDateKey(input.Date)
	if err != nil {
		utils.HandleServiceError(ctx, err)
		return
	}

	exp, err := h.experiences.Get(ctx.Request().Context(), input.ExperienceID)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if exp == nil || exp.Status != models.ExperienceStatusPublished {
		utils.JSONError(ctx, iris.StatusNotFound, "not_found", "Experience not found")
		return
	}

	if !withinBookingCutoff(exp, date) {
		utils.JSONError(ctx, iris.StatusConflict, "conflict", "This date is past the booking cutoff")
		return
	}

	inst, err := h.instances.GetByExperienceAndDate(ctx.Request().Context(), input.ExperienceID, date)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if inst == nil {
		inst = services.MaterializeInstance(exp, date)
		if err := h.instances.Create(ctx.Request().Context(), inst); err != nil {
			if services.IsConflict(err) {
				inst, err = h.instances.GetByExperienceAndDate(ctx.Request().Context(), input.ExperienceID, date)
			}
			if err != nil || inst == nil {
				utils.CreateInternalServerError(ctx)
				return
			}
		}
	}

	if inst.Status != models.InstanceStatusScheduled && inst.Status != models.InstanceStatusConfirmed {
		utils.JSONError(ctx, iris.StatusConflict, "conflict", "This date is not open for booking")
		return
	}
	if inst.AvailableCount != nil && inst.BookedCount+input.HeadCount > *inst.AvailableCount {
		utils.JSONError(ctx, iris.StatusConflict, "conflict", "Not enough spots left on this date")
		return
	}

	price := inst.Snapshot.PricePerPerson
	if price == nil {
		price = exp.PricePerPerson
	}
	var total float64
	if price != nil {
		total = *price * float64(input.HeadCount)
	}

	booking := models.Booking{
		InstanceID:   inst.ID,
		ExperienceID: inst.ExperienceID,
		ExplorerID:   explorerID,
		HeadCount:    input.HeadCount,
		TotalPrice:   total,
		Notes:        input.Notes,
		Status:       models.BookingStatusPendingApproval,
	}
	if err := h.db.WithContext(ctx.Request().Context()).Create(&booking).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	h.notifications.NotifyBookingRequested(inst.OperatorID, inst.Snapshot.TripTitle, input.Date, input.HeadCount, booking.ID)
	ctx.JSON(iris.Map{"success": true, "booking": booking})
}

// Confirm accepts a pending booking. The atomic counter increment is the
// capacity gate: when the date filled up in the meantime the increment loses
// and the booking stays pending.
func (h *BookingHandler) Confirm(ctx iris.Context) {
	operatorID := ctx.Values().Get("userID").(uint)
	id := ctx.Params().GetUintDefault("id", 0)

	booking, inst, ok := h.ownedBooking(ctx, id, operatorID)
	if !ok {
		return
	}
	if booking.Status != models.BookingStatusPendingApproval {
		utils.JSONError(ctx, iris.StatusConflict, "conflict", "Only pending bookings can be confirmed")
		return
	}

	if err := h.instances.IncrementBooked(ctx.Request().Context(), booking.InstanceID, booking.HeadCount); err != nil {
		utils.HandleServiceError(ctx, err)
		return
	}

	booking.Status = models.BookingStatusConfirmed
	if err := h.db.WithContext(ctx.Request().Context()).Save(booking).Error; err != nil {
		// Roll the seats back so the counter does not leak.
		h.instances.DecrementBooked(ctx.Request().Context(), booking.InstanceID, booking.HeadCount)
		utils.CreateInternalServerError(ctx)
		return
	}

	h.notifications.NotifyBookingConfirmed(booking.ExplorerID, inst.Snapshot.TripTitle, inst.Date.Format(services.DateKeyLayout), booking.HeadCount, booking.ID)
	ctx.JSON(iris.Map{"success": true, "booking": booking})
}

type declineBookingInput struct {
	Reason string `json:"reason"`
}

// Decline rejects a pending booking without touching the booked counter.
func (h *BookingHandler) Decline(ctx iris.Context) {
	operatorID := ctx.Values().Get("userID").(uint)
	id := ctx.Params().GetUintDefault("id", 0)

	var input declineBookingInput
	ctx.ReadJSON(&input)

	booking, _, ok := h.ownedBooking(ctx, id, operatorID)
	if !ok {
		return
	}
	if booking.Status != models.BookingStatusPendingApproval {
		utils.JSONError(ctx, iris.StatusConflict, "conflict", "Only pending bookings can be declined")
		return
	}

	booking.Status = models.BookingStatusCancelled
	if input.Reason != "" {
		booking.Notes = input.Reason
	}
	if err := h.db.WithContext(ctx.Request().Context()).Save(booking).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"success": true, "booking": booking})
}

// Cancel lets the explorer withdraw their own booking. Confirmed bookings
// release their seats.
func (h *BookingHandler) Cancel(ctx iris.Context) {
	explorerID := ctx.Values().Get("userID").(uint)
	id := ctx.Params().GetUintDefault("id", 0)

	var booking models.Booking
	if err := h.db.WithContext(ctx.Request().Context()).First(&booking, id).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}
	if booking.ExplorerID != explorerID {
		utils.JSONError(ctx, iris.StatusForbidden, "forbidden", "Not your booking")
		return
	}
	if booking.Status == models.BookingStatusCancelled || booking.Status == models.BookingStatusCompleted {
		utils.JSONError(ctx, iris.StatusConflict, "conflict", "This booking can no longer be cancelled")
		return
	}

	wasConfirmed := booking.Status == models.BookingStatusConfirmed
	booking.Status = models.BookingStatusCancelled
	if err := h.db.WithContext(ctx.Request().Context()).Save(&booking).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if wasConfirmed {
		if err := h.instances.DecrementBooked(ctx.Request().Context(), booking.InstanceID, booking.HeadCount); err != nil {
			utils.HandleServiceError(ctx, err)
			return
		}
	}
	ctx.JSON(iris.Map{"success": true, "booking": booking})
}

// ListMine returns the explorer's bookings, newest first.
func (h *BookingHandler) ListMine(ctx iris.Context) {
	explorerID := ctx.Values().Get("userID").(uint)

	var bookings []models.Booking
	err := h.db.WithContext(ctx.Request().Context()).
		Preload("Instance").
		Where("explorer_id = ?", explorerID).
		Order("created_at DESC").
		Find(&bookings).Error
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"success": true, "bookings": bookings})
}

// ListForOperator returns bookings against the operator's experiences and
// marks them read for the dashboard badge.
func (h *BookingHandler) ListForOperator(ctx iris.Context) {
	operatorID := ctx.Values().Get("userID").(uint)

	var bookings []models.Booking
	err := h.db.WithContext(ctx.Request().Context()).
		Preload("Instance").
		Preload("Explorer").
		Joins("JOIN experience_instances ON experience_instances.id = bookings.instance_id").
		Where("experience_instances.operator_id = ?", operatorID).
		Order("bookings.created_at DESC").
		Find(&bookings).Error
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	h.db.WithContext(ctx.Request().Context()).Model(&models.Booking{}).
		Where("id IN (?)", h.db.Model(&models.Booking{}).Select("bookings.id").
			Joins("JOIN experience_instances ON experience_instances.id = bookings.instance_id").
			Where("experience_instances.operator_id = ? AND bookings.is_read = ?", operatorID, false)).
		Update("is_read", true)

	ctx.JSON(iris.Map{"success": true, "bookings": bookings})
}

// ownedBooking loads a booking plus its instance and checks the caller runs
// the experience it belongs to. Writes the error response itself.
func (h *BookingHandler) ownedBooking(ctx iris.Context, id uint, operatorID uint) (*models.Booking, *models.ExperienceInstance, bool) {
	var booking models.Booking
	if err := h.db.WithContext(ctx.Request().Context()).Preload("Instance").First(&booking, id).Error; err != nil {
		utils.CreateNotFound(ctx)
		return nil, nil, false
	}
	if booking.Instance.OperatorID != operatorID {
		utils.JSONError(ctx, iris.StatusForbidden, "forbidden", "Not your booking")
		return nil, nil, false
	}
	return &booking, &booking.Instance, true
}

// withinBookingCutoff checks that the requested date's start moment is still
// at least the template's cutoff hours away.
func withinBookingCutoff(exp *models.Experience, date time.Time) bool {
	loc, err := time.LoadLocation(exp.Timezone)
	if err != nil {
		loc = time.UTC
	}
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	if t, err := time.Parse("15:04", exp.StartTime); err == nil {
		start = start.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
	}
	cutoff := time.Duration(exp.BookingCutoffHours) * time.Hour
	return time.Now().Before(start.Add(-cutoff))
}
