package routes

import (
	"encoding/json"

	"github.com/kataras/iris/v12"
	jsonWT "github.com/kataras/iris/v12/middleware/jwt"

	"marketplace-server/services"
	"marketplace-server/utils"
)

// InstanceHandler exposes the merged availability calendar and the per-date
// instance lifecycle.
type InstanceHandler struct {
	svc           *services.InstanceService
	notifications *services.NotificationService
}

func NewInstanceHandler(svc *services.InstanceService, notifications *services.NotificationService) *InstanceHandler {
	return &InstanceHandler{svc: svc, notifications: notifications}
}

// ListAvailability returns the merged physical+virtual calendar, publicly
// readable. Expansion failures for individual templates come back as warnings
// next to the items instead of failing the request.
func (h *InstanceHandler) ListAvailability(ctx iris.Context) {
	query := services.InstanceListingQuery{
		Status:   ctx.URLParam("status"),
		Page:     ctx.URLParamIntDefault("page", 1),
		PageSize: ctx.URLParamIntDefault("limit", 20),
	}
	// Mounted both nested under an experience and standalone with filters.
	if id := ctx.Params().GetUintDefault("id", 0); id > 0 {
		query.ExperienceID = id
	} else if v := ctx.URLParamUint64("experience_id"); v > 0 {
		query.ExperienceID = uint(v)
	}
	if v := ctx.URLParamUint64("operator_id"); v > 0 {
		query.OperatorID = uint(v)
	}
	if raw := ctx.URLParam("date_from"); raw != "" {
		t, err := services.ParseDateKey(raw)
		if err != nil {
			utils.HandleServiceError(ctx, err)
			return
		}
		query.DateFrom = &t
	}
	if raw := ctx.URLParam("date_to"); raw != "" {
		t, err := services.ParseDateKey(raw)
		if err != nil {
			utils.HandleServiceError(ctx, err)
			return
		}
		query.DateTo = &t
	}

	result, err := h.svc.ListAvailability(ctx.Request().Context(), query)
	if err != nil {
		utils.HandleServiceError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{
		"success":  true,
		"items":    result.Items,
		"total":    result.Total,
		"page":     result.Page,
		"pageSize": result.PageSize,
		"warnings": result.Warnings,
	})
}

type instancePatchInput struct {
	Status         *string         `json:"status"`
	AvailableCount json.RawMessage `json:"availableCount"`
	StartTime      *string         `json:"startTime"`
	MeetingTime    *string         `json:"meetingTime"`
	PricePerPerson *float64        `json:"pricePerPerson"`
}

// Upsert edits the instance at /{id}/instances/{date}, materializing it from
// the template on first write.
func (h *InstanceHandler) Upsert(ctx iris.Context) {
	actorID := ctx.Values().Get("userID").(uint)
	experienceID := ctx.Params().GetUintDefault("id", 0)

	date, err := services.ParseDateKey(ctx.Params().Get("date"))
	if err != nil {
		utils.HandleServiceError(ctx, err)
		return
	}

	var input instancePatchInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	optCount, ok := parseOptionalCount(ctx, input.AvailableCount)
	if !ok {
		return
	}
	patch := services.InstancePatch{
		Status:         input.Status,
		AvailableCount: optCount,
		StartTime:      input.StartTime,
		MeetingTime:    input.MeetingTime,
		PricePerPerson: input.PricePerPerson,
	}

	inst, err := h.svc.UpsertForDate(ctx.Request().Context(), experienceID, date, patch, actorID, isAdminRequest(ctx))
	if err != nil {
		utils.HandleServiceError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"success": true, "instance": inst})
}

type cancelInstanceInput struct {
	Reason string `json:"reason" validate:"required"`
}

// Cancel marks one date as cancelled on behalf of its operator. A date with no
// physical row yet gets a zero-capacity cancelled row so it stays closed.
func (h *InstanceHandler) Cancel(ctx iris.Context) {
	actorID := ctx.Values().Get("userID").(uint)
	experienceID := ctx.Params().GetUintDefault("id", 0)

	date, err := services.ParseDateKey(ctx.Params().Get("date"))
	if err != nil {
		utils.HandleServiceError(ctx, err)
		return
	}

	var input cancelInstanceInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	inst, err := h.svc.Cancel(ctx.Request().Context(), experienceID, date, input.Reason, actorID)
	if err != nil {
		utils.HandleServiceError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"success": true, "instance": inst})
}

// AdminCancel cancels a date without the ownership check, notifies the
// operator and leaves an audit trail.
func (h *InstanceHandler) AdminCancel(ctx iris.Context) {
	adminID := ctx.Values().Get("userID").(uint)
	experienceID := ctx.Params().GetUintDefault("id", 0)

	dateKey := ctx.Params().Get("date")
	date, err := services.ParseDateKey(dateKey)
	if err != nil {
		utils.HandleServiceError(ctx, err)
		return
	}

	var input cancelInstanceInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	inst, err := h.svc.AdminCancel(ctx.Request().Context(), experienceID, date, input.Reason, adminID)
	if err != nil {
		utils.HandleServiceError(ctx, err)
		return
	}

	h.notifications.NotifyInstanceCancelled(inst.OperatorID, inst.Snapshot.TripTitle, dateKey, input.Reason, inst.ID)
	utils.Audit(ctx, "instance.cancel", "experience_instance", inst.ID, nil, iris.Map{
		"experienceID": experienceID,
		"date":         dateKey,
		"reason":       input.Reason,
	})
	ctx.JSON(iris.Map{"success": true, "instance": inst})
}

func isAdminRequest(ctx iris.Context) bool {
	tok := jsonWT.Get(ctx)
	if tok == nil {
		return false
	}
	at, ok := tok.(*utils.AccessToken)
	if !ok {
		return false
	}
	return at.Role == "admin" || at.Role == "super_admin"
}
