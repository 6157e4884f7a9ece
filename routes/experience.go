package routes

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kataras/iris/v12"
	"gorm.io/datatypes"

	"marketplace-server/models"
	"marketplace-server/services"
	"marketplace-server/storage"
	"marketplace-server/utils"
)

// ExperienceHandler exposes the template CRUD and lifecycle endpoints. The
// service is injected; handlers only translate between HTTP and service calls.
type ExperienceHandler struct {
	svc *services.ExperienceService
}

func NewExperienceHandler(svc *services.ExperienceService) *ExperienceHandler {
	return &ExperienceHandler{svc: svc}
}

type experienceInput struct {
	TripTitle          string               `json:"tripTitle" validate:"required"`
	ShortDescription   string               `json:"shortDescription"`
	Images             []string             `json:"images"`
	Location           *models.GeoJSONPoint `json:"location"`
	Tags               []string             `json:"tags"`
	Languages          []string             `json:"languages"`
	AvailableCount     *int                 `json:"availableCount"`
	Duration           string               `json:"duration"`
	Difficulty         string               `json:"difficulty" validate:"omitempty,oneof=beginner intermediate advanced"`
	StartTime          string               `json:"startTime"`
	MeetingTime        string               `json:"meetingTime"`
	PricePerPerson     *float64             `json:"pricePerPerson"`
	CancellationPolicy string               `json:"cancellationPolicy" validate:"omitempty,oneof=flexible moderate strict"`
	BookingCutoffHours *int                 `json:"bookingCutoffHours"`
	IsRecurring        bool                 `json:"isRecurring"`
	RecurringPattern   string               `json:"recurringPattern"`
	IsUponRequest      bool                 `json:"isUponRequest"`
	StartDate          string               `json:"startDate"` // "2006-01-02"
	EndDate            string               `json:"endDate"`
	Timezone           string               `json:"timezone"`
	TripSteps          json.RawMessage      `json:"tripSteps"`
	IncludedItems      []string             `json:"includedItems"`
	ExcludedItems      []string             `json:"excludedItems"`
	WhatToBring        []string             `json:"whatToBring"`
	AgeNotes           string               `json:"ageNotes"`
	AdditionalInfo     string               `json:"additionalInfo"`
}

// Create stores a new draft experience for the authenticated operator.
func (h *ExperienceHandler) Create(ctx iris.Context) {
	operatorID := ctx.Values().Get("userID").(uint)

	var input experienceInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	exp := models.Experience{
		TripTitle:          input.TripTitle,
		ShortDescription:   input.ShortDescription,
		Duration:           input.Duration,
		Difficulty:         input.Difficulty,
		StartTime:          input.StartTime,
		MeetingTime:        input.MeetingTime,
		AvailableCount:     input.AvailableCount,
		PricePerPerson:     input.PricePerPerson,
		CancellationPolicy: input.CancellationPolicy,
		IsRecurring:        input.IsRecurring,
		RecurringPattern:   input.RecurringPattern,
		IsUponRequest:      input.IsUponRequest,
		Timezone:           input.Timezone,
		AgeNotes:           input.AgeNotes,
		AdditionalInfo:     input.AdditionalInfo,
	}
	if input.BookingCutoffHours != nil {
		exp.BookingCutoffHours = *input.BookingCutoffHours
	}

	if date, ok := parseOptionalDate(ctx, input.StartDate); ok {
		exp.StartDate = date
	} else {
		return
	}
	if date, ok := parseOptionalDate(ctx, input.EndDate); ok {
		exp.EndDate = date
	} else {
		return
	}

	exp.Images = marshalJSONField(uploadImages(input.Images, operatorID))
	exp.Tags = marshalJSONField(input.Tags)
	exp.Languages = marshalJSONField(input.Languages)
	if input.Location != nil {
		exp.Location = marshalJSONField(input.Location)
	}
	if input.TripSteps != nil {
		exp.TripSteps = datatypes.JSON(input.TripSteps)
	}
	if input.IncludedItems != nil {
		exp.IncludedItems = marshalJSONField(input.IncludedItems)
	}
	if input.ExcludedItems != nil {
		exp.ExcludedItems = marshalJSONField(input.ExcludedItems)
	}
	if input.WhatToBring != nil {
		exp.WhatToBring = marshalJSONField(input.WhatToBring)
	}

	created, err := h.svc.Create(ctx.Request().Context(), &exp, operatorID)
	if err != nil {
		utils.HandleServiceError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"success": true, "experience": created})
}

type experiencePatchInput struct {
	TripTitle          *string              `json:"tripTitle"`
	ShortDescription   *string              `json:"shortDescription"`
	Images             []string             `json:"images"`
	Location           *models.GeoJSONPoint `json:"location"`
	Tags               []string             `json:"tags"`
	Languages          []string             `json:"languages"`
	AvailableCount     json.RawMessage      `json:"availableCount"`
	Duration           *string              `json:"duration"`
	Difficulty         *string              `json:"difficulty"`
	StartTime          *string              `json:"startTime"`
	MeetingTime        *string              `json:"meetingTime"`
	PricePerPerson     *float64             `json:"pricePerPerson"`
	CancellationPolicy *string              `json:"cancellationPolicy"`
	BookingCutoffHours *int                 `json:"bookingCutoffHours"`
	IsRecurring        *bool                `json:"isRecurring"`
	RecurringPattern   *string              `json:"recurringPattern"`
	IsUponRequest      *bool                `json:"isUponRequest"`
	StartDate          *string              `json:"startDate"`
	EndDate            *string              `json:"endDate"`
	Timezone           *string              `json:"timezone"`
	TripSteps          json.RawMessage      `json:"tripSteps"`
	IncludedItems      []string             `json:"includedItems"`
	ExcludedItems      []string             `json:"excludedItems"`
	WhatToBring        []string             `json:"whatToBring"`
	AgeNotes           *string              `json:"ageNotes"`
	AdditionalInfo     *string              `json:"additionalInfo"`
}

// Update applies a partial edit to an owned experience.
func (h *ExperienceHandler) Update(ctx iris.Context) {
	operatorID := ctx.Values().Get("userID").(uint)
	id := ctx.Params().GetUintDefault("id", 0)

	var input experiencePatchInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	patch := services.ExperiencePatch{
		TripTitle:          input.TripTitle,
		ShortDescription:   input.ShortDescription,
		Duration:           input.Duration,
		Difficulty:         input.Difficulty,
		StartTime:          input.StartTime,
		MeetingTime:        input.MeetingTime,
		PricePerPerson:     input.PricePerPerson,
		CancellationPolicy: input.CancellationPolicy,
		BookingCutoffHours: input.BookingCutoffHours,
		IsRecurring:        input.IsRecurring,
		RecurringPattern:   input.RecurringPattern,
		IsUponRequest:      input.IsUponRequest,
		Timezone:           input.Timezone,
		AgeNotes:           input.AgeNotes,
		AdditionalInfo:     input.AdditionalInfo,
	}

	if input.Images != nil {
		patch.Images = marshalJSONField(uploadImages(input.Images, operatorID))
	}
	if input.Location != nil {
		patch.Location = marshalJSONField(input.Location)
	}
	if input.Tags != nil {
		patch.Tags = marshalJSONField(input.Tags)
	}
	if input.Languages != nil {
		patch.Languages = marshalJSONField(input.Languages)
	}
	if input.TripSteps != nil {
		patch.TripSteps = datatypes.JSON(input.TripSteps)
	}
	if input.IncludedItems != nil {
		patch.IncludedItems = marshalJSONField(input.IncludedItems)
	}
	if input.ExcludedItems != nil {
		patch.ExcludedItems = marshalJSONField(input.ExcludedItems)
	}
	if input.WhatToBring != nil {
		patch.WhatToBring = marshalJSONField(input.WhatToBring)
	}

	optCount, ok := parseOptionalCount(ctx, input.AvailableCount)
	if !ok {
		return
	}
	patch.AvailableCount = optCount

	if input.StartDate != nil {
		if date, ok := parseOptionalDate(ctx, *input.StartDate); ok {
			patch.StartDate = date
		} else {
			return
		}
	}
	if input.EndDate != nil {
		if date, ok := parseOptionalDate(ctx, *input.EndDate); ok {
			patch.EndDate = date
		} else {
			return
		}
	}

	updated, err := h.svc.Update(ctx.Request().Context(), id, patch, operatorID)
	if err != nil {
		utils.HandleServiceError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"success": true, "experience": updated})
}

// Get returns one experience, publicly readable.
func (h *ExperienceHandler) Get(ctx iris.Context) {
	id := ctx.Params().GetUintDefault("id", 0)
	exp, err := h.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		utils.HandleServiceError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"success": true, "experience": exp})
}

// ListPublic returns published experiences for discovery.
func (h *ExperienceHandler) ListPublic(ctx iris.Context) {
	query := services.ExperienceListingQuery{
		Status:   models.ExperienceStatusPublished,
		Page:     ctx.URLParamIntDefault("page", 1),
		PageSize: ctx.URLParamIntDefault("limit", 10),
	}
	if v, err := ctx.URLParamFloat64("price_min"); err == nil {
		query.PriceMin = &v
	}
	if v, err := ctx.URLParamFloat64("price_max"); err == nil {
		query.PriceMax = &v
	}
	if v := ctx.URLParamUint64("operator_id"); v > 0 {
		query.OperatorID = uint(v)
	}

	result, err := h.svc.List(ctx.Request().Context(), query)
	if err != nil {
		utils.HandleServiceError(ctx, err)
		return
	}
	utils.JSONPage(ctx, result.Items, result.Page, result.PageSize, result.Total)
}

// ListMine returns the operator's own experiences, any status.
func (h *ExperienceHandler) ListMine(ctx iris.Context) {
	operatorID := ctx.Values().Get("userID").(uint)
	query := services.ExperienceListingQuery{
		OperatorID: operatorID,
		Status:     ctx.URLParam("status"),
		Page:       ctx.URLParamIntDefault("page", 1),
		PageSize:   ctx.URLParamIntDefault("limit", 20),
	}
	result, err := h.svc.List(ctx.Request().Context(), query)
	if err != nil {
		utils.HandleServiceError(ctx, err)
		return
	}
	utils.JSONPage(ctx, result.Items, result.Page, result.PageSize, result.Total)
}

// Submit sends a complete draft into review.
func (h *ExperienceHandler) Submit(ctx iris.Context) {
	operatorID := ctx.Values().Get("userID").(uint)
	id := ctx.Params().GetUintDefault("id", 0)

	exp, err := h.svc.Submit(ctx.Request().Context(), id, operatorID)
	if err != nil {
		utils.HandleServiceError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"success": true, "experience": exp})
}

// Archive soft deletes an owned experience.
func (h *ExperienceHandler) Archive(ctx iris.Context) {
	operatorID := ctx.Values().Get("userID").(uint)
	id := ctx.Params().GetUintDefault("id", 0)

	exp, err := h.svc.Archive(ctx.Request().Context(), id, operatorID)
	if err != nil {
		utils.HandleServiceError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"success": true, "experience": exp})
}

// AdminApprove publishes a submitted experience.
func (h *ExperienceHandler) AdminApprove(ctx iris.Context) {
	id := ctx.Params().GetUintDefault("id", 0)

	before, err := h.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		utils.HandleServiceError(ctx, err)
		return
	}
	exp, err := h.svc.Approve(ctx.Request().Context(), id)
	if err != nil {
		utils.HandleServiceError(ctx, err)
		return
	}
	utils.Audit(ctx, "experience.approve", "experience", id, iris.Map{"status": before.Status}, iris.Map{"status": exp.Status})
	ctx.JSON(iris.Map{"success": true, "experience": exp})
}

type rejectExperienceInput struct {
	Reason string `json:"reason" validate:"required"`
}

// AdminReject sends a submitted experience back with a reason.
func (h *ExperienceHandler) AdminReject(ctx iris.Context) {
	adminID := ctx.Values().Get("userID").(uint)
	id := ctx.Params().GetUintDefault("id", 0)

	var input rejectExperienceInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	exp, err := h.svc.Reject(ctx.Request().Context(), id, input.Reason, adminID)
	if err != nil {
		utils.HandleServiceError(ctx, err)
		return
	}
	utils.Audit(ctx, "experience.reject", "experience", id, nil, iris.Map{"status": exp.Status, "reason": input.Reason})
	ctx.JSON(iris.Map{"success": true, "experience": exp})
}

// uploadImages pushes base64 data URLs to the media store and passes hosted
// URLs through unchanged.
func uploadImages(images []string, operatorID uint) []string {
	out := make([]string, 0, len(images))
	for i, img := range images {
		if strings.HasPrefix(img, "data:") {
			publicID := fmt.Sprintf("experience-%d-%d-%d", operatorID, time.Now().Unix(), i)
			if url := storage.UploadBase64Image(img, publicID); url != "" {
				out = append(out, url)
			}
			continue
		}
		out = append(out, img)
	}
	return out
}

func marshalJSONField(v interface{}) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

// parseOptionalDate returns (nil, true) for an empty string, writing the error
// response itself when the date is malformed.
func parseOptionalDate(ctx iris.Context, value string) (*time.Time, bool) {
	if value == "" {
		return nil, true
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		utils.JSONError(ctx, iris.StatusBadRequest, "validation_error", "Invalid date format, want YYYY-MM-DD: "+value)
		return nil, false
	}
	return &t, true
}

// parseOptionalCount decodes a tri-state capacity field: absent, null
// (unlimited) or an integer.
func parseOptionalCount(ctx iris.Context, raw json.RawMessage) (services.OptionalInt, bool) {
	if raw == nil {
		return services.OptionalInt{}, true
	}
	if string(raw) == "null" {
		return services.OptionalInt{Present: true}, true
	}
	var value int
	if err := json.Unmarshal(raw, &value); err != nil || value < 0 {
		utils.JSONError(ctx, iris.StatusBadRequest, "validation_error", "availableCount must be null or a non-negative integer")
		return services.OptionalInt{}, false
	}
	return services.OptionalInt{Present: true, Value: &value}, true
}
