package utils

import (
	"github.com/go-playground/validator/v10"
	"github.com/kataras/iris/v12"

	"marketplace-server/services"
)

type PageMeta struct {
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Total   int64 `json:"total"`
}

func JSONPage(ctx iris.Context, data interface{}, page, perPage int, total int64) {
	ctx.JSON(iris.Map{
		"data":  data,
		"meta":  PageMeta{Page: page, PerPage: perPage, Total: total},
		"links": iris.Map{},
	})
}

func JSONError(ctx iris.Context, status int, code, message string) {
	ctx.StatusCode(status)
	ctx.JSON(iris.Map{"error": code, "message": message})
}

func CreateNotFound(ctx iris.Context) {
	JSONError(ctx, iris.StatusNotFound, "not_found", "Resource not found")
}

func CreateInternalServerError(ctx iris.Context) {
	JSONError(ctx, iris.StatusInternalServerError, "internal_error", "An internal server error occurred")
}

// HandleValidationErrors shapes ReadJSON/validator failures into a 400 with a
// per-field error list.
func HandleValidationErrors(err error, ctx iris.Context) {
	if errs, ok := err.(validator.ValidationErrors); ok {
		fields := make([]iris.Map, 0, len(errs))
		for _, fieldErr := range errs {
			fields = append(fields, iris.Map{
				"field": fieldErr.Field(),
				"tag":   fieldErr.Tag(),
				"param": fieldErr.Param(),
			})
		}
		ctx.StatusCode(iris.StatusBadRequest)
		ctx.JSON(iris.Map{"error": "validation_error", "fields": fields})
		return
	}
	JSONError(ctx, iris.StatusBadRequest, "bad_request", err.Error())
}

// HandleServiceError maps a service error kind to its HTTP status. Unknown
// errors become a 500 without leaking their message.
func HandleServiceError(ctx iris.Context, err error) {
	switch {
	case services.IsNotFound(err):
		JSONError(ctx, iris.StatusNotFound, "not_found", err.Error())
	case services.IsValidation(err):
		JSONError(ctx, iris.StatusBadRequest, "validation_error", err.Error())
	case services.IsConflict(err):
		JSONError(ctx, iris.StatusConflict, "conflict", err.Error())
	case services.IsUnauthorized(err):
		JSONError(ctx, iris.StatusUnauthorized, "unauthorized", err.Error())
	case services.IsForbidden(err):
		JSONError(ctx, iris.StatusForbidden, "forbidden", err.Error())
	default:
		CreateInternalServerError(ctx)
	}
}
