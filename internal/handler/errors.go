package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/loyalty-points-engine/internal/model"
	"github.com/fairyhunter13/loyalty-points-engine/internal/service"
)

// Sentinels whose message is safe to return to the client, checked in order.
var clientErrors = []struct {
	err    error
	status int
}{
	{service.ErrAccountInactive, fiber.StatusConflict},
	{service.ErrProgramInactive, fiber.StatusConflict},
	{service.ErrAccountExists, fiber.StatusConflict},
	{service.ErrAccountNotFound, fiber.StatusNotFound},
	{service.ErrProgramNotFound, fiber.StatusNotFound},
	{service.ErrInsufficientPoints, fiber.StatusUnprocessableEntity},
	{service.ErrInvalidAmount, fiber.StatusBadRequest},
	{service.ErrInvalidSource, fiber.StatusBadRequest},
	{service.ErrInvalidRedemptionType, fiber.StatusBadRequest},
	{service.ErrTierThreshold, fiber.StatusBadRequest},
	{service.ErrInvalidRequest, fiber.StatusBadRequest},
}

// errorResponse maps a service error to a status code and client message.
// Anything outside the taxonomy is a 500 with a generic message.
func errorResponse(err error) (int, string) {
	for _, ce := range clientErrors {
		if errors.Is(err, ce.err) {
			return ce.status, ce.err.Error()
		}
	}
	switch {
	case errors.Is(err, service.ErrConflict):
		return fiber.StatusConflict, "concurrent update, please retry"
	case errors.Is(err, service.ErrNotFound):
		return fiber.StatusNotFound, "not found"
	case errors.Is(err, service.ErrValidation):
		return fiber.StatusBadRequest, "invalid request"
	}
	return fiber.StatusInternalServerError, "internal server error"
}

// respondError writes the mapped error body. Server errors are logged with
// the request context plus any domain fields supplied by the caller.
func respondError(c *fiber.Ctx, err error, msg string, fields func(*zerolog.Event) *zerolog.Event) error {
	status, body := errorResponse(err)
	if status >= fiber.StatusInternalServerError || status == fiber.StatusConflict {
		event := log.Error()
		if status < fiber.StatusInternalServerError {
			event = log.Warn()
		}
		event = event.
			Err(err).
			Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
			Str("method", c.Method()).
			Str("path", c.Path())
		if fields != nil {
			event = fields(event)
		}
		event.Msg(msg)
	}
	return c.Status(status).JSON(fiber.Map{"error": body})
}

// formatValidationError converts validator errors to client-facing messages.
// Field names are the JSON names registered by the validator package.
func formatValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			field := fe.Field()

			switch fe.Tag() {
			case "required":
				return "invalid request: " + field + " is required"
			case "notblank":
				return "invalid request: " + field + " cannot be whitespace only"
			case "max":
				return "invalid request: " + field + " exceeds maximum length of " + fe.Param()
			case "min":
				return "invalid request: " + field + " must contain at least " + fe.Param() + " item(s)"
			case "gt":
				return "invalid request: " + field + " must be greater than " + fe.Param()
			case "gte":
				return "invalid request: " + field + " must be at least " + fe.Param()
			case "lte":
				return "invalid request: " + field + " must be at most " + fe.Param()
			case "earn_source":
				return fmt.Sprintf("invalid request: %s must be one of %s", field, joinSources(true))
			case "loyalty_source":
				return fmt.Sprintf("invalid request: %s must be one of %s", field, joinSources(false))
			case "points_scale":
				return "invalid request: " + field + " must have at most " + fe.Param() + " decimal places"
			case "redemption_type":
				return "invalid request: " + field + " must be one of discount, free_item, free_delivery, cashback, voucher"
			default:
				return "invalid request: " + field + " is invalid"
			}
		}
	}
	return "invalid request"
}

func joinSources(earnableOnly bool) string {
	all := []model.Source{
		model.SourceOrder,
		model.SourceBirthday,
		model.SourceReferral,
		model.SourceSignup,
		model.SourceReview,
		model.SourcePromotion,
		model.SourceManualAdjustment,
		model.SourceExpiration,
		model.SourceTierProgression,
	}
	names := make([]string, 0, len(all))
	for _, s := range all {
		if earnableOnly && !s.Earnable() {
			continue
		}
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

// accountKey reads the :program_id and :customer_id route params.
func accountKey(c *fiber.Ctx) (int64, string, error) {
	programID, err := strconv.ParseInt(c.Params("program_id"), 10, 64)
	if err != nil || programID <= 0 {
		return 0, "", errors.New("invalid request: program_id must be a positive integer")
	}
	customerID := model.NormalizeCustomerID(c.Params("customer_id"))
	if customerID == "" {
		return 0, "", errors.New("invalid request: customer_id is required")
	}
	return programID, customerID, nil
}
