package handler

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/loyalty-points-engine/internal/model"
)

// ProgramServiceInterface defines the interface for program administration.
type ProgramServiceInterface interface {
	CreateProgram(ctx context.Context, req *model.CreateProgramRequest) (*model.ProgramResponse, error)
	GetProgram(ctx context.Context, id int64) (*model.ProgramResponse, error)
	AppendTier(ctx context.Context, programID int64, req *model.CreateTierRequest) (*model.Tier, error)
	DeactivateProgram(ctx context.Context, id int64) error
}

// ExpirationProcessor runs an expiration sweep.
type ExpirationProcessor interface {
	ProcessExpirations(ctx context.Context, now time.Time) (*model.ExpirationResult, error)
}

// ProgramHandler handles HTTP requests for programs, tiers and expiration sweeps.
type ProgramHandler struct {
	service   ProgramServiceInterface
	sweeper   ExpirationProcessor
	validator *validator.Validate
	now       func() time.Time
}

// NewProgramHandler creates a new ProgramHandler.
func NewProgramHandler(svc ProgramServiceInterface, sweeper ExpirationProcessor, v *validator.Validate) *ProgramHandler {
	return &ProgramHandler{service: svc, sweeper: sweeper, validator: v, now: time.Now}
}

// CreateProgram handles POST /api/programs.
func (h *ProgramHandler) CreateProgram(c *fiber.Ctx) error {
	var req model.CreateProgramRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	program, err := h.service.CreateProgram(c.Context(), &req)
	if err != nil {
		return respondError(c, err, "failed to create program", func(e *zerolog.Event) *zerolog.Event {
			return e.Str("program_name", req.Name)
		})
	}

	log.Info().
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Int64("program_id", program.ID).
		Int("tiers", len(program.Tiers)).
		Msg("program created")

	return c.Status(fiber.StatusCreated).JSON(program)
}

// GetProgram handles GET /api/programs/:id.
func (h *ProgramHandler) GetProgram(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: id must be a positive integer"})
	}

	program, err := h.service.GetProgram(c.Context(), int64(id))
	if err != nil {
		return respondError(c, err, "failed to get program", func(e *zerolog.Event) *zerolog.Event {
			return e.Int("program_id", id)
		})
	}
	return c.JSON(program)
}

// AppendTier handles POST /api/programs/:id/tiers.
func (h *ProgramHandler) AppendTier(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: id must be a positive integer"})
	}

	var req model.CreateTierRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	tier, err := h.service.AppendTier(c.Context(), int64(id), &req)
	if err != nil {
		return respondError(c, err, "failed to append tier", func(e *zerolog.Event) *zerolog.Event {
			return e.Int("program_id", id).Str("tier_name", req.Name)
		})
	}

	log.Info().
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Int("program_id", id).
		Str("tier_name", tier.Name).
		Str("min_points_required", tier.MinPointsRequired.String()).
		Msg("tier appended")

	return c.Status(fiber.StatusCreated).JSON(tier)
}

// DeactivateProgram handles DELETE /api/programs/:id.
func (h *ProgramHandler) DeactivateProgram(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: id must be a positive integer"})
	}

	if err := h.service.DeactivateProgram(c.Context(), int64(id)); err != nil {
		return respondError(c, err, "failed to deactivate program", func(e *zerolog.Event) *zerolog.Event {
			return e.Int("program_id", id)
		})
	}

	log.Info().
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Int("program_id", id).
		Msg("program deactivated")

	return c.SendStatus(fiber.StatusNoContent)
}

// ProcessExpirations handles POST /api/loyalty/expirations. It runs one
// sweep synchronously using the server clock.
func (h *ProgramHandler) ProcessExpirations(c *fiber.Ctx) error {
	result, err := h.sweeper.ProcessExpirations(c.Context(), h.now())
	if err != nil {
		return respondError(c, err, "expiration sweep failed", nil)
	}

	log.Info().
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Int("accounts_affected", result.AccountsAffected).
		Str("points_expired", result.TotalPointsExpired.String()).
		Int("failed", result.Failed).
		Msg("expiration sweep completed")

	return c.JSON(result)
}
