package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/loyalty-points-engine/internal/model"
)

// LoyaltyServiceInterface defines the interface for account-level loyalty operations.
type LoyaltyServiceInterface interface {
	Enroll(ctx context.Context, req *model.EnrollRequest) (*model.Account, error)
	EarnPoints(ctx context.Context, req *model.EarnRequest) (*model.EarnResult, error)
	RedeemPoints(ctx context.Context, req *model.RedeemRequest) (*model.RedeemResult, error)
	GetAccount(ctx context.Context, customerID string, programID int64) (*model.AccountSummary, error)
	ListTransactions(ctx context.Context, customerID string, programID int64, limit int) ([]model.Transaction, error)
	DeactivateAccount(ctx context.Context, customerID string, programID int64) error
}

// LoyaltyHandler handles HTTP requests for loyalty accounts.
type LoyaltyHandler struct {
	service   LoyaltyServiceInterface
	validator *validator.Validate
}

// NewLoyaltyHandler creates a new LoyaltyHandler with the given service and validator.
func NewLoyaltyHandler(svc LoyaltyServiceInterface, v *validator.Validate) *LoyaltyHandler {
	return &LoyaltyHandler{service: svc, validator: v}
}

// Enroll handles POST /api/loyalty/accounts.
func (h *LoyaltyHandler) Enroll(c *fiber.Ctx) error {
	var req model.EnrollRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	account, err := h.service.Enroll(c.Context(), &req)
	if err != nil {
		return respondError(c, err, "failed to enroll customer", func(e *zerolog.Event) *zerolog.Event {
			return e.Str("customer_id", req.CustomerID).Int64("program_id", req.ProgramID)
		})
	}

	log.Info().
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Str("customer_id", account.CustomerID).
		Int64("program_id", account.ProgramID).
		Msg("customer enrolled")

	return c.Status(fiber.StatusCreated).JSON(account)
}

// EarnPoints handles POST /api/loyalty/earn, called by order processing
// when an order is finalized.
func (h *LoyaltyHandler) EarnPoints(c *fiber.Ctx) error {
	var req model.EarnRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	result, err := h.service.EarnPoints(c.Context(), &req)
	if err != nil {
		return respondError(c, err, "failed to earn points", func(e *zerolog.Event) *zerolog.Event {
			return e.Str("customer_id", req.CustomerID).Int64("program_id", req.ProgramID).Str("source", string(req.Source))
		})
	}

	event := log.Info().
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Str("customer_id", req.CustomerID).
		Int64("program_id", req.ProgramID).
		Str("points_earned", result.PointsEarned.String()).
		Str("new_balance", result.NewBalance.String())
	if result.TierUpgraded {
		event = event.Str("new_tier", result.NewTier.Name)
	}
	event.Msg("points earned")

	return c.JSON(result)
}

// RedeemPoints handles POST /api/loyalty/redeem, called by checkout.
func (h *LoyaltyHandler) RedeemPoints(c *fiber.Ctx) error {
	var req model.RedeemRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	result, err := h.service.RedeemPoints(c.Context(), &req)
	if err != nil {
		return respondError(c, err, "failed to redeem points", func(e *zerolog.Event) *zerolog.Event {
			return e.Str("customer_id", req.CustomerID).Int64("program_id", req.ProgramID).Str("redemption_type", string(req.RedemptionType))
		})
	}

	log.Info().
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Str("customer_id", req.CustomerID).
		Int64("program_id", req.ProgramID).
		Str("points_redeemed", result.PointsRedeemed.String()).
		Str("new_balance", result.NewBalance.String()).
		Msg("points redeemed")

	return c.JSON(result)
}

// GetAccount handles GET /api/loyalty/accounts/:program_id/:customer_id.
func (h *LoyaltyHandler) GetAccount(c *fiber.Ctx) error {
	programID, customerID, err := accountKey(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	summary, err := h.service.GetAccount(c.Context(), customerID, programID)
	if err != nil {
		return respondError(c, err, "failed to get account", func(e *zerolog.Event) *zerolog.Event {
			return e.Str("customer_id", customerID).Int64("program_id", programID)
		})
	}
	return c.JSON(summary)
}

// ListTransactions handles GET /api/loyalty/accounts/:program_id/:customer_id/transactions.
// The optional limit query parameter caps the number of entries returned.
func (h *LoyaltyHandler) ListTransactions(c *fiber.Ctx) error {
	programID, customerID, err := accountKey(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: limit must not be negative"})
	}

	txns, err := h.service.ListTransactions(c.Context(), customerID, programID, limit)
	if err != nil {
		return respondError(c, err, "failed to list transactions", func(e *zerolog.Event) *zerolog.Event {
			return e.Str("customer_id", customerID).Int64("program_id", programID)
		})
	}
	return c.JSON(fiber.Map{"transactions": txns})
}

// DeactivateAccount handles DELETE /api/loyalty/accounts/:program_id/:customer_id.
// The account is soft-deactivated; its balance and history are kept.
func (h *LoyaltyHandler) DeactivateAccount(c *fiber.Ctx) error {
	programID, customerID, err := accountKey(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if err := h.service.DeactivateAccount(c.Context(), customerID, programID); err != nil {
		return respondError(c, err, "failed to deactivate account", func(e *zerolog.Event) *zerolog.Event {
			return e.Str("customer_id", customerID).Int64("program_id", programID)
		})
	}

	log.Info().
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Str("customer_id", customerID).
		Int64("program_id", programID).
		Msg("account deactivated")

	return c.SendStatus(fiber.StatusNoContent)
}
