package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Pinger is an interface for health check ping operations.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SweepReporter exposes when the expiration sweeper last completed.
type SweepReporter interface {
	LastSweep() time.Time
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	pool    Pinger
	sweeper SweepReporter
}

// NewHealthHandler creates a new HealthHandler. sweeper may be nil when the
// background sweeper is disabled.
func NewHealthHandler(pool Pinger, sweeper SweepReporter) *HealthHandler {
	return &HealthHandler{pool: pool, sweeper: sweeper}
}

// Check pings the database.
// Returns 200 OK with {"status": "healthy"} when database is reachable, plus
// the last completed expiration sweep if one has run.
// Returns 503 Service Unavailable with {"status": "unhealthy", "error": "..."} when database is unreachable.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	if err := h.pool.Ping(c.Context()); err != nil {
		log.Error().Err(err).Msg("health check failed: database unreachable")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  "database connection failed",
		})
	}

	body := fiber.Map{"status": "healthy"}
	if h.sweeper != nil {
		if last := h.sweeper.LastSweep(); !last.IsZero() {
			body["last_expiration_sweep"] = last.UTC().Format(time.RFC3339)
		}
	}
	return c.JSON(body)
}
