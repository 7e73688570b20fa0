package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"miqat/internal/models"
	"miqat/internal/services"
)

type Handler struct {
	engine *services.Engine
	logger *zap.Logger
}

func NewHandler(engine *services.Engine, logger *zap.Logger) *Handler {
	return &Handler{
		engine: engine,
		logger: logger,
	}
}

// GetLocation handles GET /api/v1/location
func (h *Handler) GetLocation(c *fiber.Ctx) error {
	sample, advisory, loading := h.engine.Resolver().Snapshot()
	place := h.engine.PlaceName(c.Context(), sample.Coords)

	return c.JSON(fiber.Map{
		"sample":   sample,
		"place":    place,
		"advisory": advisory,
		"loading":  loading,
	})
}

// RefreshLocation handles POST /api/v1/location/refresh
func (h *Handler) RefreshLocation(c *fiber.Ctx) error {
	h.logger.Info("Manual location refresh requested")
	h.engine.Resolver().Resolve(c.UserContext())

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "resolving",
	})
}

// GetSchedule handles GET /api/v1/schedule?date=YYYY-MM-DD
func (h *Handler) GetSchedule(c *fiber.Ctx) error {
	date := h.engine.ViewedDate()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "date must be YYYY-MM-DD",
			})
		}
		date = parsed
	}

	day, err := h.engine.Day(c.Context(), date)
	if err != nil {
		h.logger.Error("Failed to compute schedule",
			zap.Time("date", date),
			zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "schedule unavailable",
		})
	}

	return c.JSON(day)
}

// GetScheduleState handles GET /api/v1/schedule/state
func (h *Handler) GetScheduleState(c *fiber.Ctx) error {
	day := h.engine.CurrentDay()
	if day == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "schedule not computed yet",
		})
	}

	return c.JSON(fiber.Map{
		"date":  h.engine.ViewedDate(),
		"state": h.engine.State(),
	})
}

// GetCalendar handles GET /api/v1/calendar
func (h *Handler) GetCalendar(c *fiber.Ctx) error {
	return c.JSON(h.engine.CalendarLabel())
}

// GetForbidden handles GET /api/v1/forbidden
func (h *Handler) GetForbidden(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"windows": h.engine.Forbidden(),
	})
}

// GetSettings handles GET /api/v1/settings
func (h *Handler) GetSettings(c *fiber.Ctx) error {
	sample, _, _ := h.engine.Resolver().Snapshot()
	return c.JSON(h.engine.Settings().Current(sample.Coords))
}

// PutSettings handles PUT /api/v1/settings
func (h *Handler) PutSettings(c *fiber.Ctx) error {
	var body struct {
		School     models.School     `json:"school"`
		Convention models.Convention `json:"convention"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid settings payload",
		})
	}

	if body.School != "" {
		if err := h.engine.Settings().SetSchool(body.School); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	}
	if body.Convention != "" {
		if err := h.engine.Settings().SetConvention(body.Convention); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	}

	sample, _, _ := h.engine.Resolver().Snapshot()
	return c.JSON(h.engine.Settings().Current(sample.Coords))
}

// GetHealth handles GET /api/v1/health
func (h *Handler) GetHealth(c *fiber.Ctx) error {
	_, advisory, loading := h.engine.Resolver().Snapshot()

	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now(),
		"uptime":    time.Since(startTime).String(),
		"advisory":  advisory,
		"resolving": loading,
	})
}

var startTime = time.Now()
