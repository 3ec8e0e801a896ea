package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker is implemented by optional backing services.
type HealthChecker interface {
	Name() string
	HealthCheck(ctx context.Context) error
}

func RegisterRoutes(app *fiber.App, h *Handler, checkers ...HealthChecker) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		checks := map[string]string{"snapshot": "ok"}
		status := "ok"
		code := fiber.StatusOK

		if !h.Snapshots.Initialized() {
			checks["snapshot"] = "empty"
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for _, hc := range checkers {
			checks[hc.Name()] = "ok"
			if err := hc.HealthCheck(healthCtx); err != nil {
				checks[hc.Name()] = err.Error()
				status = "degraded"
				code = fiber.StatusServiceUnavailable
			}
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	})

	v1 := app.Group("/api/v1")
	v1.Get("/assets", h.ListAssets)
	v1.Get("/pairs", h.ListPairs)
	v1.Get("/records", h.ListRecords)
	v1.Get("/averages", h.ListAverages)
}
