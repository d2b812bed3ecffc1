package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snapgate/snapgate/internal/auth"
	"github.com/snapgate/snapgate/internal/controllers"
	"github.com/snapgate/snapgate/internal/middlewares"
	"github.com/snapgate/snapgate/internal/version"
)

type HTTPServerDependencies struct {
	PoolController *controllers.PoolController
	Registry       *prometheus.Registry

	// Verifier, when set, gates the pool and webdriver endpoints
	// behind signed requests. Health and metrics stay open.
	Verifier *auth.SignatureVerifier
}

// NewHTTPServer wires the operational HTTP surface: health, pool
// stats, webdriver validation and prometheus metrics.
func NewHTTPServer(ctx context.Context, deps HTTPServerDependencies) *fiber.App {
	router := fiber.New(fiber.Config{
		AppName: "snapgate",
	})

	router.Use(cors.New())
	router.Use(logger.New())

	router.Get("/health", func(c fiber.Ctx) error {
		info := version.Get()
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":     "healthy",
			"service":    "snapgate",
			"version":    info.Version,
			"go_version": info.GoVersion,
			"platform":   info.Platform,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		})
	})

	if deps.Verifier != nil {
		signed := middlewares.APISignatureMiddleware(deps.Verifier)
		router.Get("/pool/stats", deps.PoolController.GetStats, signed)
		router.Get("/webdriver/validate", deps.PoolController.ValidateWebdriver, signed)
	} else {
		router.Get("/pool/stats", deps.PoolController.GetStats)
		router.Get("/webdriver/validate", deps.PoolController.ValidateWebdriver)
	}

	handler := promhttp.Handler()
	if deps.Registry != nil {
		handler = promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})
	}
	router.Get("/metrics", adaptor.HTTPHandler(handler))

	return router
}
