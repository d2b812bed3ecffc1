package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/snapgate/snapgate/internal/auth"
	"github.com/snapgate/snapgate/internal/controllers"
	"github.com/snapgate/snapgate/internal/metrics"
	"github.com/snapgate/snapgate/pkg/awsauth"
	"github.com/snapgate/snapgate/pkg/browserpool"
	"github.com/snapgate/snapgate/pkg/domain"
	"github.com/snapgate/snapgate/pkg/screenshot"
)

// Dependencies contains all wired service dependencies
type Dependencies struct {
	FeatureFlags    domain.StaticFeatureFlags
	CredentialCache *awsauth.CredentialCache
	AuthEngine      *awsauth.Engine
	Pool            *browserpool.Pool
	ScreenshotDeps  screenshot.Dependencies
	PoolController  *controllers.PoolController
	Registry        *prometheus.Registry
	Verifier        *auth.SignatureVerifier
}

type DependencyConfig struct {
	Config        *Config
	Authenticator screenshot.Authenticator
}

// BuildDependencies creates and wires up the auth engine, the shared
// browser pool and the operational controller.
func BuildDependencies(ctx context.Context, cfg DependencyConfig) (*Dependencies, error) {
	log.Info().Msg("Building service dependencies")

	flags := cfg.Config.FeatureFlags()

	clients := awsauth.NewSDKClients()
	cache := awsauth.NewCredentialCache(clients.STS)
	engine := awsauth.NewEngine(awsauth.EngineDependencies{
		Cache:        cache,
		Clients:      clients,
		FeatureFlags: flags,
	})

	registry := prometheus.NewRegistry()
	poolMetrics := metrics.NewPoolMetrics(registry)

	factory := browserpool.NewRodFactory(browserpool.RodOptions{
		BinPath:   cfg.Config.WebdriverBinPath,
		NoSandbox: cfg.Config.WebdriverNoSandbox,
	})
	pool := browserpool.Shared(factory, cfg.Config.BrowserPoolConfig(),
		browserpool.WithRecorder(poolMetrics))

	poolController := controllers.NewPoolController(controllers.PoolControllerDependencies{
		Pool:         pool,
		FeatureFlags: flags,
	})

	var verifier *auth.SignatureVerifier
	if cfg.Config.AdminAPIPublicKey != "" {
		var err error
		verifier, err = auth.NewSignatureVerifier(cfg.Config.AdminAPIPublicKey)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_API_PUBLIC_KEY: %w", err)
		}
		log.Info().Msg("Admin endpoint request signing enabled")
	}

	log.Info().Msg("Service dependencies built successfully")

	return &Dependencies{
		FeatureFlags:    flags,
		CredentialCache: cache,
		AuthEngine:      engine,
		Pool:            pool,
		ScreenshotDeps: screenshot.Dependencies{
			Pool:  pool,
			Auth:  cfg.Authenticator,
			Waits: cfg.Config.WaitConfig(),
		},
		PoolController: poolController,
		Registry:       registry,
		Verifier:       verifier,
	}, nil
}
