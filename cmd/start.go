package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/snapgate/snapgate/internal/server"
	"github.com/snapgate/snapgate/pkg/browserpool"
)

func NewStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the snapgate service",
		Long:  `Start the operational HTTP surface and the shared browser pool.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			return runStart()
		},
	}

	return cmd
}

func runStart() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info().Msg("Starting snapgate service")

	config, err := LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	deps, err := BuildDependencies(ctx, DependencyConfig{
		Config:        config,
		Authenticator: nil, // wired by the embedding application
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build service dependencies")
	}
	defer browserpool.ResetShared()

	app := server.NewHTTPServer(ctx, server.HTTPServerDependencies{
		PoolController: deps.PoolController,
		Registry:       deps.Registry,
		Verifier:       deps.Verifier,
	})

	log.Info().Str("address", config.HTTPAddress).Msg("Operational HTTP surface ready")

	if err := app.Listen(config.HTTPAddress, fiber.ListenConfig{
		GracefulContext:       ctx,
		DisableStartupMessage: true,
	}); err != nil {
		log.Error().Err(err).Msg("HTTP server failed")
	}

	log.Info().Msg("Snapgate service stopped")
	return nil
}
