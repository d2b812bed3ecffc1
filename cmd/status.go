package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/snapgate/snapgate/internal/auth"
	"github.com/snapgate/snapgate/pkg/browserpool"
)

func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pool status of a running instance",
		Long:  `Query the pool stats endpoint of a running snapgate instance.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}

	return cmd
}

func runStatus() error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodGet, "http://localhost"+config.HTTPAddress+"/pool/stats", nil)
	if err != nil {
		return err
	}

	if config.AdminAPIPrivateKey != "" {
		signer, err := auth.NewRequestSigner(config.AdminAPIPrivateKey)
		if err != nil {
			return fmt.Errorf("invalid ADMIN_API_PRIVATE_KEY: %w", err)
		}
		headers, err := signer.SignRequest(http.MethodGet, "/pool/stats", nil)
		if err != nil {
			return fmt.Errorf("could not sign request: %w", err)
		}
		for name, value := range headers {
			req.Header.Set(name, value)
		}
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Println("❌ Snapgate is not reachable")
		fmt.Printf("   %v\n", err)
		return nil
	}
	defer resp.Body.Close()

	var stats browserpool.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("could not decode pool stats: %w", err)
	}

	fmt.Println("✅ Snapgate is running")
	fmt.Printf("   Sessions created:   %d\n", stats.Created)
	fmt.Printf("   Sessions destroyed: %d\n", stats.Destroyed)
	fmt.Printf("   Borrowed/returned:  %d/%d\n", stats.Borrowed, stats.Returned)
	fmt.Printf("   Evicted:            %d\n", stats.Evicted)
	fmt.Printf("   Health failures:    %d\n", stats.HealthFailures)
	fmt.Printf("   Idle / in use:      %d/%d\n", stats.PoolSize, stats.InUse)

	return nil
}
