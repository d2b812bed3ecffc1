package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/snapgate/snapgate/pkg/browserpool"
	"github.com/snapgate/snapgate/pkg/domain"
	"github.com/snapgate/snapgate/pkg/screenshot"
)

// Config holds all service configuration
type Config struct {
	HTTPAddress string

	// Browser runtime
	WebdriverBinPath   string
	WebdriverNoSandbox bool

	// Pool bounds (WEBDRIVER_POOL.*)
	Pool PoolConfig

	// Screenshot waits (SCREENSHOT_*)
	Screenshot ScreenshotConfig

	// Feature flags
	AWSIAMDBAuth bool

	// Admin endpoint request signing (base64 ed25519 keys). When the
	// public key is empty the endpoints are unauthenticated.
	AdminAPIPublicKey  string
	AdminAPIPrivateKey string
}

type PoolConfig struct {
	MaxPoolSize          int
	MaxAgeSeconds        int
	MaxUsageCount        int
	IdleTimeoutSeconds   int
	HealthCheckInterval  int
	CreateTimeoutSeconds int
}

type ScreenshotConfig struct {
	SeleniumHeadstart       int
	LocateWait              int
	LoadWait                int
	SeleniumAnimationWait   int
	ReplaceUnexpectedErrors bool
}

// LoadConfig loads configuration from files and environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Explicit mappings keep the externally documented variable names
	// stable regardless of the struct layout.
	envMappings := map[string]string{
		"HTTPAddress":                        "HTTP_ADDRESS",
		"WebdriverBinPath":                   "WEBDRIVER_BIN_PATH",
		"WebdriverNoSandbox":                 "WEBDRIVER_NO_SANDBOX",
		"Pool.MaxPoolSize":                   "WEBDRIVER_POOL_MAX_POOL_SIZE",
		"Pool.MaxAgeSeconds":                 "WEBDRIVER_POOL_MAX_AGE_SECONDS",
		"Pool.MaxUsageCount":                 "WEBDRIVER_POOL_MAX_USAGE_COUNT",
		"Pool.IdleTimeoutSeconds":            "WEBDRIVER_POOL_IDLE_TIMEOUT_SECONDS",
		"Pool.HealthCheckInterval":           "WEBDRIVER_POOL_HEALTH_CHECK_INTERVAL",
		"Pool.CreateTimeoutSeconds":          "WEBDRIVER_POOL_CREATE_TIMEOUT_SECONDS",
		"Screenshot.SeleniumHeadstart":       "SCREENSHOT_SELENIUM_HEADSTART",
		"Screenshot.LocateWait":              "SCREENSHOT_LOCATE_WAIT",
		"Screenshot.LoadWait":                "SCREENSHOT_LOAD_WAIT",
		"Screenshot.SeleniumAnimationWait":   "SCREENSHOT_SELENIUM_ANIMATION_WAIT",
		"Screenshot.ReplaceUnexpectedErrors": "SCREENSHOT_REPLACE_UNEXPECTED_ERRORS",
		"AWSIAMDBAuth":                       domain.FeatureAWSIAMDBAuth,
		"AdminAPIPublicKey":                  "ADMIN_API_PUBLIC_KEY",
		"AdminAPIPrivateKey":                 "ADMIN_API_PRIVATE_KEY",
	}

	for configKey, envVar := range envMappings {
		if err := v.BindEnv(configKey, envVar); err != nil {
			log.Warn().Err(err).Msgf("Failed to bind environment variable %s for %s", envVar, configKey)
		}
	}

	v.SetConfigName("snapgate_config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.snapgate")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("Config file not found, using environment variables and defaults")
	} else {
		log.Info().Msgf("Using config file: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTPAddress", ":8088")

	v.SetDefault("Pool.MaxPoolSize", 5)
	v.SetDefault("Pool.MaxAgeSeconds", 3600)
	v.SetDefault("Pool.MaxUsageCount", 50)
	v.SetDefault("Pool.IdleTimeoutSeconds", 300)
	v.SetDefault("Pool.HealthCheckInterval", 60)
	v.SetDefault("Pool.CreateTimeoutSeconds", 30)

	v.SetDefault("Screenshot.SeleniumHeadstart", 3)
	v.SetDefault("Screenshot.LocateWait", 10)
	v.SetDefault("Screenshot.LoadWait", 60)
	v.SetDefault("Screenshot.SeleniumAnimationWait", 5)
	v.SetDefault("Screenshot.ReplaceUnexpectedErrors", false)

	v.SetDefault("AWSIAMDBAuth", false)
}

func validateConfig(config *Config) error {
	if config.Pool.MaxPoolSize <= 0 {
		return fmt.Errorf("WEBDRIVER_POOL_MAX_POOL_SIZE must be positive, got %d", config.Pool.MaxPoolSize)
	}
	if config.Pool.CreateTimeoutSeconds <= 0 {
		return fmt.Errorf("WEBDRIVER_POOL_CREATE_TIMEOUT_SECONDS must be positive, got %d", config.Pool.CreateTimeoutSeconds)
	}
	return nil
}

// PoolConfig converts the duration fields into the pool's config.
func (c *Config) BrowserPoolConfig() browserpool.Config {
	return browserpool.Config{
		MaxPoolSize:         c.Pool.MaxPoolSize,
		MaxAge:              time.Duration(c.Pool.MaxAgeSeconds) * time.Second,
		MaxUseCount:         c.Pool.MaxUsageCount,
		IdleTimeout:         time.Duration(c.Pool.IdleTimeoutSeconds) * time.Second,
		HealthCheckInterval: time.Duration(c.Pool.HealthCheckInterval) * time.Second,
		CreateTimeout:       time.Duration(c.Pool.CreateTimeoutSeconds) * time.Second,
	}
}

// WaitConfig converts the screenshot settings into recipe waits.
func (c *Config) WaitConfig() screenshot.WaitConfig {
	return screenshot.WaitConfig{
		Headstart:               time.Duration(c.Screenshot.SeleniumHeadstart) * time.Second,
		LocateWait:              time.Duration(c.Screenshot.LocateWait) * time.Second,
		LoadWait:                time.Duration(c.Screenshot.LoadWait) * time.Second,
		AnimationWait:           time.Duration(c.Screenshot.SeleniumAnimationWait) * time.Second,
		ReplaceUnexpectedErrors: c.Screenshot.ReplaceUnexpectedErrors,
	}
}

// FeatureFlags builds the flag manager handed to the auth engine.
func (c *Config) FeatureFlags() domain.StaticFeatureFlags {
	return domain.StaticFeatureFlags{
		domain.FeatureAWSIAMDBAuth: c.AWSIAMDBAuth,
	}
}
