package controllers

import (
	"github.com/go-rod/rod/lib/launcher"
	"github.com/gofiber/fiber/v3"

	"github.com/snapgate/snapgate/pkg/browserpool"
	"github.com/snapgate/snapgate/pkg/domain"
)

const browserInstallMessage = "No chromium binary found. Install chromium or google-chrome, " +
	"or set WEBDRIVER_BIN_PATH to an existing browser binary."

// PoolController serves the operational inspection endpoints. Request
// gating happens in the server layer, not here.
type PoolController struct {
	pool  *browserpool.Pool
	flags domain.FeatureFlagManager
}

type PoolControllerDependencies struct {
	Pool         *browserpool.Pool
	FeatureFlags domain.FeatureFlagManager
}

func NewPoolController(deps PoolControllerDependencies) *PoolController {
	return &PoolController{
		pool:  deps.Pool,
		flags: deps.FeatureFlags,
	}
}

// GetStats returns the pool counter snapshot as JSON.
func (c *PoolController) GetStats(ctx fiber.Ctx) error {
	return ctx.JSON(c.pool.Stats())
}

type webdriverValidation struct {
	BrowserAvailable  bool   `json:"browser_available"`
	BrowserPath       string `json:"browser_path,omitempty"`
	IAMAuthEnabled    bool   `json:"iam_auth_enabled"`
	RecommendedAction string `json:"recommended_action,omitempty"`
}

// ValidateWebdriver reports whether the screenshot runtime is usable
// and whether IAM auth is feature-flag enabled.
func (c *PoolController) ValidateWebdriver(ctx fiber.Ctx) error {
	result := webdriverValidation{
		IAMAuthEnabled: c.flags != nil && c.flags.IsEnabled(domain.FeatureAWSIAMDBAuth),
	}

	if path, found := launcher.LookPath(); found {
		result.BrowserAvailable = true
		result.BrowserPath = path
	} else {
		result.RecommendedAction = browserInstallMessage
	}

	return ctx.JSON(result)
}
