package screenshot

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/snapgate/snapgate/pkg/browserpool"
	"github.com/snapgate/snapgate/pkg/domain"
)

// DashboardScreenshot captures a dashboard in standalone-report mode.
type DashboardScreenshot struct {
	recipe
}

func NewDashboardScreenshot(deps Dependencies, url string) *DashboardScreenshot {
	return &DashboardScreenshot{recipe: newRecipe(deps, url, domain.DefaultWindowSize)}
}

func NewDashboardScreenshotWithWindow(deps Dependencies, url string, window domain.WindowSize) *DashboardScreenshot {
	return &DashboardScreenshot{recipe: newRecipe(deps, url, window)}
}

// GetScreenshot captures the standalone dashboard body. A dashboard
// with no charts is accepted: when chart containers never appear, a
// zero-timeout check for the grid container decides between an empty
// dashboard and a real failure.
func (d *DashboardScreenshot) GetScreenshot(ctx context.Context, user domain.ScreenshotUser) ([]byte, error) {
	return d.run(ctx, user, func(driver browserpool.Driver) ([]byte, error) {
		if err := driver.WaitVisible(standaloneSelector, d.waits.LocateWait); err != nil {
			return nil, domain.WrapEngineError(domain.ErrorCodeScreenshotTimeout,
				"standalone dashboard container did not appear", err)
		}

		if err := driver.WaitVisible(chartContainerSelector, d.waits.LocateWait); err != nil {
			if gridErr := driver.WaitVisible(gridContainerSelector, 0); gridErr != nil {
				return nil, domain.WrapEngineError(domain.ErrorCodeScreenshotTimeout,
					"dashboard charts did not become visible", err)
			}
			log.Info().Str("url", d.url).Msg("Dashboard has no charts, capturing empty grid")
		}

		if err := d.waitLoadingGone(ctx, driver); err != nil {
			return nil, err
		}
		if d.waits.ReplaceUnexpectedErrors {
			scanUnexpectedErrors(driver)
		}
		return driver.CaptureElement(standaloneSelector)
	})
}
