package screenshot

import (
	"context"

	"github.com/snapgate/snapgate/pkg/browserpool"
	"github.com/snapgate/snapgate/pkg/domain"
)

// ChartScreenshot captures a single standalone chart.
type ChartScreenshot struct {
	recipe
}

func NewChartScreenshot(deps Dependencies, url string) *ChartScreenshot {
	return &ChartScreenshot{recipe: newRecipe(deps, url, domain.DefaultWindowSize)}
}

func NewChartScreenshotWithWindow(deps Dependencies, url string, window domain.WindowSize) *ChartScreenshot {
	return &ChartScreenshot{recipe: newRecipe(deps, url, window)}
}

// GetScreenshot navigates to the chart's standalone URL and captures
// the chart container as PNG. Wait timeouts propagate and latch the
// session unhealthy.
func (c *ChartScreenshot) GetScreenshot(ctx context.Context, user domain.ScreenshotUser) ([]byte, error) {
	return c.run(ctx, user, func(driver browserpool.Driver) ([]byte, error) {
		if err := c.waitForTarget(ctx, driver, chartContainerSelector); err != nil {
			return nil, err
		}
		if c.waits.ReplaceUnexpectedErrors {
			scanUnexpectedErrors(driver)
		}
		return driver.CaptureElement(chartContainerSelector)
	})
}
