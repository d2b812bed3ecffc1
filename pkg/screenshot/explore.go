package screenshot

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/snapgate/snapgate/pkg/browserpool"
	"github.com/snapgate/snapgate/pkg/domain"
)

// Explore-page waits are fixed rather than configured: the page
// bootstraps a full editor before the chart renders.
const (
	exploreBootstrapWait = 3 * time.Second
	exploreLocateWait    = 45 * time.Second
	exploreLoadWait      = 30 * time.Second
	exploreSettleWait    = 2 * time.Second
)

// ExploreScreenshot captures the chart pane of the explore editor,
// hiding the surrounding chrome first. It prefers degraded output over
// failure: when the chart container cannot be captured it walks a
// fallback selector chain ending in a full-page capture.
type ExploreScreenshot struct {
	recipe
}

func NewExploreScreenshot(deps Dependencies, url string) *ExploreScreenshot {
	return &ExploreScreenshot{recipe: newRecipe(deps, url, domain.ExploreWindowSize)}
}

func NewExploreScreenshotWithWindow(deps Dependencies, url string, window domain.WindowSize) *ExploreScreenshot {
	return &ExploreScreenshot{recipe: newRecipe(deps, url, window)}
}

func (e *ExploreScreenshot) GetScreenshot(ctx context.Context, user domain.ScreenshotUser) ([]byte, error) {
	return e.run(ctx, user, func(driver browserpool.Driver) ([]byte, error) {
		if err := sleep(ctx, exploreBootstrapWait); err != nil {
			return nil, err
		}

		if err := driver.WaitVisible(chartContainerSelector, exploreLocateWait); err != nil {
			log.Warn().Str("url", e.url).Err(err).Msg("Explore chart container did not appear, will rely on fallback capture")
		}
		if err := driver.WaitGone(loadingSelector, exploreLoadWait); err != nil {
			log.Warn().Str("url", e.url).Err(err).Msg("Explore loading indicators still visible, capturing anyway")
		}

		if _, err := driver.Eval(exploreHideScript); err != nil {
			log.Warn().Str("url", e.url).Err(err).Msg("Could not hide explore chrome")
		}
		if err := sleep(ctx, exploreSettleWait); err != nil {
			return nil, err
		}

		if e.waits.ReplaceUnexpectedErrors {
			scanUnexpectedErrors(driver)
		}
		return e.captureWithFallbacks(driver)
	})
}

// captureWithFallbacks tries the chart container, then the legacy
// wrapper, then any known chart selector, then the full page. Only a
// failure of every step surfaces as an error.
func (e *ExploreScreenshot) captureWithFallbacks(driver browserpool.Driver) ([]byte, error) {
	png, err := driver.CaptureElement(chartContainerSelector)
	if err == nil {
		return png, nil
	}
	log.Warn().Str("url", e.url).Msg("chart-container not capturable, trying slice_container")

	png, err = driver.CaptureElement(sliceContainerSelector)
	if err == nil {
		return png, nil
	}
	log.Warn().Str("url", e.url).Msg("slice_container not capturable, trying generic chart selectors")

	png, err = driver.CaptureElement(exploreAnyChartSelector)
	if err == nil {
		return png, nil
	}
	log.Warn().Str("url", e.url).Msg("No chart element capturable, using full page as last resort")

	return driver.CapturePage()
}
