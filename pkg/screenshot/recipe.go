// Package screenshot captures chart, dashboard and explore screenshots
// through the shared browser pool, with deterministic wait-and-hide
// semantics per subject.
package screenshot

import (
	"context"
	"time"

	"github.com/snapgate/snapgate/pkg/browserpool"
	"github.com/snapgate/snapgate/pkg/domain"
)

// Authenticator establishes the target web UI session for the supplied
// user on a browser session. The implementation lives outside this
// module.
type Authenticator interface {
	Authenticate(ctx context.Context, driver browserpool.Driver, user domain.ScreenshotUser) error
}

// WaitConfig carries the configured screenshot waits. Field semantics
// follow the config variables of the same names.
type WaitConfig struct {
	// Headstart is the fixed sleep right after navigation
	// (SCREENSHOT_SELENIUM_HEADSTART).
	Headstart time.Duration

	// LocateWait bounds waiting for the target element
	// (SCREENSHOT_LOCATE_WAIT).
	LocateWait time.Duration

	// LoadWait bounds waiting for loading indicators to disappear
	// (SCREENSHOT_LOAD_WAIT).
	LoadWait time.Duration

	// AnimationWait is the fixed post-load sleep letting chart
	// animations settle (SCREENSHOT_SELENIUM_ANIMATION_WAIT).
	AnimationWait time.Duration

	// ReplaceUnexpectedErrors enables the pre-capture error scan
	// (SCREENSHOT_REPLACE_UNEXPECTED_ERRORS).
	ReplaceUnexpectedErrors bool
}

func DefaultWaitConfig() WaitConfig {
	return WaitConfig{
		Headstart:     3 * time.Second,
		LocateWait:    10 * time.Second,
		LoadWait:      60 * time.Second,
		AnimationWait: 5 * time.Second,
	}
}

// Dependencies are shared by all recipe variants.
type Dependencies struct {
	Pool  *browserpool.Pool
	Auth  Authenticator
	Waits WaitConfig
}

type recipe struct {
	pool   *browserpool.Pool
	auth   Authenticator
	waits  WaitConfig
	url    string
	window domain.WindowSize
}

func newRecipe(deps Dependencies, url string, window domain.WindowSize) recipe {
	return recipe{
		pool:   deps.Pool,
		auth:   deps.Auth,
		waits:  deps.Waits,
		url:    url,
		window: window,
	}
}

// run checks a session out of the pool, authenticates, navigates to the
// recipe URL, sleeps the headstart, then hands the driver to the
// variant capture function. The session is released on every exit
// path; a non-nil error latches it unhealthy.
func (r *recipe) run(ctx context.Context, user domain.ScreenshotUser, capture func(browserpool.Driver) ([]byte, error)) (png []byte, err error) {
	lease, err := r.pool.Checkout(ctx, r.window, user.ID)
	if err != nil {
		return nil, err
	}
	defer func() {
		lease.Release(err)
	}()

	driver := lease.Driver()
	if err = r.auth.Authenticate(ctx, driver, user); err != nil {
		return nil, err
	}
	if err = driver.Navigate(ctx, r.url); err != nil {
		return nil, err
	}
	if err = sleep(ctx, r.waits.Headstart); err != nil {
		return nil, err
	}

	png, err = capture(driver)
	return png, err
}

// waitForTarget runs the shared wait chain: target element present and
// visible, chart containers visible, loading indicators gone, then the
// animation settle sleep.
func (r *recipe) waitForTarget(ctx context.Context, driver browserpool.Driver, target string) error {
	if err := driver.WaitVisible(target, r.waits.LocateWait); err != nil {
		return domain.WrapEngineError(domain.ErrorCodeScreenshotTimeout,
			"screenshot target element did not appear", err)
	}
	if err := r.waitChartsAndLoading(ctx, driver); err != nil {
		return err
	}
	return nil
}

func (r *recipe) waitChartsAndLoading(ctx context.Context, driver browserpool.Driver) error {
	if err := driver.WaitVisible(chartContainerSelector, r.waits.LocateWait); err != nil {
		return domain.WrapEngineError(domain.ErrorCodeScreenshotTimeout,
			"chart containers did not become visible", err)
	}
	return r.waitLoadingGone(ctx, driver)
}

func (r *recipe) waitLoadingGone(ctx context.Context, driver browserpool.Driver) error {
	if err := driver.WaitGone(loadingSelector, r.waits.LoadWait); err != nil {
		return domain.WrapEngineError(domain.ErrorCodeScreenshotTimeout,
			"loading indicators did not disappear", err)
	}
	return sleep(ctx, r.waits.AnimationWait)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
