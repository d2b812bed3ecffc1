package screenshot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapgate/snapgate/pkg/browserpool"
	"github.com/snapgate/snapgate/pkg/domain"
)

// scriptedDriver simulates a browser page: selectors in visible are
// found, selectors in uncapturable fail CaptureElement, loadingStuck
// keeps WaitGone failing.
type scriptedDriver struct {
	mu           sync.Mutex
	visible      map[string]bool
	uncapturable map[string]bool
	loadingStuck bool
	evalResult   string
	evalErr      error

	navigatedTo string
	evalScripts []string
	captured    []string
	closed      bool
}

func newScriptedDriver() *scriptedDriver {
	return &scriptedDriver{
		visible:      map[string]bool{},
		uncapturable: map[string]bool{},
		evalResult:   "true",
	}
}

func (d *scriptedDriver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigatedTo = url
	return nil
}

func (d *scriptedDriver) SetWindow(size domain.WindowSize) error { return nil }

func (d *scriptedDriver) WaitVisible(selector string, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.visible[selector] {
		return nil
	}
	return errors.New("element not visible: " + selector)
}

func (d *scriptedDriver) WaitGone(selector string, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loadingStuck {
		return errors.New("element still visible: " + selector)
	}
	return nil
}

func (d *scriptedDriver) Eval(script string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evalScripts = append(d.evalScripts, script)
	return d.evalResult, d.evalErr
}

func (d *scriptedDriver) CaptureElement(selector string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.captured = append(d.captured, selector)
	if d.uncapturable[selector] {
		return nil, errors.New("could not capture: " + selector)
	}
	return []byte("png:" + selector), nil
}

func (d *scriptedDriver) CapturePage() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.captured = append(d.captured, "<page>")
	return []byte("png:fullpage"), nil
}

func (d *scriptedDriver) Probe() error { return nil }

func (d *scriptedDriver) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

type fakeAuth struct {
	mu    sync.Mutex
	users []domain.ScreenshotUser
	err   error
}

func (a *fakeAuth) Authenticate(ctx context.Context, driver browserpool.Driver, user domain.ScreenshotUser) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.users = append(a.users, user)
	return a.err
}

type fixture struct {
	deps   Dependencies
	driver *scriptedDriver
	auth   *fakeAuth
	pool   *browserpool.Pool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		driver: newScriptedDriver(),
		auth:   &fakeAuth{},
	}
	f.pool = browserpool.New(func(ctx context.Context, size domain.WindowSize) (browserpool.Driver, error) {
		return f.driver, nil
	}, browserpool.Config{})
	t.Cleanup(f.pool.Shutdown)

	f.deps = Dependencies{
		Pool: f.pool,
		Auth: f.auth,
		// Zero waits keep the tests fast; the wait chain itself is
		// still exercised through the driver calls.
		Waits: WaitConfig{},
	}
	return f
}

var testUser = domain.ScreenshotUser{ID: "u1", Username: "reporter"}

func TestChartScreenshotHappyPath(t *testing.T) {
	f := newFixture(t)
	f.driver.visible[".chart-container"] = true

	shot := NewChartScreenshot(f.deps, "https://superset.example/slice/42/?standalone=true")
	png, err := shot.GetScreenshot(context.Background(), testUser)
	require.NoError(t, err)

	assert.Equal(t, []byte("png:.chart-container"), png)
	assert.Equal(t, "https://superset.example/slice/42/?standalone=true", f.driver.navigatedTo)
	require.Len(t, f.auth.users, 1)
	assert.Equal(t, "u1", f.auth.users[0].ID)

	stats := f.pool.Stats()
	assert.Equal(t, 0, stats.InUse)
	assert.Equal(t, 1, stats.PoolSize)
}

func TestChartScreenshotTimeoutLatchesSessionUnhealthy(t *testing.T) {
	f := newFixture(t)

	shot := NewChartScreenshot(f.deps, "https://superset.example/slice/42/")
	_, err := shot.GetScreenshot(context.Background(), testUser)
	require.Error(t, err)

	ee, ok := domain.AsEngineError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrorCodeScreenshotTimeout, ee.Code)

	stats := f.pool.Stats()
	assert.Equal(t, uint64(1), stats.Destroyed)
	assert.Equal(t, 0, stats.PoolSize)
}

func TestChartScreenshotAuthFailureReleasesSession(t *testing.T) {
	f := newFixture(t)
	f.auth.err = errors.New("login rejected")

	shot := NewChartScreenshot(f.deps, "https://superset.example/slice/42/")
	_, err := shot.GetScreenshot(context.Background(), testUser)
	require.Error(t, err)

	stats := f.pool.Stats()
	assert.Equal(t, 0, stats.InUse)
	assert.Equal(t, uint64(1), stats.Destroyed)
}

func TestChartScreenshotErrorScanDoesNotFailCapture(t *testing.T) {
	f := newFixture(t)
	f.driver.visible[".chart-container"] = true
	f.driver.evalResult = `["Query timed out"]`
	f.deps.Waits.ReplaceUnexpectedErrors = true

	shot := NewChartScreenshot(f.deps, "https://superset.example/slice/42/")
	png, err := shot.GetScreenshot(context.Background(), testUser)
	require.NoError(t, err)

	assert.Equal(t, []byte("png:.chart-container"), png)
	assert.NotEmpty(t, f.driver.evalScripts)
}

func TestChartScreenshotCustomWindow(t *testing.T) {
	f := newFixture(t)
	f.driver.visible[".chart-container"] = true
	window := domain.WindowSize{Width: 1024, Height: 768}

	shot := NewChartScreenshotWithWindow(f.deps, "https://superset.example/slice/42/", window)
	_, err := shot.GetScreenshot(context.Background(), testUser)
	require.NoError(t, err)

	assert.Equal(t, window, shot.window)
}

func TestDashboardScreenshotHappyPath(t *testing.T) {
	f := newFixture(t)
	f.driver.visible[".standalone"] = true
	f.driver.visible[".chart-container"] = true

	shot := NewDashboardScreenshot(f.deps, "https://superset.example/dashboard/7/")
	png, err := shot.GetScreenshot(context.Background(), testUser)
	require.NoError(t, err)

	assert.Equal(t, []byte("png:.standalone"), png)
}

func TestDashboardScreenshotEmptyDashboardAccepted(t *testing.T) {
	f := newFixture(t)
	f.driver.visible[".standalone"] = true
	f.driver.visible[".grid-container"] = true

	shot := NewDashboardScreenshot(f.deps, "https://superset.example/dashboard/7/")
	png, err := shot.GetScreenshot(context.Background(), testUser)
	require.NoError(t, err)

	assert.Equal(t, []byte("png:.standalone"), png)
}

func TestDashboardScreenshotMissingChartsWithoutGridFails(t *testing.T) {
	f := newFixture(t)
	f.driver.visible[".standalone"] = true

	shot := NewDashboardScreenshot(f.deps, "https://superset.example/dashboard/7/")
	_, err := shot.GetScreenshot(context.Background(), testUser)
	require.Error(t, err)

	ee, ok := domain.AsEngineError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrorCodeScreenshotTimeout, ee.Code)
	assert.Contains(t, ee.Message, "dashboard charts")
}

func TestDashboardScreenshotStuckLoadingFails(t *testing.T) {
	f := newFixture(t)
	f.driver.visible[".standalone"] = true
	f.driver.visible[".chart-container"] = true
	f.driver.loadingStuck = true

	shot := NewDashboardScreenshot(f.deps, "https://superset.example/dashboard/7/")
	_, err := shot.GetScreenshot(context.Background(), testUser)
	require.Error(t, err)

	assert.True(t, domain.HasErrorCode(err, domain.ErrorCodeScreenshotTimeout))
}

func TestExploreCaptureFallsBackToSliceContainer(t *testing.T) {
	f := newFixture(t)
	f.driver.uncapturable[".chart-container"] = true

	shot := NewExploreScreenshot(f.deps, "https://superset.example/explore/")
	png, err := shot.captureWithFallbacks(f.driver)
	require.NoError(t, err)

	assert.Equal(t, []byte("png:.slice_container"), png)
	assert.Equal(t, []string{".chart-container", ".slice_container"}, f.driver.captured)
}

func TestExploreCaptureFullPageLastResort(t *testing.T) {
	f := newFixture(t)
	f.driver.uncapturable[".chart-container"] = true
	f.driver.uncapturable[".slice_container"] = true
	f.driver.uncapturable[exploreAnyChartSelector] = true

	shot := NewExploreScreenshot(f.deps, "https://superset.example/explore/")
	png, err := shot.captureWithFallbacks(f.driver)
	require.NoError(t, err)

	assert.Equal(t, []byte("png:fullpage"), png)
	assert.Equal(t, "<page>", f.driver.captured[len(f.driver.captured)-1])
}

func TestExploreScreenshotUsesExploreWindow(t *testing.T) {
	f := newFixture(t)
	shot := NewExploreScreenshot(f.deps, "https://superset.example/explore/")
	assert.Equal(t, domain.ExploreWindowSize, shot.window)
}

func TestExploreScreenshotCustomWindow(t *testing.T) {
	f := newFixture(t)
	window := domain.WindowSize{Width: 1280, Height: 720}

	shot := NewExploreScreenshotWithWindow(f.deps, "https://superset.example/explore/", window)
	assert.Equal(t, window, shot.window)
}

func TestScanUnexpectedErrors(t *testing.T) {
	driver := newScriptedDriver()
	driver.evalResult = `["Traceback (most recent call last)", "Internal error"]`

	messages := scanUnexpectedErrors(driver)
	assert.Equal(t, []string{"Traceback (most recent call last)", "Internal error"}, messages)
}

func TestScanUnexpectedErrorsEvalFailureIsNonFatal(t *testing.T) {
	driver := newScriptedDriver()
	driver.evalErr = errors.New("page crashed")

	assert.Nil(t, scanUnexpectedErrors(driver))
}

func TestRecipePoolExhaustionPropagates(t *testing.T) {
	f := newFixture(t)
	held, err := f.pool.Checkout(context.Background(), domain.DefaultWindowSize, "other")
	require.NoError(t, err)
	defer held.Release(nil)

	// Fill the rest of the pool so the recipe cannot create a session.
	var leases []*browserpool.Lease
	for {
		l, err := f.pool.Checkout(context.Background(), domain.DefaultWindowSize, "other")
		if err != nil {
			break
		}
		leases = append(leases, l)
	}
	defer func() {
		for _, l := range leases {
			l.Release(nil)
		}
	}()

	shot := NewChartScreenshot(f.deps, "https://superset.example/slice/42/")
	_, err = shot.GetScreenshot(context.Background(), testUser)
	require.Error(t, err)
	assert.True(t, domain.HasErrorCode(err, domain.ErrorCodePoolExhausted))
}
