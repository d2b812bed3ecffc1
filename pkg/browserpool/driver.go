// Package browserpool provides a health-checked pool of headless
// browser sessions. The pool and the screenshot recipes depend on the
// narrow Driver interface; go-rod supplies the production
// implementation.
package browserpool

import (
	"context"
	"time"

	"github.com/snapgate/snapgate/pkg/domain"
)

// Driver is one controllable browser page. Implementations are not
// safe for concurrent use; the pool hands a session to one caller at a
// time.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	SetWindow(size domain.WindowSize) error

	// WaitVisible blocks until at least one element matching selector
	// is visible, at most timeout. A timeout <= 0 means a single
	// immediate check.
	WaitVisible(selector string, timeout time.Duration) error

	// WaitGone blocks until no element matching selector is visible.
	WaitGone(selector string, timeout time.Duration) error

	// Eval runs a JS function expression on the page and returns its
	// result serialized as a string.
	Eval(script string) (string, error)

	CaptureElement(selector string) ([]byte, error)
	CapturePage() ([]byte, error)

	// Probe is a cheap health check (reads a driver property).
	Probe() error

	Close() error
}

// DriverFactory creates a fresh browser session with the given window
// size. Creation is bounded by the pool's create timeout.
type DriverFactory func(ctx context.Context, size domain.WindowSize) (Driver, error)
