package browserpool

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/snapgate/snapgate/pkg/domain"
)

const (
	gonePollInterval = 250 * time.Millisecond
	captureTimeout   = 10 * time.Second
)

// RodOptions configures the production go-rod driver factory.
type RodOptions struct {
	// BinPath overrides the browser binary; empty means rod's managed
	// download.
	BinPath string

	// NoSandbox is required in most container runtimes.
	NoSandbox bool
}

// NewRodFactory returns a DriverFactory launching a dedicated headless
// chromium per session. One process per session keeps eviction exact:
// destroying a session kills its browser.
func NewRodFactory(opts RodOptions) DriverFactory {
	return func(ctx context.Context, size domain.WindowSize) (Driver, error) {
		l := launcher.New().Headless(true)
		if opts.BinPath != "" {
			l = l.Bin(opts.BinPath)
		}
		if opts.NoSandbox {
			l = l.NoSandbox(true)
		}

		controlURL, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("could not launch browser: %w", err)
		}

		browser := rod.New().ControlURL(controlURL).Context(ctx)
		if err := browser.Connect(); err != nil {
			l.Kill()
			return nil, fmt.Errorf("could not connect to browser: %w", err)
		}

		page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			_ = browser.Close()
			l.Kill()
			return nil, fmt.Errorf("could not open page: %w", err)
		}

		d := &rodDriver{browser: browser, page: page, launcher: l}
		if err := d.SetWindow(size); err != nil {
			_ = d.Close()
			return nil, err
		}
		return d, nil
	}
}

type rodDriver struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
}

func (d *rodDriver) Navigate(ctx context.Context, url string) error {
	page := d.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("could not navigate to %s: %w", url, err)
	}
	return page.WaitLoad()
}

func (d *rodDriver) SetWindow(size domain.WindowSize) error {
	return d.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             size.Width,
		Height:            size.Height,
		DeviceScaleFactor: 1,
	})
}

func (d *rodDriver) WaitVisible(selector string, timeout time.Duration) error {
	if timeout <= 0 {
		has, el, err := d.page.Has(selector)
		if err != nil {
			return err
		}
		if !has {
			return fmt.Errorf("element %s not present", selector)
		}
		visible, err := el.Visible()
		if err != nil {
			return err
		}
		if !visible {
			return fmt.Errorf("element %s not visible", selector)
		}
		return nil
	}

	el, err := d.page.Timeout(timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("element %s did not appear within %s: %w", selector, timeout, err)
	}
	if err := el.WaitVisible(); err != nil {
		return fmt.Errorf("element %s did not become visible within %s: %w", selector, timeout, err)
	}
	return nil
}

func (d *rodDriver) WaitGone(selector string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		visible, err := d.anyVisible(selector)
		if err != nil {
			return err
		}
		if !visible {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("element %s still visible after %s", selector, timeout)
		}
		time.Sleep(gonePollInterval)
	}
}

func (d *rodDriver) anyVisible(selector string) (bool, error) {
	els, err := d.page.Elements(selector)
	if err != nil {
		return false, err
	}
	for _, el := range els {
		visible, err := el.Visible()
		if err != nil {
			continue
		}
		if visible {
			return true, nil
		}
	}
	return false, nil
}

func (d *rodDriver) Eval(script string) (string, error) {
	res, err := d.page.Eval(script)
	if err != nil {
		return "", err
	}
	return res.Value.String(), nil
}

func (d *rodDriver) CaptureElement(selector string) ([]byte, error) {
	el, err := d.page.Timeout(captureTimeout).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("capture target %s not found: %w", selector, err)
	}
	return el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
}

func (d *rodDriver) CapturePage() ([]byte, error) {
	return d.page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

func (d *rodDriver) Probe() error {
	_, err := d.page.Info()
	return err
}

func (d *rodDriver) Close() error {
	err := d.browser.Close()
	d.launcher.Kill()
	return err
}
