package domain

// ScreenshotUser identifies the user a screenshot is rendered as. The
// web-session authenticator consumes it; this module never inspects
// credentials.
type ScreenshotUser struct {
	ID       string
	Username string
}

type WindowSize struct {
	Width  int
	Height int
}

var (
	// DefaultWindowSize is used by chart and dashboard screenshots.
	DefaultWindowSize = WindowSize{Width: 800, Height: 600}

	// ExploreWindowSize gives the explore page room for its control
	// panels before they are hidden.
	ExploreWindowSize = WindowSize{Width: 1600, Height: 1200}
)
