// Package browser adapts a go-rod controlled Chrome tab to the snapshot
// package: element queries, console and network event streaming, and
// screenshots for fix requests.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/felixgeelhaar/autoheal/internal/log"
)

// Config configures the browser session.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an existing Chrome.
	// Empty launches a local headless instance.
	RemoteURL string `koanf:"remote_url" yaml:"remote_url"`

	// Headful runs the local browser with a visible window.
	Headful bool `koanf:"headful" yaml:"headful"`

	// Stealth applies go-rod/stealth evasions to new tabs.
	Stealth bool `koanf:"stealth" yaml:"stealth"`

	// NavigateTimeout bounds Navigate plus WaitLoad. Default 30s.
	NavigateTimeout time.Duration `koanf:"navigate_timeout" yaml:"navigate_timeout"`
}

func (c *Config) defaults() {
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
}

// Session owns one browser connection.
type Session struct {
	cfg     Config
	browser *rod.Browser
	lnch    *launcher.Launcher
	logger  *log.Logger
}

// Launch starts Chrome (or connects to RemoteURL) and returns a Session.
func Launch(ctx context.Context, cfg Config, logger *log.Logger) (*Session, error) {
	cfg.defaults()
	logger = log.OrDefault(logger).WithComponent("browser")

	s := &Session{cfg: cfg, logger: logger}

	wsURL := cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(!cfg.Headful).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		s.lnch = l
		logger.Info("launched local chrome", "url", wsURL, "headful", cfg.Headful)
	} else {
		logger.Info("connecting to remote chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		s.cleanupLauncher()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	s.browser = b
	return s, nil
}

// Open creates a tab, navigates to pageURL and waits for the load event.
func (s *Session) Open(ctx context.Context, pageURL string) (*Page, error) {
	var (
		p   *rod.Page
		err error
	)
	if s.cfg.Stealth {
		p, err = stealth.Page(s.browser)
	} else {
		p, err = s.browser.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigateTimeout)
	defer cancel()

	if err := p.Context(navCtx).Navigate(pageURL); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := p.Context(navCtx).WaitLoad(); err != nil {
		s.logger.Warn("wait load timeout", "url", pageURL, "error", err)
	}

	return &Page{page: p, logger: s.logger, now: time.Now}, nil
}

// Close shuts the browser down and removes a locally launched instance.
func (s *Session) Close() error {
	var err error
	if s.browser != nil {
		err = s.browser.Close()
		s.browser = nil
	}
	s.cleanupLauncher()
	return err
}

func (s *Session) cleanupLauncher() {
	if s.lnch != nil {
		s.lnch.Cleanup()
		s.lnch = nil
	}
}
