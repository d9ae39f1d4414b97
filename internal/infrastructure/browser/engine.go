package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ozonscraper/backend/internal/domain"
	"github.com/sirupsen/logrus"
)

// Options controls how the shared browser process is started and how pages look to the site
type Options struct {
	BinPath        string
	Headless       bool
	NoSandbox      bool
	ProxyURL       string
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
}

// Engine owns one browser process and hands out isolated incognito contexts
type Engine struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	opts     Options
	logger   *logrus.Entry
}

// NewEngine launches (or downloads, then launches) a browser and connects to it
func NewEngine(ctx context.Context, opts Options, logger *logrus.Entry) (*Engine, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger = logger.WithField("component", "browser")

	bin := opts.BinPath
	if bin == "" {
		logger.Info("no browser binary specified, downloading default...")
		path, err := launcher.NewBrowser().Get()
		if err != nil {
			return nil, fmt.Errorf("download browser: %w", err)
		}
		bin = path
	}

	l := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		Bin(bin).
		NoSandbox(opts.NoSandbox).
		Set("remote-allow-origins", "*")

	if opts.ProxyURL != "" {
		l = l.Proxy(opts.ProxyURL)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"bin":      bin,
		"headless": opts.Headless,
	}).Info("browser started")

	return &Engine{browser: b, launcher: l, opts: opts, logger: logger}, nil
}

// NewContext opens an incognito browser context with one stealth page.
// Nothing is shared with other contexts: cookies, storage and cache are fresh.
func (e *Engine) NewContext(ctx context.Context) (domain.BrowsingContext, error) {
	incognito, err := e.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("create incognito context: %w", err)
	}
	// Teardown must work after ctx is done
	incognito = incognito.Context(context.Background())

	page, err := stealth.Page(incognito)
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("open stealth page: %w", err)
	}

	if err := e.preparePage(page); err != nil {
		_ = page.Close()
		_ = incognito.Close()
		return nil, err
	}

	return newBrowsingContext(incognito, page, e.logger), nil
}

func (e *Engine) preparePage(page *rod.Page) error {
	if e.opts.ViewportWidth > 0 && e.opts.ViewportHeight > 0 {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             e.opts.ViewportWidth,
			Height:            e.opts.ViewportHeight,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
	}

	if e.opts.UserAgent != "" {
		err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      e.opts.UserAgent,
			AcceptLanguage: "ru-RU,ru;q=0.9,en;q=0.8",
		})
		if err != nil {
			return fmt.Errorf("set user agent: %w", err)
		}
	}
	return nil
}

// Close shuts the browser down and reaps the process
func (e *Engine) Close() error {
	err := e.browser.Close()
	e.launcher.Kill()
	e.launcher.Cleanup()
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	e.logger.Info("browser stopped")
	return nil
}
