package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ozonscraper/backend/internal/domain"
	"github.com/sirupsen/logrus"
)

// Page texts that only show up on the anti-bot interstitial
var challengeMarkers = []string{
	"Antibot",
	"Доступ ограничен",
	"Подтвердите, что вы не робот",
}

// SessionConfig holds the target site and page readiness settings
type SessionConfig struct {
	BaseURL            string
	SearchPathTemplate string
	NavigationTimeout  time.Duration
	WarmupReload       bool
	Readiness          domain.ReadinessCondition
	Scroll             domain.ScrollPlan
}

// SessionController drives one isolated browsing context per query
// and hands the caller a ready snapshot of the search page.
type SessionController struct {
	engine   domain.BrowserEngine
	cfg      SessionConfig
	observer domain.ScrapeObserver
	logger   *logrus.Entry
}

// NewSessionController creates a new session controller
func NewSessionController(
	engine domain.BrowserEngine,
	cfg SessionConfig,
	observer domain.ScrapeObserver,
	logger *logrus.Entry,
) *SessionController {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 20 * time.Second
	}
	if cfg.SearchPathTemplate == "" {
		cfg.SearchPathTemplate = "/search/?text={query}&from_global=true"
	}
	if observer == nil {
		observer = domain.NopObserver{}
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &SessionController{
		engine:   engine,
		cfg:      cfg,
		observer: observer,
		logger:   logger.WithField("component", "session_controller"),
	}
}

// SearchURL builds the search page address for q
func (c *SessionController) SearchURL(q SearchQuery) string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	return base + strings.ReplaceAll(c.cfg.SearchPathTemplate, "{query}", url.QueryEscape(q.String()))
}

// RunSearch validates rawQuery, opens a fresh browsing context, loads the search page
// and passes the ready document to consume. The document is released and the context
// closed when consume returns, on every path, exactly once.
//
// Errors: domain.ErrInvalidQuery before any browser work, *domain.NavigationError when
// the page could not be made ready, otherwise whatever consume returns.
func (c *SessionController) RunSearch(ctx context.Context, rawQuery string, consume func(*Document) error) error {
	q, err := NewSearchQuery(rawQuery)
	if err != nil {
		return err
	}

	target := c.SearchURL(q)
	log := c.logger.WithFields(logrus.Fields{
		"query": q.String(),
		"url":   target,
	})

	navCtx, cancel := context.WithTimeout(ctx, c.cfg.NavigationTimeout)
	defer cancel()

	start := time.Now()
	bc, err := c.engine.NewContext(navCtx)
	if err != nil {
		return c.classify(ctx, target, err)
	}
	c.observer.BrowserContextOpened()

	var closeOnce sync.Once
	defer closeOnce.Do(func() {
		if err := bc.Close(); err != nil {
			log.WithError(err).Warn("failed to close browsing context")
		}
		c.observer.BrowserContextClosed()
	})

	doc, err := c.load(navCtx, bc, target)
	if err != nil {
		navErr := c.classify(ctx, target, err)
		log.WithError(navErr).Warn("search page not ready")
		return navErr
	}
	defer doc.release()

	log.WithFields(logrus.Fields{
		"state":    doc.State().String(),
		"duration": time.Since(start).String(),
	}).Info("search page ready")

	return consume(doc)
}

func (c *SessionController) load(ctx context.Context, bc domain.BrowsingContext, target string) (*Document, error) {
	nav, err := bc.Navigate(ctx, target)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(target, nav); err != nil {
		return nil, err
	}

	if c.cfg.WarmupReload {
		nav, err = bc.Reload(ctx)
		if err != nil {
			return nil, err
		}
		if err := checkStatus(target, nav); err != nil {
			return nil, err
		}
	}

	state, err := bc.WaitReady(ctx, c.cfg.Readiness)
	if err != nil {
		return nil, err
	}

	switch state {
	case domain.ReadyListing:
		if c.cfg.Scroll.Steps > 0 {
			if err := bc.Scroll(ctx, c.cfg.Scroll); err != nil {
				return nil, err
			}
		}
	case domain.ReadyEmpty:
	case domain.ReadyChallenge:
		return nil, &domain.NavigationError{URL: target, Reason: domain.ReasonChallenge}
	default:
		return nil, fmt.Errorf("page settled in unexpected state %s", state)
	}

	html, err := bc.HTML(ctx)
	if err != nil {
		return nil, err
	}

	if nav != nil && nav.URL != "" && !sameHost(nav.URL, c.cfg.BaseURL) {
		c.logger.WithFields(logrus.Fields{
			"url":       target,
			"final_url": nav.URL,
		}).Warn("search page redirected off site")
	}

	// Links resolve against the configured site, wherever the page ended up
	doc, err := NewDocument(html, strings.TrimRight(c.cfg.BaseURL, "/")+"/")
	if err != nil {
		return nil, err
	}
	doc.state = state

	if c.isChallenge(doc) {
		return nil, &domain.NavigationError{URL: target, Reason: domain.ReasonChallenge}
	}
	return doc, nil
}

// isChallenge catches interstitials that slipped past the selector race.
// Body text is only checked when no listing is present, since product titles are free text.
func (c *SessionController) isChallenge(doc *Document) bool {
	title, _ := doc.Title()
	if containsAny(title, challengeMarkers) {
		return true
	}

	if c.cfg.Readiness.ListingSelector != "" {
		if listing, err := doc.Find(c.cfg.Readiness.ListingSelector); err == nil && listing.Length() > 0 {
			return false
		}
	}
	body, _ := doc.BodyText()
	return containsAny(body, challengeMarkers)
}

func sameHost(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	return errA == nil && errB == nil && strings.EqualFold(ua.Host, ub.Host)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func checkStatus(target string, nav *domain.NavigationResult) error {
	if nav == nil || nav.Status == 0 {
		return nil
	}
	if nav.Status < 200 || nav.Status >= 300 {
		return &domain.NavigationError{URL: target, Reason: domain.ReasonHTTPStatus, Status: nav.Status}
	}
	return nil
}

// classify maps any failure on the way to a ready page into a *domain.NavigationError.
// parent is the caller's context: its cancellation wins over our own deadline.
func (c *SessionController) classify(parent context.Context, target string, err error) error {
	var navErr *domain.NavigationError
	if errors.As(err, &navErr) {
		if navErr.URL == "" {
			navErr.URL = target
		}
		return navErr
	}

	reason := domain.ReasonBrowser
	switch {
	case errors.Is(parent.Err(), context.Canceled):
		reason = domain.ReasonCanceled
	case errors.Is(err, context.DeadlineExceeded):
		reason = domain.ReasonTimeout
	case errors.Is(err, context.Canceled):
		reason = domain.ReasonCanceled
	case errors.Is(err, domain.ErrPageLoad):
		reason = domain.ReasonNetwork
	}

	return &domain.NavigationError{URL: target, Reason: reason, Err: err}
}
