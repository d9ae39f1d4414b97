package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ozonscraper/backend/internal/domain"
	"github.com/sirupsen/logrus"
)

// browsingContext is one incognito context with a single page.
// page and incognito are bound to context.Background so Close works after request cancellation.
type browsingContext struct {
	incognito *rod.Browser
	page      *rod.Page
	logger    *logrus.Entry

	stopEvents context.CancelFunc

	mu       sync.Mutex
	document *domain.NavigationResult
}

func newBrowsingContext(incognito *rod.Browser, page *rod.Page, logger *logrus.Entry) *browsingContext {
	c := &browsingContext{incognito: incognito, page: page, logger: logger}

	// Remember the status of every main-frame document response
	eventCtx, cancel := context.WithCancel(context.Background())
	c.stopEvents = cancel
	wait := page.Context(eventCtx).EachEvent(func(e *proto.NetworkResponseReceived) {
		if e.Type != proto.NetworkResourceTypeDocument || e.FrameID != page.FrameID {
			return
		}
		c.mu.Lock()
		c.document = &domain.NavigationResult{Status: e.Response.Status, URL: e.Response.URL}
		c.mu.Unlock()
	})
	go wait()

	return c
}

func (c *browsingContext) Navigate(ctx context.Context, url string) (*domain.NavigationResult, error) {
	c.resetDocument()
	p := c.page.Context(ctx)

	if err := p.Navigate(url); err != nil {
		return nil, pageLoadError(err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, pageLoadError(err)
	}
	return c.lastDocument(url), nil
}

func (c *browsingContext) Reload(ctx context.Context) (*domain.NavigationResult, error) {
	c.resetDocument()
	p := c.page.Context(ctx)

	if err := p.Reload(); err != nil {
		return nil, pageLoadError(err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, pageLoadError(err)
	}
	return c.lastDocument(""), nil
}

// WaitReady races the listing, empty-state and challenge selectors.
// A listing additionally waits for the page to go quiet for cond.StableWindow.
func (c *browsingContext) WaitReady(ctx context.Context, cond domain.ReadinessCondition) (domain.ReadyState, error) {
	p := c.page.Context(ctx)
	state := domain.ReadyUnknown

	race := p.Race().Element(cond.ListingSelector).Handle(func(*rod.Element) error {
		state = domain.ReadyListing
		return nil
	})
	if cond.EmptySelector != "" {
		race = race.Element(cond.EmptySelector).Handle(func(*rod.Element) error {
			state = domain.ReadyEmpty
			return nil
		})
	}
	for _, sel := range cond.ChallengeSelectors {
		race = race.Element(sel).Handle(func(*rod.Element) error {
			state = domain.ReadyChallenge
			return nil
		})
	}

	if _, err := race.Do(); err != nil {
		return domain.ReadyUnknown, err
	}

	if state == domain.ReadyListing && cond.StableWindow > 0 {
		if err := p.WaitStable(cond.StableWindow); err != nil {
			return domain.ReadyUnknown, err
		}
	}

	c.logger.WithField("state", state.String()).Debug("page settled")
	return state, nil
}

// Scroll nudges the viewport down step by step so lazy cards render
func (c *browsingContext) Scroll(ctx context.Context, plan domain.ScrollPlan) error {
	p := c.page.Context(ctx)
	for i := 0; i < plan.Steps; i++ {
		if _, err := p.Eval(`(dy) => window.scrollBy(0, dy)`, plan.StepPixels); err != nil {
			return fmt.Errorf("scroll step %d: %w", i+1, err)
		}
		if plan.Delay <= 0 {
			continue
		}
		t := time.NewTimer(plan.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

func (c *browsingContext) HTML(ctx context.Context) (string, error) {
	html, err := c.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	return html, nil
}

// Close releases the page and disposes the incognito context
func (c *browsingContext) Close() error {
	c.stopEvents()

	pageErr := c.page.Close()
	ctxErr := c.incognito.Close()
	if err := errors.Join(pageErr, ctxErr); err != nil {
		return fmt.Errorf("close browsing context: %w", err)
	}
	return nil
}

func (c *browsingContext) resetDocument() {
	c.mu.Lock()
	c.document = nil
	c.mu.Unlock()
}

// lastDocument returns the captured main document response, or status 0 when none was seen
func (c *browsingContext) lastDocument(fallbackURL string) *domain.NavigationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.document != nil {
		doc := *c.document
		return &doc
	}
	if info, err := c.page.Info(); err == nil && info.URL != "" {
		fallbackURL = info.URL
	}
	return &domain.NavigationResult{URL: fallbackURL}
}

// pageLoadError tags failures of the page itself so callers can tell them from browser faults
func pageLoadError(err error) error {
	var navErr *rod.NavigationError
	if errors.As(err, &navErr) {
		return fmt.Errorf("%w: %s", domain.ErrPageLoad, navErr.Reason)
	}
	return err
}
