package domain

import (
	"context"
	"time"
)

// BrowserEngine hands out isolated browsing contexts. One engine process may serve many contexts.
type BrowserEngine interface {
	NewContext(ctx context.Context) (BrowsingContext, error)
}

// BrowsingContext is one isolated browser session with a single page.
// Close must be safe to call after ctx passed to other methods is done.
type BrowsingContext interface {
	Navigate(ctx context.Context, url string) (*NavigationResult, error)
	Reload(ctx context.Context) (*NavigationResult, error)
	WaitReady(ctx context.Context, cond ReadinessCondition) (ReadyState, error)
	Scroll(ctx context.Context, plan ScrollPlan) error
	HTML(ctx context.Context) (string, error)
	Close() error
}

// ProductDetailsClient fetches product detail data for enrichment
type ProductDetailsClient interface {
	GetProductDetails(ctx context.Context, productPath string) (*ProductDetails, error)
}

// ScrapeObserver receives scrape telemetry. Implementations must be safe for concurrent use.
type ScrapeObserver interface {
	ObserveSearch(outcome string, d time.Duration)
	ObserveCards(accepted int, discarded map[string]int)
	BrowserContextOpened()
	BrowserContextClosed()
	ObserveDetailRequest(status string)
}

// NopObserver discards all telemetry
type NopObserver struct{}

func (NopObserver) ObserveSearch(string, time.Duration) {}
func (NopObserver) ObserveCards(int, map[string]int) {}
func (NopObserver) BrowserContextOpened() {}
func (NopObserver) BrowserContextClosed() {}
func (NopObserver) ObserveDetailRequest(string) {}
