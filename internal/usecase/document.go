package usecase

import (
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"github.com/ozonscraper/backend/internal/domain"
)

// Document is a read-only snapshot of a rendered search page.
// It is valid only while the browsing context that produced it is open;
// every query after release fails with domain.ErrContractViolation.
type Document struct {
	doc      *goquery.Document
	base     *url.URL
	state    domain.ReadyState
	released atomic.Bool
}

// NewDocument parses rendered HTML. baseURL resolves relative links and must be absolute.
func NewDocument(html, baseURL string) (*Document, error) {
	base, err := url.Parse(baseURL)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	return &Document{doc: doc, base: base, state: domain.ReadyListing}, nil
}

// Find runs a CSS selector against the whole page
func (d *Document) Find(selector string) (*goquery.Selection, error) {
	if d.released.Load() {
		return nil, domain.ErrContractViolation
	}
	return d.doc.Find(selector), nil
}

// Title returns the page title
func (d *Document) Title() (string, error) {
	if d.released.Load() {
		return "", domain.ErrContractViolation
	}
	return strings.TrimSpace(d.doc.Find("title").First().Text()), nil
}

// BodyText returns the visible text of the page body
func (d *Document) BodyText() (string, error) {
	if d.released.Load() {
		return "", domain.ErrContractViolation
	}
	return d.doc.Find("body").Text(), nil
}

// Resolve turns ref into an absolute URL against the page base.
// Only http and https results with a host are returned.
func (d *Document) Resolve(ref string) (*url.URL, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return nil, false
	}
	abs := d.base.ResolveReference(u)
	if (abs.Scheme != "http" && abs.Scheme != "https") || abs.Host == "" {
		return nil, false
	}
	return abs, true
}

// BaseURL returns the URL relative links on the page resolve against
func (d *Document) BaseURL() string {
	return d.base.String()
}

// State reports which readiness outcome produced this snapshot
func (d *Document) State() domain.ReadyState {
	return d.state
}

// Released reports whether the owning browsing context has been closed
func (d *Document) Released() bool {
	return d.released.Load()
}

func (d *Document) release() {
	d.released.Store(true)
}
