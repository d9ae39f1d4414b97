package usecase

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/ozonscraper/backend/internal/domain"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// AdultOnlyDescription replaces the description of age-gated products
const AdultOnlyDescription = "Товар для лиц старше 18 лет"

// DetailEnricher fills gaps in listing records from product detail data.
// Enrichment is best effort: a failed lookup leaves the record as it was.
type DetailEnricher struct {
	client      domain.ProductDetailsClient
	concurrency int
	observer    domain.ScrapeObserver
	logger      *logrus.Entry
}

// NewDetailEnricher creates a new detail enricher
func NewDetailEnricher(
	client domain.ProductDetailsClient,
	concurrency int,
	observer domain.ScrapeObserver,
	logger *logrus.Entry,
) *DetailEnricher {
	if concurrency <= 0 {
		concurrency = 1
	}
	if observer == nil {
		observer = domain.NopObserver{}
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &DetailEnricher{
		client:      client,
		concurrency: concurrency,
		observer:    observer,
		logger:      logger.WithField("component", "detail_enricher"),
	}
}

// Enrich updates records in place. Order and length never change.
func (e *DetailEnricher) Enrich(ctx context.Context, records domain.SearchResult) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i := range records {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			e.enrichOne(gctx, &records[i])
			return nil
		})
	}

	_ = g.Wait()
}

func (e *DetailEnricher) enrichOne(ctx context.Context, rec *domain.ProductRecord) {
	u, err := url.Parse(rec.URL)
	if err != nil || u.Path == "" {
		return
	}

	log := e.logger.WithField("product_id", rec.ProductID)

	details, err := e.client.GetProductDetails(ctx, u.Path)
	if err != nil {
		status := "error"
		if errors.Is(err, domain.ErrProductNotFound) {
			status = "not_found"
		}
		e.observer.ObserveDetailRequest(status)
		log.WithError(err).Debug("product details unavailable")
		return
	}
	if details.ProductID != "" && details.ProductID != rec.ProductID {
		e.observer.ObserveDetailRequest("mismatch")
		log.WithField("details_product_id", details.ProductID).Warn("product details belong to another product")
		return
	}
	e.observer.ObserveDetailRequest("ok")

	applyDetails(rec, details)
}

// applyDetails fills what the card left empty. A full name counts as empty while it
// still mirrors the short name. Image references resolve against the product URL.
func applyDetails(rec *domain.ProductRecord, d *domain.ProductDetails) {
	if d.FullName != "" && (rec.FullName == "" || rec.FullName == rec.ShortName) {
		rec.FullName = d.FullName
	}

	if d.AdultOnly {
		if rec.Description == "" {
			rec.Description = AdultOnlyDescription
		}
		return
	}

	if rec.Description == "" {
		rec.Description = d.Description
	}
	if rec.ImageURL == nil {
		if img, ok := resolveAbsolute(rec.URL, d.ImageURL); ok {
			rec.ImageURL = &img
		}
	}
	if rec.Price == nil {
		rec.Price = domain.StringPtr(d.Price)
	}
}

// resolveAbsolute resolves ref against base and keeps it only as an http(s) URL with a host
func resolveAbsolute(base, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return "", false
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	abs := b.ResolveReference(r)
	if (abs.Scheme != "http" && abs.Scheme != "https") || abs.Host == "" {
		return "", false
	}
	return abs.String(), true
}
