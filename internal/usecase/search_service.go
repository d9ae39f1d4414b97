package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/ozonscraper/backend/internal/domain"
	"github.com/sirupsen/logrus"
)

// SearchService runs one scrape per call: load the page, extract cards, optionally enrich.
type SearchService struct {
	sessions  *SessionController
	extractor *ListingExtractor
	enricher  *DetailEnricher
	observer  domain.ScrapeObserver
	logger    *logrus.Entry
}

// NewSearchService creates a new search service. enricher may be nil.
func NewSearchService(
	sessions *SessionController,
	extractor *ListingExtractor,
	enricher *DetailEnricher,
	observer domain.ScrapeObserver,
	logger *logrus.Entry,
) *SearchService {
	if observer == nil {
		observer = domain.NopObserver{}
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SearchService{
		sessions:  sessions,
		extractor: extractor,
		enricher:  enricher,
		observer:  observer,
		logger:    logger.WithField("component", "search_service"),
	}
}

// Search returns the products listed for rawQuery, in page order.
// The result is never nil on success.
func (s *SearchService) Search(ctx context.Context, rawQuery string) (domain.SearchResult, error) {
	start := time.Now()

	var extraction *Extraction
	err := s.sessions.RunSearch(ctx, rawQuery, func(doc *Document) error {
		var err error
		extraction, err = s.extractor.Extract(doc)
		return err
	})
	if err != nil {
		s.observer.ObserveSearch(searchOutcome(err, 0), time.Since(start))
		return nil, err
	}

	records := extraction.Records
	s.observer.ObserveCards(len(records), extraction.DiscardedByReason())

	if s.enricher != nil && len(records) > 0 {
		s.enricher.Enrich(ctx, records)
	}

	s.observer.ObserveSearch(searchOutcome(nil, len(records)), time.Since(start))
	s.logger.WithFields(logrus.Fields{
		"query":      rawQuery,
		"cards_seen": extraction.CardsSeen,
		"results":    len(records),
		"discarded":  extraction.DiscardedByReason(),
		"duration":   time.Since(start).String(),
	}).Info("search completed")

	return records, nil
}

// searchOutcome is the metrics label for a finished search
func searchOutcome(err error, results int) string {
	var navErr *domain.NavigationError
	switch {
	case err == nil && results == 0:
		return "empty"
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidQuery):
		return "invalid_query"
	case errors.As(err, &navErr):
		return string(navErr.Reason)
	case errors.Is(err, domain.ErrContractViolation):
		return "contract_violation"
	default:
		return "error"
	}
}
