package usecase

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/ozonscraper/backend/internal/domain"
	"github.com/sirupsen/logrus"
)

// DiscardReason names why a card did not become a record
type DiscardReason string

const (
	DiscardMissingProductID DiscardReason = "missing_product_id"
	DiscardMissingShortName DiscardReason = "missing_short_name"
	DiscardMissingURL       DiscardReason = "missing_url"
	DiscardDuplicate        DiscardReason = "duplicate_product_id"
)

// ExtractorConfig holds the listing selectors and output cap
type ExtractorConfig struct {
	CardSelector string
	MaxCards     int // 0 means no cap
}

// Extraction is the result of reading one search page
type Extraction struct {
	Records   domain.SearchResult
	CardsSeen int
	Discarded map[DiscardReason]int
}

// DiscardedByReason returns the discard counts keyed by plain strings, for telemetry
func (e *Extraction) DiscardedByReason() map[string]int {
	out := make(map[string]int, len(e.Discarded))
	for reason, n := range e.Discarded {
		out[string(reason)] = n
	}
	return out
}

// cardOutcome is either an accepted record or the reason the card was dropped
type cardOutcome struct {
	record domain.ProductRecord
	reason DiscardReason
}

func (o cardOutcome) accepted() bool {
	return o.reason == ""
}

// ListingExtractor turns search result cards into product records
type ListingExtractor struct {
	cfg    ExtractorConfig
	logger *logrus.Entry
}

// NewListingExtractor creates a new listing extractor
func NewListingExtractor(cfg ExtractorConfig, logger *logrus.Entry) *ListingExtractor {
	if cfg.CardSelector == "" {
		cfg.CardSelector = ".widget-search-result-container > div > div"
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ListingExtractor{
		cfg:    cfg,
		logger: logger.WithField("component", "listing_extractor"),
	}
}

// Extract reads every card in document order. Cards missing a required field are
// counted in Discarded, never returned as errors. The only error is
// domain.ErrContractViolation for a released document.
func (e *ListingExtractor) Extract(doc *Document) (*Extraction, error) {
	result := &Extraction{
		Records:   domain.SearchResult{},
		Discarded: map[DiscardReason]int{},
	}

	if doc.Released() {
		return nil, domain.ErrContractViolation
	}
	if doc.State() == domain.ReadyEmpty {
		return result, nil
	}

	cards, err := doc.Find(e.cfg.CardSelector)
	if err != nil {
		return nil, err
	}
	result.CardsSeen = cards.Length()

	seen := make(map[string]struct{}, cards.Length())
	cards.EachWithBreak(func(i int, card *goquery.Selection) bool {
		if e.cfg.MaxCards > 0 && len(result.Records) >= e.cfg.MaxCards {
			return false
		}

		outcome := e.extractCard(cardView{card: card, doc: doc})
		if outcome.accepted() {
			if _, dup := seen[outcome.record.ProductID]; dup {
				outcome = cardOutcome{reason: DiscardDuplicate}
			}
		}

		if !outcome.accepted() {
			result.Discarded[outcome.reason]++
			e.logger.WithFields(logrus.Fields{
				"card":   i,
				"reason": outcome.reason,
			}).Debug("card discarded")
			return true
		}

		seen[outcome.record.ProductID] = struct{}{}
		result.Records = append(result.Records, outcome.record)
		return true
	})

	return result, nil
}

func (e *ListingExtractor) extractCard(v cardView) cardOutcome {
	id, _, ok := productIDChain.first(v)
	if !ok {
		return cardOutcome{reason: DiscardMissingProductID}
	}

	shortName, _, ok := shortNameChain.first(v)
	if !ok {
		return cardOutcome{reason: DiscardMissingShortName}
	}

	link, _, ok := urlChain.first(v)
	if !ok {
		return cardOutcome{reason: DiscardMissingURL}
	}

	fullName, _, ok := fullNameChain.first(v)
	if !ok {
		fullName = shortName
	}
	description, _, _ := descriptionChain.first(v)
	price, _, _ := priceChain.first(v)
	priceWithCard, _, _ := priceWithCardChain.first(v)
	image, _, _ := imageChain.first(v)

	return cardOutcome{record: domain.ProductRecord{
		ProductID:     id,
		ShortName:     shortName,
		FullName:      fullName,
		Description:   description,
		URL:           link,
		Price:         domain.StringPtr(price),
		PriceWithCard: domain.StringPtr(priceWithCard),
		ImageURL:      domain.StringPtr(image),
	}}
}
