package composer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ozonscraper/backend/internal/domain"
)

// AdultLayoutComponent is the first layout widget of age-gated product pages
const AdultLayoutComponent = "userAdultModal"

// PageResponse is the subset of the page JSON we read
type PageResponse struct {
	Layout []LayoutWidget `json:"layout"`
	SEO    SEO            `json:"seo"`
}

// LayoutWidget is one entry of the page layout
type LayoutWidget struct {
	Component string `json:"component"`
}

// SEO holds page metadata, including the JSON-LD product script
type SEO struct {
	Title  string      `json:"title"`
	Script []SEOScript `json:"script"`
}

// SEOScript is a script tag rendered into the page head
type SEOScript struct {
	InnerHTML string `json:"innerHTML"`
	Type      string `json:"type"`
}

// ProductLD is the schema.org Product object embedded as JSON-LD.
// Image, SKU and Offers come in several valid shapes, so they are decoded lazily.
type ProductLD struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Image       json.RawMessage `json:"image"`
	SKU         json.RawMessage `json:"sku"`
	Offers      json.RawMessage `json:"offers"`
}

// OfferLD holds the price; the API sends it as a string or a number
type OfferLD struct {
	Price         json.RawMessage `json:"price"`
	LowPrice      json.RawMessage `json:"lowPrice"`
	PriceCurrency string          `json:"priceCurrency"`
}

// MapToProductDetails converts page JSON to our domain ProductDetails
func MapToProductDetails(page *PageResponse) (*domain.ProductDetails, error) {
	details := &domain.ProductDetails{FullName: strings.TrimSpace(page.SEO.Title)}

	if len(page.Layout) > 0 && page.Layout[0].Component == AdultLayoutComponent {
		details.AdultOnly = true
		details.ProductID = idFromTitle(details.FullName)
		return details, nil
	}

	script, ok := productScript(page.SEO.Script)
	if !ok {
		return nil, fmt.Errorf("%w: no product script in page", domain.ErrDetailsAPIFailure)
	}

	var product ProductLD
	if err := json.Unmarshal([]byte(script), &product); err != nil {
		return nil, fmt.Errorf("failed to decode product script: %w", err)
	}

	details.ProductID = ldText(product.SKU)
	details.Description = strings.TrimSpace(product.Description)
	details.ImageURL = ldText(product.Image)
	if details.FullName == "" {
		details.FullName = strings.TrimSpace(product.Name)
	}
	if offer, ok := firstOffer(product.Offers); ok {
		price := ldText(offer.Price)
		if price == "" {
			price = ldText(offer.LowPrice)
		}
		if price != "" {
			details.Price = strings.TrimSpace(price + " " + offer.PriceCurrency)
		}
	}

	return details, nil
}

// ldText reads a JSON-LD value that may be a string, a number, an array of those
// or an object with a url. Arrays yield their first usable element.
func ldText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if v := ldText(item); v != "" {
				return v
			}
		}
		return ""
	}

	var obj struct {
		URL        string `json:"url"`
		ContentURL string `json:"contentUrl"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.URL != "" {
			return strings.TrimSpace(obj.URL)
		}
		return strings.TrimSpace(obj.ContentURL)
	}
	return ""
}

// firstOffer accepts a single offer object or a list of them
func firstOffer(raw json.RawMessage) (OfferLD, bool) {
	var offer OfferLD
	if len(raw) == 0 {
		return offer, false
	}
	if err := json.Unmarshal(raw, &offer); err == nil {
		return offer, true
	}
	var offers []OfferLD
	if err := json.Unmarshal(raw, &offers); err == nil && len(offers) > 0 {
		return offers[0], true
	}
	return offer, false
}

// productScript returns the JSON-LD script, falling back to the first one
func productScript(scripts []SEOScript) (string, bool) {
	for _, s := range scripts {
		if s.Type == "application/ld+json" && s.InnerHTML != "" {
			return s.InnerHTML, true
		}
	}
	if len(scripts) > 0 && scripts[0].InnerHTML != "" {
		return scripts[0].InnerHTML, true
	}
	return "", false
}

// idFromTitle reads the id age-gated pages put at the end of the title, as in "Вино (148297315)"
func idFromTitle(title string) string {
	fields := strings.Fields(title)
	if len(fields) == 0 {
		return ""
	}
	last := fields[len(fields)-1]
	if len(last) > 2 && strings.HasPrefix(last, "(") && strings.HasSuffix(last, ")") {
		return last[1 : len(last)-1]
	}
	return ""
}
