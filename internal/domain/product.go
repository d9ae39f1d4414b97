package domain

// ProductRecord represents one product card scraped from the search listing
type ProductRecord struct {
	ProductID     string  `json:"product_id"`
	ShortName     string  `json:"short_name"`
	FullName      string  `json:"full_name"`
	Description   string  `json:"description"`
	URL           string  `json:"url"`
	Price         *string `json:"price,omitempty"`
	PriceWithCard *string `json:"price_with_card,omitempty"`
	ImageURL      *string `json:"image_url,omitempty"`
}

// SearchResult is the ordered list of records in the order they appeared on the page
type SearchResult []ProductRecord

// SearchRequest represents the body of a search call
type SearchRequest struct {
	Query string `json:"query"`
}

// SearchResponse is the payload returned to search callers.
// Results is never nil so it always encodes as a JSON array.
type SearchResponse struct {
	Results SearchResult `json:"results"`
}

// ProductDetails holds the fields read from a product detail page
type ProductDetails struct {
	ProductID   string
	FullName    string
	Description string
	ImageURL    string
	Price       string
	AdultOnly   bool
}

// StringPtr returns a pointer to s, or nil when s is empty
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
