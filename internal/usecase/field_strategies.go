package usecase

import (
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	// Collapses whitespace runs, NBSP and thin spaces included
	textWhitespacePattern = regexp.MustCompile(`[\s\x{00A0}\x{2007}\x{2009}\x{202F}]+`)

	// Ozon product slugs end in the numeric id: /product/name-words-148297315/
	trailingDigitsPattern = regexp.MustCompile(`(\d+)$`)

	digitPattern = regexp.MustCompile(`\d`)
)

// cardView is the context a strategy reads from: one card plus the page it came from
type cardView struct {
	card *goquery.Selection
	doc  *Document
}

// fieldStrategy extracts one candidate value for a field, reporting whether it found one
type fieldStrategy struct {
	name    string
	extract func(v cardView) (string, bool)
}

// strategyChain is tried in order; the first present value wins
type strategyChain []fieldStrategy

func (c strategyChain) first(v cardView) (value, source string, ok bool) {
	for _, s := range c {
		if val, found := s.extract(v); found {
			return val, s.name, true
		}
	}
	return "", "", false
}

func normalizeText(s string) string {
	return strings.TrimSpace(textWhitespacePattern.ReplaceAllString(s, " "))
}

func cardAttr(attr string) fieldStrategy {
	return fieldStrategy{
		name: "card@" + attr,
		extract: func(v cardView) (string, bool) {
			val, ok := v.card.Attr(attr)
			val = normalizeText(val)
			return val, ok && val != ""
		},
	}
}

func childText(selector string) fieldStrategy {
	return fieldStrategy{
		name: selector,
		extract: func(v cardView) (string, bool) {
			val := normalizeText(v.card.Find(selector).First().Text())
			return val, val != ""
		},
	}
}

func childAttr(selector, attr string) fieldStrategy {
	return fieldStrategy{
		name: selector + "@" + attr,
		extract: func(v cardView) (string, bool) {
			val, ok := v.card.Find(selector).First().Attr(attr)
			val = normalizeText(val)
			return val, ok && val != ""
		},
	}
}

// priceFrom accepts only candidates carrying at least one digit,
// so labels like "Нет в наличии" never pass as a price.
func priceFrom(s fieldStrategy) fieldStrategy {
	return fieldStrategy{
		name: s.name,
		extract: func(v cardView) (string, bool) {
			val, ok := s.extract(v)
			return val, ok && digitPattern.MatchString(val)
		},
	}
}

// priceText scans every match of selector for the first text holding a digit
func priceText(selector string) fieldStrategy {
	return fieldStrategy{
		name: selector,
		extract: func(v cardView) (string, bool) {
			var found string
			v.card.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				text := normalizeText(s.Text())
				if digitPattern.MatchString(text) {
					found = text
					return false
				}
				return true
			})
			return found, found != ""
		},
	}
}

// productLink returns the card's first link to a product detail page.
// Category, seller and promo links also end in numeric ids, so they never count.
func productLink(v cardView) (*url.URL, bool) {
	var found *url.URL
	v.card.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" {
			return true
		}
		u, ok := v.doc.Resolve(href)
		if !ok || !isProductPath(u.Path) {
			return true
		}
		found = u
		return false
	})
	return found, found != nil
}

func isProductPath(p string) bool {
	for _, segment := range strings.Split(p, "/") {
		if segment == "product" {
			return true
		}
	}
	return false
}

var idFromLink = fieldStrategy{
	name: "link-path-digits",
	extract: func(v cardView) (string, bool) {
		u, ok := productLink(v)
		if !ok {
			return "", false
		}
		segment := path.Base(strings.TrimRight(u.Path, "/"))
		m := trailingDigitsPattern.FindStringSubmatch(segment)
		if m == nil {
			return "", false
		}
		return m[1], true
	},
}

var canonicalLink = fieldStrategy{
	name: "link-href",
	extract: func(v cardView) (string, bool) {
		u, ok := productLink(v)
		if !ok {
			return "", false
		}
		u.RawQuery = ""
		u.Fragment = ""
		return u.String(), true
	},
}

var imageSrcset = fieldStrategy{
	name: "img@srcset",
	extract: func(v cardView) (string, bool) {
		srcset, ok := v.card.Find("img").First().Attr("srcset")
		if !ok {
			return "", false
		}
		best, ok := largestSrcsetCandidate(srcset)
		if !ok {
			return "", false
		}
		return resolveImage(v, best)
	},
}

func imageAttr(attr string) fieldStrategy {
	return fieldStrategy{
		name: "img@" + attr,
		extract: func(v cardView) (string, bool) {
			ref, ok := v.card.Find("img").First().Attr(attr)
			if !ok {
				return "", false
			}
			return resolveImage(v, ref)
		},
	}
}

func resolveImage(v cardView, ref string) (string, bool) {
	if strings.HasPrefix(strings.TrimSpace(ref), "data:") {
		return "", false
	}
	u, ok := v.doc.Resolve(ref)
	if !ok {
		return "", false
	}
	return u.String(), true
}

// largestSrcsetCandidate picks the candidate with the highest descriptor.
// Width ("300w") candidates outrank density ("2x") ones; a missing descriptor counts as 1x.
func largestSrcsetCandidate(srcset string) (string, bool) {
	var (
		best      string
		bestWidth float64
		bestDens  float64
	)
	for _, part := range strings.Split(srcset, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		ref := fields[0]
		width, density := 0.0, 1.0
		if len(fields) > 1 {
			desc := fields[1]
			n, err := strconv.ParseFloat(desc[:len(desc)-1], 64)
			if err != nil {
				continue
			}
			switch desc[len(desc)-1] {
			case 'w':
				width = n
			case 'x':
				density = n
			default:
				continue
			}
		}
		if best == "" || width > bestWidth || (width == bestWidth && density > bestDens) {
			best, bestWidth, bestDens = ref, width, density
		}
	}
	return best, best != ""
}

// Field chains in priority order
var (
	productIDChain = strategyChain{
		cardAttr("data-sku"),
		cardAttr("data-product-id"),
		idFromLink,
	}

	shortNameChain = strategyChain{
		childText("span.tsBody500Medium"),
		childAttr("a[title]", "title"),
		childAttr("img[alt]", "alt"),
	}

	urlChain = strategyChain{canonicalLink}

	fullNameChain = strategyChain{
		cardAttr("data-full-name"),
		childText(".tile-full-title"),
	}

	descriptionChain = strategyChain{
		cardAttr("data-description"),
		childText(".tile-description"),
		childText("span.tsBody400Small"),
	}

	priceChain = strategyChain{
		priceFrom(cardAttr("data-price")),
		priceText(`[class*="tsBodyControl400Small"]`),
		priceText(`[class*="tsHeadline500Small"]`),
	}

	priceWithCardChain = strategyChain{
		priceFrom(cardAttr("data-price-with-card")),
		priceText(`[class*="tsHeadline500Medium"]`),
	}

	imageChain = strategyChain{
		imageSrcset,
		imageAttr("src"),
		imageAttr("data-src"),
	}
)
