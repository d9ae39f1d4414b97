package domain

import "time"

// ReadyState is the outcome of waiting for the search page to settle
type ReadyState int

const (
	ReadyUnknown ReadyState = iota
	ReadyListing
	ReadyEmpty
	ReadyChallenge
)

func (s ReadyState) String() string {
	switch s {
	case ReadyListing:
		return "listing"
	case ReadyEmpty:
		return "empty"
	case ReadyChallenge:
		return "challenge"
	default:
		return "unknown"
	}
}

// NavigationResult describes the main document response of a navigation
type NavigationResult struct {
	Status int    // HTTP status of the main document, 0 when unknown
	URL    string // final URL after redirects
}

// ReadinessCondition is the predicate used to decide a search page can be extracted
type ReadinessCondition struct {
	ListingSelector    string
	EmptySelector      string
	ChallengeSelectors []string
	StableWindow       time.Duration // network idle + DOM unchanged for this long
}

// ScrollPlan drives incremental scrolling to trigger lazy-loaded cards
type ScrollPlan struct {
	Steps      int
	StepPixels int
	Delay      time.Duration
}
