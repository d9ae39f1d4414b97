package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuery is returned when the search query is empty after trimming
	ErrInvalidQuery = errors.New("query is required and must not be blank")

	// ErrNavigation matches every *NavigationError via errors.Is
	ErrNavigation = errors.New("navigation failed")

	// ErrContractViolation is returned when a document handle is used after its browsing context was released
	ErrContractViolation = errors.New("document handle used after release")

	// ErrPageLoad is returned by browser engines when the page itself failed to load (DNS, refused, aborted)
	ErrPageLoad = errors.New("page failed to load")

	// ErrProductNotFound is returned when a product detail page does not exist
	ErrProductNotFound = errors.New("product not found")

	// ErrDetailsAPIFailure is returned when the product details API request fails
	ErrDetailsAPIFailure = errors.New("product details API request failed")
)

// NavigationReason classifies why a search page could not be made ready
type NavigationReason string

const (
	ReasonTimeout    NavigationReason = "timeout"
	ReasonCanceled   NavigationReason = "canceled"
	ReasonNetwork    NavigationReason = "network"
	ReasonHTTPStatus NavigationReason = "http_status"
	ReasonChallenge  NavigationReason = "challenge"
	ReasonBrowser    NavigationReason = "browser"
)

// NavigationError reports that the search page was unreachable, timed out or blocked us.
type NavigationError struct {
	URL    string
	Reason NavigationReason
	Status int
	Err    error
}

func (e *NavigationError) Error() string {
	msg := fmt.Sprintf("navigation to %s failed (%s)", e.URL, e.Reason)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrNavigation) true for any navigation failure
func (e *NavigationError) Is(target error) bool {
	return target == ErrNavigation
}

// Retryable reports whether the caller may retry after a backoff.
// Cancellation came from the caller, so retrying it makes no sense.
func (e *NavigationError) Retryable() bool {
	return e.Reason != ReasonCanceled
}

// Cause returns the underlying error text, or the reason when there is none
func (e *NavigationError) Cause() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("unexpected status %d", e.Status)
	}
	return string(e.Reason)
}
