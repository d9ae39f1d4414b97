package usecase

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ozonscraper/backend/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// fakeEngine hands out scripted browsing contexts and remembers them
type fakeEngine struct {
	newContextErr error
	build         func() *fakeContext

	mu       sync.Mutex
	contexts []*fakeContext
}

func (e *fakeEngine) NewContext(ctx context.Context) (domain.BrowsingContext, error) {
	if e.newContextErr != nil {
		return nil, e.newContextErr
	}
	fc := &fakeContext{state: domain.ReadyListing}
	if e.build != nil {
		fc = e.build()
	}
	e.mu.Lock()
	e.contexts = append(e.contexts, fc)
	e.mu.Unlock()
	return fc, nil
}

func (e *fakeEngine) opened() []*fakeContext {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*fakeContext(nil), e.contexts...)
}

// fakeContext is a scripted domain.BrowsingContext
type fakeContext struct {
	navStatus int
	navURL    string
	navErr    error
	reloadErr error
	state     domain.ReadyState
	waitErr   error
	waitBlock bool
	scrollErr error
	html      string

	navigated  atomic.Value
	reloads    atomic.Int32
	scrolls    atomic.Int32
	closeCalls atomic.Int32
}

func (f *fakeContext) Navigate(ctx context.Context, url string) (*domain.NavigationResult, error) {
	f.navigated.Store(url)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.navErr != nil {
		return nil, f.navErr
	}
	status := f.navStatus
	if status == 0 {
		status = 200
	}
	final := url
	if f.navURL != "" {
		final = f.navURL
	}
	return &domain.NavigationResult{Status: status, URL: final}, nil
}

func (f *fakeContext) Reload(ctx context.Context) (*domain.NavigationResult, error) {
	f.reloads.Add(1)
	if f.reloadErr != nil {
		return nil, f.reloadErr
	}
	url, _ := f.navigated.Load().(string)
	if f.navURL != "" {
		url = f.navURL
	}
	return &domain.NavigationResult{Status: 200, URL: url}, nil
}

func (f *fakeContext) WaitReady(ctx context.Context, cond domain.ReadinessCondition) (domain.ReadyState, error) {
	if f.waitBlock {
		<-ctx.Done()
		return domain.ReadyUnknown, ctx.Err()
	}
	if f.waitErr != nil {
		return domain.ReadyUnknown, f.waitErr
	}
	return f.state, nil
}

func (f *fakeContext) Scroll(ctx context.Context, plan domain.ScrollPlan) error {
	f.scrolls.Add(1)
	return f.scrollErr
}

func (f *fakeContext) HTML(ctx context.Context) (string, error) {
	return f.html, nil
}

func (f *fakeContext) Close() error {
	f.closeCalls.Add(1)
	return nil
}

// recordingObserver counts telemetry calls
type recordingObserver struct {
	mu        sync.Mutex
	outcomes  []string
	accepted  int
	discarded map[string]int
	opened    int
	closed    int
	details   map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{discarded: map[string]int{}, details: map[string]int{}}
}

func (o *recordingObserver) ObserveSearch(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) ObserveCards(accepted int, discarded map[string]int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.accepted += accepted
	for k, v := range discarded {
		o.discarded[k] += v
	}
}

func (o *recordingObserver) BrowserContextOpened() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened++
}

func (o *recordingObserver) BrowserContextClosed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed++
}

func (o *recordingObserver) ObserveDetailRequest(status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.details[status]++
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

func testSessionConfig() SessionConfig {
	return SessionConfig{
		BaseURL:            "https://www.ozon.ru",
		SearchPathTemplate: "/search/?text={query}&from_global=true",
		NavigationTimeout:  time.Second,
		WarmupReload:       true,
		Readiness: domain.ReadinessCondition{
			ListingSelector:    ".widget-search-result-container",
			EmptySelector:      `[data-widget="searchResultsError"]`,
			ChallengeSelectors: []string{"#challenge-form"},
		},
		Scroll: domain.ScrollPlan{Steps: 5, StepPixels: 250},
	}
}
