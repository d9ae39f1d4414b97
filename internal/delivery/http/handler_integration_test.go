package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ozonscraper/backend/config"
	"github.com/ozonscraper/backend/internal/domain"
	"github.com/ozonscraper/backend/internal/infrastructure/metrics"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	// Set Gin to test mode once for all tests
	gin.SetMode(gin.TestMode)

	os.Exit(m.Run())
}

// stubSearcher returns canned results and remembers the queries it saw
type stubSearcher struct {
	mu      sync.Mutex
	queries []string
	results domain.SearchResult
	err     error
}

func (s *stubSearcher) Search(ctx context.Context, query string) (domain.SearchResult, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           "8000",
			Environment:    "test",
			AllowedOrigins: []string{"chrome-extension://*", "http://localhost:*"},
		},
		RateLimit: config.RateLimitConfig{PerIP: 0},
		Metrics:   config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// setupTestRouter creates a test router around searcher
func setupTestRouter(searcher Searcher) *gin.Engine {
	handler := NewHandler(searcher, quietLogger())
	return SetupRouter(testConfig(), handler, metrics.New(), quietLogger())
}

func postSearch(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response %q: %v", w.Body.String(), err)
	}
	return response
}

// TestHealthCheckEndpoint tests the health check endpoint
func TestHealthCheckEndpoint(t *testing.T) {
	t.Run("returns healthy status", func(t *testing.T) {
		router := setupTestRouter(&stubSearcher{})

		req, _ := http.NewRequest("GET", "/health", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}

		response := decodeBody(t, w)
		if response["status"] != "healthy" {
			t.Errorf("status = %v, want healthy", response["status"])
		}
		if response["service"] != "ozonscraper-backend" {
			t.Errorf("service = %v, want ozonscraper-backend", response["service"])
		}
	})

	t.Run("accepts GET requests only", func(t *testing.T) {
		router := setupTestRouter(&stubSearcher{})

		for _, method := range []string{"POST", "PUT", "DELETE", "PATCH"} {
			req, _ := http.NewRequest(method, "/health", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusNotFound {
				t.Errorf("Method %s: Status = %d, want %d", method, w.Code, http.StatusNotFound)
			}
		}
	})
}

// TestSearchEndpoint tests both search routes end to end with a stubbed searcher
func TestSearchEndpoint(t *testing.T) {
	price := "189 ₽"
	searcher := &stubSearcher{results: domain.SearchResult{
		{
			ProductID:     "148297315",
			ShortName:     "Мыло Dove",
			FullName:      "Мыло Dove",
			URL:           "https://www.ozon.ru/product/mylo-dove-148297315/",
			PriceWithCard: &price,
		},
	}}
	router := setupTestRouter(searcher)

	for _, path := range []string{"/api/v1/search", "/search"} {
		t.Run(path, func(t *testing.T) {
			w := postSearch(router, path, `{"query":"мыло"}`)

			if w.Code != http.StatusOK {
				t.Fatalf("Status = %d, want %d, body %s", w.Code, http.StatusOK, w.Body.String())
			}

			var response struct {
				Results []map[string]interface{} `json:"results"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("Failed to unmarshal response: %v", err)
			}
			if len(response.Results) != 1 {
				t.Fatalf("len(results) = %d, want 1", len(response.Results))
			}

			rec := response.Results[0]
			if rec["product_id"] != "148297315" {
				t.Errorf("product_id = %v, want 148297315", rec["product_id"])
			}
			if rec["price_with_card"] != "189 ₽" {
				t.Errorf("price_with_card = %v, want 189 ₽", rec["price_with_card"])
			}
			if _, ok := rec["price"]; ok {
				t.Errorf("price should be absent, got %v", rec["price"])
			}
			if _, ok := rec["image_url"]; ok {
				t.Errorf("image_url should be absent, got %v", rec["image_url"])
			}
			if rec["description"] != "" {
				t.Errorf("description = %v, want empty string", rec["description"])
			}
		})
	}

	if len(searcher.queries) != 2 || searcher.queries[0] != "мыло" {
		t.Errorf("queries = %v, want two calls with мыло", searcher.queries)
	}
}

func TestSearchEndpoint_EmptyResultsIsArray(t *testing.T) {
	router := setupTestRouter(&stubSearcher{})

	w := postSearch(router, "/api/v1/search", `{"query":"ыыыыыы"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	if strings.TrimSpace(w.Body.String()) != `{"results":[]}` {
		t.Errorf("body = %s, want {\"results\":[]}", w.Body.String())
	}
}

func TestSearchEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   string
		wantReason string
	}{
		{
			name:       "malformed body",
			body:       `{"query":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "blank query",
			body:       `{"query":"   "}`,
			err:        domain.ErrInvalidQuery,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_query",
		},
		{
			name: "navigation timeout",
			body: `{"query":"мыло"}`,
			err: &domain.NavigationError{
				URL: "https://www.ozon.ru/search/?text=x", Reason: domain.ReasonTimeout, Err: context.DeadlineExceeded,
			},
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   "navigation_failed",
			wantReason: "timeout",
		},
		{
			name: "blocked by challenge",
			body: `{"query":"мыло"}`,
			err: &domain.NavigationError{
				URL: "https://www.ozon.ru/search/?text=x", Reason: domain.ReasonChallenge,
			},
			wantStatus: http.StatusBadGateway,
			wantCode:   "navigation_failed",
			wantReason: "challenge",
		},
		{
			name:       "contract violation",
			body:       `{"query":"мыло"}`,
			err:        domain.ErrContractViolation,
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal",
		},
		{
			name:       "unexpected failure",
			body:       `{"query":"мыло"}`,
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter(&stubSearcher{err: tt.err})

			w := postSearch(router, "/api/v1/search", tt.body)

			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
			response := decodeBody(t, w)
			if response["code"] != tt.wantCode {
				t.Errorf("code = %v, want %s", response["code"], tt.wantCode)
			}
			if tt.wantReason != "" {
				if response["reason"] != tt.wantReason {
					t.Errorf("reason = %v, want %s", response["reason"], tt.wantReason)
				}
				if response["retryable"] != true {
					t.Errorf("retryable = %v, want true", response["retryable"])
				}
			}
			if w.Header().Get("X-Request-ID") == "" {
				t.Error("X-Request-ID header missing")
			}
		})
	}
}

func TestSearchEndpoint_ClientDisconnectCancelsSearch(t *testing.T) {
	started := make(chan struct{})
	searcher := searcherFunc(func(ctx context.Context, query string) (domain.SearchResult, error) {
		close(started)
		<-ctx.Done()
		return nil, &domain.NavigationError{Reason: domain.ReasonCanceled, Err: ctx.Err()}
	})
	router := setupTestRouter(searcher)

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, "POST", "/api/v1/search", strings.NewReader(`{"query":"мыло"}`))
	req.Header.Set("Content-Type", "application/json")

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(httptest.NewRecorder(), req)
		close(done)
	}()

	<-started
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("search was not canceled with the request")
	}
}

type searcherFunc func(ctx context.Context, query string) (domain.SearchResult, error)

func (f searcherFunc) Search(ctx context.Context, query string) (domain.SearchResult, error) {
	return f(ctx, query)
}

func TestRouter_UnknownPaths(t *testing.T) {
	router := setupTestRouter(&stubSearcher{})

	for _, path := range []string{"/api/v1", "/api/v1/search/", "/api/search", "/api/v1/nutrition/search"} {
		w := postSearch(router, path, `{"query":"мыло"}`)
		if w.Code != http.StatusNotFound && w.Code != http.StatusTemporaryRedirect && w.Code != http.StatusMovedPermanently {
			t.Errorf("Path %s: Status = %d, want 404 or redirect", path, w.Code)
		}
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router := setupTestRouter(&stubSearcher{})

	postSearch(router, "/api/v1/search", `{"query":"мыло"}`)

	req, _ := http.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `ozonscraper_http_requests_total{code="200",method="POST",route="/api/v1/search"} 1`) {
		t.Errorf("metrics output missing search request counter:\n%s", w.Body.String())
	}
}

// TestCORSIntegration tests CORS headers work end-to-end with full router
func TestCORSIntegration(t *testing.T) {
	router := setupTestRouter(&stubSearcher{})

	req, _ := http.NewRequest("OPTIONS", "/api/v1/search", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q, want http://localhost:3000", got)
	}
}
