package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ozonscraper/backend/config"
	httpDelivery "github.com/ozonscraper/backend/internal/delivery/http"
	"github.com/ozonscraper/backend/internal/domain"
	"github.com/ozonscraper/backend/internal/infrastructure/browser"
	"github.com/ozonscraper/backend/internal/infrastructure/composer"
	"github.com/ozonscraper/backend/internal/infrastructure/metrics"
	"github.com/ozonscraper/backend/internal/usecase"
	log "github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.Load(config.FilePath(os.Args[1:]))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	initLogger(cfg.Log)
	logger := log.NewEntry(log.StandardLogger())

	logger.WithFields(log.Fields{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"base_url":    cfg.Scraper.BaseURL,
	}).Info("Starting Ozon scraper backend v1.0.0")

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	var m *metrics.Metrics
	var observer domain.ScrapeObserver = domain.NopObserver{}
	if cfg.Metrics.Enabled {
		m = metrics.New()
		observer = m
	}

	// The browser outlives the signal context so in-flight searches can finish during shutdown
	engine, err := browser.NewEngine(context.Background(), browser.Options{
		BinPath:        cfg.Browser.BinPath,
		Headless:       cfg.Browser.Headless,
		NoSandbox:      cfg.Browser.NoSandbox,
		ProxyURL:       cfg.Browser.ProxyURL,
		UserAgent:      cfg.Browser.UserAgent,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to start browser")
	}

	sessions := usecase.NewSessionController(engine, usecase.SessionConfig{
		BaseURL:            cfg.Scraper.BaseURL,
		SearchPathTemplate: cfg.Scraper.SearchPathTemplate,
		NavigationTimeout:  cfg.Scraper.NavigationTimeout,
		WarmupReload:       cfg.Scraper.WarmupReload,
		Readiness: domain.ReadinessCondition{
			ListingSelector:    cfg.Scraper.Selectors.ListingContainer,
			EmptySelector:      cfg.Scraper.Selectors.EmptyState,
			ChallengeSelectors: cfg.Scraper.Selectors.Challenge,
			StableWindow:       cfg.Scraper.StableWindow,
		},
		Scroll: domain.ScrollPlan{
			Steps:      cfg.Scraper.ScrollSteps,
			StepPixels: cfg.Scraper.ScrollStepPx,
			Delay:      cfg.Scraper.ScrollDelay,
		},
	}, observer, logger)

	extractor := usecase.NewListingExtractor(usecase.ExtractorConfig{
		CardSelector: cfg.Scraper.Selectors.Card,
		MaxCards:     cfg.Scraper.MaxCards,
	}, logger)

	var enricher *usecase.DetailEnricher
	if cfg.Details.Enabled {
		client := composer.NewClient(composer.ClientConfig{
			BaseURL:     cfg.Scraper.BaseURL,
			APIPath:     cfg.Details.APIPath,
			Timeout:     cfg.Details.Timeout,
			MaxAttempts: cfg.Details.MaxAttempts,
			UserAgent:   cfg.Browser.UserAgent,
		}, logger)

		// Enable debug mode in development environment
		if cfg.Server.Environment == "development" {
			client.SetDebug(true)
		}
		enricher = usecase.NewDetailEnricher(client, cfg.Details.Concurrency, observer, logger)
		logger.WithField("concurrency", cfg.Details.Concurrency).Info("Product detail enrichment enabled")
	}

	searchService := usecase.NewSearchService(sessions, extractor, enricher, observer, logger)

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(searchService, logger)
	router := httpDelivery.SetupRouter(cfg, handler, m, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Infof("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Server stopped unexpectedly")
			stop()
		}
	}()

	<-sigCtx.Done()
	logger.Info("Shutting down...")

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to shutdown http server gracefully")
	}
	if err := engine.Close(); err != nil {
		logger.WithError(err).Error("Failed to close browser")
	}

	logger.Info("Server stopped")
}

func initLogger(cfg config.LogConfig) {
	log.SetOutput(os.Stdout)

	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
