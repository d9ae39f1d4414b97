package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ozonscraper/backend/internal/domain"
	"github.com/sirupsen/logrus"
)

const (
	serviceName    = "ozonscraper-backend"
	serviceVersion = "1.0.0"
)

// Searcher runs one product search
type Searcher interface {
	Search(ctx context.Context, query string) (domain.SearchResult, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	searcher Searcher
	logger   *logrus.Entry
}

// NewHandler creates a new HTTP handler
func NewHandler(searcher Searcher, logger *logrus.Entry) *Handler {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{
		searcher: searcher,
		logger:   logger.WithField("component", "http"),
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
		"version": serviceVersion,
	})
}

// Search handles product search requests
func (h *Handler) Search(c *gin.Context) {
	var req domain.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid request body",
			"code":  "invalid_request",
		})
		return
	}

	results, err := h.searcher.Search(c.Request.Context(), req.Query)
	if err != nil {
		h.writeError(c, req.Query, err)
		return
	}

	if results == nil {
		results = domain.SearchResult{}
	}
	c.JSON(http.StatusOK, domain.SearchResponse{Results: results})
}

func (h *Handler) writeError(c *gin.Context, query string, err error) {
	log := h.logger.WithFields(logrus.Fields{
		"request_id": c.GetString(requestIDKey),
		"query":      query,
	})

	var navErr *domain.NavigationError
	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
			"code":  "invalid_query",
		})

	case errors.As(err, &navErr):
		status := http.StatusBadGateway
		if navErr.Reason == domain.ReasonTimeout {
			status = http.StatusGatewayTimeout
		}
		log.WithError(err).Warn("search page unavailable")
		c.JSON(status, gin.H{
			"error":     "failed to load search results",
			"code":      "navigation_failed",
			"reason":    navErr.Reason,
			"cause":     navErr.Cause(),
			"retryable": navErr.Retryable(),
		})

	default:
		log.WithError(err).Error("search failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "internal error",
			"code":  "internal",
		})
	}
}
