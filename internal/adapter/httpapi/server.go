// Package httpapi is the thin HTTP surface over the valuation workflow. It
// binds the wire contract, maps domain errors to status codes and does
// nothing else; the workflow itself lives in the usecase layer.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/patrimo/valuation-backend/internal/domain"
	"github.com/patrimo/valuation-backend/internal/usecase/valuation"
)

// Server serves the valuation trigger endpoints.
type Server struct {
	Valuation *valuation.Service
	Log       zerolog.Logger
}

// NewServer creates a new Server instance
func NewServer(valuationService *valuation.Service, log zerolog.Logger) *Server {
	return &Server{Valuation: valuationService, Log: log}
}

// Router builds the gin engine with auth applied to the API group.
func (s *Server) Router(apiToken string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(s.Log))

	router.GET("/healthz", s.health)

	api := router.Group("/api/v1", TokenAuth(apiToken))
	api.POST("/valuations", s.runValuation)
	api.POST("/valuations/batch", s.runBatch)

	return router
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// runValuation handles POST /api/v1/valuations
func (s *Server) runValuation(c *gin.Context) {
	var req domain.ValuationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.Valuation.Run(c.Request.Context(), req)
	if err != nil {
		status, message := mapError(err)
		c.JSON(status, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// runBatch handles POST /api/v1/valuations/batch
func (s *Server) runBatch(c *gin.Context) {
	if err := s.Valuation.RunAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "batch complete"})
}

// mapError translates domain errors to HTTP status codes. Per-account
// provider failures never surface here; they are data inside the snapshot.
func mapError(err error) (int, string) {
	var missingRates *domain.MissingRatesError
	if errors.As(err, &missingRates) {
		return http.StatusUnprocessableEntity, missingRates.Error()
	}
	var violation *domain.ProtocolViolationError
	if errors.As(err, &violation) {
		return http.StatusInternalServerError, violation.Error()
	}
	if errors.Is(err, domain.ErrLinkedAccountNotFound) {
		return http.StatusNotFound, err.Error()
	}
	return http.StatusInternalServerError, err.Error()
}
