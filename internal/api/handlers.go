package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"

	"avm/internal/database"
	"avm/internal/models"
	"avm/internal/valuation"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Valuator runs valuation requests
type Valuator interface {
	Valuate(ctx context.Context, input models.ValuationInput) (*models.ValuationResult, string, error)
	Trend(ctx context.Context, loc models.LocationPoint, features models.PropertyFeatures) (models.MarketSummary, error)
}

// Archive reads and deletes archived valuations
type Archive interface {
	ListValuations(ctx context.Context, limit, offset int) ([]models.ValuationRecord, int64, error)
	GetValuation(ctx context.Context, id string) (*models.ValuationRecord, error)
	DeleteValuation(ctx context.Context, id string) error
}

// Pinger checks the dataset connection
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	valuator Valuator
	archive  Archive
	pinger   Pinger
	logger   *logrus.Logger
}

// EstimateRequest is the body of an estimate request
type EstimateRequest struct {
	Location models.LocationPoint    `json:"location"`
	Features models.PropertyFeatures `json:"features"`
	Contact  *models.Contact         `json:"contact"`
}

// TrendRequest is the body of a trend request
type TrendRequest struct {
	Location models.LocationPoint    `json:"location"`
	Features models.PropertyFeatures `json:"features"`
}

// EstimateResponse is the result plus the id it was archived under
type EstimateResponse struct {
	ID string `json:"id,omitempty"`
	*models.ValuationResult
}

type ValuationList struct {
	Items  []models.ValuationRecord `json:"items"`
	Total  int64                    `json:"total"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

func NewHandler(valuator Valuator, archive Archive, pinger Pinger, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Handler{
		valuator: valuator,
		archive:  archive,
		pinger:   pinger,
		logger:   logger,
	}
}

// writeValuationError maps valuation errors to status codes
func (h *Handler) writeValuationError(c *gin.Context, err error) {
	var insufficient *valuation.InsufficientDataError
	switch {
	case errors.As(err, &insufficient):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "not enough comparable data for this location and property",
			"code":    "data_insufficient",
			"details": insufficient.Error(),
		})
	case errors.Is(err, valuation.ErrDataInsufficient):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "not enough comparable data for this location and property",
			"code":  "data_insufficient",
		})
	case errors.Is(err, valuation.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_request"})
	default:
		h.logger.WithError(err).Error("Valuation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to calculate valuation"})
	}
}

// Estimate values a property
func (h *Handler) Estimate(c *gin.Context) {
	var req EstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Failed to parse estimate request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": "invalid_request"})
		return
	}

	input := models.ValuationInput{
		Location:  req.Location,
		Features:  req.Features,
		Contact:   req.Contact,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}

	result, id, err := h.valuator.Valuate(c.Request.Context(), input)
	if err != nil {
		h.writeValuationError(c, err)
		return
	}

	c.JSON(http.StatusOK, EstimateResponse{ID: id, ValuationResult: result})
}

// Trend returns the market summary and price trend of a segment
func (h *Handler) Trend(c *gin.Context) {
	var req TrendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Failed to parse trend request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": "invalid_request"})
		return
	}

	summary, err := h.valuator.Trend(c.Request.Context(), req.Location, req.Features)
	if err != nil {
		h.writeValuationError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func pageParam(c *gin.Context, name string, fallback int) int {
	v, err := strconv.Atoi(c.DefaultQuery(name, strconv.Itoa(fallback)))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

// ListValuations returns archived valuations, newest first
func (h *Handler) ListValuations(c *gin.Context) {
	limit := pageParam(c, "limit", defaultPageSize)
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	offset := pageParam(c, "offset", 0)

	records, total, err := h.archive.ListValuations(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list valuations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list valuations"})
		return
	}
	if records == nil {
		records = []models.ValuationRecord{}
	}

	c.JSON(http.StatusOK, ValuationList{Items: records, Total: total, Limit: limit, Offset: offset})
}

// GetValuation returns one archived valuation
func (h *Handler) GetValuation(c *gin.Context) {
	record, err := h.archive.GetValuation(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Valuation not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to get valuation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get valuation"})
		return
	}

	c.JSON(http.StatusOK, record)
}

// DeleteValuation removes an archived valuation
func (h *Handler) DeleteValuation(c *gin.Context) {
	err := h.archive.DeleteValuation(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Valuation not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to delete valuation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete valuation"})
		return
	}

	c.Status(http.StatusNoContent)
}

// Health reports whether the dataset is reachable
func (h *Handler) Health(c *gin.Context) {
	if h.pinger != nil {
		if err := h.pinger.PingContext(c.Request.Context()); err != nil {
			h.logger.WithError(err).Error("Health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
