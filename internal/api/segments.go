package api

import (
	"context"
	"net/http"

	"avm/config"
	"avm/internal/geometry"
	"avm/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LocationResolver fills district and neighborhood names from coordinates
type LocationResolver interface {
	Resolve(ctx context.Context, loc models.LocationPoint) models.LocationPoint
}

// SegmentHandler exposes the segment tables used by the valuation engine
type SegmentHandler struct {
	segments *config.Segments
	resolver LocationResolver
	logger   *logrus.Logger
}

type CategoriesRequest struct {
	Categories []string `json:"categories" binding:"required"`
}

type CoefficientRequest struct {
	Coefficient float64 `json:"coefficient" binding:"required"`
}

func NewSegmentHandler(segments *config.Segments, resolver LocationResolver, logger *logrus.Logger) *SegmentHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &SegmentHandler{segments: segments, resolver: resolver, logger: logger}
}

// ListSegments returns the category mapping and neighborhood coefficients
func (h *SegmentHandler) ListSegments(c *gin.Context) {
	c.JSON(http.StatusOK, h.segments.Snapshot())
}

// UpdateCategories replaces the dataset categories of a property type
func (h *SegmentHandler) UpdateCategories(c *gin.Context) {
	propertyType := models.PropertyType(c.Param("type"))
	var req CategoriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.segments.SetCategories(propertyType, req.Categories); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"property_type": propertyType,
		"categories":    req.Categories,
	}).Info("Updated segment categories")

	c.JSON(http.StatusOK, gin.H{"property_type": propertyType, "categories": h.segments.Categories(propertyType)})
}

// UpdateCoefficient sets the coefficient of a neighborhood
func (h *SegmentHandler) UpdateCoefficient(c *gin.Context) {
	neighborhood := c.Param("neighborhood")
	var req CoefficientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.segments.SetCoefficient(neighborhood, req.Coefficient); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"neighborhood": neighborhood,
		"coefficient":  req.Coefficient,
	}).Info("Updated neighborhood coefficient")

	c.JSON(http.StatusOK, gin.H{"neighborhood": neighborhood, "coefficient": h.segments.NeighborhoodCoefficient(neighborhood)})
}

// DeleteCoefficient resets a neighborhood to the neutral coefficient
func (h *SegmentHandler) DeleteCoefficient(c *gin.Context) {
	if !h.segments.RemoveCoefficient(c.Param("neighborhood")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Neighborhood coefficient not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Locate resolves the district and neighborhood of a coordinate
func (h *SegmentHandler) Locate(c *gin.Context) {
	var loc models.LocationPoint
	if err := c.ShouldBindJSON(&loc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !geometry.ValidCoordinates(loc.Lat, loc.Lng) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "coordinates out of range"})
		return
	}

	if h.resolver != nil {
		loc = h.resolver.Resolve(c.Request.Context(), loc)
	}

	c.JSON(http.StatusOK, gin.H{
		"location":     loc,
		"coefficient":  h.segments.NeighborhoodCoefficient(loc.Neighborhood),
		"neighborhood": loc.Neighborhood,
		"district":     loc.District,
	})
}
