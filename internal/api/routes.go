package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewRouter builds the gin engine with CORS and request logging
func NewRouter(origins []string, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	corsConfig := cors.DefaultConfig()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	return router
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("Handled request")
	}
}

func SetupRoutes(router *gin.Engine, handler *Handler, segments *SegmentHandler) {
	api := router.Group("/api")
	{
		api.GET("/health", handler.Health)
		api.POST("/valuation/estimate", handler.Estimate)
		api.POST("/valuation/trend", handler.Trend)
		api.GET("/valuations", handler.ListValuations)
		api.GET("/valuations/:id", handler.GetValuation)
		api.DELETE("/valuations/:id", handler.DeleteValuation)
	}

	if segments != nil {
		api.GET("/segments", segments.ListSegments)
		api.PUT("/segments/categories/:type", segments.UpdateCategories)
		api.PUT("/segments/coefficients/:neighborhood", segments.UpdateCoefficient)
		api.DELETE("/segments/coefficients/:neighborhood", segments.DeleteCoefficient)
		api.POST("/segments/locate", segments.Locate)
	}
}
