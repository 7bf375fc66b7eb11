package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/orderflow-reconciler/internal/scheduler"
)

// StatusSource reports the reconciliation loop state.
type StatusSource interface {
	Status() scheduler.Status
}

// RegisterStatusRoutes registers GET /health and GET /status.
func RegisterStatusRoutes(r *gin.Engine, src StatusSource) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, src.Status())
	})
}

// NewRouter returns a gin engine with recovery, request logging to log and the status routes.
func NewRouter(src StatusSource, log logrus.FieldLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		c.Next()
		log.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": c.Writer.Status(),
		}).Debug("http request")
	})
	RegisterStatusRoutes(r, src)
	return r
}
