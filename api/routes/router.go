// api/routes/router.go
package routes

import (
	"net/http"
	"time"

	"apptly/internal/shared/config"
	"apptly/internal/shared/database"
	"apptly/internal/waitlist"

	"github.com/gin-gonic/gin"
)

// Router holds all route dependencies
type Router struct {
	config             *config.Config
	db                 *database.DB
	waitlistController *waitlist.Controller
}

// NewRouter creates a new router instance
func NewRouter(cfg *config.Config, db *database.DB, waitlistController *waitlist.Controller) *Router {
	return &Router{
		config:             cfg,
		db:                 db,
		waitlistController: waitlistController,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	// Health check and basic info endpoints
	r.setupHealthRoutes(engine)

	// API routes
	api := engine.Group(r.config.GetAPIBasePath())
	{
		waitlist.SetupWaitlistRoutes(api, r.waitlistController)
	}
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "apptly-waitlist",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "apptly-waitlist",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})
}
