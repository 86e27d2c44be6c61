package waitlist

import (
	"apptly/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupWaitlistRoutes configures all waitlist-related routes following the same pattern as other modules
func SetupWaitlistRoutes(rg *gin.RouterGroup, controller *Controller) {
	waitlist := rg.Group("/waitlist")
	{
		// Health check - no auth required
		waitlist.GET("/health", controller.HealthCheck)

		// Authenticated customer operations
		authenticated := waitlist.Group("")
		authenticated.Use(middleware.JWTAuth(), middleware.RequireRoles(RoleCustomer, RoleAdmin))
		{
			authenticated.POST("", controller.Enroll)              // ENROLL in waitlist
			authenticated.GET("/:id", controller.GetEntry)         // GET entry status
			authenticated.DELETE("/:id", controller.Cancel)        // CANCEL entry
			authenticated.POST("/:id/confirm", controller.Confirm) // CONFIRM offered slot
		}
	}

	// Admin waitlist routes
	adminWaitlist := rg.Group("/admin/waitlist")
	adminWaitlist.Use(middleware.JWTAuth(), middleware.RequireAdmin())
	{
		adminWaitlist.POST("/sweep", controller.Sweep)                                // Cron-style sweep trigger
		adminWaitlist.POST("/slot-freed", controller.SlotFreed)                       // Slot freed event hook
		adminWaitlist.GET("/entries", controller.ListEntries)                         // List group entries
		adminWaitlist.GET("/stats", controller.GetStats)                              // Group stats
		adminWaitlist.GET("/notifications/recent", controller.GetRecentNotifications) // Dispatch audit log
	}
}
