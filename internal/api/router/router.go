package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tamnbq/bulkops-be/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "bulk-action-api-service",
		})
	})

	actionHandler := handler.NewActionHandler(deps)

	v1 := r.Group("/api/v1")
	{
		actions := v1.Group("/bulk-actions")
		{
			// POST /api/v1/bulk-actions - Submit a new bulk action
			actions.POST("", actionHandler.CreateBulkAction)

			// GET /api/v1/bulk-actions - List bulk actions with filtering and pagination
			actions.GET("", actionHandler.ListBulkActions)

			// GET /api/v1/bulk-actions/:action_id - Get bulk action details
			actions.GET("/:action_id", actionHandler.GetBulkAction)

			// GET /api/v1/bulk-actions/:action_id/stats - Get cumulative outcome counters
			actions.GET("/:action_id/stats", actionHandler.GetBulkActionStats)

			// GET /api/v1/bulk-actions/:action_id/logs - Get the append-only audit trail
			actions.GET("/:action_id/logs", actionHandler.GetBulkActionLogs)
		}
	}

	return r
}
