package api

import (
	"net/http"

	"ontrak/internal/domain"
	"ontrak/internal/events"
	"ontrak/internal/service"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	router *gin.Engine,
	jwtSecret string,
	hub *events.Hub,
	authService service.AuthService,
	templateService service.TemplateService,
	scheduleService service.ScheduleService,
	statisticsService service.StatisticsService,
) {
	authHandler := NewAuthHandler(authService)
	templateHandler := NewTemplateHandler(templateService)
	scheduleHandler := NewScheduleHandler(scheduleService)
	statisticsHandler := NewStatisticsHandler(statisticsService)

	authMiddleware := AuthMiddleware(jwtSecret)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Live event stream; authenticates via token query param inside the hub.
	router.GET("/ws", hub.HandleWebSocket)

	apiV1 := router.Group("/api/v1")
	{
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}
	}

	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", func(c *gin.Context) {
			userIDStr, err := getUserIDFromContext(c)
			if err != nil {
				abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
				return
			}
			role, _ := getUserRoleFromContext(c)
			c.JSON(http.StatusOK, gin.H{"userId": userIDStr, "role": role})
		})

		// --- Template Catalog ---
		templateGroup := protected.Group("/templates")
		templateGroup.Use(RoleMiddleware(domain.RoleTrainer))
		{
			templateGroup.POST("", templateHandler.CreateTemplate)
			templateGroup.GET("", templateHandler.ListTemplates)
			templateGroup.GET("/:id", templateHandler.GetTemplate)
			templateGroup.DELETE("/:id", templateHandler.DeleteTemplate)
		}

		// --- Schedule State Machine ---
		scheduleGroup := protected.Group("/schedule")
		scheduleGroup.Use(RoleMiddleware(domain.RoleTrainer))
		{
			scheduleGroup.POST("/start", scheduleHandler.StartDay)
			scheduleGroup.POST("/sessions/:id/next/:activityId", scheduleHandler.Next)
			scheduleGroup.POST("/sessions/:id/previous/:activityId", scheduleHandler.Previous)
			scheduleGroup.POST("/close", scheduleHandler.CloseDay)
			scheduleGroup.POST("/cancel", scheduleHandler.CancelDay)
			scheduleGroup.GET("/current", scheduleHandler.Current)
			scheduleGroup.PUT("/sessions/:id/activities", scheduleHandler.Reorder)
		}

		// --- Statistics ---
		statisticsGroup := protected.Group("/statistics")
		statisticsGroup.Use(RoleMiddleware(domain.RoleTrainer, domain.RoleAdmin))
		{
			statisticsGroup.GET("", statisticsHandler.GetStatistics)
			statisticsGroup.GET("/export", statisticsHandler.ExportCSV)
			statisticsGroup.POST("/export", statisticsHandler.ArchiveReport)
			statisticsGroup.GET("/exports", statisticsHandler.ListArchives)
			statisticsGroup.DELETE("/exports/:id", statisticsHandler.DeleteArchive)
		}

		// --- Admin Monitoring ---
		adminGroup := protected.Group("/admin")
		adminGroup.Use(RoleMiddleware(domain.RoleAdmin))
		{
			adminGroup.GET("/sessions/active", scheduleHandler.ActiveSessions)
		}
	}
}
