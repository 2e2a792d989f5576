package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/aurora-dl/api/handlers"
	"github.com/yourusername/aurora-dl/api/middleware"
)

// Coordinator is everything the HTTP surface needs from the download coordinator
type Coordinator interface {
	handlers.Downloads
	handlers.RunState
	handlers.EventSource
}

// Dependencies wires the router
type Dependencies struct {
	Coordinator Coordinator
	Installs    handlers.Installs
	Metrics     http.Handler
	Recorder    middleware.RequestRecorder
	LogsDir     string
	Logger      *zap.Logger
}

// SetupRouter sets up the HTTP router
func SetupRouter(deps Dependencies) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(deps.Logger))
	router.Use(middleware.Recovery(deps.Logger))
	if deps.Recorder != nil {
		router.Use(middleware.Metrics(deps.Recorder))
	}

	healthHandler := handlers.NewHealthHandler(deps.Coordinator)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	v1 := router.Group("/api/v1")
	{
		downloadHandler := handlers.NewDownloadHandler(deps.Coordinator, deps.Logger)
		downloads := v1.Group("/downloads")
		{
			downloads.POST("", downloadHandler.AddDownload)
			downloads.GET("", downloadHandler.ListDownloads)
			downloads.GET("/stats", downloadHandler.GetStats)
			downloads.GET("/:package", downloadHandler.GetDownload)
			downloads.POST("/:package/cancel", downloadHandler.CancelDownload)
			downloads.POST("/:package/pause", downloadHandler.PauseDownload)
			downloads.POST("/:package/resume", downloadHandler.ResumeDownload)
			downloads.POST("/:package/retry", downloadHandler.RetryDownload)
			downloads.DELETE("/:package", downloadHandler.DeleteDownload)
		}

		if deps.Installs != nil {
			installHandler := handlers.NewInstallHandler(deps.Installs)
			installs := v1.Group("/installs")
			{
				installs.GET("/device", installHandler.GetDevice)
				installs.GET("/:package", installHandler.GetInstall)
			}
		}

		eventHandler := handlers.NewEventWebSocketHandler(deps.Coordinator, deps.Logger)
		v1.GET("/events", eventHandler.HandleWebSocket)

		if deps.LogsDir != "" {
			logHandler := handlers.NewLogHandler(deps.LogsDir)
			logs := v1.Group("/logs")
			{
				logs.GET("/categories", logHandler.GetCategories)
				logs.GET("/:category", logHandler.GetLogs)
				logs.GET("/:category/export", logHandler.ExportLogs)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
