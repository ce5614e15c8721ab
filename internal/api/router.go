package api

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/offline-queue/config"
	_ "github.com/d60-Lab/offline-queue/docs"
	"github.com/d60-Lab/offline-queue/internal/api/handler"
	"github.com/d60-Lab/offline-queue/pkg/middleware"
)

const eventsPath = "/api/v1/queue/events"

// NewRouter 注册全部路由
func NewRouter(cfg *config.Config, h *handler.Handler) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logger())
	r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))

	r.GET("/healthz", h.Health)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.Any("/gateway/*path", h.Gateway)

	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(cfg.Auth.JWTSecret))
	{
		v1.GET("/queue/events", h.QueueEvents)

		// 事件流之外的接口启用压缩
		q := v1.Group("", gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{eventsPath})))
		q.GET("/queue", h.GetQueue)
		q.POST("/queue/sync", h.SyncNow)
		q.POST("/queue/retry-failed", h.RetryFailed)
		q.POST("/queue/items/:id/retry", h.RetryItem)
		q.DELETE("/queue/items/:id", h.DeleteItem)
		q.POST("/connectivity", h.SetConnectivity)
	}
	return r
}
