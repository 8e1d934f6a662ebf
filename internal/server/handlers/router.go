package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quietlog/quietlog/internal/logging"
	"github.com/quietlog/quietlog/internal/server/middleware"
)

type noopDevices struct{}

func (noopDevices) Touch(ctx context.Context, userID, deviceID string) error { return nil }

// NewRouter assembles the HTTP surface: public auth endpoints, the
// token-protected sync endpoints, a health probe and the metrics
// scrape target. devices may be nil when no session store is
// configured.
func NewRouter(users UserService, sync SyncService, devices DeviceTracker, log logging.Logger) *gin.Engine {
	if devices == nil {
		devices = noopDevices{}
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Metrics())

	authHandler := NewAuthHandler(users, log)
	syncHandler := NewSyncHandler(sync, devices, log)

	auth := r.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	protected := r.Group("/api/sync")
	protected.Use(middleware.Auth(users))
	{
		protected.POST("/push", syncHandler.Push)
		protected.GET("/changes", syncHandler.Changes)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
