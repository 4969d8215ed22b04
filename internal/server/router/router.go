package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockusage/internal/server/handlers"
)

// New wires the Gin engine with required routes and middlewares.
func New(usage *handlers.UsageHandler, notify *handlers.NotifyHandler, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")

	sessions := api.Group("/sessions")
	sessions.POST("", usage.Load)
	sessions.GET("/:id", usage.Get)
	sessions.DELETE("/:id", usage.Clear)
	sessions.POST("/:id/recalculate", usage.Recalculate)
	sessions.PUT("/:id/warehouse", usage.ChangeWarehouse)
	sessions.PUT("/:id/aggregate/:code", usage.SetAggregateActual)
	sessions.POST("/:id/menus/:menu/rows", usage.AddRow)
	sessions.DELETE("/:id/menus/:menu/rows", usage.RemoveRows)
	sessions.PATCH("/:id/menus/:menu/rows/:row", usage.UpdateRow)
	sessions.POST("/:id/menus/:menu/recalculate", usage.RecalculateMenu)
	sessions.GET("/:id/payload", usage.Payload)
	sessions.POST("/:id/consumption", usage.SaveConsumption)
	sessions.POST("/:id/stock-movement", usage.CreateStockMovement)

	if notify != nil {
		api.GET("/reports/daily", notify.DailyDigest)
		api.POST("/notifications", notify.SendMessage)
	}

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("request completed", fields...)
			return
		}
		logger.Info("request completed", fields...)
	}
}
