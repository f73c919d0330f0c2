package main

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"payroute.backend/internal/infrastructure/metrics"
	"payroute.backend/internal/interfaces/http/handlers"
	"payroute.backend/internal/interfaces/http/middleware"
)

const (
	serviceName    = "payroute-backend"
	serviceVersion = "0.1.0"
)

// healthCheck pings one dependency.
type healthCheck func(ctx context.Context) error

type routeDeps struct {
	transactionHandler *handlers.TransactionHandler
	webhookHandler     *handlers.WebhookHandler
	adminHandler       *handlers.AdminHandler
	adminMiddleware    gin.HandlerFunc
	metrics            *metrics.Metrics
	checks             map[string]healthCheck
}

func newRouter(d routeDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())
	r.Use(d.metrics.Middleware())

	registerHealthRoute(r, d.checks)
	r.GET("/metrics", gin.WrapH(d.metrics.Handler()))
	registerAPIV1Routes(r, d)
	return r
}

func registerAPIV1Routes(r *gin.Engine, d routeDeps) {
	v1 := r.Group("/api/v1")
	{
		transactions := v1.Group("/transactions")
		{
			transactions.POST("", d.transactionHandler.CreateTransaction)
			transactions.GET("", d.transactionHandler.ListTransactions)
			transactions.GET("/:id", d.transactionHandler.GetTransaction)
			transactions.GET("/:id/attempts", d.transactionHandler.ListAttempts)
			transactions.GET("/:id/webhooks", d.transactionHandler.ListWebhooks)
			transactions.POST("/:id/process", middleware.IdempotencyMiddleware(), d.transactionHandler.ProcessTransaction)
			transactions.POST("/:id/refund", middleware.IdempotencyMiddleware(), d.transactionHandler.RefundTransaction)
			transactions.POST("/:id/cancel", d.transactionHandler.CancelTransaction)
			transactions.POST("/:id/sync", d.transactionHandler.SyncTransaction)
		}

		// Gateway callbacks authenticate by signature, not by token.
		v1.POST("/webhooks/:gateway", d.webhookHandler.HandleGatewayWebhook)

		admin := v1.Group("/admin")
		admin.Use(d.adminMiddleware)
		{
			admin.POST("/gateways", d.adminHandler.CreateGateway)
			admin.GET("/gateways", d.adminHandler.ListGateways)
			admin.PATCH("/gateways/:id", d.adminHandler.UpdateGateway)

			admin.POST("/merchants/:merchantId/gateways", d.adminHandler.BindGateway)
			admin.GET("/merchants/:merchantId/gateways", d.adminHandler.ListBindings)
			admin.PATCH("/merchants/:merchantId/gateways/:gatewayId", d.adminHandler.UpdateBinding)

			admin.POST("/merchants/:merchantId/rules", d.adminHandler.CreateRule)
			admin.GET("/merchants/:merchantId/rules", d.adminHandler.ListRules)
			admin.PUT("/rules/:id", d.adminHandler.UpdateRule)
			admin.DELETE("/rules/:id", d.adminHandler.DeleteRule)

			admin.POST("/merchants/:merchantId/explain-route", d.adminHandler.ExplainRoute)
		}
	}
}

// registerHealthRoute reports 503 when any dependency fails its ping.
func registerHealthRoute(r *gin.Engine, checks map[string]healthCheck) {
	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		names := make([]string, 0, len(checks))
		for name := range checks {
			names = append(names, name)
		}
		sort.Strings(names)

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		c.JSON(status, gin.H{
			"status":  overall,
			"service": serviceName,
			"version": serviceVersion,
			"checks":  results,
		})
	})
}
