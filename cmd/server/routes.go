package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	domainerrors "sepolia-wallet.backend/internal/domain/errors"
	"sepolia-wallet.backend/internal/interfaces/http/handlers"
	"sepolia-wallet.backend/internal/interfaces/http/response"
)

const (
	serviceName    = "sepolia-wallet-backend"
	serviceVersion = "1.0.0"
)

type routeDeps struct {
	walletHandler      *handlers.WalletHandler
	transactionHandler *handlers.TransactionHandler
	monitorHandler     *handlers.MonitorHandler
	queueHandler       *handlers.QueueHandler
}

func registerAPIV1Routes(r *gin.Engine, d routeDeps) {
	v1 := r.Group("/api/v1")
	{
		wallets := v1.Group("/wallets")
		{
			wallets.POST("", d.walletHandler.CreateWallet)
			wallets.POST("/import", d.walletHandler.ImportWallet)
			wallets.GET("/:address", d.walletHandler.GetWallet)
			wallets.GET("/:address/balance", d.walletHandler.GetBalance)
			wallets.GET("/:address/transactions", d.walletHandler.GetTransactions)
		}

		transactions := v1.Group("/transactions")
		{
			transactions.POST("", d.transactionHandler.CreateTransaction)
			transactions.GET("/:id", d.transactionHandler.GetTransaction)
		}

		monitor := v1.Group("/blockchain-monitor")
		{
			monitor.GET("/status", d.monitorHandler.GetStatus)
			monitor.POST("/scan", d.monitorHandler.TriggerScan)
		}

		q := v1.Group("/queue")
		{
			q.GET("/stats", d.queueHandler.GetStats)
			q.GET("/jobs/:id", d.queueHandler.GetJob)
		}
	}
}

// applyCORSMiddleware echoes the caller's origin and answers preflight
// requests directly
func applyCORSMiddleware(r *gin.Engine) {
	r.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})
}

// registerFallbackRoutes answers unknown paths and methods in the API
// error shape instead of gin's plain text
func registerFallbackRoutes(r *gin.Engine) {
	r.HandleMethodNotAllowed = true
	r.NoRoute(func(c *gin.Context) {
		response.ErrorWithError(c, http.StatusNotFound, domainerrors.CodeNotFound, "Route "+c.Request.Method+" "+c.Request.URL.Path+" not found")
	})
	r.NoMethod(func(c *gin.Context) {
		response.ErrorWithError(c, http.StatusMethodNotAllowed, domainerrors.CodeMethodNotAllowed, "Method "+c.Request.Method+" not allowed")
	})
}

func registerHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": serviceName,
			"version": serviceVersion,
		})
	})
}

func registerMetricsRoute(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
