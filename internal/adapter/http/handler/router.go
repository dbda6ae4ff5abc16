package handler

import (
	"btc-custody/internal/adapter/http/middleware"
	redisStore "btc-custody/internal/adapter/storage/redis"
	"btc-custody/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	WalletSvc      ports.WalletService
	LedgerSvc      ports.LedgerService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = access-denied auditing disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	if deps.AuditSvc != nil {
		r.Use(middleware.AuditAccessDenied(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	rules := middleware.DefaultRateLimitRules()

	// rl returns the limiter for a group, or a no-op when no store is configured.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	v1 := r.Group("/api/v1", jwtAuth)

	walletHandler := NewWalletHandler(deps.WalletSvc, deps.LedgerSvc)
	wallets := v1.Group("/wallets")
	{
		wallets.POST("", rl("wallet_create"), walletHandler.Create)
		wallets.GET("", rl("read"), walletHandler.List)
		wallets.GET("/:id", rl("read"), walletHandler.Get)
		wallets.GET("/:id/verify", rl("read"), walletHandler.Verify)
		wallets.GET("/:id/verify-chain", rl("read"), walletHandler.VerifyChain)
		wallets.GET("/:id/transactions", rl("read"), walletHandler.ListTransactions)
		wallets.POST("/:id/send", rl("send"), walletHandler.Send)
		wallets.POST("/:id/fund", rl("fund"), walletHandler.Fund)
		wallets.PUT("/:id/status", rl("admin"), walletHandler.SetStatus)
	}

	txHandler := NewTransactionHandler(deps.WalletSvc, deps.LedgerSvc)
	transactions := v1.Group("/transactions")
	{
		transactions.GET("/:id", rl("read"), txHandler.Get)
		transactions.GET("/:id/verify", rl("read"), txHandler.Verify)
		transactions.PUT("/:id/status", rl("admin"), txHandler.SetStatus)
	}

	return r
}
