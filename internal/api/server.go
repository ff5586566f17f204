// Package api exposes the storefront and admin HTTP surface.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"gamekey-store/config"
	"gamekey-store/internal/auth"
	"gamekey-store/internal/catalog"
	"gamekey-store/internal/checkout"
	"gamekey-store/internal/coupon"
	"gamekey-store/internal/database"
	"gamekey-store/internal/events"
	"gamekey-store/internal/fulfillment"
	"gamekey-store/internal/logging"
	"gamekey-store/internal/payment"
)

// RateLimiter provides simple in-memory rate limiting per client IP
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Server is the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	repo        *database.Repository
	eventBus    *events.EventBus
	catalog     *catalog.Service
	checkout    *checkout.Service
	fulfillment *fulfillment.Service
	coupons     *coupon.Engine
	authService *auth.Service
	stripe      *payment.StripeClient
	moneymotion *payment.MoneyMotionClient
	config      config.ServerConfig
	rateLimiter *RateLimiter
	wsHub       *WSHub
	logger      zerolog.Logger
}

// Deps bundles the services the server routes to
type Deps struct {
	Repo        *database.Repository
	EventBus    *events.EventBus
	Catalog     *catalog.Service
	Checkout    *checkout.Service
	Fulfillment *fulfillment.Service
	Coupons     *coupon.Engine
	Auth        *auth.Service
	Stripe      *payment.StripeClient
	MoneyMotion *payment.MoneyMotionClient
}

// NewServer creates the API server and wires up all routes
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.PublicBaseURL != "" {
		corsConfig.AllowOrigins = []string{cfg.PublicBaseURL, "http://localhost:5173", "http://localhost:3000"}
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		repo:        deps.Repo,
		eventBus:    deps.EventBus,
		catalog:     deps.Catalog,
		checkout:    deps.Checkout,
		fulfillment: deps.Fulfillment,
		coupons:     deps.Coupons,
		authService: deps.Auth,
		stripe:      deps.Stripe,
		moneymotion: deps.MoneyMotion,
		config:      cfg,
		rateLimiter: NewRateLimiter(120, time.Minute),
		wsHub:       NewWSHub(),
		logger:      logging.For("api"),
	}

	server.setupRoutes()
	go server.wsHub.Run()
	server.wsHub.SubscribeBus(deps.EventBus)

	return server
}

// rateLimitMiddleware limits requests per client IP. Webhook endpoints are
// exempt: the payment providers control their own retry cadence and a 429
// would just delay key delivery.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	// provider webhooks, no rate limiting
	s.router.POST("/api/stripe/webhook", s.handleStripeWebhook)
	s.router.POST("/api/moneymotion/webhook", s.handleMoneyMotionWebhook)
	// aliases kept for provider dashboards configured with the old paths
	hooks := s.router.Group("/webhooks")
	{
		hooks.POST("/stripe", s.handleStripeWebhook)
		hooks.POST("/moneymotion", s.handleMoneyMotionWebhook)
	}

	// public storefront API
	api := s.router.Group("/api")
	api.Use(s.rateLimitMiddleware())
	{
		api.GET("/products", s.handleListProducts)
		api.GET("/products/:slug", s.handleGetProduct)
		api.GET("/status", s.handleStatusPage)
		api.POST("/coupons/validate", s.handleValidateCoupon)
		api.POST("/checkout", s.handleCreateCheckout)
		// legacy alias kept for older storefront builds
		api.POST("/storrik/create-checkout", s.handleLegacyCreateCheckout)
		api.GET("/orders/lookup", s.handleOrderLookup)

		api.GET("/payments/moneymotion/check-status", s.handleMoneyMotionCheckStatus)
		api.GET("/payments/check-status", s.handleLegacyCheckStatus)

		api.POST("/auth/login", s.handleLogin)
		api.POST("/auth/refresh", s.handleRefresh)
		api.POST("/auth/accept-invite", s.handleAcceptInvite)
	}

	// live event feed does its own token check, browsers cannot set the
	// Authorization header on websocket connects
	s.router.GET("/api/admin/live", s.handleWebSocket)

	// admin API, token required
	admin := s.router.Group("/api/admin")
	admin.Use(s.rateLimitMiddleware(), s.authService.Middleware())
	{
		admin.POST("/logout", s.handleLogout)
		admin.GET("/me", s.handleMe)

		orders := admin.Group("", auth.RequirePermission(auth.PermOrdersView))
		{
			orders.GET("/orders", s.handleListOrders)
			orders.GET("/orders/:id", s.handleGetOrder)
		}
		admin.PUT("/orders/:id/status", auth.RequirePermission(auth.PermOrdersManage), s.handleUpdateOrderStatus)

		licenses := admin.Group("", auth.RequirePermission(auth.PermLicenses))
		{
			licenses.GET("/licenses", s.handleListLicenses)
			licenses.POST("/licenses/bulk", s.handleBulkAddLicenses)
			licenses.DELETE("/licenses/:id", s.handleDeleteLicense)
			licenses.POST("/orders/:id/revoke-licenses", s.handleRevokeOrderLicenses)
			licenses.GET("/stock", s.handleStockSummary)
		}

		products := admin.Group("", auth.RequirePermission(auth.PermProducts))
		{
			products.POST("/products", s.handleCreateProduct)
			products.POST("/products/:id/variants", s.handleCreateVariant)
			products.PUT("/products/:id/status", s.handleUpdateProductStatus)
		}

		coupons := admin.Group("", auth.RequirePermission(auth.PermCoupons))
		{
			coupons.GET("/coupons", s.handleListCoupons)
			coupons.POST("/coupons", s.handleCreateCoupon)
			coupons.PUT("/coupons/:id/active", s.handleSetCouponActive)
			coupons.DELETE("/coupons/:id", s.handleDeleteCoupon)
		}

		webhooks := admin.Group("", auth.RequirePermission(auth.PermWebhooks))
		{
			webhooks.GET("/webhooks", s.handleListWebhooks)
			webhooks.POST("/webhooks", s.handleCreateWebhook)
			webhooks.PUT("/webhooks/:id", s.handleUpdateWebhook)
			webhooks.DELETE("/webhooks/:id", s.handleDeleteWebhook)
		}

		team := admin.Group("", auth.RequirePermission(auth.PermTeam))
		{
			team.GET("/team", s.handleListTeam)
			team.POST("/team/invite", s.handleInviteMember)
			team.PUT("/team/:id/permissions", s.handleUpdateMemberPermissions)
			team.DELETE("/team/:id", s.handleRemoveMember)
			team.GET("/settings", s.handleGetSettings)
			team.PUT("/settings", s.handleUpdateSettings)
		}

		audit := admin.Group("", auth.RequirePermission(auth.PermAudit))
		{
			audit.GET("/audit", s.handleListAudit)
		}

		logins := admin.Group("", auth.RequirePermission(auth.PermLogins))
		{
			logins.GET("/active-sessions", s.handleActiveSessions)
			logins.DELETE("/active-sessions", s.handleForceLogout)
		}
	}
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error":   message,
	})
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
