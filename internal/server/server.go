// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/mbd888/sendgate/internal/circuitbreaker"
	"github.com/mbd888/sendgate/internal/config"
	"github.com/mbd888/sendgate/internal/counter"
	"github.com/mbd888/sendgate/internal/delivery"
	"github.com/mbd888/sendgate/internal/dispatch"
	"github.com/mbd888/sendgate/internal/health"
	"github.com/mbd888/sendgate/internal/idempotency"
	"github.com/mbd888/sendgate/internal/logging"
	"github.com/mbd888/sendgate/internal/metrics"
	"github.com/mbd888/sendgate/internal/pricing"
	"github.com/mbd888/sendgate/internal/provider"
	"github.com/mbd888/sendgate/internal/ratelimit"
	"github.com/mbd888/sendgate/internal/routing"
	"github.com/mbd888/sendgate/internal/security"
	"github.com/mbd888/sendgate/internal/send"
	"github.com/mbd888/sendgate/internal/tenant"
	"github.com/mbd888/sendgate/internal/traces"
	"github.com/mbd888/sendgate/internal/transaction"
	"github.com/mbd888/sendgate/internal/validation"
)

// Version is set at build time via ldflags.
var Version = "0.1.0"

const providerTimeout = 15 * time.Second

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg        *config.Config
	tenants    tenant.Store
	txns       transaction.Store
	limiter    *ratelimit.Limiter
	idem       *idempotency.Coordinator
	breaker    *circuitbreaker.Breaker
	dispatcher *dispatch.Dispatcher
	sender     *send.Service
	deliverer  send.Deliverer
	checks     *health.Registry

	db           *sql.DB               // nil if using in-memory
	redis        *counter.RedisBackend // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	stopTraces   func(context.Context) error
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithDeliverer sets a custom delivery backend (for testing)
func WithDeliverer(d send.Deliverer) Option {
	return func(s *Server) {
		s.deliverer = d
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
		checks: health.NewRegistry(),
	}

	// Apply options first (may set deliverer/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.tenants = tenant.NewPostgresStore(db)
		s.txns = transaction.NewPostgresStore(db)
		s.checks.Register("database", health.DBChecker("database", db))
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		s.tenants = tenant.NewMemoryStore()
		s.txns = transaction.NewMemoryStore()
		s.logger.Warn("using in-memory storage, data will not survive restarts")
	}

	// Counter backend for rate limiting and idempotency (Redis if REDIS_URL
	// set, otherwise in-memory). In-memory is fine for a single instance but
	// breaks admission and exactly-once guarantees across replicas.
	var backend counter.Backend
	if cfg.RedisURL != "" {
		rb, err := counter.NewRedisBackend(cfg.RedisURL, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.redis = rb
		backend = rb
		s.checks.Register("redis", health.PingChecker("redis", rb))
		s.logger.Info("using Redis counters")
	} else {
		backend = counter.NewMemoryBackend()
		s.logger.Warn("using in-memory counters, limits are per-instance only")
	}

	s.limiter = ratelimit.New(backend, s.logger)
	s.idem = idempotency.New(backend, s.logger)

	// Delivery: providers, routing policy, circuit breaker
	s.breaker = circuitbreaker.New(cfg.BreakerThreshold, time.Duration(cfg.BreakerOpenSeconds)*time.Second)

	if s.deliverer == nil {
		providers := []provider.Provider{
			provider.NewGlobalClient(
				cfg.DefaultProviderName,
				cfg.DefaultProviderBaseURL,
				cfg.DefaultProviderAccountID,
				cfg.DefaultProviderToken,
				providerTimeout,
			),
		}
		regionalName := ""
		if cfg.RegionalConfigured() {
			regionalName = cfg.RegionalProviderName
			providers = append(providers, provider.NewRegionalClient(
				cfg.RegionalProviderName,
				cfg.RegionalProviderBaseURL,
				cfg.RegionalProviderAPIKey,
				providerTimeout,
			))
			s.logger.Info("regional provider enabled", "provider", regionalName)
		}
		policy := routing.NewPolicy(cfg.DefaultProviderName, regionalName)
		s.deliverer = delivery.NewRouter(providers, policy, s.breaker, s.logger)
	}

	// Pricing
	pricer, err := pricing.NewEngine(pricing.RateCard(cfg.RateCard()), cfg.MarginPct)
	if err != nil {
		return nil, fmt.Errorf("invalid pricing configuration: %w", err)
	}

	// Event dispatch (webhooks + audit log)
	sinks := []dispatch.Sink{dispatch.NewAuditSink(s.logger)}
	if cfg.WebhookSecret != "" {
		sinks = append(sinks, dispatch.NewWebhookSink(s.tenants, cfg.WebhookSecret))
		s.logger.Info("webhook delivery enabled")
	} else {
		s.logger.Warn("WEBHOOK_SECRET not set, webhook delivery disabled")
	}
	s.dispatcher = dispatch.NewDispatcher(sinks, cfg.DispatchQueueSize, cfg.DispatchWorkers, s.logger)

	s.sender = send.NewService(s.tenants, s.limiter, s.idem, s.deliverer, pricer, s.txns, s.dispatcher, s.logger)

	// Tracing (no-op unless OTEL_EXPORTER_OTLP_ENDPOINT is set)
	stopTraces, err := traces.Init(context.Background(), cfg.OTLPEndpoint, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	s.stopTraces = stopTraces

	// Router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS
	s.router.Use(security.CORSMiddleware(s.cfg.AllowedOrigins))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// authMiddleware resolves the tenant from the API key. Keys are accepted as
// "Authorization: Bearer <key>" or "X-API-Key: <key>".
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "API key required (Authorization: Bearer or X-API-Key header)",
			})
			return
		}

		t, err := s.tenants.GetByAPIKey(c.Request.Context(), apiKey)
		if err != nil {
			if errors.Is(err, tenant.ErrTenantNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":   "unauthorized",
					"message": "Invalid API key",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   "backend_unavailable",
				"message": "Could not verify API key",
			})
			return
		}

		ctx := logging.WithTenantID(c.Request.Context(), t.ID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(send.TenantContextKey, t)

		c.Next()
	}
}

// adminAuthMiddleware guards provisioning and provider-callback routes with a
// shared secret. An empty secret leaves these routes open, which Validate only
// permits outside production.
func (s *Server) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminSecret == "" {
			c.Next()
			return
		}
		got := c.GetHeader("X-Admin-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.AdminSecret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid admin secret",
			})
			return
		}
		c.Next()
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/api", s.infoHandler)

	// V1 API (tenant-authenticated)
	v1 := s.router.Group("/v1")
	v1.Use(s.authMiddleware())
	sendHandler := send.NewHandler(s.sender, s.txns)
	sendHandler.RegisterRoutes(v1)

	// Provider callbacks (delivery receipts)
	internal := s.router.Group("/internal")
	internal.Use(s.adminAuthMiddleware())
	sendHandler.RegisterReceiptRoutes(internal)

	// Tenant provisioning
	admin := s.router.Group("/admin")
	admin.Use(s.adminAuthMiddleware())
	tenantHandler := tenant.NewHandler(s.tenants)
	tenantHandler.RegisterAdminRoutes(admin)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse is the /health response body
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.checks.CheckAll(c.Request.Context())

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		if st.Healthy {
			checks[st.Name] = "healthy"
		} else {
			checks[st.Name] = "unhealthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   Version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Sendgate",
		"description": "Multi-tenant communications gateway",
		"version":     Version,
		"services":    []string{"sms", "email", "data", "airtime"},
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the server and blocks until shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
			"default_provider", s.cfg.DefaultProviderName,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start event dispatch workers
	s.dispatcher.Start()

	// Periodic DB pool stats
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for background goroutines
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	if !s.cfg.IsDevelopment() {
		time.Sleep(5 * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Drain queued events before closing stores
	if err := s.dispatcher.Shutdown(ctx); err != nil {
		s.logger.Error("dispatcher drain error", "error", err)
	} else {
		s.logger.Info("dispatcher drained")
	}

	// Flush traces
	if s.stopTraces != nil {
		if err := s.stopTraces(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
	}

	// Close Redis connection pool
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
