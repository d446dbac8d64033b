package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/SchenleyKB/evermore-cns/internal/audit"
	"github.com/SchenleyKB/evermore-cns/internal/gateway"
	"github.com/SchenleyKB/evermore-cns/internal/governance"
	"github.com/SchenleyKB/evermore-cns/internal/handler"
	"github.com/SchenleyKB/evermore-cns/internal/registry"
	"github.com/SchenleyKB/evermore-cns/internal/trust"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("cns exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("cns")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("database.url", "")
	viper.SetDefault("forward.timeout", "15s")

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	// ── Stores ───────────────────────────────────────────────────────────────
	// With database.url set, trust scores and the audit chain are durable;
	// otherwise everything runs in memory. Agent cards are always in-memory —
	// they are operational configuration, re-registered at startup.
	var (
		ledger   trust.Ledger
		auditLog audit.Log
	)
	if dbURL := viper.GetString("database.url"); dbURL != "" {
		db, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()

		if err := db.Ping(context.Background()); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")

		ledger = trust.NewPostgresLedger(db, logger)

		pgLog := audit.NewPostgresLog(db, logger)
		startCtx := context.Background()
		if err := pgLog.EnsureGenesis(startCtx); err != nil {
			return fmt.Errorf("audit log setup: %w", err)
		}
		if err := pgLog.Verify(startCtx); err != nil {
			logger.Warn("audit chain integrity check FAILED", zap.Error(err))
		} else {
			n, _ := pgLog.Len(startCtx)
			root, _ := pgLog.Root(startCtx)
			logger.Info("audit chain verified",
				zap.Int("entries", n),
				zap.String("root", root),
			)
		}
		auditLog = pgLog
	} else {
		logger.Info("no database.url configured, using in-memory stores")
		ledger = trust.New()
		auditLog = audit.NewMemoryLog()
	}

	store := registry.NewMemoryStore()

	// ── Governance + Gateway ─────────────────────────────────────────────────
	engine := governance.NewEngine(ledger, logger)
	engine.SetAuditLog(auditLog)

	fwdTimeout, _ := time.ParseDuration(viper.GetString("forward.timeout"))
	forwarder := gateway.NewHTTPForwarder(fwdTimeout)
	gw := gateway.New(store, engine, forwarder, logger)

	agentHandler := handler.NewAgentHandler(store, logger)
	govHandler := handler.NewGovernanceHandler(store, engine, logger)
	gwHandler := handler.NewGatewayHandler(gw, logger)
	auditHandler := handler.NewAuditHandler(auditLog, logger)

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := viper.GetStringSlice("server.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", handler.CallerHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	// Per-IP rate limiting
	if rps := viper.GetInt("server.rate_limit_rps"); rps > 0 {
		router.Use(handler.RateLimiter(rps, rps*2))
	}

	router.Use(handler.RequestID())
	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	// Health + metrics (public, no auth)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", handler.MetricsHandler())

	// API v1
	v1 := router.Group("/api/v1")
	agentHandler.Register(v1)
	govHandler.Register(v1)
	gwHandler.Register(v1)
	auditHandler.Register(v1)

	// ── Serve ────────────────────────────────────────────────────────────────
	httpPort := viper.GetInt("server.port")
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("cns gateway listening", zap.Int("port", httpPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	<-quit
	logger.Info("shutting down cns gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("cns gateway stopped")
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString("request_id")),
		)
	}
}
