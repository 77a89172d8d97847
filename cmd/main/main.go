package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"www.github.com/Wanderer0074348/RoastRouter/src/auth"
	"www.github.com/Wanderer0074348/RoastRouter/src/budget"
	"www.github.com/Wanderer0074348/RoastRouter/src/cache"
	"www.github.com/Wanderer0074348/RoastRouter/src/chat"
	"www.github.com/Wanderer0074348/RoastRouter/src/collaborators"
	"www.github.com/Wanderer0074348/RoastRouter/src/config"
	"www.github.com/Wanderer0074348/RoastRouter/src/handlers"
	"www.github.com/Wanderer0074348/RoastRouter/src/inference"
	"www.github.com/Wanderer0074348/RoastRouter/src/logger"
	"www.github.com/Wanderer0074348/RoastRouter/src/middleware"
	"www.github.com/Wanderer0074348/RoastRouter/src/models"
	"www.github.com/Wanderer0074348/RoastRouter/src/router"
	"www.github.com/Wanderer0074348/RoastRouter/src/telemetry"
	"www.github.com/Wanderer0074348/RoastRouter/src/utils"
)

func init() {
	if err := godotenv.Load(); err != nil {
		logger.Log.Info("No .env file found, using system environment variables")
	} else {
		logger.Log.Info("Loaded .env file")
	}
}

func main() {
	log := logger.Log

	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}
	log.Info("✓ Config loaded successfully")

	redisCache, err := cache.NewRedisCache(&cfg.Redis, cfg.Context.SnapshotRetention)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize Redis")
	}
	defer redisCache.Close()
	log.WithField("address", cfg.Redis.Address).Info("✓ Redis connected")

	var tierStore models.TierStore = redisCache
	if cfg.Context.Store == "memory" {
		tierStore = cache.NewMemoryTierStore()
	}

	collaboratorClient := collaborators.NewHTTPClient(&cfg.Collaborators)
	contextCache := cache.NewContextCache(&cfg.Context, tierStore,
		collaborators.NewTierSources(&cfg.Collaborators, collaboratorClient))
	log.WithFields(logrus.Fields{
		"store":      cfg.Context.Store,
		"static_ttl": cfg.Context.StaticTTL,
		"slow_ttl":   cfg.Context.SlowTTL,
	}).Info("✓ Context cache ready")

	var ledgerStore models.LedgerStore
	if cfg.Budget.PersistLedger {
		ledgerStore = budget.NewRedisLedgerStore(redisCache.GetClient())
	}
	enforcer := budget.NewEnforcer(&cfg.Budget, ledgerStore)
	log.WithFields(logrus.Fields{
		"max_requests":  cfg.Budget.MaxRequestsPerWindow,
		"window":        cfg.Budget.RateWindow,
		"daily_tokens":  cfg.Budget.DailyTokenLimit,
		"daily_cost":    cfg.Budget.DailyCostLimitUSD,
		"reset_zone":    cfg.Budget.ResetTimezone,
		"persist_usage": cfg.Budget.PersistLedger,
	}).Info("✓ Budget enforcer ready")

	strategy, err := router.NewStaticRoutingStrategy(cfg.Routes, utils.NewCostTable())
	if err != nil {
		log.WithError(err).Fatal("Invalid route table")
	}
	providers, err := inference.NewProviders(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize model providers")
	}
	modelRouter := router.NewModelRouter(strategy, providers, cfg.Router.DispatchTimeout)
	for _, route := range strategy.Routes() {
		log.WithFields(logrus.Fields{
			"intent":   route.Intent,
			"model":    route.ModelID,
			"provider": route.Provider,
		}).Info("  - route")
	}

	var remote models.RemoteIntentClassifier
	if cfg.Classifier.RemoteEnabled {
		if cfg.Classifier.APIKey == "" {
			log.Warn("Remote classifier enabled but no API key set, using heuristics only")
		} else {
			remote = router.NewOpenAIClassifier(&cfg.Classifier)
			log.WithField("model", cfg.Classifier.Model).Info("✓ Remote intent classifier enabled")
		}
	}
	classifier := router.NewIntentClassifier(&cfg.Classifier, remote)

	sinks := []models.RoutingLogSink{telemetry.NewLogSink(log)}
	if cfg.Telemetry.RedisStream != "" {
		sinks = append(sinks, telemetry.NewRedisStreamSink(redisCache.GetClient(), cfg.Telemetry.RedisStream, cfg.Telemetry.StreamMaxLen))
	}
	var analytics *telemetry.SQLiteSink
	if cfg.Telemetry.SQLitePath != "" {
		analytics, err = telemetry.NewSQLiteSink(cfg.Telemetry.SQLitePath)
		if err != nil {
			log.WithError(err).Fatal("Failed to open routing log database")
		}
		defer analytics.Close()
		sinks = append(sinks, analytics)
	}
	recorder := telemetry.NewRecorder(cfg.Telemetry.QueueSize, sinks...)
	log.WithField("sinks", len(sinks)).Info("✓ Routing telemetry ready")

	history := chat.NewSessionStore(redisCache.GetClient(), &cfg.Chat)
	pipeline := chat.NewPipeline(enforcer, classifier, contextCache, modelRouter, recorder, history)

	chatHandler := handlers.NewChatHandler(pipeline, enforcer)
	chatHandler.SetHistory(history)
	chatHandler.SetContextInvalidator(contextCache)

	deps := map[string]handlers.Pinger{"redis": redisCache}
	if analytics != nil {
		chatHandler.SetAnalytics(analytics)
		deps["sqlite"] = analytics
	}
	healthHandler := handlers.NewHealthHandler(deps)

	authMiddleware := middleware.NewAuthMiddleware(auth.NewSessionStore(redisCache.GetClient()), cfg.Auth.TrustUserHeader)
	log.WithField("trust_user_header", cfg.Auth.TrustUserHeader).Info("✓ Authentication initialized")

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(requestLogger())
	r.Use(corsMiddleware())

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthHandler.HealthCheck)

		protected := v1.Group("")
		protected.Use(authMiddleware.RequireUser())
		{
			protected.POST("/chat", chatHandler.HandleChat)
			protected.DELETE("/chat/history", chatHandler.ClearHistory)
			protected.GET("/usage", chatHandler.GetUsage)
			protected.POST("/context/invalidate", chatHandler.InvalidateContext)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	log.WithField("port", cfg.Server.Port).Info("🚀 RoastRouter running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	// In-flight requests are done; flush the routing log before closing stores.
	recorder.Close()
	if dropped := recorder.Dropped(); dropped > 0 {
		log.WithField("dropped", dropped).Warn("Routing log entries were dropped")
	}

	log.Info("Server exited")
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"user_id":    middleware.UserID(c),
		}).Debug("Request handled")
	}
}

func corsMiddleware() gin.HandlerFunc {
	// Defaults to localhost for development
	allowedOrigins := []string{
		"http://localhost:3000",
		"http://localhost:3001",
	}
	if env := os.Getenv("ALLOWED_ORIGINS"); env != "" {
		allowedOrigins = strings.Split(env, ",")
		for i := range allowedOrigins {
			allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
		}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Requests without Origin (curl, health probes) pass through
		if origin == "" {
			c.Next()
			return
		}

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin {
				allowed = true
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}

		if !allowed {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
