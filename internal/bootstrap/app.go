package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	httpHandler "collaborative-canvas/internal/handler/http"
	wsHandler "collaborative-canvas/internal/handler/websocket"
	"collaborative-canvas/internal/hub"
	"collaborative-canvas/internal/infra/discovery"
	"collaborative-canvas/internal/infra/setup"
	redisstate "collaborative-canvas/internal/infra/state/redis"
	"collaborative-canvas/internal/middleware"
	"collaborative-canvas/internal/service"
	"collaborative-canvas/internal/session"
	"collaborative-canvas/internal/tasks"
	"collaborative-canvas/internal/worker"
)

// App 包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	Registry    *session.Registry
	Hub         *hub.Hub
	Router      *gin.Engine
	HttpServer  *http.Server
	RedisClient *redis.Client        // 未配置 Redis 时为 nil
	AsynqClient *asynq.Client        // 同上
	AsynqServer *worker.WorkerServer // 同上

	redisClientOpt asynq.RedisClientOpt
	scheduler      *asynq.Scheduler
	announcer      *discovery.Announcer
}

// NewLogger 按配置创建 logger
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel) // LoadConfig 已校验
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	return log
}

// NewApp 创建并初始化应用的所有组件
func NewApp(ctx context.Context, cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	// 1. Logger，组件通过 logrus 包级函数记录日志，这里同步标准 logger 的设置
	log := NewLogger(cfg)
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(log.GetLevel())
	log.Infof("Logger initialized (Level: %s, Env: %s)", log.GetLevel().String(), cfg.AppEnv)

	app := &App{Config: cfg, Log: log}

	// 2. 可选的 Redis 基础设施
	if cfg.RedisEnabled() {
		log.Info("Initializing Redis infrastructure...")
		redisClient, err := setup.InitRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to init Redis: %w", err)
		}
		app.RedisClient = redisClient
		app.redisClientOpt = setup.AsynqRedisOpt(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		app.AsynqClient = asynq.NewClient(app.redisClientOpt)
		log.Info("Redis and Asynq client initialized")
	} else {
		log.Info("REDIS_ADDR not set, rate limiting and stats reporting disabled")
	}

	// 3. 会话注册表和 Services
	app.Registry = session.NewRegistry(session.WithPalette(cfg.Palette))
	collabService := service.NewCollaborationService(app.Registry)
	sessionService := service.NewSessionService(app.Registry)
	log.Info("Services initialized")

	// 4. Hub
	app.Hub = hub.NewHub(collabService, hub.WithMaxMessageSize(cfg.MaxMessageSize))

	// 5. Worker Server
	if cfg.RedisEnabled() {
		statsRepo := redisstate.NewRedisStatsRepository(app.RedisClient, cfg.KeyPrefix)
		app.AsynqServer = worker.NewWorkerServer(app.redisClientOpt, app.Registry, statsRepo, worker.DefaultStatsTTL, log)
		log.Info("Worker server initialized")
	}

	// 6. 路由
	app.Router = NewRouter(cfg, log, app.Hub, httpHandler.NewSessionHandler(sessionService),
		wsHandler.NewWebSocketHandler(app.Hub, cfg.CORSOrigin), app.RedisClient)

	// 7. HTTP Server
	app.HttpServer = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info("Application assembled successfully")
	return app, nil
}

// NewRouter 创建 Gin Engine 并注册中间件和路由。redisClient 为 nil 时不启用限流。
func NewRouter(cfg *Config, log *logrus.Logger, h *hub.Hub, sessionHandler *httpHandler.SessionHandler,
	ws *wsHandler.WebSocketHandler, redisClient *redis.Client) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg.CORSOrigin))

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message":     "pong",
			"connections": h.ConnectionCount(),
			"sessions":    h.ActiveSessionKeys(),
		})
	})

	// WebSocket 连接不计入限流
	router.GET("/ws", ws.HandleConnection)
	router.GET("/ws/room/:sessionKey", ws.HandleConnection)

	api := router.Group("/api")
	if redisClient != nil {
		api.Use(middleware.RateLimit(redisClient, cfg.KeyPrefix, cfg.RateLimitMax, cfg.RateLimitWindow))
	}
	{
		api.GET("/sessions", sessionHandler.ListSessions)
		api.GET("/sessions/:sessionKey/state", sessionHandler.GetState)
		api.GET("/sessions/:sessionKey/participants", sessionHandler.ListParticipants)
		api.GET("/sessions/:sessionKey/export.pdf", sessionHandler.ExportPDF)
	}
	return router
}

// Start 启动应用的后台 goroutine 和 HTTP 服务器
func (a *App) Start() error {
	a.Log.Info("Starting application background routines...")
	go a.Hub.Run()
	a.Log.Info("Hub routine started")

	if a.AsynqServer != nil {
		if err := a.AsynqServer.Start(); err != nil {
			return fmt.Errorf("failed to start worker server: %w", err)
		}
		a.registerPeriodicTasks()
	}

	if a.Config.MDNSEnabled {
		port, err := strconv.Atoi(a.Config.ServerPort)
		if err != nil {
			a.Log.WithError(err).Warn("Invalid SERVER_PORT for mDNS, announce skipped")
		} else if announcer, err := discovery.Announce(a.Config.MDNSInstance, port); err != nil {
			a.Log.WithError(err).Warn("Failed to start mDNS announce")
		} else {
			a.announcer = announcer
		}
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
	return nil
}

func (a *App) registerPeriodicTasks() {
	task, err := tasks.NewSessionStatsTask(time.Now())
	if err != nil {
		a.Log.Errorf("Failed to create session stats task: %v", err)
		return
	}

	// 启动时先上报一次
	if info, err := a.AsynqClient.Enqueue(task, asynq.Queue("default")); err != nil {
		a.Log.WithError(err).Warn("Failed to enqueue initial session stats task")
	} else {
		a.Log.WithField("task_id", info.ID).Debug("Initial session stats task enqueued")
	}

	scheduler := asynq.NewScheduler(a.redisClientOpt, &asynq.SchedulerOpts{})
	entryID, err := scheduler.Register(a.Config.StatsSchedule, task, asynq.Queue("default"))
	if err != nil {
		a.Log.Errorf("Could not register periodic session stats task: %v", err)
		return
	}
	a.Log.Infof("Periodic session stats task registered with schedule '%s' (EntryID: %s)", a.Config.StatsSchedule, entryID)

	if err := scheduler.Start(); err != nil {
		a.Log.Errorf("Asynq scheduler failed to start: %v", err)
		return
	}
	a.scheduler = scheduler
	a.Log.Info("Asynq scheduler started")
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 停止局域网广播
	if err := a.announcer.Shutdown(); err != nil {
		a.Log.Errorf("Error stopping mDNS announce: %v", err)
	}

	// 2. 停止接收新连接
	a.Log.Info("Shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 3. 停止 Hub，关闭所有 WebSocket 连接
	if a.Hub != nil {
		a.Hub.Stop()
		select {
		case <-a.Hub.Stopped():
		case <-time.After(5 * time.Second):
			a.Log.Warn("Timeout waiting for hub to stop")
		}
	}

	// 4. 停止调度器和 Worker
	if a.scheduler != nil {
		a.scheduler.Shutdown()
	}
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	// 5. 关闭 Asynq Client 和 Redis
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		} else {
			a.Log.Info("Redis connection closed.")
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// CORSMiddleware 设置跨域响应头，OPTIONS 预检直接返回 204
func CORSMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Requested-With")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		switch {
		case errorMessage != "":
			entry.Error(errorMessage)
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}
