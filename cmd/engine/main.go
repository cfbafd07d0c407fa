package main

import (
	"context"
	"net/http"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Kvkthecreator/yarnnnn-sub001/internal/config"
	cronrunner "github.com/Kvkthecreator/yarnnnn-sub001/internal/cron"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/db"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/delivery"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/execution"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/feedback"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/handler"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/llm"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/logger"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/notify"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/platform"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/registry"
	gormrepository "github.com/Kvkthecreator/yarnnnn-sub001/internal/repository/gorm"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/scheduler"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/signal"
)

func main() {
	cfgPath := os.Getenv("YN_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("YN_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	generator, err := llm.NewGeminiClient(ctx, cfg.LLM, os.Getenv(cfg.LLM.APIKeyEnv))
	if err != nil {
		logger.Fatal("llm client init failed", zap.Error(err))
	}
	defer generator.Close()

	gateway := initGateway(logger)

	store := gormrepository.New(dbConn.Gorm)
	notifier := &notify.LogNotifier{Logger: logger}
	registrySvc := &registry.Service{Repo: store, Logger: logger}
	feedbackEngine := &feedback.Engine{Repo: store, Logger: logger, Config: cfg.Feedback}
	pipeline := &execution.Pipeline{
		Repo:              store,
		Gen:               generator,
		Strategies:        execution.NewStrategySet(gateway, cfg.Execution, logger),
		Notifier:          notifier,
		Logger:            logger,
		Config:            cfg.Execution,
		RecentPreferences: cfg.Feedback.RecentObservations,
	}
	deliverySvc := &delivery.Service{
		Repo:     store,
		Gateway:  gateway,
		Notifier: notifier,
		Feedback: feedbackEngine,
		Registry: registrySvc,
		Logger:   logger,
		Config:   cfg.Delivery,
	}
	sched := &scheduler.Scheduler{
		Repo:     store,
		Registry: registrySvc,
		Pipeline: pipeline,
		Delivery: deliverySvc,
		Extractor: &signal.Extractor{
			Gateway:     gateway,
			Connections: gateway,
			Logger:      logger,
			Config:      cfg.Signals,
		},
		Reasoner: &signal.Reasoner{
			Repo:   store,
			Gen:    generator,
			Logger: logger,
			Config: cfg.Signals,
		},
		Logger:  logger,
		Config:  cfg.Scheduler,
		Signals: cfg.Signals,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	deliverableHandler := &handler.DeliverableHandler{Repo: store, Registry: registrySvc, Scheduler: sched}
	deliverableHandler.Register(engine)
	versionHandler := &handler.VersionHandler{Repo: store, Delivery: deliverySvc}
	versionHandler.Register(engine)
	activityHandler := &handler.ActivityHandler{Repo: store}
	activityHandler.Register(engine)

	cronRunner := cronrunner.New(logger, ctx)
	if err := sched.Register(cronRunner); err != nil {
		logger.Fatal("cron registration failed", zap.Error(err))
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// initGateway wires the platform gateway. Concrete API clients are deployed
// as a separate component; without one, reads return nothing and the signal
// pipeline stays silent.
func initGateway(logger *zap.Logger) platform.FullGateway {
	return &platform.NoopGateway{Logger: logger}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
