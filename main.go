package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"agenda-tracker/api"
	"agenda-tracker/config"
	"agenda-tracker/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := newLogger(cfg, os.Stdout)

	backend, err := storage.Open(cfg)
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	if c, ok := backend.(io.Closer); ok {
		defer c.Close()
	}

	var store api.Storage = backend
	var rc *redis.Client
	if cfg.RedisConnection != "" {
		rc = storage.NewRedisClient(cfg.RedisConnection)
		defer rc.Close()
		store = storage.NewCache(backend, rc, cfg.CacheTTL)
	}

	opts := api.Options{
		Settings:       cfg.Dashboard,
		Broker:         api.NewBroker(rc, logger),
		DevIdentity:    cfg.DevIdentity,
		PublishWorkers: cfg.PublishWorkers,
		PublishBuffer:  cfg.PublishBuffer,
	}
	if rc != nil {
		opts.Locker = api.NewRedisForwardLocker(rc, cfg.ForwardLockTTL)
	} else {
		opts.Locker = api.NewMemoryForwardLocker(cfg.ForwardLockTTL)
	}
	if cfg.EventsQueue != "" {
		q, err := storage.NewEventQueue(cfg.ConnectionString, cfg.EventsQueue)
		if err != nil {
			logger.Fatalf("event queue: %v", err)
		}
		opts.Events = q
	}

	auth, err := api.NewAuth(cfg)
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}
	defer auth.Close()
	if cfg.DevIdentity {
		logger.Warn("DEV_IDENTITY is on; X-Line-Uid headers are trusted")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echoprometheus.NewMiddleware("agenda"))
	e.GET("/metrics", echoprometheus.NewHandler())

	drain := api.Register(e, store, auth, logger, opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go opts.Broker.Run(ctx)

	listenAddr := ":" + cfg.Port
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}
	go func() {
		logger.Infof("listening on %s, backend: %s", listenAddr, cfg.Backend)
		if err := e.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown")
	}
	drain()
}

// newLogger applies DEBUG, LOG_FORMAT and LOG_FILE. The file sink rotates
// through lumberjack.
func newLogger(cfg config.Config, out io.Writer) *log.Logger {
	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	}
	if cfg.LogFile != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // MB
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		})
	}
	logger.SetOutput(out)
	return logger
}
