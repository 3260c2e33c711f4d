package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zhouzirui/magic-chat/backend/internal/config"
	"github.com/zhouzirui/magic-chat/backend/internal/handler"
	handlerchat "github.com/zhouzirui/magic-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/magic-chat/backend/internal/logging"
	"github.com/zhouzirui/magic-chat/backend/internal/metrics"
	"github.com/zhouzirui/magic-chat/backend/internal/render"
	"github.com/zhouzirui/magic-chat/backend/internal/service/ai"
	"github.com/zhouzirui/magic-chat/backend/internal/service/chat"
	"github.com/zhouzirui/magic-chat/backend/internal/service/chat/store"
	"github.com/zhouzirui/magic-chat/backend/internal/service/remote"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer func() { _ = logger.Sync() }()

	if envErr != nil {
		logger.Debug("no .env file loaded, using system environment only", zap.Error(envErr))
	}

	transcripts, err := newStore(cfg.Store, "transcript:")
	if err != nil {
		logger.Fatal("failed to initialize transcript store", zap.Error(err))
	}
	defer transcripts.Close()

	collector := metrics.New()
	renderer := render.New(cfg.Symbols.AssetBase, logger.Named("render"), render.WithMetrics(collector))

	client := remote.NewClient(cfg.Remote.URL,
		remote.WithTimeout(cfg.Remote.Timeout),
		remote.WithLogger(logger.Named("remote")))

	chatService := chat.NewService(client, transcripts,
		chat.WithBroker(chat.NewBroker(0)),
		chat.WithMetrics(collector),
		chat.WithLogger(logger.Named("chat")))

	// Initialize reference answerer
	var answerer *ai.Service
	if cfg.AI.Enabled() {
		answers, err := newStore(cfg.Store, "answer:")
		if err != nil {
			logger.Fatal("failed to initialize answer store", zap.Error(err))
		}
		defer answers.Close()

		answerer, err = ai.NewService(ctx, cfg.AI, answers,
			ai.WithStructuredRulings(true),
			ai.WithLogger(logger.Named("ai")))
		if err != nil {
			logger.Warn("failed to initialize AI service, continuing without /api/answer", zap.Error(err))
			answerer = nil
		} else {
			logger.Info("reference answerer enabled")
		}
	} else {
		logger.Info("ark credentials not configured, skipping reference answerer")
	}

	deps := handler.Deps{
		Chat:     chatService,
		Renderer: renderer,
		Sessions: handlerchat.SessionOptions{
			StorageKey:   cfg.Session.StorageKey,
			QueryParam:   cfg.Session.QueryParam,
			CookieMaxAge: cfg.Session.CookieMaxAge,
		},
		Metrics: collector,
		Logger:  logger,
	}
	if answerer != nil {
		deps.Answerer = answerer
	}

	logger.Info("answering service configured",
		zap.String("env", cfg.Env),
		zap.String("url", cfg.Remote.URL),
		zap.Duration("timeout", cfg.Remote.Timeout))

	startServer(ctx, cfg.Server, handler.NewRouter(deps), logger)
}

func newStore(cfg config.StoreConfig, prefix string) (store.Store, error) {
	if cfg.Driver != string(store.TypeRedis) {
		return store.New(store.TypeMemory)
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	return store.New(store.TypeRedis,
		store.WithRedisClient(redis.NewClient(opts)),
		store.WithRedisTTL(cfg.RedisTTL),
		store.WithKeyPrefix(prefix))
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("magic chat listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
