package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"koikhabo/config"
	"koikhabo/internal/storage"
	"koikhabo/tracker-svc/internal/api"
	"koikhabo/tracker-svc/internal/consumer"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const consumerGroup = "tracker-svc"

func main() {
	settings, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := config.NewLogger(settings.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if !config.KafkaEnabled() {
		logger.Fatal("KAFKA_BROKER must be set for tracker-svc")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeStore := repository(ctx, settings, logger)
	defer closeStore()
	ledger := storage.NewLedger(repo)

	reader := config.NewKafkaReader(settings.StatusEventsTopic, consumerGroup)
	defer reader.Close()

	c := consumer.NewConsumer(reader, ledger, logger)
	if err := run(ctx, listenAddr(), c, api.NewHandler(c, logger), logger); err != nil {
		logger.Fatal("tracker-svc stopped", zap.Error(err))
	}
}

func listenAddr() string {
	if addr := os.Getenv("TRACKER_HTTP_ADDR"); addr != "" {
		return addr
	}
	return ":8085"
}

// repository opens the order store shared with order-svc. The memory driver
// works but sees none of order-svc's orders.
func repository(ctx context.Context, settings config.Settings, logger *zap.Logger) (storage.Repository, func()) {
	switch settings.StorageDriver {
	case config.StorageRedis:
		client := config.MustInitRedis(logger)
		kv := storage.NewRedisKV(client, settings.RedisPrefix, 0)
		return storage.NewLocalRepository(storage.NewJSONStore(kv, logger)), func() { client.Close() }
	case config.StoragePostgres:
		db := config.MustInitPostgres(logger)
		repo := storage.NewPostgresRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to ensure schema", zap.Error(err))
		}
		return repo, func() { db.Close() }
	}
	logger.Warn("tracker-svc running on in-memory storage; status events will not reach order-svc")
	return storage.NewLocalRepository(storage.NewJSONStore(storage.NewMemoryKV(), logger)), func() {}
}

func run(ctx context.Context, addr string, c *consumer.Consumer, handler *api.Handler, logger *zap.Logger) error {
	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	consumed := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(consumed)
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("tracker-svc starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	if ctx.Err() != nil {
		<-consumed
	}
	return serveErr
}
