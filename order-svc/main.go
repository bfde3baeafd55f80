package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"koikhabo/config"
	"koikhabo/internal/storage"
	httpapi "koikhabo/order-svc/internal/api/http"
	"koikhabo/order-svc/internal/apiclient"
	"koikhabo/order-svc/internal/checkout"
	"koikhabo/order-svc/internal/notify"
	"koikhabo/order-svc/internal/payment"
	"koikhabo/order-svc/internal/seating"
	"koikhabo/order-svc/internal/service"
	"koikhabo/order-svc/internal/session"
	"koikhabo/order-svc/internal/tracker"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const inboxLimit = 50

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, settings, logger); err != nil {
		logger.Fatal("order-svc stopped", zap.Error(err))
	}
}

// stores picks the ledger repository and the session key-value store for the
// configured driver.
func stores(ctx context.Context, settings config.Settings, logger *zap.Logger) (storage.Repository, storage.KV, func()) {
	switch settings.StorageDriver {
	case config.StorageRedis:
		client := config.MustInitRedis(logger)
		kv := storage.NewRedisKV(client, settings.RedisPrefix, 0)
		return storage.NewLocalRepository(storage.NewJSONStore(kv, logger)), kv, func() { client.Close() }
	case config.StoragePostgres:
		db := config.MustInitPostgres(logger)
		repo := storage.NewPostgresRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to ensure schema", zap.Error(err))
		}
		return repo, storage.NewMemoryKV(), func() { db.Close() }
	}
	kv := storage.NewMemoryKV()
	return storage.NewLocalRepository(storage.NewJSONStore(kv, logger)), kv, func() {}
}

func run(ctx context.Context, settings config.Settings, logger *zap.Logger) error {
	fees, err := settings.Fees()
	if err != nil {
		return err
	}

	repo, kv, closeStore := stores(ctx, settings, logger)
	defer closeStore()
	ledger := storage.NewLedger(repo)

	client := apiclient.New(settings.API.BaseURL,
		apiclient.WithLogger(logger),
		apiclient.WithTimeout(settings.API.Timeout),
		apiclient.WithRetries(settings.API.MaxRetries, settings.API.BaseBackoff),
		apiclient.WithHealthTTL(settings.API.HealthTTL),
	)

	inbox := notify.NewInbox(inboxLimit)
	sinks := []notify.Notifier{inbox, notify.NewLogNotifier(logger)}

	var events service.EventPublisher
	if config.KafkaEnabled() {
		orderWriter := config.NewKafkaWriter(settings.OrderEventsTopic)
		defer orderWriter.Close()
		noteWriter := config.NewKafkaWriter(settings.NotificationsTopic)
		defer noteWriter.Close()

		events = storage.NewKafkaPublisher(orderWriter)
		sinks = append(sinks, notify.NewKafkaNotifier(storage.NewKafkaPublisher(noteWriter)))
		logger.Info("kafka publishing enabled",
			zap.String("orders_topic", settings.OrderEventsTopic),
			zap.String("notifications_topic", settings.NotificationsTopic))
	}
	notifier := notify.NewFanout(logger, sinks...)

	ids := checkout.NewIDGenerator(time.Now)
	var placer checkout.Placer = &checkout.LedgerPlacer{Ledger: ledger}
	if settings.RemoteOrders {
		placer = &checkout.RemotePlacer{Backend: client, Ledger: ledger, IDs: ids}
	}
	engine := checkout.NewEngine(placer, payment.NewValidator(), checkout.Fees{
		Service:     fees.Service,
		Reservation: fees.Reservation,
	}, settings.ProcessingDelay, logger)
	engine.IDs = ids
	engine.Notifier = notifier
	if events != nil {
		engine.Events = events
	}

	var advancer tracker.Advancer = tracker.NewSimulatedAdvancer(rand.New(rand.NewSource(time.Now().UnixNano())), settings.ReadyChance)
	if settings.RemoteTracking {
		advancer = tracker.NewRemoteAdvancer(client)
	}
	poller, err := tracker.NewPoller(ledger, advancer, settings.PollInterval, logger)
	if err != nil {
		return err
	}
	defer poller.Shutdown()
	poller.Notifier = notifier
	if events != nil {
		poller.Events = events
	}

	sessions := session.NewManager(session.NewStore(storage.NewJSONStore(kv, logger)), client, logger)
	svc := service.NewOrderService(service.Deps{
		Sessions: sessions,
		Engine:   engine,
		Ledger:   ledger,
		Tracker:  poller,
		Inbox:    inbox,
		Notifier: notifier,
		Booker:   seating.NewBooker(client, time.Now, nil),
		Account:  client,
		QR:       service.DefaultQRGenerator{BaseURL: settings.PublicBaseURL},
		Events:   events,
		Logger:   logger,
	})

	janitor, err := svc.StartJanitor(settings.WorkspaceSweep, settings.WorkspaceIdle)
	if err != nil {
		return err
	}
	defer janitor.Shutdown()

	handler := httpapi.NewHandler(svc, logger)
	handler.Backend = client

	server := &http.Server{
		Addr:              settings.HTTPAddr,
		Handler:           httpapi.NewRouter(handler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("order-svc starting",
			zap.String("addr", settings.HTTPAddr),
			zap.String("storage", settings.StorageDriver),
			zap.Bool("remote_orders", settings.RemoteOrders),
			zap.Bool("remote_tracking", settings.RemoteTracking))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down order-svc")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
