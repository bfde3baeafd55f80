package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"koikhabo/api-gateway/internal/gateway"
	"koikhabo/config"

	"github.com/rs/cors"
	"go.uber.org/zap"
)

func main() {
	logger, err := config.NewLogger(os.Getenv("APP_ENV"))
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := gateway.Config{
		OrderSvcURL:   getEnv("ORDER_SVC_URL", "http://localhost:8084"),
		BackendAPIURL: getEnv("BACKEND_API_URL", "http://localhost:8000"),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              getEnv("GATEWAY_ADDR", ":8080"),
		Handler:           newHandler(cfg, &http.Client{Timeout: 30 * time.Second}, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("API gateway starting",
		zap.String("addr", server.Addr),
		zap.String("order_svc", cfg.OrderSvcURL),
		zap.String("backend", cfg.BackendAPIURL))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("gateway stopped", zap.Error(err))
	}
}

func newHandler(cfg gateway.Config, client gateway.HTTPClient, logger *zap.Logger) http.Handler {
	gw := gateway.NewGateway(cfg, client, logger)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Session-ID", gateway.RequestIDHeader},
		AllowCredentials: true,
	})
	return c.Handler(gw.SetupRoutes())
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
