package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"koikhabo/api-gateway/internal/gateway"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("ORDER_SVC_URL", "")
	assert.Equal(t, "http://fallback", getEnv("ORDER_SVC_URL", "http://fallback"))

	t.Setenv("ORDER_SVC_URL", "http://order-svc:8084")
	assert.Equal(t, "http://order-svc:8084", getEnv("ORDER_SVC_URL", "http://fallback"))
}

// TestNewHandler_EndToEnd proxies through real upstream servers.
func TestNewHandler_EndToEnd(t *testing.T) {
	var orderPath, orderSession, backendPath string
	orderSvc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orderPath = r.URL.Path
		orderSession = r.Header.Get("X-Session-ID")
		w.WriteHeader(http.StatusCreated)
	}))
	defer orderSvc.Close()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backendPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	handler := newHandler(gateway.Config{OrderSvcURL: orderSvc.URL, BackendAPIURL: backend.URL}, http.DefaultClient, zap.NewNop())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/restaurants/4/seats/book", nil))
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "/api/restaurants/4/seats/book", orderPath)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/restaurants/4/menu/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "/api/restaurants/4/menu/", backendPath)

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/tracking/orders?status=ready", nil)
	req.Header.Set("X-Session-ID", "s1")
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "/api/tracking/orders", orderPath)
	assert.Equal(t, "s1", orderSession)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/index.html", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// TestNewHandler_ProxyError covers an unreachable upstream.
func TestNewHandler_ProxyError(t *testing.T) {
	handler := newHandler(gateway.Config{BackendAPIURL: "http://127.0.0.1:1"}, http.DefaultClient, zap.NewNop())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/restaurants/", nil))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}
