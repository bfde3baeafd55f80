package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backend struct {
	healthCalls atomic.Int32
	calls       atomic.Int32
	healthCode  int
	handler     http.HandlerFunc
}

func newBackend(t *testing.T, handler http.HandlerFunc) (*backend, *httptest.Server) {
	t.Helper()
	b := &backend{healthCode: http.StatusOK, handler: handler}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health/" {
			b.healthCalls.Add(1)
			w.WriteHeader(b.healthCode)
			return
		}
		b.calls.Add(1)
		b.handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return b, srv
}

func newTestClient(srv *httptest.Server, opts ...Option) *Client {
	opts = append([]Option{WithRetries(2, time.Millisecond)}, opts...)
	return New(srv.URL+"/api", opts...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestClient_CreateOrder(t *testing.T) {
	var gotRequestID string
	var gotBody map[string]any
	b, srv := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = r.Header.Get("X-Request-ID")
		json.NewDecoder(r.Body).Decode(&gotBody)
		assert.Equal(t, "/api/orders/", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"order_id":           41,
			"status":             "confirmed",
			"total_amount":       "450.00",
			"rider_name":         "Rider 3fa2c1",
			"rider_phone":        "013fa2c1e90",
			"estimated_delivery": "30-45 minutes",
		})
	})

	client := newTestClient(srv)
	order, err := client.CreateOrder(context.Background(), OrderRequest{
		Owner:         Owner{UserID: 7},
		RestaurantID:  3,
		Items:         []OrderLine{{MenuItemID: 5, Quantity: 2, Price: decimal.NewFromInt(225)}},
		Phone:         "01712345678",
		PaymentMethod: "cash",
	})
	require.NoError(t, err)
	assert.Equal(t, 41, order.ID)
	assert.Equal(t, "confirmed", order.Status)
	assert.Equal(t, "Rider 3fa2c1", order.RiderName)
	assert.True(t, decimal.NewFromInt(450).Equal(order.TotalAmount))
	assert.NotEmpty(t, gotRequestID)
	assert.Equal(t, float64(7), gotBody["user_id"])
	assert.NotContains(t, gotBody, "guest_id")
	assert.Equal(t, int32(1), b.calls.Load())
	assert.True(t, client.Healthy())
}

func TestRemoteOrder_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "order detail", body: `{"id": 12, "status": "preparing"}`, want: 12},
		{name: "create response", body: `{"order_id": 41, "status": "confirmed"}`, want: 41},
		{name: "id wins over order_id", body: `{"id": 5, "order_id": 6}`, want: 5},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			var order RemoteOrder
			require.NoError(t, json.Unmarshal([]byte(testCase.body), &order))
			assert.Equal(t, testCase.want, order.ID)
		})
	}
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	b, srv := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Email is required"})
	})

	_, err := newTestClient(srv).LoginUser(context.Background(), "", "")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Email is required", apiErr.Message)
	assert.Equal(t, int32(1), b.calls.Load())
}

func TestClient_ServerErrorsAreRetried(t *testing.T) {
	b, srv := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{})
	})

	client := newTestClient(srv)
	_, err := client.GetOrder(context.Background(), 9)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "Request failed with status 500", apiErr.Message)
	assert.Equal(t, int32(3), b.calls.Load())
	assert.False(t, client.Healthy())
}

func TestClient_NonJSONErrorBody(t *testing.T) {
	_, srv := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})

	_, err := newTestClient(srv).Restaurant(context.Background(), 1)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "HTTP 404: Not Found", apiErr.Message)
}

func TestClient_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := New(srv.URL+"/api", WithRetries(2, time.Millisecond))
	err := client.Do(context.Background(), http.MethodGet, "/institutions/", nil, nil)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 0, apiErr.Status)
	assert.Equal(t, msgNetworkError, apiErr.Message)
	assert.NotNil(t, apiErr.Unwrap())
}

func TestClient_HealthIsCached(t *testing.T) {
	b, srv := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []Institution{{ID: 1, Name: "BUET"}})
	})

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	client := newTestClient(srv, WithClock(func() time.Time { return now }))

	for i := 0; i < 3; i++ {
		_, err := client.Institutions(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), b.healthCalls.Load())

	now = now.Add(31 * time.Second)
	_, err := client.Institutions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), b.healthCalls.Load())
}

func TestClient_UnhealthyFirstAttemptStillRetries(t *testing.T) {
	b, srv := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"session_id": "abc", "guest_id": 12})
	})
	b.healthCode = http.StatusServiceUnavailable

	guest, err := newTestClient(srv).StartGuest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, guest.GuestID)
	assert.Equal(t, int32(1), b.calls.Load())
}

func TestClient_OfflineWithoutRetries(t *testing.T) {
	b, srv := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	b.healthCode = http.StatusInternalServerError

	client := New(srv.URL+"/api", WithRetries(0, time.Millisecond))
	err := client.Do(context.Background(), http.MethodGet, "/restaurants/", nil, nil)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, msgOffline, apiErr.Message)
	assert.Equal(t, int32(0), b.calls.Load())
}

func TestClient_Timeout(t *testing.T) {
	_, srv := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(500 * time.Millisecond):
		}
	})

	client := newTestClient(srv, WithTimeout(20*time.Millisecond), WithRetries(1, time.Millisecond))
	err := client.Do(context.Background(), http.MethodGet, "/orders/1/", nil, nil)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 0, apiErr.Status)
	assert.Equal(t, msgNetworkError, apiErr.Message)
}

func TestClient_EnvelopedLists(t *testing.T) {
	_, srv := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/orders/history/":
			assert.Equal(t, "4", r.URL.Query().Get("guest_id"))
			writeJSON(w, http.StatusOK, map[string]any{"orders": []map[string]any{{"id": 1, "status": "ready"}}, "total_orders": 1})
		case "/api/bookings/":
			assert.Equal(t, "7", r.URL.Query().Get("user_id"))
			writeJSON(w, http.StatusOK, map[string]any{"bookings": []map[string]any{{"id": 3, "status": "confirmed"}}})
		default:
			http.NotFound(w, r)
		}
	})

	client := newTestClient(srv)
	orders, err := client.OrderHistory(context.Background(), Owner{GuestID: 4})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "ready", orders[0].Status)

	bookings, err := client.Bookings(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, "confirmed", bookings[0].Status)
}

func TestClient_TextResponse(t *testing.T) {
	_, srv := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("pong"))
	})

	var out string
	err := newTestClient(srv).Do(context.Background(), http.MethodGet, "/ping/", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "unreachable", err: &APIError{Status: 0}, want: "Unable to connect to server. Please check your internet connection."},
		{name: "bad request with message", err: &APIError{Status: 400, Message: "Email is required"}, want: "Email is required"},
		{name: "bad request without message", err: &APIError{Status: 400}, want: "Invalid request. Please check your input."},
		{name: "unauthorized", err: &APIError{Status: 401, Message: "x"}, want: "Authentication required. Please log in again."},
		{name: "forbidden", err: &APIError{Status: 403}, want: "Access denied. You don't have permission for this action."},
		{name: "not found", err: &APIError{Status: 404}, want: "Requested resource not found."},
		{name: "server error", err: &APIError{Status: 500}, want: "Server error. Please try again later."},
		{name: "unavailable", err: &APIError{Status: 503, Message: msgOffline}, want: "Service temporarily unavailable. Please try again later."},
		{name: "other with message", err: &APIError{Status: 409, Message: "Some seats are already booked for this time"}, want: "Some seats are already booked for this time"},
		{name: "other without message", err: &APIError{Status: 418}, want: "An unexpected error occurred."},
		{name: "wrapped", err: errors.Join(errors.New("ctx"), &APIError{Status: 404}), want: "Requested resource not found."},
		{name: "plain error", err: errors.New("boom"), want: "Network error. Please check your connection and try again."},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(t, testCase.want, UserMessage(testCase.err))
		})
	}
}
