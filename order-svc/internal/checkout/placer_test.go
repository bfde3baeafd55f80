package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"koikhabo/internal/domain"
	"koikhabo/order-svc/internal/apiclient"
	"koikhabo/order-svc/internal/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockOrderBackend struct {
	mock.Mock
}

func (m *mockOrderBackend) CreateOrder(ctx context.Context, req apiclient.OrderRequest) (*apiclient.RemoteOrder, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apiclient.RemoteOrder), args.Error(1)
}

func twoRestaurantDraft() domain.Order {
	return domain.Order{
		ID:      1000,
		OwnerID: "guest-3",
		Items: []domain.CartItem{
			{ID: 1, RestaurantID: 9, Price: decimal.NewFromInt(100), Quantity: 2},
			{ID: 5, RestaurantID: 2, Price: decimal.NewFromInt(50), Quantity: 1},
			{ID: 2, RestaurantID: 9, Price: decimal.NewFromInt(30), Quantity: 1},
		},
		Subtotal:       decimal.NewFromInt(280),
		ServiceFee:     decimal.NewFromInt(20),
		ReservationFee: decimal.NewFromInt(100),
		Total:          decimal.NewFromInt(400),
		Reservation:    &domain.Reservation{ID: 1001, OrderID: 1000, RestaurantID: 9, PartySize: 2},
		Status:         domain.StatusPending,
	}
}

func TestSplit(t *testing.T) {
	parts := Split(twoRestaurantDraft(), NewIDGenerator(func() time.Time { return fixedNow }))
	require.Len(t, parts, 2)

	first, second := parts[0], parts[1]
	assert.Equal(t, int64(1000), first.ID)
	assert.Equal(t, 2, first.Items[0].RestaurantID)
	assert.True(t, decimal.NewFromInt(20).Equal(first.ServiceFee))
	assert.True(t, decimal.Zero.Equal(first.ReservationFee))
	assert.Nil(t, first.Reservation)
	assert.True(t, decimal.NewFromInt(70).Equal(first.Total))

	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, second.Items, 2)
	assert.True(t, decimal.Zero.Equal(second.ServiceFee))
	assert.True(t, decimal.NewFromInt(100).Equal(second.ReservationFee))
	require.NotNil(t, second.Reservation)
	assert.Equal(t, second.ID, second.Reservation.OrderID)
	assert.True(t, decimal.NewFromInt(330).Equal(second.Total))

	assert.True(t, decimal.NewFromInt(400).Equal(first.Total.Add(second.Total)))
}

func TestSplit_SingleRestaurantUnchanged(t *testing.T) {
	draft := twoRestaurantDraft()
	draft.Items = draft.Items[:1]
	parts := Split(draft, NewIDGenerator(nil))
	require.Len(t, parts, 1)
	assert.Equal(t, draft.ID, parts[0].ID)
}

func TestRemotePlacer_Place(t *testing.T) {
	ledger := newLedger()
	backend := new(mockOrderBackend)
	backend.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req apiclient.OrderRequest) bool {
		return req.RestaurantID == 2 && req.GuestID == 3 && req.Email == nil && len(req.Items) == 1
	})).Return(&apiclient.RemoteOrder{ID: 501, Status: "pending"}, nil).Once()
	backend.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req apiclient.OrderRequest) bool {
		return req.RestaurantID == 9 && len(req.Items) == 2
	})).Return(&apiclient.RemoteOrder{ID: 502, Status: "pending"}, nil).Once()

	placer := &RemotePlacer{Backend: backend, Ledger: ledger, IDs: NewIDGenerator(func() time.Time { return fixedNow })}
	placed, err := placer.Place(context.Background(),
		Customer{OwnerID: "guest-3", Remote: apiclient.Owner{GuestID: 3}},
		twoRestaurantDraft(),
		payment.Input{Method: domain.PaymentCash, Phone: "01712345678"})
	require.NoError(t, err)
	require.Len(t, placed, 2)
	assert.Equal(t, 501, placed[0].RemoteID)
	assert.Equal(t, 502, placed[1].RemoteID)

	stored, err := ledger.Orders(context.Background(), "guest-3")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, 502, stored[0].RemoteID)

	reservations, err := ledger.Reservations(context.Background(), "guest-3")
	require.NoError(t, err)
	require.Len(t, reservations, 1)
	backend.AssertExpectations(t)
}

func TestRemotePlacer_StoresBackendOrderID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health/" {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"order_id":     41,
			"status":       "confirmed",
			"total_amount": "450.00",
		})
	}))
	defer srv.Close()

	draft := twoRestaurantDraft()
	draft.Items = draft.Items[:1]
	draft.Reservation = nil

	ledger := newLedger()
	placer := &RemotePlacer{Backend: apiclient.New(srv.URL + "/api"), Ledger: ledger, IDs: NewIDGenerator(nil)}
	placed, err := placer.Place(context.Background(),
		Customer{OwnerID: "guest-3", Remote: apiclient.Owner{GuestID: 3}},
		draft, payment.Input{Method: domain.PaymentCash, Phone: "01712345678"})
	require.NoError(t, err)
	require.Len(t, placed, 1)
	assert.Equal(t, 41, placed[0].RemoteID)

	stored, err := ledger.Order(context.Background(), "guest-3", draft.ID)
	require.NoError(t, err)
	assert.Equal(t, 41, stored.RemoteID)
}

func TestRemotePlacer_StopsAtFirstFailure(t *testing.T) {
	ledger := newLedger()
	backend := new(mockOrderBackend)
	backend.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req apiclient.OrderRequest) bool {
		return req.RestaurantID == 2
	})).Return(&apiclient.RemoteOrder{ID: 501}, nil).Once()
	backend.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req apiclient.OrderRequest) bool {
		return req.RestaurantID == 9
	})).Return(nil, &apiclient.APIError{Status: 400, Message: "Restaurant closed"}).Once()

	placer := &RemotePlacer{Backend: backend, Ledger: ledger, IDs: NewIDGenerator(nil)}
	placed, err := placer.Place(context.Background(), Customer{OwnerID: "guest-3"}, twoRestaurantDraft(), payment.Input{})

	var apiErr *apiclient.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Len(t, placed, 1)

	stored, err := ledger.Orders(context.Background(), "guest-3")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}
