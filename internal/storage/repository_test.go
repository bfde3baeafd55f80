package storage

import (
	"context"
	"errors"
	"testing"

	"koikhabo/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger() (*Ledger, *MemoryKV) {
	kv := NewMemoryKV()
	return NewLedger(NewLocalRepository(NewJSONStore(kv, nil))), kv
}

func TestLedger_PrependOrder_NewestFirst(t *testing.T) {
	ledger, kv := newTestLedger()
	ctx := context.Background()

	require.NoError(t, ledger.PrependOrder(ctx, "guest-1", domain.Order{ID: 1, Status: domain.StatusPending}))
	require.NoError(t, ledger.PrependOrder(ctx, "guest-1", domain.Order{ID: 2, Status: domain.StatusPending}))

	orders, err := ledger.Orders(ctx, "guest-1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, int64(2), orders[0].ID)
	assert.Equal(t, int64(1), orders[1].ID)

	_, ok, _ := kv.Get(ctx, "orders:guest-1")
	assert.True(t, ok)

	other, err := ledger.Orders(ctx, "guest-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestLedger_AppendReservation(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()

	require.NoError(t, ledger.AppendReservation(ctx, "u1", domain.Reservation{ID: 10, OrderID: 1}))
	require.NoError(t, ledger.AppendReservation(ctx, "u1", domain.Reservation{ID: 11, OrderID: 2}))

	reservations, err := ledger.Reservations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, reservations, 2)
	assert.Equal(t, int64(10), reservations[0].ID)
	assert.Equal(t, int64(11), reservations[1].ID)
}

func TestLedger_PrependOrder_SameIDIsKept(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()

	require.NoError(t, ledger.PrependOrder(ctx, "u1", domain.Order{ID: 1, Status: domain.StatusReady}))
	require.NoError(t, ledger.PrependOrder(ctx, "u1", domain.Order{ID: 1, Status: domain.StatusPending}))

	orders, err := ledger.Orders(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.StatusReady, orders[0].Status)
}

func TestLedger_UpdateOrder(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	tests := []struct {
		name        string
		id          int64
		to          domain.OrderStatus
		fnErr       error
		wantErr     error
		wantChanged bool
		wantStatus  domain.OrderStatus
	}{
		{name: "new status is saved", id: 1, to: domain.StatusPreparing, wantChanged: true, wantStatus: domain.StatusPreparing},
		{name: "same status is not a change", id: 1, to: domain.StatusPending, wantStatus: domain.StatusPending},
		{name: "callback error propagates", id: 1, fnErr: boom, wantErr: boom, wantStatus: domain.StatusPending},
		{name: "unknown order", id: 9, wantErr: ErrOrderNotFound},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			ledger, _ := newTestLedger()
			require.NoError(t, ledger.PrependOrder(ctx, "u1", domain.Order{ID: 1, Status: domain.StatusPending}))

			order, changed, err := ledger.UpdateOrder(ctx, "u1", testCase.id, func(domain.Order) (domain.OrderStatus, error) {
				return testCase.to, testCase.fnErr
			})
			if testCase.wantErr != nil {
				assert.ErrorIs(t, err, testCase.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, testCase.wantStatus, order.Status)
			}
			assert.Equal(t, testCase.wantChanged, changed)

			if testCase.wantStatus != "" {
				stored, err := ledger.Order(ctx, "u1", 1)
				require.NoError(t, err)
				assert.Equal(t, testCase.wantStatus, stored.Status)
			}
		})
	}
}

// sharedStores builds two ledgers over one backing store, the way order-svc
// and tracker-svc share Redis.
func sharedStores(t *testing.T) map[string][2]*Ledger {
	t.Helper()
	memory := NewMemoryKV()
	redisKV, _ := newTestRedisKV(t, 0)

	pair := func(kv KV) [2]*Ledger {
		return [2]*Ledger{
			NewLedger(NewLocalRepository(NewJSONStore(kv, nil))),
			NewLedger(NewLocalRepository(NewJSONStore(kv, nil))),
		}
	}
	return map[string][2]*Ledger{
		"memory": pair(memory),
		"redis":  pair(redisKV),
	}
}

func TestLedger_SharedStore_InsertDuringUpdateIsKept(t *testing.T) {
	ctx := context.Background()
	for name, ledgers := range sharedStores(t) {
		t.Run(name, func(t *testing.T) {
			orderSvc, trackerSvc := ledgers[0], ledgers[1]
			require.NoError(t, orderSvc.PrependOrder(ctx, "u1", domain.Order{ID: 1, Status: domain.StatusPending}))

			_, changed, err := trackerSvc.UpdateOrder(ctx, "u1", 1, func(domain.Order) (domain.OrderStatus, error) {
				require.NoError(t, orderSvc.PrependOrder(ctx, "u1", domain.Order{ID: 2, Status: domain.StatusPending}))
				return domain.StatusPreparing, nil
			})
			require.NoError(t, err)
			assert.True(t, changed)

			orders, err := orderSvc.Orders(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, orders, 2)
			assert.Equal(t, int64(2), orders[0].ID)
			assert.Equal(t, domain.StatusPending, orders[0].Status)
			assert.Equal(t, int64(1), orders[1].ID)
			assert.Equal(t, domain.StatusPreparing, orders[1].Status)
		})
	}
}

func TestLedger_SharedStore_StaleDecisionIsRetried(t *testing.T) {
	ctx := context.Background()
	for name, ledgers := range sharedStores(t) {
		t.Run(name, func(t *testing.T) {
			first, second := ledgers[0], ledgers[1]
			require.NoError(t, first.PrependOrder(ctx, "u1", domain.Order{ID: 1, Status: domain.StatusPending}))

			var seen []domain.OrderStatus
			order, changed, err := first.UpdateOrder(ctx, "u1", 1, func(current domain.Order) (domain.OrderStatus, error) {
				seen = append(seen, current.Status)
				if len(seen) == 1 {
					_, moved, err := second.UpdateOrder(ctx, "u1", 1, func(domain.Order) (domain.OrderStatus, error) {
						return domain.StatusReady, nil
					})
					require.NoError(t, err)
					require.True(t, moved)
				}
				if current.Status != domain.StatusPending {
					return current.Status, nil
				}
				return domain.StatusPreparing, nil
			})
			require.NoError(t, err)
			assert.False(t, changed)
			assert.Equal(t, domain.StatusReady, order.Status)
			assert.Equal(t, []domain.OrderStatus{domain.StatusPending, domain.StatusReady}, seen)

			stored, err := first.Order(ctx, "u1", 1)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusReady, stored.Status)
		})
	}
}

func TestLedger_Order_NotFound(t *testing.T) {
	ledger, _ := newTestLedger()
	_, err := ledger.Order(context.Background(), "u1", 99)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestFilterByStatus(t *testing.T) {
	orders := []domain.Order{
		{ID: 1, Status: domain.StatusPending},
		{ID: 2, Status: domain.StatusReady},
		{ID: 3, Status: domain.StatusPreparing},
	}
	filtered := FilterByStatus(orders, domain.StatusPending, domain.StatusPreparing)
	require.Len(t, filtered, 2)
	assert.Equal(t, int64(1), filtered[0].ID)
	assert.Equal(t, int64(3), filtered[1].ID)
}

func TestLedger_ByStatus(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()
	for i, s := range []domain.OrderStatus{domain.StatusPending, domain.StatusDelivered, domain.StatusReady} {
		require.NoError(t, ledger.PrependOrder(ctx, "u1", domain.Order{ID: int64(i + 1), Status: s}))
	}

	active, err := ledger.ByStatus(ctx, "u1", domain.StatusPending, domain.StatusReady)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, int64(3), active[0].ID)
	assert.Equal(t, int64(1), active[1].ID)
}
