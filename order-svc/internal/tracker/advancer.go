package tracker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"koikhabo/internal/domain"
	"koikhabo/order-svc/internal/apiclient"
	"koikhabo/order-svc/internal/notify"
)

// Change is a status move an Advancer proposes for one order.
type Change struct {
	To     domain.OrderStatus
	Notice domain.Notification
}

// Advancer decides the next status of an order on each tick. ok is false
// when the order should stay as it is.
type Advancer interface {
	Advance(ctx context.Context, order domain.Order) (change Change, ok bool, err error)
}

// SimulatedAdvancer moves pending orders to preparing on the first tick and
// preparing orders to ready with a fixed probability per tick. It never
// delivers.
type SimulatedAdvancer struct {
	mu         sync.Mutex
	rng        *rand.Rand
	readyRatio float64
}

func NewSimulatedAdvancer(rng *rand.Rand, readyChance float64) *SimulatedAdvancer {
	return &SimulatedAdvancer{rng: rng, readyRatio: readyChance}
}

func (s *SimulatedAdvancer) roll() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *SimulatedAdvancer) Advance(_ context.Context, order domain.Order) (Change, bool, error) {
	switch order.Status {
	case domain.StatusPending:
		return Change{
			To:     domain.StatusPreparing,
			Notice: notify.Info(order.OwnerID, order.ID, fmt.Sprintf("Order #%d is being prepared", order.ID)),
		}, true, nil
	case domain.StatusPreparing:
		if s.roll() >= s.readyRatio {
			return Change{}, false, nil
		}
		return Change{
			To:     domain.StatusReady,
			Notice: notify.Success(order.OwnerID, order.ID, readyMessage(order)),
		}, true, nil
	}
	return Change{}, false, nil
}

func readyMessage(order domain.Order) string {
	if order.OrderType == domain.OrderTypePickup {
		return fmt.Sprintf("Order #%d is ready for pickup!", order.ID)
	}
	return fmt.Sprintf("Order #%d is ready for delivery!", order.ID)
}

type OrderFetcher interface {
	GetOrder(ctx context.Context, id int) (*apiclient.RemoteOrder, error)
}

// backendStatus folds the backend's wider status set onto ours: confirmed is
// still pending here and out_for_delivery counts as ready.
func backendStatus(s string) (domain.OrderStatus, error) {
	switch s {
	case "confirmed":
		return domain.StatusPending, nil
	case "out_for_delivery":
		return domain.StatusReady, nil
	}
	status := domain.OrderStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown backend status %q", s)
	}
	return status, nil
}

// RemoteAdvancer mirrors the backend's status for orders that were placed
// remotely. Orders without a remote id are left alone.
type RemoteAdvancer struct {
	backend OrderFetcher
}

func NewRemoteAdvancer(backend OrderFetcher) *RemoteAdvancer {
	return &RemoteAdvancer{backend: backend}
}

func (r *RemoteAdvancer) Advance(ctx context.Context, order domain.Order) (Change, bool, error) {
	if order.RemoteID == 0 || order.Status.Terminal() {
		return Change{}, false, nil
	}

	remote, err := r.backend.GetOrder(ctx, order.RemoteID)
	if err != nil {
		return Change{}, false, fmt.Errorf("fetch order %d: %w", order.RemoteID, err)
	}

	to, err := backendStatus(remote.Status)
	if err != nil {
		return Change{}, false, fmt.Errorf("order %d: %w", order.RemoteID, err)
	}
	if to == order.Status || !domain.Advances(order.Status, to) {
		return Change{}, false, nil
	}

	notice := notify.Info(order.OwnerID, order.ID, fmt.Sprintf("Order #%d is now %s", order.ID, to))
	switch to {
	case domain.StatusPreparing:
		notice = notify.Info(order.OwnerID, order.ID, fmt.Sprintf("Order #%d is being prepared", order.ID))
	case domain.StatusReady:
		notice = notify.Success(order.OwnerID, order.ID, readyMessage(order))
	case domain.StatusDelivered:
		notice = notify.Success(order.OwnerID, order.ID, fmt.Sprintf("Order #%d has been delivered", order.ID))
	case domain.StatusCancelled:
		notice = notify.Error(order.OwnerID, fmt.Sprintf("Order #%d was cancelled", order.ID))
		notice.OrderID = order.ID
	}
	return Change{To: to, Notice: notice}, true, nil
}
