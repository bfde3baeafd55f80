package storage

import (
	"context"
	"errors"
	"fmt"

	"koikhabo/internal/domain"
)

var ErrOrderNotFound = errors.New("order not found")

// Repository is the persistence port for orders and reservations, scoped by
// owner. Every write touches a single record, so several services can share
// one store without clobbering each other's writes.
type Repository interface {
	LoadOrders(ctx context.Context, owner string) ([]domain.Order, error)
	// InsertOrder stores a new order; an order whose id is already stored is
	// left untouched.
	InsertOrder(ctx context.Context, owner string, order domain.Order) error
	// SetOrderStatus moves order id from one status to another and reports
	// whether it did. It returns false when the order is missing or no
	// longer in status from.
	SetOrderStatus(ctx context.Context, owner string, id int64, from, to domain.OrderStatus) (bool, error)
	LoadReservations(ctx context.Context, owner string) ([]domain.Reservation, error)
	InsertReservation(ctx context.Context, owner string, reservation domain.Reservation) error
}

const (
	OrdersKey       = "orders"
	ReservationsKey = "reservations"
)

// LocalRepository keeps order and reservation lists as JSON arrays under fixed keys.
type LocalRepository struct {
	Store *JSONStore
}

func NewLocalRepository(store *JSONStore) *LocalRepository {
	return &LocalRepository{Store: store}
}

func scopedKey(base, owner string) string {
	if owner == "" {
		return base
	}
	return base + ":" + owner
}

func emptyOrders() []domain.Order             { return []domain.Order{} }
func emptyReservations() []domain.Reservation { return []domain.Reservation{} }

func (r *LocalRepository) LoadOrders(ctx context.Context, owner string) ([]domain.Order, error) {
	orders := emptyOrders()
	if err := r.Store.Load(ctx, scopedKey(OrdersKey, owner), &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// InsertOrder puts order at the front of the owner's list (newest first).
func (r *LocalRepository) InsertOrder(ctx context.Context, owner string, order domain.Order) error {
	return UpdateJSON(ctx, r.Store, scopedKey(OrdersKey, owner), emptyOrders, func(orders []domain.Order) ([]domain.Order, bool, error) {
		for _, o := range orders {
			if o.ID == order.ID {
				return orders, false, nil
			}
		}
		return append([]domain.Order{order}, orders...), true, nil
	})
}

func (r *LocalRepository) SetOrderStatus(ctx context.Context, owner string, id int64, from, to domain.OrderStatus) (bool, error) {
	swapped := false
	err := UpdateJSON(ctx, r.Store, scopedKey(OrdersKey, owner), emptyOrders, func(orders []domain.Order) ([]domain.Order, bool, error) {
		swapped = false
		for i := range orders {
			if orders[i].ID != id {
				continue
			}
			if orders[i].Status != from {
				return orders, false, nil
			}
			orders[i].Status = to
			swapped = true
			return orders, true, nil
		}
		return orders, false, nil
	})
	if err != nil {
		return false, err
	}
	return swapped, nil
}

func (r *LocalRepository) LoadReservations(ctx context.Context, owner string) ([]domain.Reservation, error) {
	reservations := emptyReservations()
	if err := r.Store.Load(ctx, scopedKey(ReservationsKey, owner), &reservations); err != nil {
		return nil, err
	}
	return reservations, nil
}

func (r *LocalRepository) InsertReservation(ctx context.Context, owner string, reservation domain.Reservation) error {
	return UpdateJSON(ctx, r.Store, scopedKey(ReservationsKey, owner), emptyReservations, func(reservations []domain.Reservation) ([]domain.Reservation, bool, error) {
		for _, res := range reservations {
			if res.ID == reservation.ID {
				return reservations, false, nil
			}
		}
		return append(reservations, reservation), true, nil
	})
}

var _ Repository = (*LocalRepository)(nil)

// ErrStatusConflict is returned when an order's status keeps changing under
// UpdateOrder.
var ErrStatusConflict = errors.New("order status changed concurrently")

const maxStatusAttempts = 5

// Ledger is the order and reservation book shared by the services.
type Ledger struct {
	repo Repository
}

func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

func (l *Ledger) Orders(ctx context.Context, owner string) ([]domain.Order, error) {
	return l.repo.LoadOrders(ctx, owner)
}

func (l *Ledger) Reservations(ctx context.Context, owner string) ([]domain.Reservation, error) {
	return l.repo.LoadReservations(ctx, owner)
}

func (l *Ledger) Order(ctx context.Context, owner string, id int64) (*domain.Order, error) {
	orders, err := l.Orders(ctx, owner)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].ID == id {
			return &orders[i], nil
		}
	}
	return nil, ErrOrderNotFound
}

// PrependOrder stores order at the front of the owner's list (newest first).
func (l *Ledger) PrependOrder(ctx context.Context, owner string, order domain.Order) error {
	return l.repo.InsertOrder(ctx, owner, order)
}

func (l *Ledger) AppendReservation(ctx context.Context, owner string, reservation domain.Reservation) error {
	return l.repo.InsertReservation(ctx, owner, reservation)
}

// UpdateOrder moves one order to the status fn picks for it and returns the
// order as stored afterwards. changed is false when fn keeps the current
// status. The write only lands if the order still has the status fn saw;
// otherwise the order is reloaded and fn decides again.
func (l *Ledger) UpdateOrder(ctx context.Context, owner string, id int64, fn func(order domain.Order) (domain.OrderStatus, error)) (domain.Order, bool, error) {
	for attempt := 0; attempt < maxStatusAttempts; attempt++ {
		current, err := l.Order(ctx, owner, id)
		if err != nil {
			return domain.Order{}, false, err
		}
		to, err := fn(*current)
		if err != nil {
			return *current, false, err
		}
		if to == current.Status {
			return *current, false, nil
		}

		swapped, err := l.repo.SetOrderStatus(ctx, owner, id, current.Status, to)
		if err != nil {
			return *current, false, err
		}
		if swapped {
			current.Status = to
			return *current, true, nil
		}
	}
	return domain.Order{}, false, fmt.Errorf("order %d: %w", id, ErrStatusConflict)
}

// ByStatus returns the owner's orders in any of the given statuses, pushing the
// filter down to the repository when it supports one.
func (l *Ledger) ByStatus(ctx context.Context, owner string, statuses ...domain.OrderStatus) ([]domain.Order, error) {
	if lister, ok := l.repo.(StatusLister); ok {
		return lister.ListByStatus(ctx, owner, statuses...)
	}
	orders, err := l.repo.LoadOrders(ctx, owner)
	if err != nil {
		return nil, err
	}
	return FilterByStatus(orders, statuses...), nil
}
