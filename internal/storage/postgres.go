package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"koikhabo/internal/domain"

	"github.com/lib/pq"
)

// StatusLister is implemented by repositories that can filter orders server-side.
type StatusLister interface {
	ListByStatus(ctx context.Context, owner string, statuses ...domain.OrderStatus) ([]domain.Order, error)
}

type PostgresRepository struct {
	DB *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{DB: db}
}

const orderColumns = `id, owner_id, items, subtotal, service_fee, reservation_fee, total,
		payment_method, order_type, pickup_time, special_instructions, reservation,
		remote_id, status, created_at`

func (r *PostgresRepository) LoadOrders(ctx context.Context, owner string) ([]domain.Order, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, owner string, statuses ...domain.OrderStatus) ([]domain.Order, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE owner_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC, id DESC
	`, owner, pq.Array(values))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func scanOrders(rows *sql.Rows) ([]domain.Order, error) {
	orders := []domain.Order{}
	for rows.Next() {
		var (
			order       domain.Order
			items       []byte
			reservation []byte
		)
		if err := rows.Scan(&order.ID, &order.OwnerID, &items, &order.Subtotal, &order.ServiceFee,
			&order.ReservationFee, &order.Total, &order.PaymentMethod, &order.OrderType, &order.PickupTime,
			&order.SpecialInstructions, &reservation, &order.RemoteID, &order.Status, &order.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(items, &order.Items); err != nil {
			return nil, fmt.Errorf("decode items of order %d: %w", order.ID, err)
		}
		if len(reservation) > 0 {
			var res domain.Reservation
			if err := json.Unmarshal(reservation, &res); err != nil {
				return nil, fmt.Errorf("decode reservation of order %d: %w", order.ID, err)
			}
			order.Reservation = &res
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// InsertOrder stores a new order. A second insert of the same id is a no-op,
// so nothing here ever rewrites an existing row.
func (r *PostgresRepository) InsertOrder(ctx context.Context, owner string, order domain.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return err
	}
	var reservation []byte
	if order.Reservation != nil {
		if reservation, err = json.Marshal(order.Reservation); err != nil {
			return err
		}
	}
	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING
	`, order.ID, owner, items, order.Subtotal, order.ServiceFee, order.ReservationFee, order.Total,
		order.PaymentMethod, order.OrderType, order.PickupTime, order.SpecialInstructions, reservation,
		order.RemoteID, order.Status, order.CreatedAt); err != nil {
		return fmt.Errorf("insert order %d: %w", order.ID, err)
	}
	return nil
}

// SetOrderStatus is a compare-and-set on one row.
func (r *PostgresRepository) SetOrderStatus(ctx context.Context, owner string, id int64, from, to domain.OrderStatus) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE orders SET status = $1
		WHERE id = $2 AND owner_id = $3 AND status = $4
	`, to, id, owner, from)
	if err != nil {
		return false, fmt.Errorf("update order %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepository) LoadReservations(ctx context.Context, owner string) ([]domain.Reservation, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, order_id, restaurant_id, party_size, time, status, created_at
		FROM reservations
		WHERE owner_id = $1
		ORDER BY created_at, id
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reservations := []domain.Reservation{}
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(&res.ID, &res.OrderID, &res.RestaurantID, &res.PartySize, &res.Time, &res.Status, &res.CreatedAt); err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

func (r *PostgresRepository) InsertReservation(ctx context.Context, owner string, res domain.Reservation) error {
	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO reservations (id, owner_id, order_id, restaurant_id, party_size, time, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, res.ID, owner, res.OrderID, res.RestaurantID, res.PartySize, res.Time, res.Status, res.CreatedAt); err != nil {
		return fmt.Errorf("insert reservation %d: %w", res.ID, err)
	}
	return nil
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id BIGINT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			items JSONB NOT NULL,
			subtotal NUMERIC(10,2) NOT NULL,
			service_fee NUMERIC(10,2) NOT NULL,
			reservation_fee NUMERIC(10,2) NOT NULL,
			total NUMERIC(10,2) NOT NULL,
			payment_method TEXT NOT NULL,
			order_type TEXT NOT NULL,
			pickup_time TEXT NOT NULL,
			special_instructions TEXT NOT NULL DEFAULT '',
			reservation JSONB,
			remote_id INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS orders_owner_idx ON orders (owner_id, created_at DESC)",
		`CREATE TABLE IF NOT EXISTS reservations (
			id BIGINT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			order_id BIGINT NOT NULL,
			restaurant_id INTEGER NOT NULL,
			party_size INTEGER NOT NULL,
			time TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := r.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var (
	_ Repository   = (*PostgresRepository)(nil)
	_ StatusLister = (*PostgresRepository)(nil)
)

// FilterByStatus is the in-memory fallback for repositories without StatusLister.
func FilterByStatus(orders []domain.Order, statuses ...domain.OrderStatus) []domain.Order {
	want := make(map[domain.OrderStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	filtered := []domain.Order{}
	for _, o := range orders {
		if want[o.Status] {
			filtered = append(filtered, o)
		}
	}
	return filtered
}
