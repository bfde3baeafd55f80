package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CartItem struct {
	ID              int             `json:"id"`
	RestaurantID    int             `json:"restaurant_id"`
	RestaurantName  string          `json:"restaurant_name,omitempty"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	Quantity        int             `json:"quantity"`
	CanReserveSeats bool            `json:"can_reserve_seats"`
}

// LineTotal is price × quantity, unrounded.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type OrderType string

const (
	OrderTypePickup OrderType = "pickup"
	OrderTypeDineIn OrderType = "dine-in"
)

type PickupTime string

const (
	PickupASAP    PickupTime = "asap"
	Pickup15Min   PickupTime = "15min"
	Pickup30Min   PickupTime = "30min"
	PickupOneHour PickupTime = "1hour"
)

type PaymentMethod string

const (
	PaymentCash  PaymentMethod = "cash"
	PaymentBkash PaymentMethod = "bkash"
	PaymentNagad PaymentMethod = "nagad"
	PaymentCard  PaymentMethod = "card"
)

type Order struct {
	ID                  int64           `json:"id"`
	OwnerID             string          `json:"owner_id,omitempty"`
	Items               []CartItem      `json:"items"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	ServiceFee          decimal.Decimal `json:"service_fee"`
	ReservationFee      decimal.Decimal `json:"reservation_fee"`
	Total               decimal.Decimal `json:"total"`
	PaymentMethod       PaymentMethod   `json:"payment_method"`
	OrderType           OrderType       `json:"order_type"`
	PickupTime          PickupTime      `json:"pickup_time"`
	SpecialInstructions string          `json:"special_instructions,omitempty"`
	Reservation         *Reservation    `json:"reservation,omitempty"`
	RemoteID            int             `json:"remote_id,omitempty"`
	Status              OrderStatus     `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
}

type Reservation struct {
	ID           int64     `json:"id"`
	OrderID      int64     `json:"order_id"`
	RestaurantID int       `json:"restaurant_id"`
	PartySize    int       `json:"party_size"`
	Time         string    `json:"time"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

const ReservationConfirmed = "confirmed"

type GridPosition struct {
	Row int `json:"row"`
	Col int `json:"col"`
	X   int `json:"x_position"`
	Y   int `json:"y_position"`
}

type Seat struct {
	ID              string       `json:"id"`
	Code            string       `json:"code"`
	TableNumber     int          `json:"table_number"`
	TableType       string       `json:"table_type"`
	Shape           string       `json:"table_shape"`
	SeatPosition    int          `json:"seat_position"`
	TotalTableSeats int          `json:"total_table_seats"`
	IsOccupied      bool         `json:"is_occupied"`
	IsBooked        bool         `json:"is_booked"`
	IsWomenOnly     bool         `json:"is_women_only"`
	IsPrivateRoom   bool         `json:"is_private_room"`
	Position        GridPosition `json:"grid_position"`
}

// Notification is a user-facing message raised by a workflow, rendered as a toast by clients.
type Notification struct {
	OwnerID   string    `json:"owner_id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	OrderID   int64     `json:"order_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelError   = "error"
)

type KafkaMessage struct {
	Type      string      `json:"type"`
	OwnerID   string      `json:"owner_id"`
	OrderID   int64       `json:"order_id"`
	Status    OrderStatus `json:"status,omitempty"`
	Total     string      `json:"total,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

const (
	EventOrderPlaced   = "order_placed"
	EventStatusChanged = "status_changed"
)
