package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type UserAccount struct {
	UserID      int     `json:"user_id"`
	Email       string  `json:"email"`
	Name        string  `json:"name"`
	Institution *string `json:"institution"`
	Created     bool    `json:"created"`
}

type GuestSession struct {
	SessionID string `json:"session_id"`
	GuestID   int    `json:"guest_id"`
}

type AdminLogin struct {
	AdminName string `json:"admin_name"`
	Message   string `json:"message"`
}

type Institution struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

type Restaurant struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	Address         string `json:"address,omitempty"`
	CuisineType     string `json:"cuisine_type,omitempty"`
	HasPrivateRoom  bool   `json:"has_private_room"`
	CanReserveSeats bool   `json:"can_reserve_seats"`
}

type MenuItem struct {
	ID           int             `json:"id"`
	RestaurantID int             `json:"restaurant_id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	IsAvailable  bool            `json:"is_available"`
}

// Owner identifies who a request is made for. Exactly one id is expected to be set.
type Owner struct {
	UserID  int `json:"user_id,omitempty"`
	GuestID int `json:"guest_id,omitempty"`
}

func (o Owner) query() url.Values {
	q := url.Values{}
	if o.UserID > 0 {
		q.Set("user_id", strconv.Itoa(o.UserID))
	}
	if o.GuestID > 0 {
		q.Set("guest_id", strconv.Itoa(o.GuestID))
	}
	return q
}

type OrderLine struct {
	MenuItemID int             `json:"menu_item_id"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
}

type OrderRequest struct {
	Owner
	RestaurantID        int         `json:"restaurant_id"`
	Items               []OrderLine `json:"items"`
	Phone               string      `json:"phone"`
	Email               *string     `json:"email"`
	Address             string      `json:"address"`
	PaymentMethod       string      `json:"payment_method"`
	SpecialInstructions string      `json:"special_instructions"`
}

type RemoteOrder struct {
	ID           int             `json:"id"`
	RestaurantID int             `json:"restaurant_id"`
	Status       string          `json:"status"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	RiderName    string          `json:"rider_name,omitempty"`
	RiderPhone   string          `json:"rider_phone,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// UnmarshalJSON accepts the create response too, which names the id order_id.
func (o *RemoteOrder) UnmarshalJSON(data []byte) error {
	type plain RemoteOrder
	var aux struct {
		plain
		OrderID int `json:"order_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*o = RemoteOrder(aux.plain)
	if o.ID == 0 {
		o.ID = aux.OrderID
	}
	return nil
}

type BookingRequest struct {
	Owner
	SeatIDs       []string        `json:"seat_ids"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	PaymentMethod string          `json:"payment_method"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	BookingCode   string          `json:"booking_code,omitempty"`
}

type Booking struct {
	ID           int       `json:"id"`
	RestaurantID int       `json:"restaurant_id,omitempty"`
	Status       string    `json:"status"`
	BookingCode  string    `json:"booking_code,omitempty"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
}

func (c *Client) Health(ctx context.Context) error {
	return c.pingHealth(ctx)
}

func (c *Client) LoginUser(ctx context.Context, email, fullName string) (*UserAccount, error) {
	var account UserAccount
	body := map[string]string{"email": email, "full_name": fullName}
	if err := c.Do(ctx, http.MethodPost, "/auth/login/", body, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *Client) StartGuest(ctx context.Context) (*GuestSession, error) {
	var guest GuestSession
	if err := c.Do(ctx, http.MethodPost, "/auth/guest/", map[string]string{}, &guest); err != nil {
		return nil, err
	}
	return &guest, nil
}

func (c *Client) LoginAdmin(ctx context.Context, name, password string) (*AdminLogin, error) {
	var admin AdminLogin
	body := map[string]string{"name": name, "password": password}
	if err := c.Do(ctx, http.MethodPost, "/auth/admin/", body, &admin); err != nil {
		return nil, err
	}
	return &admin, nil
}

func (c *Client) Institutions(ctx context.Context) ([]Institution, error) {
	institutions := []Institution{}
	if err := c.Do(ctx, http.MethodGet, "/institutions/", nil, &institutions); err != nil {
		return nil, err
	}
	return institutions, nil
}

func (c *Client) Restaurants(ctx context.Context, filters url.Values) ([]Restaurant, error) {
	path := "/restaurants/"
	if len(filters) > 0 {
		path += "?" + filters.Encode()
	}
	restaurants := []Restaurant{}
	if err := c.Do(ctx, http.MethodGet, path, nil, &restaurants); err != nil {
		return nil, err
	}
	return restaurants, nil
}

func (c *Client) Restaurant(ctx context.Context, id int) (*Restaurant, error) {
	var restaurant Restaurant
	if err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/restaurants/%d/", id), nil, &restaurant); err != nil {
		return nil, err
	}
	return &restaurant, nil
}

func (c *Client) Menu(ctx context.Context, restaurantID int) ([]MenuItem, error) {
	items := []MenuItem{}
	if err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/restaurants/%d/menu/", restaurantID), nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) BookSeats(ctx context.Context, restaurantID int, req BookingRequest) (*Booking, error) {
	var booking Booking
	if err := c.Do(ctx, http.MethodPost, fmt.Sprintf("/restaurants/%d/book/", restaurantID), req, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*RemoteOrder, error) {
	var order RemoteOrder
	if err := c.Do(ctx, http.MethodPost, "/orders/", req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) GetOrder(ctx context.Context, id int) (*RemoteOrder, error) {
	var order RemoteOrder
	if err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/orders/%d/", id), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) OrderHistory(ctx context.Context, owner Owner) ([]RemoteOrder, error) {
	var resp struct {
		Orders []RemoteOrder `json:"orders"`
	}
	if err := c.Do(ctx, http.MethodGet, "/orders/history/?"+owner.query().Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

func (c *Client) Reorder(ctx context.Context, orderID int, owner Owner) (*RemoteOrder, error) {
	var order RemoteOrder
	if err := c.Do(ctx, http.MethodPost, fmt.Sprintf("/orders/%d/reorder/", orderID), owner, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) Bookings(ctx context.Context, userID int) ([]Booking, error) {
	var resp struct {
		Bookings []Booking `json:"bookings"`
	}
	path := "/bookings/?" + Owner{UserID: userID}.query().Encode()
	if err := c.Do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Bookings, nil
}

func (c *Client) CancelBooking(ctx context.Context, bookingID int) error {
	return c.Do(ctx, http.MethodPost, fmt.Sprintf("/bookings/%d/cancel/", bookingID), map[string]string{}, nil)
}

// AdminDashboard returns the dashboard payload untouched; its shape belongs to the backend.
func (c *Client) AdminDashboard(ctx context.Context, adminName string) (json.RawMessage, error) {
	var raw json.RawMessage
	path := "/admin/dashboard/?" + url.Values{"admin_name": {adminName}}.Encode()
	if err := c.Do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
