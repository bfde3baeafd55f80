package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"koikhabo/internal/domain"
	"koikhabo/internal/storage"
	"koikhabo/order-svc/internal/apiclient"
	"koikhabo/order-svc/internal/cart"
	"koikhabo/order-svc/internal/checkout"
	"koikhabo/order-svc/internal/notify"
	"koikhabo/order-svc/internal/payment"
	"koikhabo/order-svc/internal/seating"
	"koikhabo/order-svc/internal/session"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrForbidden        = errors.New("action not allowed for this session")
	ErrLoginRequired    = errors.New("please log in or continue as guest")
	ErrStatusTransition = errors.New("order status cannot move that way")
)

type SessionManager interface {
	Current(ctx context.Context, sessionID string) (session.Actor, error)
	LoginUser(ctx context.Context, sessionID, email, fullName string) (session.Actor, error)
	StartGuest(ctx context.Context, sessionID string) (session.Actor, error)
	LoginAdmin(ctx context.Context, sessionID, name, password string) (session.Actor, error)
	SelectInstitution(ctx context.Context, sessionID string, inst session.Institution) error
	Institution(ctx context.Context, sessionID string) (*session.Institution, error)
	Logout(ctx context.Context, sessionID string) error
}

type OrderLedger interface {
	Orders(ctx context.Context, owner string) ([]domain.Order, error)
	Reservations(ctx context.Context, owner string) ([]domain.Reservation, error)
	Order(ctx context.Context, owner string, id int64) (*domain.Order, error)
	UpdateOrder(ctx context.Context, owner string, id int64, fn func(order domain.Order) (domain.OrderStatus, error)) (domain.Order, bool, error)
	ByStatus(ctx context.Context, owner string, statuses ...domain.OrderStatus) ([]domain.Order, error)
}

type Tracker interface {
	Open(ctx context.Context, owner string) (bool, error)
	Close(owner string) error
}

type SeatBooker interface {
	Book(ctx context.Context, restaurantID int, owner apiclient.Owner, in seating.BookingInput) (*seating.Confirmation, error)
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, msg domain.KafkaMessage) error
}

var (
	_ SessionManager = (*session.Manager)(nil)
	_ OrderLedger    = (*storage.Ledger)(nil)
	_ SeatBooker     = (*seating.Booker)(nil)
)

type CartView struct {
	Items           []domain.CartItem `json:"items"`
	Total           decimal.Decimal   `json:"total"`
	ItemCount       int               `json:"item_count"`
	CanReserveSeats bool              `json:"can_reserve_seats"`
}

type Action string

const (
	ActionOpen     Action = "open"
	ActionContinue Action = "continue"
	ActionBack     Action = "back"
	ActionDone     Action = "done"
)

type OrderServiceInterface interface {
	Session(ctx context.Context, sessionID string) (session.Actor, error)
	LoginUser(ctx context.Context, sessionID, email, fullName string) (session.Actor, error)
	StartGuest(ctx context.Context, sessionID string) (session.Actor, error)
	LoginAdmin(ctx context.Context, sessionID, name, password string) (session.Actor, error)
	Logout(ctx context.Context, sessionID string) error
	SelectInstitution(ctx context.Context, sessionID string, inst session.Institution) error
	Institution(ctx context.Context, sessionID string) (*session.Institution, error)

	Cart(sessionID string) CartView
	AddToCart(sessionID string, item domain.CartItem) CartView
	SetQuantity(sessionID string, restaurantID, itemID, qty int) CartView
	RemoveFromCart(sessionID string, restaurantID, itemID int) CartView
	ClearCart(sessionID string) CartView

	Checkout(sessionID string) checkout.State
	Step(sessionID string, action Action) (checkout.State, error)
	SetDetails(sessionID string, details checkout.Details) (checkout.State, error)
	Submit(ctx context.Context, sessionID string, in payment.Input) ([]domain.Order, error)

	Seats(restaurantID int) []domain.Seat
	BookSeats(ctx context.Context, sessionID string, restaurantID int, in seating.BookingInput) (*seating.Confirmation, error)

	Orders(ctx context.Context, sessionID string) ([]domain.Order, error)
	TrackedOrders(ctx context.Context, sessionID string, statuses ...domain.OrderStatus) ([]domain.Order, error)
	Reservations(ctx context.Context, sessionID string) ([]domain.Reservation, error)
	OrderQRCode(ctx context.Context, sessionID string, orderID int64) ([]byte, error)
	OrderHistory(ctx context.Context, sessionID string) ([]apiclient.RemoteOrder, error)
	Reorder(ctx context.Context, sessionID string, orderID int) (*apiclient.RemoteOrder, error)
	Bookings(ctx context.Context, sessionID string) ([]apiclient.Booking, error)
	CancelBooking(ctx context.Context, sessionID string, bookingID int) error

	OpenTracker(ctx context.Context, sessionID string) (bool, error)
	CloseTracker(ctx context.Context, sessionID string) error
	Notifications(ctx context.Context, sessionID string) ([]domain.Notification, error)

	UpdateStatus(ctx context.Context, sessionID, owner string, orderID int64, status domain.OrderStatus) (*domain.Order, error)
	AdminDashboard(ctx context.Context, sessionID string) (json.RawMessage, error)
}

type Deps struct {
	Sessions SessionManager
	Engine   *checkout.Engine
	Ledger   OrderLedger
	Tracker  Tracker
	Inbox    *notify.Inbox
	Notifier notify.Notifier
	Booker   SeatBooker
	Account  Account
	QR       QRGenerator
	Events   EventPublisher
	Logger   *zap.Logger
}

type OrderService struct {
	Deps
	workspaces *Workspaces
}

var _ OrderServiceInterface = (*OrderService)(nil)

func NewOrderService(deps Deps) *OrderService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Notifier == nil && deps.Inbox != nil {
		deps.Notifier = deps.Inbox
	}
	return &OrderService{Deps: deps, workspaces: NewWorkspaces(deps.Engine, nil)}
}

// StartJanitor evicts workspaces left idle for longer than idle.
func (s *OrderService) StartJanitor(interval, idle time.Duration) (*Janitor, error) {
	return StartJanitor(s.workspaces, interval, idle, s.Logger)
}

func (s *OrderService) Session(ctx context.Context, sessionID string) (session.Actor, error) {
	return s.Sessions.Current(ctx, sessionID)
}

func (s *OrderService) LoginUser(ctx context.Context, sessionID, email, fullName string) (session.Actor, error) {
	return s.Sessions.LoginUser(ctx, sessionID, email, fullName)
}

func (s *OrderService) StartGuest(ctx context.Context, sessionID string) (session.Actor, error) {
	return s.Sessions.StartGuest(ctx, sessionID)
}

func (s *OrderService) LoginAdmin(ctx context.Context, sessionID, name, password string) (session.Actor, error) {
	return s.Sessions.LoginAdmin(ctx, sessionID, name, password)
}

// Logout forgets the session, its workspace and any tracking view it had open.
func (s *OrderService) Logout(ctx context.Context, sessionID string) error {
	if actor, err := s.Sessions.Current(ctx, sessionID); err == nil && s.Tracker != nil {
		if err := s.Tracker.Close(actor.ID()); err != nil {
			s.Logger.Warn("close tracker on logout", zap.Error(err))
		}
	}
	s.workspaces.Drop(sessionID)
	return s.Sessions.Logout(ctx, sessionID)
}

func (s *OrderService) view(sessionID string) CartView {
	ws, ok := s.workspaces.Lookup(sessionID)
	if !ok {
		return cartView(cart.New())
	}
	return cartView(ws.Cart)
}

func cartView(c *cart.Cart) CartView {
	return CartView{
		Items:           c.Items(),
		Total:           c.Total(),
		ItemCount:       c.ItemCount(),
		CanReserveSeats: c.CanReserveSeats(),
	}
}

func (s *OrderService) Cart(sessionID string) CartView {
	return s.view(sessionID)
}

func (s *OrderService) AddToCart(sessionID string, item domain.CartItem) CartView {
	s.workspaces.Get(sessionID).Cart.Add(item)
	return s.view(sessionID)
}

func (s *OrderService) SetQuantity(sessionID string, restaurantID, itemID, qty int) CartView {
	s.workspaces.Get(sessionID).Cart.SetQuantity(itemID, restaurantID, qty)
	return s.view(sessionID)
}

func (s *OrderService) RemoveFromCart(sessionID string, restaurantID, itemID int) CartView {
	s.workspaces.Get(sessionID).Cart.Remove(itemID, restaurantID)
	return s.view(sessionID)
}

func (s *OrderService) ClearCart(sessionID string) CartView {
	s.workspaces.Get(sessionID).Cart.Clear()
	return s.view(sessionID)
}

func (s *OrderService) Checkout(sessionID string) checkout.State {
	if ws, ok := s.workspaces.Lookup(sessionID); ok {
		return ws.Flow.State()
	}
	return s.Engine.NewFlow(cart.New()).State()
}

func (s *OrderService) Step(sessionID string, action Action) (checkout.State, error) {
	flow := s.workspaces.Get(sessionID).Flow

	var err error
	switch action {
	case ActionOpen:
		err = flow.Open()
	case ActionContinue:
		err = flow.Continue()
	case ActionBack:
		err = flow.Back()
	case ActionDone:
		err = flow.Done()
	default:
		err = fmt.Errorf("%w: unknown action %q", checkout.ErrInvalidTransition, action)
	}
	return flow.State(), err
}

func (s *OrderService) SetDetails(sessionID string, details checkout.Details) (checkout.State, error) {
	flow := s.workspaces.Get(sessionID).Flow
	err := flow.SetDetails(details)
	return flow.State(), err
}

func (s *OrderService) customer(ctx context.Context, sessionID string) (session.Actor, error) {
	actor, err := s.Sessions.Current(ctx, sessionID)
	if errors.Is(err, session.ErrNoSession) {
		return session.Actor{}, ErrLoginRequired
	}
	if err != nil {
		return session.Actor{}, err
	}
	if !actor.IsLoggedIn() {
		return session.Actor{}, ErrLoginRequired
	}
	return actor, nil
}

func (s *OrderService) Submit(ctx context.Context, sessionID string, in payment.Input) ([]domain.Order, error) {
	actor, err := s.customer(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	flow := s.workspaces.Get(sessionID).Flow
	return flow.Submit(ctx, checkout.Customer{OwnerID: actor.ID(), Remote: actor.Owner()}, in)
}

func (s *OrderService) Seats(restaurantID int) []domain.Seat {
	return seating.Generate(restaurantID)
}

func (s *OrderService) BookSeats(ctx context.Context, sessionID string, restaurantID int, in seating.BookingInput) (*seating.Confirmation, error) {
	var owner apiclient.Owner
	actor, err := s.Sessions.Current(ctx, sessionID)
	if err != nil && !errors.Is(err, session.ErrNoSession) {
		return nil, err
	}
	if err == nil {
		owner = actor.Owner()
	}

	conf, err := s.Booker.Book(ctx, restaurantID, owner, in)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, notify.Success(actor.ID(), 0, fmt.Sprintf("Booking confirmed! Code: %s", conf.BookingCode)))
	return conf, nil
}

func (s *OrderService) Orders(ctx context.Context, sessionID string) ([]domain.Order, error) {
	actor, err := s.customer(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.Ledger.Orders(ctx, actor.ID())
}

// ActiveStatuses are the statuses an order can still leave.
var ActiveStatuses = []domain.OrderStatus{domain.StatusPending, domain.StatusPreparing, domain.StatusReady}

// TrackedOrders lists the caller's orders in the given statuses, or in
// ActiveStatuses when none are given.
func (s *OrderService) TrackedOrders(ctx context.Context, sessionID string, statuses ...domain.OrderStatus) ([]domain.Order, error) {
	actor, err := s.customer(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		statuses = ActiveStatuses
	}
	return s.Ledger.ByStatus(ctx, actor.ID(), statuses...)
}

func (s *OrderService) Reservations(ctx context.Context, sessionID string) ([]domain.Reservation, error) {
	actor, err := s.customer(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.Ledger.Reservations(ctx, actor.ID())
}

func (s *OrderService) OrderQRCode(ctx context.Context, sessionID string, orderID int64) ([]byte, error) {
	actor, err := s.customer(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	order, err := s.Ledger.Order(ctx, actor.ID(), orderID)
	if err != nil {
		return nil, err
	}
	return s.QR.Generate(order.ID)
}

func (s *OrderService) OpenTracker(ctx context.Context, sessionID string) (bool, error) {
	actor, err := s.customer(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return s.Tracker.Open(ctx, actor.ID())
}

func (s *OrderService) CloseTracker(ctx context.Context, sessionID string) error {
	actor, err := s.customer(ctx, sessionID)
	if err != nil {
		return err
	}
	return s.Tracker.Close(actor.ID())
}

func (s *OrderService) Notifications(ctx context.Context, sessionID string) ([]domain.Notification, error) {
	actor, err := s.Sessions.Current(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return nil, ErrLoginRequired
		}
		return nil, err
	}
	return s.Inbox.Drain(actor.ID()), nil
}

// UpdateStatus lets an admin move one of owner's orders forward or cancel it.
func (s *OrderService) UpdateStatus(ctx context.Context, sessionID, owner string, orderID int64, status domain.OrderStatus) (*domain.Order, error) {
	actor, err := s.Sessions.Current(ctx, sessionID)
	if err != nil || !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if !status.Valid() {
		return nil, domain.NewValidationError("status", "Unknown order status")
	}

	updated, _, err := s.Ledger.UpdateOrder(ctx, owner, orderID, func(order domain.Order) (domain.OrderStatus, error) {
		if !domain.Advances(order.Status, status) {
			return order.Status, fmt.Errorf("%w: %s to %s", ErrStatusTransition, order.Status, status)
		}
		return status, nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, notify.Info(owner, orderID, fmt.Sprintf("Order #%d is now %s", orderID, status)))
	if s.Events != nil {
		err := s.Events.PublishOrderEvent(ctx, domain.KafkaMessage{
			Type:      domain.EventStatusChanged,
			OwnerID:   owner,
			OrderID:   orderID,
			Status:    status,
			Timestamp: time.Now(),
		})
		if err != nil {
			s.Logger.Warn("failed to publish status event", zap.Int64("order_id", orderID), zap.Error(err))
		}
	}
	s.Logger.Info("order status updated by admin",
		zap.String("admin", actor.Admin.Name),
		zap.String("owner", owner),
		zap.Int64("order_id", orderID),
		zap.String("status", string(status)))
	return &updated, nil
}

func (s *OrderService) notify(ctx context.Context, n domain.Notification) {
	if s.Notifier == nil || n.OwnerID == "" {
		return
	}
	if err := s.Notifier.Notify(ctx, n); err != nil {
		s.Logger.Warn("notify failed", zap.Error(err))
	}
}
