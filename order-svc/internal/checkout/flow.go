package checkout

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"koikhabo/internal/domain"
	"koikhabo/order-svc/internal/apiclient"
	"koikhabo/order-svc/internal/cart"
	"koikhabo/order-svc/internal/notify"
	"koikhabo/order-svc/internal/payment"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInvalidTransition = errors.New("invalid checkout transition")
	ErrSubmitInProgress  = errors.New("order submission already in progress")
)

const MsgOrderFailed = "Order failed. Please try again."

type Step string

const (
	StepIdle         Step = "idle"
	StepCart         Step = "cart"
	StepDetails      Step = "details"
	StepPayment      Step = "payment"
	StepConfirmation Step = "confirmation"
)

const defaultPartySize = 2

type ReservationRequest struct {
	Requested    bool   `json:"requested"`
	RestaurantID int    `json:"restaurant_id"`
	PartySize    int    `json:"party_size"`
	Time         string `json:"time"`
}

type Details struct {
	OrderType           domain.OrderType   `json:"order_type"`
	PickupTime          domain.PickupTime  `json:"pickup_time"`
	SpecialInstructions string             `json:"special_instructions"`
	Reservation         ReservationRequest `json:"reservation"`
}

func defaultDetails() Details {
	return Details{
		OrderType:   domain.OrderTypePickup,
		PickupTime:  domain.PickupASAP,
		Reservation: ReservationRequest{PartySize: defaultPartySize},
	}
}

type Quote struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	ServiceFee     decimal.Decimal `json:"service_fee"`
	ReservationFee decimal.Decimal `json:"reservation_fee"`
	Total          decimal.Decimal `json:"total"`
}

type Fees struct {
	Service     decimal.Decimal
	Reservation decimal.Decimal
}

// Customer is who an order is placed for: a local owner key plus the
// backend's user or guest id.
type Customer struct {
	OwnerID string
	Remote  apiclient.Owner
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, msg domain.KafkaMessage) error
}

// Engine holds what every session's flow shares.
type Engine struct {
	Placer    Placer
	Validator *payment.Validator
	Notifier  notify.Notifier
	Events    EventPublisher
	Fees      Fees
	Delay     time.Duration
	IDs       *IDGenerator
	Logger    *zap.Logger

	Now   func() time.Time
	Sleep func(time.Duration)
}

func NewEngine(placer Placer, validator *payment.Validator, fees Fees, delay time.Duration, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		Placer:    placer,
		Validator: validator,
		Fees:      fees,
		Delay:     delay,
		IDs:       NewIDGenerator(time.Now),
		Logger:    logger,
		Now:       time.Now,
		Sleep:     time.Sleep,
	}
}

func (e *Engine) NewFlow(c *cart.Cart) *Flow {
	return &Flow{engine: e, cart: c, step: StepIdle, details: defaultDetails()}
}

// State is a read-only view of a flow.
type State struct {
	Step       Step           `json:"step"`
	Details    Details        `json:"details"`
	Submitting bool           `json:"submitting"`
	Quote      Quote          `json:"quote"`
	Placed     []domain.Order `json:"placed,omitempty"`
}

// Flow walks one session's cart through idle, cart, details, payment and
// confirmation. Transitions move a single step at a time.
type Flow struct {
	engine *Engine
	cart   *cart.Cart

	mu      sync.Mutex
	step    Step
	details Details
	busy    bool
	placed  []domain.Order
}

func (f *Flow) Cart() *cart.Cart {
	return f.cart
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return State{
		Step:       f.step,
		Details:    f.details,
		Submitting: f.busy,
		Quote:      f.quoteLocked(),
		Placed:     slices.Clone(f.placed),
	}
}

func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

func (f *Flow) transition(from []Step, to Step) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.busy || !slices.Contains(from, f.step) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, f.step, to)
	}
	f.step = to
	return nil
}

func (f *Flow) Open() error {
	return f.transition([]Step{StepIdle}, StepCart)
}

// Continue advances cart to details or details to payment. An empty cart
// cannot leave the cart step.
func (f *Flow) Continue() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.busy {
		return fmt.Errorf("%w: submission in progress", ErrInvalidTransition)
	}
	switch f.step {
	case StepCart:
		if f.cart.Empty() {
			return domain.NewValidationError("cart", payment.MsgEmptyCart)
		}
		f.step = StepDetails
	case StepDetails:
		f.step = StepPayment
	default:
		return fmt.Errorf("%w: cannot continue from %s", ErrInvalidTransition, f.step)
	}
	return nil
}

func (f *Flow) Back() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.busy {
		return fmt.Errorf("%w: submission in progress", ErrInvalidTransition)
	}
	switch f.step {
	case StepPayment:
		f.step = StepDetails
	case StepDetails:
		f.step = StepCart
	case StepCart:
		f.step = StepIdle
	default:
		return fmt.Errorf("%w: cannot go back from %s", ErrInvalidTransition, f.step)
	}
	return nil
}

// Done acknowledges a confirmation and starts over with an empty cart.
func (f *Flow) Done() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step != StepConfirmation {
		return fmt.Errorf("%w: cannot finish from %s", ErrInvalidTransition, f.step)
	}
	f.cart.Clear()
	f.step = StepCart
	f.details = defaultDetails()
	f.placed = nil
	return nil
}

func (f *Flow) SetDetails(d Details) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step != StepDetails {
		return fmt.Errorf("%w: details can only be edited in %s", ErrInvalidTransition, StepDetails)
	}

	if d.OrderType == "" {
		d.OrderType = domain.OrderTypePickup
	}
	if d.PickupTime == "" {
		d.PickupTime = domain.PickupASAP
	}
	switch d.OrderType {
	case domain.OrderTypePickup, domain.OrderTypeDineIn:
	default:
		return domain.NewValidationError("order_type", "Please choose pickup or dine-in")
	}
	switch d.PickupTime {
	case domain.PickupASAP, domain.Pickup15Min, domain.Pickup30Min, domain.PickupOneHour:
	default:
		return domain.NewValidationError("pickup_time", "Please choose a pickup time")
	}

	if d.Reservation.PartySize == 0 {
		d.Reservation.PartySize = defaultPartySize
	}
	if d.Reservation.Requested && f.cart.CanReserveSeats() {
		if err := f.engine.Validator.ValidatePartySize(d.Reservation.PartySize); err != nil {
			return err
		}
		if d.Reservation.RestaurantID != 0 && !slices.Contains(f.cart.Restaurants(), d.Reservation.RestaurantID) {
			return domain.NewValidationError("reservation", payment.MsgReservation)
		}
	}

	f.details = d
	return nil
}

// reservationHonoured is true when the user opted in and the cart allows it.
func (f *Flow) reservationHonoured() bool {
	return f.details.Reservation.Requested && f.cart.CanReserveSeats()
}

func (f *Flow) quoteLocked() Quote {
	q := Quote{
		Subtotal:       f.cart.Total(),
		ServiceFee:     f.engine.Fees.Service,
		ReservationFee: decimal.Zero,
	}
	if f.reservationHonoured() {
		q.ReservationFee = f.engine.Fees.Reservation
	}
	q.Total = q.Subtotal.Add(q.ServiceFee).Add(q.ReservationFee)
	return q
}

// Quote prices the cart as it would be charged at the payment step.
func (f *Flow) Quote() (Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step != StepPayment {
		return Quote{}, fmt.Errorf("%w: quote is only available in %s", ErrInvalidTransition, StepPayment)
	}
	return f.quoteLocked(), nil
}

// Submit validates the payment input, waits out the processing delay, then
// records the order. It cannot be cancelled once started and a second call
// while one is running fails with ErrSubmitInProgress. On failure the flow
// stays at the payment step.
func (f *Flow) Submit(ctx context.Context, customer Customer, in payment.Input) ([]domain.Order, error) {
	e := f.engine

	f.mu.Lock()
	if f.busy {
		f.mu.Unlock()
		return nil, ErrSubmitInProgress
	}
	if f.step != StepPayment {
		step := f.step
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot submit from %s", ErrInvalidTransition, step)
	}
	if f.cart.Empty() {
		f.mu.Unlock()
		return nil, domain.NewValidationError("cart", payment.MsgEmptyCart)
	}
	if err := e.Validator.Validate(in, e.Now()); err != nil {
		f.mu.Unlock()
		f.notify(ctx, notify.Error(customer.OwnerID, err.Error()))
		return nil, err
	}

	f.busy = true
	draft := f.draftLocked(customer, in)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.busy = false
		f.mu.Unlock()
	}()

	e.Sleep(e.Delay)

	placed, err := e.Placer.Place(context.WithoutCancel(ctx), customer, draft, in)
	if err != nil {
		e.Logger.Error("order placement failed", zap.String("owner", customer.OwnerID), zap.Int64("order_id", draft.ID), zap.Error(err))
		msg := MsgOrderFailed
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) {
			msg = apiclient.UserMessage(err)
		}
		f.notify(ctx, notify.Error(customer.OwnerID, msg))
		return nil, err
	}

	for _, order := range placed {
		f.publish(ctx, order)
	}

	f.mu.Lock()
	f.cart.Clear()
	f.step = StepConfirmation
	f.placed = placed
	f.mu.Unlock()

	f.notify(ctx, notify.Success(customer.OwnerID, placed[0].ID, fmt.Sprintf("%d order(s) placed successfully!", len(placed))))
	e.Logger.Info("order placed", zap.String("owner", customer.OwnerID), zap.Int("orders", len(placed)), zap.String("total", draft.Total.StringFixed(2)))
	return placed, nil
}

func (f *Flow) draftLocked(customer Customer, in payment.Input) domain.Order {
	e := f.engine
	q := f.quoteLocked()
	now := e.Now()

	order := domain.Order{
		ID:                  e.IDs.Next(),
		OwnerID:             customer.OwnerID,
		Items:               f.cart.Items(),
		Subtotal:            q.Subtotal,
		ServiceFee:          q.ServiceFee,
		ReservationFee:      q.ReservationFee,
		Total:               q.Total,
		PaymentMethod:       in.Method,
		OrderType:           f.details.OrderType,
		PickupTime:          f.details.PickupTime,
		SpecialInstructions: f.details.SpecialInstructions,
		Status:              domain.StatusPending,
		CreatedAt:           now,
	}

	if r := f.details.Reservation; f.reservationHonoured() && r.RestaurantID > 0 {
		order.Reservation = &domain.Reservation{
			ID:           e.IDs.Next(),
			OrderID:      order.ID,
			RestaurantID: r.RestaurantID,
			PartySize:    r.PartySize,
			Time:         r.Time,
			Status:       domain.ReservationConfirmed,
			CreatedAt:    now,
		}
	}
	return order
}

func (f *Flow) notify(ctx context.Context, n domain.Notification) {
	if f.engine.Notifier == nil {
		return
	}
	if err := f.engine.Notifier.Notify(ctx, n); err != nil {
		f.engine.Logger.Warn("notify failed", zap.Error(err))
	}
}

func (f *Flow) publish(ctx context.Context, order domain.Order) {
	if f.engine.Events == nil {
		return
	}
	err := f.engine.Events.PublishOrderEvent(ctx, domain.KafkaMessage{
		Type:      domain.EventOrderPlaced,
		OwnerID:   order.OwnerID,
		OrderID:   order.ID,
		Status:    order.Status,
		Total:     order.Total.StringFixed(2),
		Timestamp: order.CreatedAt,
	})
	if err != nil {
		f.engine.Logger.Warn("failed to publish order event", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}
