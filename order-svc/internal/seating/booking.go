package seating

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"koikhabo/internal/domain"
	"koikhabo/order-svc/internal/apiclient"
	"koikhabo/order-svc/internal/payment"

	"github.com/shopspring/decimal"
)

var HourlySeatRate = decimal.NewFromInt(80)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// BookingCode builds a KB-prefixed confirmation code from the last six digits
// of the millisecond clock and three random base-36 characters.
func BookingCode(now time.Time, rng *rand.Rand) string {
	millis := strconv.FormatInt(now.UnixMilli(), 10)
	if len(millis) > 6 {
		millis = millis[len(millis)-6:]
	}
	var suffix [3]byte
	for i := range suffix {
		suffix[i] = base36[rng.Intn(len(base36))]
	}
	return "KB" + millis + strings.ToUpper(string(suffix[:]))
}

// Cost charges each seat per started hour.
func Cost(seats int, start, end time.Time) decimal.Decimal {
	if seats == 0 || !end.After(start) {
		return decimal.Zero
	}
	hours := int64(math.Ceil(end.Sub(start).Hours()))
	return HourlySeatRate.Mul(decimal.NewFromInt(int64(seats) * hours))
}

type BookingInput struct {
	SeatIDs       []string             `json:"seat_ids"`
	Date          string               `json:"booking_date"`
	StartTime     string               `json:"start_time"`
	EndTime       string               `json:"end_time"`
	CustomerName  string               `json:"customer_name"`
	CustomerPhone string               `json:"customer_phone"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
}

type Confirmation struct {
	Booking     *apiclient.Booking `json:"booking"`
	BookingCode string             `json:"booking_code"`
	TotalCost   decimal.Decimal    `json:"total_cost"`
	Seats       []domain.Seat      `json:"seats"`
}

type BookingBackend interface {
	BookSeats(ctx context.Context, restaurantID int, req apiclient.BookingRequest) (*apiclient.Booking, error)
}

// Booker reserves seats from a restaurant's generated grid through the backend.
type Booker struct {
	backend BookingBackend
	now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

func NewBooker(backend BookingBackend, now func() time.Time, rng *rand.Rand) *Booker {
	if now == nil {
		now = time.Now
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Booker{backend: backend, now: now, rng: rng}
}

func (b *Booker) code() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BookingCode(b.now(), b.rng)
}

func (b *Booker) Book(ctx context.Context, restaurantID int, owner apiclient.Owner, in BookingInput) (*Confirmation, error) {
	if len(in.SeatIDs) == 0 {
		return nil, domain.NewValidationError("seat_ids", "Please select at least one seat")
	}
	if in.Date == "" || in.StartTime == "" || in.EndTime == "" {
		return nil, domain.NewValidationError("booking_date", "Please fill in all booking details")
	}
	if strings.TrimSpace(in.CustomerName) == "" {
		return nil, domain.NewValidationError("customer_name", "Please enter your name")
	}
	if !payment.ValidPhone(strings.TrimSpace(in.CustomerPhone)) {
		return nil, domain.NewValidationError("customer_phone", payment.MsgPhone)
	}
	if owner.UserID == 0 && owner.GuestID == 0 {
		return nil, domain.NewValidationError("owner", "Please log in to make a booking")
	}

	start, err := time.ParseInLocation("2006-01-02 15:04", in.Date+" "+in.StartTime, time.Local)
	if err != nil {
		return nil, domain.NewValidationError("start_time", "Please fill in all booking details")
	}
	end, err := time.ParseInLocation("2006-01-02 15:04", in.Date+" "+in.EndTime, time.Local)
	if err != nil || !end.After(start) {
		return nil, domain.NewValidationError("end_time", "Please fill in all booking details")
	}

	bySeat := make(map[string]domain.Seat)
	for _, seat := range Generate(restaurantID) {
		bySeat[seat.ID] = seat
	}
	chosen := make([]domain.Seat, 0, len(in.SeatIDs))
	for _, id := range in.SeatIDs {
		seat, ok := bySeat[id]
		if !ok || seat.IsOccupied || seat.IsBooked {
			return nil, domain.NewValidationError("seat_ids", "This seat is not available")
		}
		chosen = append(chosen, seat)
	}

	method := in.PaymentMethod
	if method == "" {
		method = domain.PaymentCash
	}
	cost := Cost(len(chosen), start, end)

	booking, err := b.backend.BookSeats(ctx, restaurantID, apiclient.BookingRequest{
		Owner:         owner,
		SeatIDs:       in.SeatIDs,
		StartTime:     start.UTC(),
		EndTime:       end.UTC(),
		CustomerName:  strings.TrimSpace(in.CustomerName),
		CustomerPhone: strings.TrimSpace(in.CustomerPhone),
		PaymentMethod: string(method),
		TotalAmount:   cost,
	})
	if err != nil {
		return nil, err
	}

	return &Confirmation{
		Booking:     booking,
		BookingCode: b.code(),
		TotalCost:   cost,
		Seats:       chosen,
	}, nil
}
