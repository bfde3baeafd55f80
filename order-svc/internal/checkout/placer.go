package checkout

import (
	"context"
	"fmt"
	"sort"

	"koikhabo/internal/domain"
	"koikhabo/order-svc/internal/apiclient"
	"koikhabo/order-svc/internal/payment"

	"github.com/shopspring/decimal"
)

// Placer records a drafted order and returns what was actually stored.
type Placer interface {
	Place(ctx context.Context, customer Customer, draft domain.Order, in payment.Input) ([]domain.Order, error)
}

// Ledger is the write side of storage.Ledger used by placers.
type Ledger interface {
	PrependOrder(ctx context.Context, owner string, order domain.Order) error
	AppendReservation(ctx context.Context, owner string, reservation domain.Reservation) error
}

func record(ctx context.Context, ledger Ledger, order domain.Order) error {
	if err := ledger.PrependOrder(ctx, order.OwnerID, order); err != nil {
		return fmt.Errorf("store order %d: %w", order.ID, err)
	}
	if order.Reservation != nil {
		if err := ledger.AppendReservation(ctx, order.OwnerID, *order.Reservation); err != nil {
			return fmt.Errorf("store reservation for order %d: %w", order.ID, err)
		}
	}
	return nil
}

// LedgerPlacer stores the order locally without contacting a backend.
type LedgerPlacer struct {
	Ledger Ledger
}

func (p *LedgerPlacer) Place(ctx context.Context, _ Customer, draft domain.Order, _ payment.Input) ([]domain.Order, error) {
	if err := record(ctx, p.Ledger, draft); err != nil {
		return nil, err
	}
	return []domain.Order{draft}, nil
}

type OrderBackend interface {
	CreateOrder(ctx context.Context, req apiclient.OrderRequest) (*apiclient.RemoteOrder, error)
}

// RemotePlacer creates one backend order per restaurant in the cart and
// mirrors each into the ledger. Orders already accepted by the backend stay
// recorded if a later restaurant fails.
type RemotePlacer struct {
	Backend OrderBackend
	Ledger  Ledger
	IDs     *IDGenerator
}

func (p *RemotePlacer) Place(ctx context.Context, customer Customer, draft domain.Order, in payment.Input) ([]domain.Order, error) {
	parts := Split(draft, p.IDs)
	placed := make([]domain.Order, 0, len(parts))

	var email *string
	if in.Email != "" {
		email = &in.Email
	}

	for _, part := range parts {
		lines := make([]apiclient.OrderLine, 0, len(part.Items))
		for _, item := range part.Items {
			lines = append(lines, apiclient.OrderLine{MenuItemID: item.ID, Quantity: item.Quantity, Price: item.Price})
		}

		remote, err := p.Backend.CreateOrder(ctx, apiclient.OrderRequest{
			Owner:               customer.Remote,
			RestaurantID:        part.Items[0].RestaurantID,
			Items:               lines,
			Phone:               in.Phone,
			Email:               email,
			Address:             in.Address,
			PaymentMethod:       string(in.Method),
			SpecialInstructions: part.SpecialInstructions,
		})
		if err != nil {
			return placed, err
		}

		part.RemoteID = remote.ID
		if err := record(ctx, p.Ledger, part); err != nil {
			return placed, err
		}
		placed = append(placed, part)
	}
	return placed, nil
}

// Split breaks a draft into one order per restaurant, ordered by restaurant id.
// The first part keeps the draft's id and carries the service fee; the
// reservation and its fee go with the reserved restaurant's part.
func Split(draft domain.Order, ids *IDGenerator) []domain.Order {
	groups := make(map[int][]domain.CartItem)
	for _, item := range draft.Items {
		groups[item.RestaurantID] = append(groups[item.RestaurantID], item)
	}
	if len(groups) <= 1 {
		return []domain.Order{draft}
	}

	restaurantIDs := make([]int, 0, len(groups))
	for id := range groups {
		restaurantIDs = append(restaurantIDs, id)
	}
	sort.Ints(restaurantIDs)

	reservedAt := restaurantIDs[0]
	if draft.Reservation != nil {
		if _, ok := groups[draft.Reservation.RestaurantID]; ok {
			reservedAt = draft.Reservation.RestaurantID
		}
	}

	parts := make([]domain.Order, 0, len(groups))
	for i, restaurantID := range restaurantIDs {
		part := draft
		part.Items = groups[restaurantID]
		part.Reservation = nil
		part.ServiceFee = decimal.Zero
		part.ReservationFee = decimal.Zero
		if i == 0 {
			part.ServiceFee = draft.ServiceFee
		} else {
			part.ID = ids.Next()
		}
		if restaurantID == reservedAt {
			part.ReservationFee = draft.ReservationFee
			if draft.Reservation != nil {
				res := *draft.Reservation
				res.OrderID = part.ID
				part.Reservation = &res
			}
		}

		subtotal := decimal.Zero
		for _, item := range part.Items {
			subtotal = subtotal.Add(item.LineTotal())
		}
		part.Subtotal = subtotal
		part.Total = subtotal.Add(part.ServiceFee).Add(part.ReservationFee)
		parts = append(parts, part)
	}
	return parts
}
