package service

import (
	"context"
	"encoding/json"
	"fmt"

	"koikhabo/order-svc/internal/apiclient"
	"koikhabo/order-svc/internal/notify"
	"koikhabo/order-svc/internal/session"

	"go.uber.org/zap"
)

// Account is the slice of the backend API that works on an owner's remote
// orders and bookings.
type Account interface {
	OrderHistory(ctx context.Context, owner apiclient.Owner) ([]apiclient.RemoteOrder, error)
	Reorder(ctx context.Context, orderID int, owner apiclient.Owner) (*apiclient.RemoteOrder, error)
	Bookings(ctx context.Context, userID int) ([]apiclient.Booking, error)
	CancelBooking(ctx context.Context, bookingID int) error
	AdminDashboard(ctx context.Context, adminName string) (json.RawMessage, error)
}

var _ Account = (*apiclient.Client)(nil)

func (s *OrderService) SelectInstitution(ctx context.Context, sessionID string, inst session.Institution) error {
	if _, err := s.customer(ctx, sessionID); err != nil {
		return err
	}
	return s.Sessions.SelectInstitution(ctx, sessionID, inst)
}

func (s *OrderService) Institution(ctx context.Context, sessionID string) (*session.Institution, error) {
	if _, err := s.customer(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.Sessions.Institution(ctx, sessionID)
}

func (s *OrderService) OrderHistory(ctx context.Context, sessionID string) ([]apiclient.RemoteOrder, error) {
	actor, err := s.customer(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.Account.OrderHistory(ctx, actor.Owner())
}

func (s *OrderService) Reorder(ctx context.Context, sessionID string, orderID int) (*apiclient.RemoteOrder, error) {
	actor, err := s.customer(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	order, err := s.Account.Reorder(ctx, orderID, actor.Owner())
	if err != nil {
		s.notify(ctx, notify.Error(actor.ID(), apiclient.UserMessage(err)))
		return nil, err
	}
	s.notify(ctx, notify.Success(actor.ID(), int64(order.ID), fmt.Sprintf("Order #%d placed again!", order.ID)))
	return order, nil
}

// Bookings lists seat bookings. The backend keys them by registered user, so
// guests have none.
func (s *OrderService) Bookings(ctx context.Context, sessionID string) ([]apiclient.Booking, error) {
	actor, err := s.customer(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if actor.User == nil {
		return []apiclient.Booking{}, nil
	}
	return s.Account.Bookings(ctx, actor.User.UserID)
}

func (s *OrderService) CancelBooking(ctx context.Context, sessionID string, bookingID int) error {
	actor, err := s.customer(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.Account.CancelBooking(ctx, bookingID); err != nil {
		return err
	}
	s.notify(ctx, notify.Info(actor.ID(), 0, "Booking cancelled"))
	s.Logger.Info("booking cancelled", zap.String("owner", actor.ID()), zap.Int("booking_id", bookingID))
	return nil
}

func (s *OrderService) AdminDashboard(ctx context.Context, sessionID string) (json.RawMessage, error) {
	actor, err := s.Sessions.Current(ctx, sessionID)
	if err != nil || !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.Account.AdminDashboard(ctx, actor.Admin.Name)
}
