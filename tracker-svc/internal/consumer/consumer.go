package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"koikhabo/internal/domain"
	"koikhabo/internal/storage"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrStaleStatus = errors.New("status would move backwards")

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type OrderUpdater interface {
	UpdateOrder(ctx context.Context, owner string, id int64, fn func(order domain.Order) (domain.OrderStatus, error)) (domain.Order, bool, error)
}

var (
	_ MessageReader = (*kafka.Reader)(nil)
	_ OrderUpdater  = (*storage.Ledger)(nil)
)

// Consumer applies status_changed events to the shared order ledger.
type Consumer struct {
	Reader MessageReader
	Store  OrderUpdater
	Logger *zap.Logger

	applied atomic.Int64
	skipped atomic.Int64
}

// Stats counts status events since start.
type Stats struct {
	Applied int64 `json:"applied"`
	Skipped int64 `json:"skipped"`
}

func (c *Consumer) Stats() Stats {
	return Stats{Applied: c.applied.Load(), Skipped: c.skipped.Load()}
}

func NewConsumer(reader MessageReader, store OrderUpdater, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{Reader: reader, Store: store, Logger: logger}
}

// Start reads until ctx is cancelled or the reader is closed.
func (c *Consumer) Start(ctx context.Context) {
	c.Logger.Info("starting status consumer")
	for {
		message, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.Logger.Info("status consumer stopped")
				return
			}
			c.Logger.Warn("error reading message", zap.Error(err))
			continue
		}

		var msg domain.KafkaMessage
		if err := json.Unmarshal(message.Value, &msg); err != nil {
			c.Logger.Warn("error unmarshaling message", zap.Error(err), zap.ByteString("key", message.Key))
			continue
		}

		if err := c.ProcessStatus(ctx, msg); err != nil {
			c.skipped.Add(1)
			c.Logger.Warn("status event skipped",
				zap.String("owner", msg.OwnerID),
				zap.Int64("order_id", msg.OrderID),
				zap.String("status", string(msg.Status)),
				zap.Error(err))
		}
	}
}

// ProcessStatus moves one order to the event's status. Events of other types
// are ignored.
func (c *Consumer) ProcessStatus(ctx context.Context, msg domain.KafkaMessage) error {
	if msg.Type != domain.EventStatusChanged {
		return nil
	}
	if msg.OwnerID == "" || !msg.Status.Valid() {
		return fmt.Errorf("malformed status event for order %d", msg.OrderID)
	}

	_, changed, err := c.Store.UpdateOrder(ctx, msg.OwnerID, msg.OrderID, func(order domain.Order) (domain.OrderStatus, error) {
		if order.Status == msg.Status {
			return order.Status, nil
		}
		if !domain.Advances(order.Status, msg.Status) {
			return order.Status, fmt.Errorf("%w: %s to %s", ErrStaleStatus, order.Status, msg.Status)
		}
		return msg.Status, nil
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	c.applied.Add(1)
	c.Logger.Info("applied status event", zap.Int64("order_id", msg.OrderID), zap.String("status", string(msg.Status)))
	return nil
}
