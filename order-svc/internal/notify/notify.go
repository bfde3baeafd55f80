package notify

import (
	"context"
	"sync"
	"time"

	"koikhabo/internal/domain"

	"go.uber.org/zap"
)

type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Publisher is satisfied by storage.KafkaPublisher.
type Publisher interface {
	PublishNotification(ctx context.Context, n domain.Notification) error
}

func stamp(n domain.Notification) domain.Notification {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	return n
}

// Inbox buffers notifications per owner until they are drained.
type Inbox struct {
	mu    sync.Mutex
	limit int
	items map[string][]domain.Notification
}

// NewInbox keeps at most limit pending notifications per owner, dropping the oldest.
func NewInbox(limit int) *Inbox {
	return &Inbox{limit: limit, items: make(map[string][]domain.Notification)}
}

func (i *Inbox) Notify(_ context.Context, n domain.Notification) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	queue := append(i.items[n.OwnerID], stamp(n))
	if i.limit > 0 && len(queue) > i.limit {
		queue = queue[len(queue)-i.limit:]
	}
	i.items[n.OwnerID] = queue
	return nil
}

// Drain returns and forgets the owner's pending notifications, oldest first.
func (i *Inbox) Drain(owner string) []domain.Notification {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := i.items[owner]
	delete(i.items, owner)
	if out == nil {
		return []domain.Notification{}
	}
	return out
}

type KafkaNotifier struct {
	publisher Publisher
}

func NewKafkaNotifier(publisher Publisher) *KafkaNotifier {
	return &KafkaNotifier{publisher: publisher}
}

func (k *KafkaNotifier) Notify(ctx context.Context, n domain.Notification) error {
	return k.publisher.PublishNotification(ctx, stamp(n))
}

type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, n domain.Notification) error {
	fields := []zap.Field{
		zap.String("owner", n.OwnerID),
		zap.String("level", n.Level),
		zap.String("message", n.Message),
	}
	if n.OrderID != 0 {
		fields = append(fields, zap.Int64("order_id", n.OrderID))
	}
	if n.Level == domain.LevelError {
		l.logger.Warn("notification", fields...)
		return nil
	}
	l.logger.Info("notification", fields...)
	return nil
}

// Fanout delivers to every notifier. A failing sink does not stop the rest;
// the first error is returned.
type Fanout struct {
	sinks  []Notifier
	logger *zap.Logger
}

func NewFanout(logger *zap.Logger, sinks ...Notifier) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{sinks: sinks, logger: logger}
}

func (f *Fanout) Notify(ctx context.Context, n domain.Notification) error {
	n = stamp(n)
	var first error
	for _, sink := range f.sinks {
		if err := sink.Notify(ctx, n); err != nil {
			f.logger.Warn("notification sink failed", zap.String("owner", n.OwnerID), zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func Info(owner string, orderID int64, msg string) domain.Notification {
	return domain.Notification{OwnerID: owner, Level: domain.LevelInfo, Message: msg, OrderID: orderID}
}

func Success(owner string, orderID int64, msg string) domain.Notification {
	return domain.Notification{OwnerID: owner, Level: domain.LevelSuccess, Message: msg, OrderID: orderID}
}

func Error(owner string, msg string) domain.Notification {
	return domain.Notification{OwnerID: owner, Level: domain.LevelError, Message: msg}
}
