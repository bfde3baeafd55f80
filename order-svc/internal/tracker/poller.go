package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"koikhabo/internal/domain"
	"koikhabo/order-svc/internal/notify"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("tracker is shut down")

// OrderStore is the part of storage.Ledger the poller needs.
type OrderStore interface {
	Orders(ctx context.Context, owner string) ([]domain.Order, error)
	UpdateOrder(ctx context.Context, owner string, id int64, fn func(order domain.Order) (domain.OrderStatus, error)) (domain.Order, bool, error)
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, msg domain.KafkaMessage) error
}

// Poller runs one status job per open tracking view.
type Poller struct {
	store    OrderStore
	advancer Advancer
	interval time.Duration
	logger   *zap.Logger

	Notifier notify.Notifier
	Events   EventPublisher

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	scheduler gocron.Scheduler
	jobs      map[string]uuid.UUID
	closed    bool
}

func NewPoller(store OrderStore, advancer Advancer, interval time.Duration, logger *zap.Logger) (*Poller, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	scheduler.Start()

	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		store:     store,
		advancer:  advancer,
		interval:  interval,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		scheduler: scheduler,
		jobs:      make(map[string]uuid.UUID),
	}, nil
}

// Open starts polling owner's orders. Nothing is scheduled while the owner
// has no orders; the returned flag reports whether a job is running.
func (p *Poller) Open(ctx context.Context, owner string) (bool, error) {
	orders, err := p.store.Orders(ctx, owner)
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false, ErrClosed
	}
	if _, ok := p.jobs[owner]; ok {
		return true, nil
	}
	if len(orders) == 0 {
		return false, nil
	}

	job, err := p.scheduler.NewJob(
		gocron.DurationJob(p.interval),
		gocron.NewTask(func() {
			if _, err := p.Tick(p.ctx, owner); err != nil {
				p.logger.Warn("status tick failed", zap.String("owner", owner), zap.Error(err))
			}
		}),
		gocron.WithName("track:"+owner),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return false, fmt.Errorf("schedule tracker for %s: %w", owner, err)
	}
	p.jobs[owner] = job.ID()
	p.logger.Debug("tracking opened", zap.String("owner", owner), zap.Duration("interval", p.interval))
	return true, nil
}

func (p *Poller) Close(owner string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok := p.jobs[owner]
	if !ok {
		return nil
	}
	delete(p.jobs, owner)
	if err := p.scheduler.RemoveJob(id); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		return fmt.Errorf("remove tracker for %s: %w", owner, err)
	}
	p.logger.Debug("tracking closed", zap.String("owner", owner))
	return nil
}

func (p *Poller) Tracking(owner string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.jobs[owner]
	return ok
}

// Shutdown stops every job and the scheduler itself.
func (p *Poller) Shutdown() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.jobs = make(map[string]uuid.UUID)
	p.mu.Unlock()

	p.cancel()
	return p.scheduler.Shutdown()
}

// Tick advances owner's orders once and returns how many changed. Each
// proposed change is re-checked against the stored status when applied, so a
// status that moved in the meantime is never pulled backwards.
func (p *Poller) Tick(ctx context.Context, owner string) (int, error) {
	orders, err := p.store.Orders(ctx, owner)
	if err != nil {
		return 0, err
	}

	type proposal struct {
		id     int64
		change Change
	}
	var proposed []proposal
	for _, order := range orders {
		change, ok, err := p.advancer.Advance(ctx, order)
		if err != nil {
			p.logger.Warn("advance order failed", zap.Int64("order_id", order.ID), zap.Error(err))
			continue
		}
		if ok {
			proposed = append(proposed, proposal{id: order.ID, change: change})
		}
	}
	if len(proposed) == 0 {
		return 0, nil
	}

	applied := 0
	for _, prop := range proposed {
		order, changed, err := p.store.UpdateOrder(ctx, owner, prop.id, func(current domain.Order) (domain.OrderStatus, error) {
			if !domain.Advances(current.Status, prop.change.To) {
				return current.Status, nil
			}
			return prop.change.To, nil
		})
		if err != nil {
			p.logger.Warn("apply status change failed", zap.Int64("order_id", prop.id), zap.Error(err))
			continue
		}
		if changed {
			applied++
			p.announce(ctx, order, prop.change.Notice)
		}
	}
	return applied, nil
}

func (p *Poller) announce(ctx context.Context, order domain.Order, notice domain.Notification) {
	if p.Notifier != nil {
		if err := p.Notifier.Notify(ctx, notice); err != nil {
			p.logger.Warn("notify failed", zap.Int64("order_id", order.ID), zap.Error(err))
		}
	}
	if p.Events != nil {
		err := p.Events.PublishOrderEvent(ctx, domain.KafkaMessage{
			Type:      domain.EventStatusChanged,
			OwnerID:   order.OwnerID,
			OrderID:   order.ID,
			Status:    order.Status,
			Timestamp: time.Now(),
		})
		if err != nil {
			p.logger.Warn("failed to publish status event", zap.Int64("order_id", order.ID), zap.Error(err))
		}
	}
	p.logger.Info("order status changed", zap.Int64("order_id", order.ID), zap.String("status", string(order.Status)))
}
