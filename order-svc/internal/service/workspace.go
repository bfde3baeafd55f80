package service

import (
	"fmt"
	"sync"
	"time"

	"koikhabo/order-svc/internal/cart"
	"koikhabo/order-svc/internal/checkout"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Workspace is one session's cart and the checkout flow walking it.
type Workspace struct {
	Cart *cart.Cart
	Flow *checkout.Flow

	lastUsed time.Time
}

type Workspaces struct {
	mu     sync.Mutex
	engine *checkout.Engine
	now    func() time.Time
	items  map[string]*Workspace
}

func NewWorkspaces(engine *checkout.Engine, now func() time.Time) *Workspaces {
	if now == nil {
		now = time.Now
	}
	return &Workspaces{engine: engine, now: now, items: make(map[string]*Workspace)}
}

// Get returns the session's workspace, creating an empty one on first use.
// Only mutations should call it; reads go through Lookup.
func (w *Workspaces) Get(sessionID string) *Workspace {
	w.mu.Lock()
	defer w.mu.Unlock()

	ws, ok := w.items[sessionID]
	if !ok {
		c := cart.New()
		ws = &Workspace{Cart: c, Flow: w.engine.NewFlow(c)}
		w.items[sessionID] = ws
	}
	ws.lastUsed = w.now()
	return ws
}

// Lookup returns the session's workspace without creating one.
func (w *Workspaces) Lookup(sessionID string) (*Workspace, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ws, ok := w.items[sessionID]
	if ok {
		ws.lastUsed = w.now()
	}
	return ws, ok
}

func (w *Workspaces) Drop(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.items, sessionID)
}

func (w *Workspaces) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

// Sweep drops workspaces untouched for longer than idle and returns how many
// went. A workspace with a payment in flight is kept.
func (w *Workspaces) Sweep(idle time.Duration) int {
	cutoff := w.now().Add(-idle)

	w.mu.Lock()
	defer w.mu.Unlock()

	evicted := 0
	for id, ws := range w.items {
		if !ws.lastUsed.Before(cutoff) || ws.Flow.State().Submitting {
			continue
		}
		delete(w.items, id)
		evicted++
	}
	return evicted
}

// Janitor sweeps idle workspaces on a fixed interval.
type Janitor struct {
	scheduler gocron.Scheduler
}

func StartJanitor(w *Workspaces, interval, idle time.Duration, logger *zap.Logger) (*Janitor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if n := w.Sweep(idle); n > 0 {
				logger.Info("evicted idle workspaces",
					zap.Int("evicted", n),
					zap.Int("remaining", w.Len()))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("schedule workspace sweep: %w", err)
	}
	scheduler.Start()
	return &Janitor{scheduler: scheduler}, nil
}

func (j *Janitor) Shutdown() error {
	return j.scheduler.Shutdown()
}
