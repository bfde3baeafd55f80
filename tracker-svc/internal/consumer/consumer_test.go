package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"koikhabo/internal/domain"
	"koikhabo/internal/storage"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newLedger(t *testing.T, orders ...domain.Order) *storage.Ledger {
	t.Helper()
	ledger := storage.NewLedger(storage.NewLocalRepository(storage.NewJSONStore(storage.NewMemoryKV(), zap.NewNop())))
	for _, o := range orders {
		require.NoError(t, ledger.PrependOrder(context.Background(), "user-1", o))
	}
	return ledger
}

func TestConsumer_ProcessStatus(t *testing.T) {
	tests := []struct {
		name    string
		current domain.OrderStatus
		msg     domain.KafkaMessage
		want    domain.OrderStatus
		wantErr error
	}{
		{
			name:    "forward",
			current: domain.StatusPreparing,
			msg:     domain.KafkaMessage{Type: domain.EventStatusChanged, OwnerID: "user-1", OrderID: 1, Status: domain.StatusReady},
			want:    domain.StatusReady,
		},
		{
			name:    "same status is a no-op",
			current: domain.StatusReady,
			msg:     domain.KafkaMessage{Type: domain.EventStatusChanged, OwnerID: "user-1", OrderID: 1, Status: domain.StatusReady},
			want:    domain.StatusReady,
		},
		{
			name:    "regression is skipped",
			current: domain.StatusDelivered,
			msg:     domain.KafkaMessage{Type: domain.EventStatusChanged, OwnerID: "user-1", OrderID: 1, Status: domain.StatusPreparing},
			want:    domain.StatusDelivered,
			wantErr: ErrStaleStatus,
		},
		{
			name:    "unknown order",
			current: domain.StatusPending,
			msg:     domain.KafkaMessage{Type: domain.EventStatusChanged, OwnerID: "user-1", OrderID: 99, Status: domain.StatusReady},
			want:    domain.StatusPending,
			wantErr: storage.ErrOrderNotFound,
		},
		{
			name:    "other event types ignored",
			current: domain.StatusPending,
			msg:     domain.KafkaMessage{Type: domain.EventOrderPlaced, OwnerID: "user-1", OrderID: 1, Status: domain.StatusReady},
			want:    domain.StatusPending,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			ledger := newLedger(t, domain.Order{ID: 1, OwnerID: "user-1", Status: testCase.current})
			c := NewConsumer(nil, ledger, nil)

			err := c.ProcessStatus(context.Background(), testCase.msg)
			if testCase.wantErr != nil {
				assert.ErrorIs(t, err, testCase.wantErr)
			} else {
				require.NoError(t, err)
			}

			order, err := ledger.Order(context.Background(), "user-1", 1)
			require.NoError(t, err)
			assert.Equal(t, testCase.want, order.Status)
		})
	}
}

func TestConsumer_ProcessStatusMalformed(t *testing.T) {
	c := NewConsumer(nil, newLedger(t), nil)
	assert.Error(t, c.ProcessStatus(context.Background(), domain.KafkaMessage{Type: domain.EventStatusChanged, OrderID: 1, Status: "eaten"}))
}

// fakeReader hands out queued messages, then blocks until ctx ends.
type fakeReader struct {
	mu       sync.Mutex
	messages []kafka.Message
	errs     []error
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		f.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(f.messages) > 0 {
		msg := f.messages[0]
		f.messages = f.messages[1:]
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func TestConsumer_Start(t *testing.T) {
	ledger := newLedger(t,
		domain.Order{ID: 1, OwnerID: "user-1", Status: domain.StatusPending},
		domain.Order{ID: 2, OwnerID: "user-1", Status: domain.StatusReady},
	)

	encode := func(msg domain.KafkaMessage) kafka.Message {
		payload, err := json.Marshal(msg)
		require.NoError(t, err)
		return kafka.Message{Value: payload}
	}
	reader := &fakeReader{
		errs: []error{errors.New("broker hiccup")},
		messages: []kafka.Message{
			{Value: []byte("{not json")},
			encode(domain.KafkaMessage{Type: domain.EventStatusChanged, OwnerID: "user-1", OrderID: 1, Status: domain.StatusPreparing}),
			encode(domain.KafkaMessage{Type: domain.EventStatusChanged, OwnerID: "user-1", OrderID: 2, Status: domain.StatusPending}),
		},
	}

	core, logs := observer.New(zap.InfoLevel)
	c := NewConsumer(reader, ledger, zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return logs.FilterMessage("status event skipped").Len() == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done

	first, err := ledger.Order(context.Background(), "user-1", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPreparing, first.Status)
	second, err := ledger.Order(context.Background(), "user-1", 2)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, second.Status)

	assert.Equal(t, 1, logs.FilterMessage("error reading message").Len())
	assert.Equal(t, 1, logs.FilterMessage("error unmarshaling message").Len())
	assert.Equal(t, 1, logs.FilterMessage("status consumer stopped").Len())
	assert.Equal(t, Stats{Applied: 1, Skipped: 1}, c.Stats())
}
