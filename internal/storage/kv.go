package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrUpdateConflict is returned when an Update keeps losing to concurrent writers.
var ErrUpdateConflict = errors.New("too many concurrent updates")

// UpdateFunc receives the current value under a key (ok is false when the key
// is missing) and returns the value to write. write=false leaves the key as is.
// It may be called more than once for a single Update.
type UpdateFunc func(current []byte, ok bool) (next []byte, write bool, err error)

// KV is the key-value seam standing in for browser local storage.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	// Update is an atomic read-modify-write of one key, safe across every
	// process sharing the store.
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

const maxUpdateAttempts = 10

type RedisKV struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

func NewRedisKV(client *redis.Client, prefix string, ttl time.Duration) *RedisKV {
	return &RedisKV{Client: client, Prefix: prefix, TTL: ttl}
}

func (s *RedisKV) key(k string) string {
	return s.Prefix + k
}

func (s *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.Client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	return s.Client.Set(ctx, s.key(key), value, s.TTL).Err()
}

func (s *RedisKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.key(k)
	}
	return s.Client.Del(ctx, prefixed...).Err()
}

// Update runs fn inside WATCH/MULTI and retries when the key changed under it.
func (s *RedisKV) Update(ctx context.Context, key string, fn UpdateFunc) error {
	full := s.key(key)
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, full).Bytes()
		ok := true
		if errors.Is(err, redis.Nil) {
			current, ok = nil, false
		} else if err != nil {
			return err
		}

		next, write, err := fn(current, ok)
		if err != nil || !write {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, full, next, s.TTL)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.Client.Watch(ctx, txf, full)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update %s: %w", key, ErrUpdateConflict)
}

type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *MemoryKV) Update(_ context.Context, key string, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.data[key]
	next, write, err := fn(append([]byte(nil), current...), ok)
	if err != nil || !write {
		return err
	}
	m.data[key] = append([]byte(nil), next...)
	return nil
}

var (
	_ KV = (*RedisKV)(nil)
	_ KV = (*MemoryKV)(nil)
)

// JSONStore (de)serializes values kept in a KV.
type JSONStore struct {
	KV     KV
	Logger *zap.Logger
}

func NewJSONStore(kv KV, logger *zap.Logger) *JSONStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONStore{KV: kv, Logger: logger}
}

// Load decodes the value under key into v. A missing key leaves v untouched;
// an undecodable value is logged and treated as missing.
func (s *JSONStore) Load(ctx context.Context, key string, v any) error {
	raw, ok, err := s.KV.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return nil
	}
	if err := decodeInto(raw, v); err != nil {
		s.Logger.Warn("discarding unreadable stored value", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// decodeInto decodes raw into a fresh value and only then assigns it to v, so
// a value that fails halfway leaves v as it was.
func decodeInto(raw []byte, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return json.Unmarshal(raw, v)
	}
	fresh := reflect.New(rv.Elem().Type())
	if err := json.Unmarshal(raw, fresh.Interface()); err != nil {
		return err
	}
	rv.Elem().Set(fresh.Elem())
	return nil
}

func (s *JSONStore) Save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.KV.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// UpdateJSON atomically rewrites the JSON value under key with what fn returns.
// A missing or unreadable value reaches fn as initial. fn may run more than
// once when other writers race it.
func UpdateJSON[T any](ctx context.Context, s *JSONStore, key string, initial func() T, fn func(current T) (T, bool, error)) error {
	return s.KV.Update(ctx, key, func(raw []byte, ok bool) ([]byte, bool, error) {
		current := initial()
		if ok {
			if err := decodeInto(raw, &current); err != nil {
				s.Logger.Warn("discarding unreadable stored value", zap.String("key", key), zap.Error(err))
			}
		}
		next, changed, err := fn(current)
		if err != nil || !changed {
			return nil, false, err
		}
		out, err := json.Marshal(next)
		if err != nil {
			return nil, false, fmt.Errorf("encode %s: %w", key, err)
		}
		return out, true, nil
	})
}

func (s *JSONStore) Delete(ctx context.Context, keys ...string) error {
	return s.KV.Delete(ctx, keys...)
}
