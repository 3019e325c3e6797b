// Package sessions stores short-lived chat ordering sessions outside the
// process so any API instance can continue a conversation.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/bakery-orders/internal/apperr"
	"github.com/example/bakery-orders/internal/models"
)

type Step string

const (
	StepCollectAddress Step = "collect_address"
	StepConfirmOrder   Step = "confirm_order"
	StepAwaitPayment   Step = "await_payment"
)

// ChatOrder is the state of one chatbot checkout.
type ChatOrder struct {
	ID              string       `json:"session_id"`
	UserID          string       `json:"user_id,omitempty"`
	MenuItemID      int64        `json:"item_id"`
	ItemName        string       `json:"item_name"`
	Quantity        int          `json:"quantity"`
	UnitPrice       models.Money `json:"price"`
	DeliveryFee     models.Money `json:"delivery_fee"`
	DeliveryAddress string       `json:"delivery_address,omitempty"`
	DeliveryPhone   string       `json:"delivery_phone,omitempty"`
	Step            Step         `json:"step"`
	OrderID         string       `json:"order_id,omitempty"`
	GatewayOrderID  string       `json:"gateway_order_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

func (c *ChatOrder) ItemTotal() models.Money  { return c.UnitPrice.Mul(c.Quantity) }
func (c *ChatOrder) GrandTotal() models.Money { return c.ItemTotal().Add(c.DeliveryFee) }

func NewID() string { return uuid.NewString() }

// Store keeps sessions for a bounded time. Get on a missing or expired
// session returns apperr.ErrSessionNotFound.
//
// Lock claims a session exclusively for at most ttl. It fails with
// apperr.ErrSessionBusy while another caller holds the claim; the returned
// func releases only the caller's own claim.
type Store interface {
	Save(ctx context.Context, s *ChatOrder) error
	Get(ctx context.Context, id string) (*ChatOrder, error)
	Delete(ctx context.Context, id string) error
	Lock(ctx context.Context, id string, ttl time.Duration) (unlock func(), err error)
}

const (
	keyPrefix  = "chat_session:"
	lockPrefix = "chat_session_lock:"
)

// deletes the lock only while it still carries the caller's token
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Save refreshes the TTL on every write.
func (r *RedisStore) Save(ctx context.Context, s *ChatOrder) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, keyPrefix+s.ID, b, r.ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, id string) (*ChatOrder, error) {
	b, err := r.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", apperr.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var s ChatOrder
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, keyPrefix+id).Err()
}

func (r *RedisStore) Lock(ctx context.Context, id string, ttl time.Duration) (func(), error) {
	key, token := lockPrefix+id, uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock session %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrSessionBusy, id)
	}
	return func() {
		_ = unlockScript.Run(context.WithoutCancel(ctx), r.client, []string{key}, token).Err()
	}, nil
}

// MemoryStore is for tests and single-instance development.
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	data  map[string]memEntry
	locks map[string]memLock
	seq   uint64
}

type memLock struct {
	token   uint64
	expires time.Time
}

type memEntry struct {
	b       []byte
	expires time.Time
}

func NewMemoryStore(ttl time.Duration, now func() time.Time) *MemoryStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{ttl: ttl, now: now, data: make(map[string]memEntry), locks: make(map[string]memLock)}
}

func (m *MemoryStore) Save(ctx context.Context, s *ChatOrder) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[s.ID] = memEntry{b: b, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*ChatOrder, error) {
	m.mu.Lock()
	e, ok := m.data[id]
	if ok && !m.now().Before(e.expires) {
		delete(m.data, id)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrSessionNotFound, id)
	}
	var s ChatOrder
	if err := json.Unmarshal(e.b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

func (m *MemoryStore) Lock(ctx context.Context, id string, ttl time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[id]; ok && m.now().Before(l.expires) {
		return nil, fmt.Errorf("%w: %s", apperr.ErrSessionBusy, id)
	}
	m.seq++
	token := m.seq
	m.locks[id] = memLock{token: token, expires: m.now().Add(ttl)}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if l, ok := m.locks[id]; ok && l.token == token {
			delete(m.locks, id)
		}
	}, nil
}
