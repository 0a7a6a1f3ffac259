package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RealtimeEvent is one row-change message delivered to subscribed clients.
type RealtimeEvent struct {
	Type   string          `json:"type"`
	Table  string          `json:"table"`
	UserID uuid.UUID       `json:"userID"`
	Record json.RawMessage `json:"record"`
}

type Broker interface {
	Publish(ctx context.Context, ev RealtimeEvent) error
}

// Hub fans realtime events out to per-user subscribers in this process.
// Delivery is at-most-once: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[uint64]chan RealtimeEvent
	nextID uint64
	broker Broker
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]map[uint64]chan RealtimeEvent)}
}

// UseBroker routes Publish through a cross-instance broker. The broker is expected to
// call Deliver on every instance, this one included.
func (h *Hub) UseBroker(b Broker) {
	h.mu.Lock()
	h.broker = b
	h.mu.Unlock()
}

func (h *Hub) Subscribe(userID uuid.UUID) (<-chan RealtimeEvent, func()) {
	ch := make(chan RealtimeEvent, 16)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[uint64]chan RealtimeEvent)
	}
	h.subs[userID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], id)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (h *Hub) Publish(ctx context.Context, ev RealtimeEvent) {
	h.mu.RLock()
	broker := h.broker
	h.mu.RUnlock()

	if broker != nil {
		err := broker.Publish(ctx, ev)
		if err == nil {
			return
		}
		logger.Warn("realtime_broker_publish_failed", map[string]interface{}{
			"error":   err.Error(),
			"user_id": ev.UserID.String(),
		})
	}
	h.Deliver(ev)
}

// Deliver hands ev to local subscribers without blocking.
func (h *Hub) Deliver(ev RealtimeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs[ev.UserID] {
		select {
		case ch <- ev:
		default:
			logger.Warn("realtime_subscriber_slow", map[string]interface{}{
				"user_id": ev.UserID.String(),
				"table":   ev.Table,
				"dropped": true,
			})
		}
	}
}

func (h *Hub) SubscriberCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// RedisBroker relays hub events through a Redis pub/sub channel so every
// server instance sees inserts made by any other.
type RedisBroker struct {
	client  *redis.Client
	channel string
}

func NewRedisBroker(redisURL, channel string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		opts = &redis.Options{Addr: redisURL}
	}
	return &RedisBroker{client: redis.NewClient(opts), channel: channel}, nil
}

func (r *RedisBroker) Publish(ctx context.Context, ev RealtimeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Run forwards channel messages into hub until ctx is cancelled.
func (r *RedisBroker) Run(ctx context.Context, hub *Hub) error {
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}

	go func() {
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev RealtimeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Warn("realtime_broker_decode_failed", map[string]interface{}{
						"error": err.Error(),
					})
					continue
				}
				hub.Deliver(ev)
			}
		}
	}()

	logger.Info("realtime_broker_started", map[string]interface{}{
		"channel": r.channel,
	})
	return nil
}

func (r *RedisBroker) Close() error {
	return r.client.Close()
}
