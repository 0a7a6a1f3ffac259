// Package relay turns the signed-in user's notifications into a queue of in-app banners
// and keeps the device's push subscription registered.
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/cli/api"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
)

const DefaultDuration = 4 * time.Second

// PersistentType marks notifications that stay up until dismissed.
const PersistentType = "timer"

type Backend interface {
	ListUnreadNotifications(ctx context.Context) ([]api.Notification, error)
	MarkNotificationRead(ctx context.Context, notificationID string) error
	SubscribeNotifications(ctx context.Context) (<-chan api.Notification, error)
	ListPushSubscriptions(ctx context.Context) ([]api.PushSubscription, error)
	SubscribePush(ctx context.Context, input api.PushSubscriptionInput) error
}

// Device is the local push capability. Nil means the client cannot receive push.
type Device interface {
	PermissionGranted() bool
	Subscription() (api.PushSubscriptionInput, error)
}

type Banner struct {
	Notification api.Notification
	Persistent   bool
}

type Relay struct {
	Backend Backend
	Device  Device
	// Duration is how long a non-persistent head stays before it is dismissed.
	Duration time.Duration
	// OnChange, if set, runs after the queue changes.
	OnChange func()

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	queue   []Banner
	timer   *time.Timer
	gen     uint64
	pending sync.WaitGroup
}

func New(backend Backend, device Device) *Relay {
	return &Relay{Backend: backend, Device: device, Duration: DefaultDuration}
}

// Start loads unread notifications, follows new ones and makes sure push is registered.
// Failures past the initial load are logged and do not stop the relay. A stopped relay
// can be started again and begins from a fresh queue.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return nil
	}
	r.queue = nil
	r.ctx, r.cancel = context.WithCancel(ctx)
	ctx = r.ctx
	r.mu.Unlock()

	unread, err := r.Backend.ListUnreadNotifications(ctx)
	if err != nil {
		logger.Warn("relay_unread_failed", map[string]interface{}{"error": err.Error()})
	}
	for _, n := range unread {
		r.enqueue(n)
	}

	inserts, err := r.Backend.SubscribeNotifications(ctx)
	if err != nil {
		logger.Warn("relay_subscribe_failed", map[string]interface{}{"error": err.Error()})
	} else {
		r.pending.Add(1)
		go func() {
			defer r.pending.Done()
			for n := range inserts {
				r.enqueue(n)
			}
		}()
	}

	r.ensurePush(ctx)
	return nil
}

// ensurePush re-registers the device when permission exists but the backend has no
// subscription for it.
func (r *Relay) ensurePush(ctx context.Context) {
	if r.Device == nil || !r.Device.PermissionGranted() {
		return
	}
	input, err := r.Device.Subscription()
	if err != nil {
		logger.Warn("relay_push_device_failed", map[string]interface{}{"error": err.Error()})
		return
	}
	existing, err := r.Backend.ListPushSubscriptions(ctx)
	if err != nil {
		logger.Warn("relay_push_list_failed", map[string]interface{}{"error": err.Error()})
		return
	}
	for _, s := range existing {
		if s.Endpoint == input.Endpoint {
			return
		}
	}
	if err := r.Backend.SubscribePush(ctx, input); err != nil {
		logger.Warn("relay_push_subscribe_failed", map[string]interface{}{"error": err.Error()})
		return
	}
	logger.Info("relay_push_subscribed", nil)
}

func (r *Relay) enqueue(n api.Notification) {
	r.mu.Lock()
	r.queue = append(r.queue, Banner{Notification: n, Persistent: n.Type == PersistentType})
	promoted := len(r.queue) == 1
	if promoted {
		r.promoteLocked()
	}
	r.mu.Unlock()
	r.changed()
}

// promoteLocked marks the new head as read and arms its dismiss timer.
func (r *Relay) promoteLocked() {
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if len(r.queue) == 0 {
		return
	}
	head := r.queue[0]

	if r.ctx != nil && r.ctx.Err() == nil {
		ctx := r.ctx
		r.pending.Add(1)
		go func() {
			defer r.pending.Done()
			if err := r.Backend.MarkNotificationRead(ctx, head.Notification.ID); err != nil {
				logger.Warn("relay_mark_read_failed", map[string]interface{}{
					"notification_id": head.Notification.ID,
					"error":           err.Error(),
				})
			}
		}()
	}

	if head.Persistent {
		return
	}
	gen := r.gen
	r.timer = time.AfterFunc(r.Duration, func() {
		r.mu.Lock()
		if r.gen != gen || len(r.queue) == 0 {
			r.mu.Unlock()
			return
		}
		r.queue = r.queue[1:]
		r.promoteLocked()
		r.mu.Unlock()
		r.changed()
	})
}

// Dismiss pops the head and promotes the next banner.
func (r *Relay) Dismiss() {
	r.mu.Lock()
	if len(r.queue) == 0 {
		r.mu.Unlock()
		return
	}
	r.queue = r.queue[1:]
	r.promoteLocked()
	r.mu.Unlock()
	r.changed()
}

func (r *Relay) Head() (Banner, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return Banner{}, false
	}
	return r.queue[0], true
}

func (r *Relay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Stop ends the realtime subscription and waits for in-flight read marks.
func (r *Relay) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.ctx = nil
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.pending.Wait()
}

func (r *Relay) changed() {
	if r.OnChange != nil {
		r.OnChange()
	}
}
