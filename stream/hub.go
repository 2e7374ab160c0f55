package stream

import (
	"context"
	"sync"
	"time"

	"github.com/use-agent/scout/models"
)

// Subscription is the receiving end of one channel.
type Subscription struct {
	channel  string
	messages chan models.Message
	done     chan struct{}
	once     sync.Once
}

// Channel returns the token this subscription listens on.
func (s *Subscription) Channel() string { return s.channel }

// Messages is never closed; select on Done to detect the end.
func (s *Subscription) Messages() <-chan models.Message { return s.messages }

// Done is closed by Unsubscribe.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Hub is the in-process publish/subscribe transport. Each channel token has
// at most one subscriber, normally a WebSocket connection.
type Hub struct {
	mu             sync.RWMutex
	subs           map[string]*Subscription
	bufferSize     int
	publishTimeout time.Duration
}

// NewHub creates a Hub. bufferSize is the per-channel queue length and
// publishTimeout bounds how long Publish waits on a full queue.
func NewHub(bufferSize int, publishTimeout time.Duration) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Hub{
		subs:           make(map[string]*Subscription),
		bufferSize:     bufferSize,
		publishTimeout: publishTimeout,
	}
}

// Subscribe registers the single receiver of channel.
func (h *Hub) Subscribe(channel string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[channel]; ok {
		return nil, ErrChannelInUse
	}
	sub := &Subscription{
		channel:  channel,
		messages: make(chan models.Message, h.bufferSize),
		done:     make(chan struct{}),
	}
	h.subs[channel] = sub
	return sub, nil
}

// Unsubscribe removes sub. Publishers blocked on it return ErrNoSubscriber.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if h.subs[sub.channel] == sub {
		delete(h.subs, sub.channel)
	}
	h.mu.Unlock()
	sub.once.Do(func() { close(sub.done) })
}

// Publish queues msg for the subscriber of channel.
func (h *Hub) Publish(ctx context.Context, channel string, msg models.Message) error {
	h.mu.RLock()
	sub := h.subs[channel]
	h.mu.RUnlock()
	if sub == nil {
		return ErrNoSubscriber
	}

	// Fast path: room in the buffer.
	select {
	case <-sub.done:
		return ErrNoSubscriber
	default:
	}
	select {
	case sub.messages <- msg:
		return nil
	default:
	}

	var expired <-chan time.Time
	if h.publishTimeout > 0 {
		timer := time.NewTimer(h.publishTimeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case sub.messages <- msg:
		return nil
	case <-sub.done:
		return ErrNoSubscriber
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return ErrSlowSubscriber
	}
}

// Has reports whether channel has a live subscriber.
func (h *Hub) Has(channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.subs[channel]
	return ok
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
