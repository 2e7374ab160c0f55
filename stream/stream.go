// Package stream delivers search messages to client sessions.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"slices"
	"sync"

	"github.com/use-agent/scout/models"
)

var (
	// ErrNoSubscriber means nobody is listening on the channel any more.
	ErrNoSubscriber = errors.New("stream: no subscriber on channel")

	// ErrChannelInUse is returned when subscribing to a taken channel.
	ErrChannelInUse = errors.New("stream: channel already subscribed")

	// ErrSlowSubscriber means the subscriber did not drain its buffer in time.
	ErrSlowSubscriber = errors.New("stream: subscriber too slow")
)

// Publisher delivers one message to a destination channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, msg models.Message) error
}

// IsCallbackURL reports whether channel names an http(s) webhook endpoint
// rather than a live session token.
func IsCallbackURL(channel string) bool {
	u, err := url.Parse(channel)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Mux routes callback URLs to the webhook publisher and every other token
// to the session publisher.
type Mux struct {
	sessions Publisher
	webhooks Publisher
}

// NewMux creates a Mux. webhooks may be nil, in which case callback URLs
// are treated like any other token.
func NewMux(sessions, webhooks Publisher) *Mux {
	return &Mux{sessions: sessions, webhooks: webhooks}
}

func (m *Mux) Publish(ctx context.Context, channel string, msg models.Message) error {
	if m.webhooks != nil && IsCallbackURL(channel) {
		return m.webhooks.Publish(ctx, channel, msg)
	}
	return m.sessions.Publish(ctx, channel, msg)
}

// Writer prints every message as one JSON line, whatever the channel.
type Writer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriter creates a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

func (w *Writer) Publish(_ context.Context, _ string, msg models.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(msg)
}

// Collector keeps messages in memory, grouped by channel.
type Collector struct {
	mu        sync.Mutex
	byChannel map[string][]models.Message
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{byChannel: make(map[string][]models.Message)}
}

func (c *Collector) Publish(_ context.Context, channel string, msg models.Message) error {
	c.mu.Lock()
	c.byChannel[channel] = append(c.byChannel[channel], msg)
	c.mu.Unlock()
	return nil
}

// Messages returns a copy of everything published to channel so far.
func (c *Collector) Messages(channel string) []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.byChannel[channel])
}
