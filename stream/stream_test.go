package stream

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/scout/models"
)

func result(title string) models.Message {
	return models.NewResultMessage(models.ResultRecord{Source: "SiteX", Title: title})
}

func TestHub_PublishInOrder(t *testing.T) {
	h := NewHub(4, time.Second)
	sub, err := h.Subscribe("c1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer h.Unsubscribe(sub)

	for _, title := range []string{"A", "B", "C"} {
		if err := h.Publish(context.Background(), "c1", result(title)); err != nil {
			t.Fatalf("Publish %s: %v", title, err)
		}
	}
	for _, want := range []string{"A", "B", "C"} {
		got := <-sub.Messages()
		if got.Result.Title != want {
			t.Errorf("got %s, want %s", got.Result.Title, want)
		}
	}
}

func TestHub_ChannelInUse(t *testing.T) {
	h := NewHub(1, 0)
	sub, _ := h.Subscribe("c1")
	if _, err := h.Subscribe("c1"); !errors.Is(err, ErrChannelInUse) {
		t.Errorf("err = %v, want ErrChannelInUse", err)
	}
	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	if _, err := h.Subscribe("c1"); err != nil {
		t.Errorf("resubscribe after Unsubscribe: %v", err)
	}
}

func TestHub_NoSubscriber(t *testing.T) {
	h := NewHub(1, 0)
	if err := h.Publish(context.Background(), "gone", result("A")); !errors.Is(err, ErrNoSubscriber) {
		t.Errorf("err = %v, want ErrNoSubscriber", err)
	}
}

func TestHub_UnsubscribeUnblocksPublisher(t *testing.T) {
	h := NewHub(1, 0)
	sub, _ := h.Subscribe("c1")
	if err := h.Publish(context.Background(), "c1", result("fills buffer")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- h.Publish(context.Background(), "c1", result("blocked")) }()

	time.Sleep(20 * time.Millisecond)
	h.Unsubscribe(sub)

	select {
	case err := <-errc:
		if !errors.Is(err, ErrNoSubscriber) {
			t.Errorf("err = %v, want ErrNoSubscriber", err)
		}
	case <-time.After(time.Second):
		t.Fatal("publisher still blocked after Unsubscribe")
	}
}

func TestHub_SlowSubscriber(t *testing.T) {
	h := NewHub(1, 20*time.Millisecond)
	sub, _ := h.Subscribe("c1")
	defer h.Unsubscribe(sub)

	_ = h.Publish(context.Background(), "c1", result("A"))
	if err := h.Publish(context.Background(), "c1", result("B")); !errors.Is(err, ErrSlowSubscriber) {
		t.Errorf("err = %v, want ErrSlowSubscriber", err)
	}
}

type recorder struct{ channels []string }

func (r *recorder) Publish(_ context.Context, channel string, _ models.Message) error {
	r.channels = append(r.channels, channel)
	return nil
}

func TestMux_Routing(t *testing.T) {
	sessions, webhooks := &recorder{}, &recorder{}
	m := NewMux(sessions, webhooks)

	for _, ch := range []string{"3f1c-token", "https://hooks.test/cb", "ftp://x.test", "http://"} {
		_ = m.Publish(context.Background(), ch, result("A"))
	}

	if len(webhooks.channels) != 1 || webhooks.channels[0] != "https://hooks.test/cb" {
		t.Errorf("webhook channels = %v", webhooks.channels)
	}
	if len(sessions.channels) != 3 {
		t.Errorf("session channels = %v", sessions.channels)
	}
}

func TestWriter_JSONLines(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	_ = w.Publish(context.Background(), "cli", result("A"))
	_ = w.Publish(context.Background(), "cli", models.NewErrorMessage("Failed to fetch data from SiteX: boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.Contains(lines[0], `"type":"result"`) || !strings.Contains(lines[1], `"message":"Failed to fetch data from SiteX: boom"`) {
		t.Errorf("lines = %q", lines)
	}
}

func TestCollector(t *testing.T) {
	c := NewCollector()
	_ = c.Publish(context.Background(), "a", result("1"))
	_ = c.Publish(context.Background(), "b", result("2"))
	_ = c.Publish(context.Background(), "a", result("3"))

	got := c.Messages("a")
	if len(got) != 2 || got[1].Result.Title != "3" {
		t.Errorf("Messages(a) = %+v", got)
	}
	got[0] = models.Message{}
	if c.Messages("a")[0].Result == nil {
		t.Error("Messages returned the internal slice")
	}
}
