package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kite/internal/domain"
)

// collector gathers delivered messages for assertions.
type collector struct {
	mu       sync.Mutex
	payloads []string
}

func (c *collector) handler(ctx context.Context, msg *domain.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, string(msg.Payload))
	return nil
}

func (c *collector) got() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.payloads))
	copy(out, c.payloads)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestChannelBusPublishSubscribe(t *testing.T) {
	b := NewChannelBus(16)
	defer b.Close()
	ctx := context.Background()

	c := &collector{}
	sub, err := b.Subscribe(ctx, domain.TopicDecision, c.handler)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if sub.Topic() != domain.TopicDecision {
		t.Errorf("Topic() = %s, want %s", sub.Topic(), domain.TopicDecision)
	}

	if err := b.Publish(ctx, domain.TopicDecision, []byte("decision-1")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	waitFor(t, func() bool { return len(c.got()) == 1 })

	if got := c.got()[0]; got != "decision-1" {
		t.Errorf("delivered payload = %q, want decision-1", got)
	}
}

func TestChannelBusTopicIsolation(t *testing.T) {
	b := NewChannelBus(16)
	defer b.Close()
	ctx := context.Background()

	decisions := &collector{}
	alerts := &collector{}
	b.Subscribe(ctx, domain.TopicDecision, decisions.handler)
	b.Subscribe(ctx, domain.TopicAlert, alerts.handler)

	b.Publish(ctx, domain.TopicDecision, []byte("d"))
	b.Publish(ctx, domain.TopicAlert, []byte("a"))

	waitFor(t, func() bool { return len(decisions.got()) == 1 && len(alerts.got()) == 1 })

	if decisions.got()[0] != "d" {
		t.Errorf("decision subscriber got %q", decisions.got()[0])
	}
	if alerts.got()[0] != "a" {
		t.Errorf("alert subscriber got %q", alerts.got()[0])
	}
}

func TestChannelBusFanOut(t *testing.T) {
	b := NewChannelBus(16)
	defer b.Close()
	ctx := context.Background()

	first := &collector{}
	second := &collector{}
	b.Subscribe(ctx, domain.TopicAlert, first.handler)
	b.Subscribe(ctx, domain.TopicAlert, second.handler)

	b.Publish(ctx, domain.TopicAlert, []byte("fan"))

	waitFor(t, func() bool { return len(first.got()) == 1 && len(second.got()) == 1 })
}

func TestChannelBusUnsubscribe(t *testing.T) {
	b := NewChannelBus(16)
	defer b.Close()
	ctx := context.Background()

	c := &collector{}
	sub, err := b.Subscribe(ctx, domain.TopicDecision, c.handler)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	b.Publish(ctx, domain.TopicDecision, []byte("before"))
	waitFor(t, func() bool { return len(c.got()) == 1 })

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	// Give the handler goroutine time to observe cancellation.
	time.Sleep(20 * time.Millisecond)

	b.Publish(ctx, domain.TopicDecision, []byte("after"))
	time.Sleep(50 * time.Millisecond)

	if got := c.got(); len(got) != 1 {
		t.Errorf("payloads after unsubscribe = %v, want only the first", got)
	}
}

func TestChannelBusPublishWithoutSubscribers(t *testing.T) {
	b := NewChannelBus(16)
	defer b.Close()

	if err := b.Publish(context.Background(), "kite.unwatched", []byte("x")); err != nil {
		t.Errorf("Publish() error = %v, want nil with no subscribers", err)
	}
}

func TestChannelBusClosed(t *testing.T) {
	b := NewChannelBus(16)
	ctx := context.Background()

	if err := b.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v before close", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := b.Ping(ctx); err == nil {
		t.Error("Ping() error = nil after close, want error")
	}
	if err := b.Publish(ctx, domain.TopicDecision, []byte("x")); err == nil {
		t.Error("Publish() error = nil after close, want error")
	}
	if _, err := b.Subscribe(ctx, domain.TopicDecision, (&collector{}).handler); err == nil {
		t.Error("Subscribe() error = nil after close, want error")
	}

	// Double close is a no-op.
	if err := b.Close(); err != nil {
		t.Errorf("Close() second call error = %v", err)
	}
}

func TestBusFactory(t *testing.T) {
	t.Run("channel", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 8})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer b.Close()
		if _, ok := b.(*ChannelBus); !ok {
			t.Errorf("New(channel) = %T, want *ChannelBus", b)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("New(kafka) error = nil, want error")
		}
	})
}
