package sse

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/lawgraph-backend/internal/domain"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

// memoryBus records publishes; block makes every publish hang until the
// publish context expires.
type memoryBus struct {
	mu        sync.Mutex
	block     bool
	published []string
}

func (b *memoryBus) Publish(ctx context.Context, requestID string, ev domain.PipelineEvent) error {
	if b.block {
		<-ctx.Done()
		return ctx.Err()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, requestID)
	return nil
}

func (b *memoryBus) StartForwarder(ctx context.Context, onEvent func(string, domain.PipelineEvent)) error {
	return nil
}

func (b *memoryBus) Close() error { return nil }

func (b *memoryBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

func TestFanoutPublishDoesNotBlockOnStalledBus(t *testing.T) {
	h := testHub(t)
	client := h.NewClient()
	h.Subscribe(client, "req-1")

	sink := NewFanoutSink(logger.NewNop(), h, &memoryBus{block: true})
	defer sink.Close()

	start := time.Now()
	const n = 50
	for i := 0; i < n; i++ {
		sink.Publish("req-1", domain.PipelineEvent{Type: domain.EventModuleStarted, ResultsCount: i})
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("publish blocked on the bus: %s for %d events", elapsed, n)
	}
	// Local delivery is unaffected by the stalled bus.
	if got := len(client.Outbound); got != n {
		t.Fatalf("hub should have all %d events, got %d", n, got)
	}
}

func TestFanoutForwardsToBus(t *testing.T) {
	h := testHub(t)
	bus := &memoryBus{}
	sink := NewFanoutSink(logger.NewNop(), h, bus)
	defer sink.Close()

	sink.Publish("req-1", domain.PipelineEvent{Type: domain.EventSearchCompleted})

	deadline := time.Now().Add(time.Second)
	for bus.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("event never reached the bus")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFanoutWithoutBus(t *testing.T) {
	h := testHub(t)
	client := h.NewClient()
	h.Subscribe(client, "req-1")

	sink := NewFanoutSink(logger.NewNop(), h, nil)
	sink.Publish("req-1", domain.PipelineEvent{Type: domain.EventSearchCompleted})
	if len(client.Outbound) != 1 {
		t.Fatalf("local delivery should work without a bus")
	}
	sink.Close()
}
