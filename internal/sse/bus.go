package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/lawgraph-backend/internal/domain"
	"github.com/yungbote/lawgraph-backend/internal/platform/envutil"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

// Bus carries pipeline events across replicas so a subscriber attached to
// one instance still sees events for a query running on another.
type Bus interface {
	Publish(ctx context.Context, requestID string, ev domain.PipelineEvent) error
	StartForwarder(ctx context.Context, onEvent func(requestID string, ev domain.PipelineEvent)) error
	Close() error
}

type busEnvelope struct {
	Origin    string               `json:"origin"`
	RequestID string               `json:"request_id"`
	Event     domain.PipelineEvent `json:"event"`
}

type redisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
	origin  string
}

// NewRedisBus connects per REDIS_ADDR and REDIS_CHANNEL (default
// "lawgraph:events"). A missing REDIS_ADDR is an error; callers decide
// whether the bus is optional.
func NewRedisBus(log *logger.Logger) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := envutil.Str("REDIS_ADDR", "")
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	channel := envutil.Str("REDIS_CHANNEL", "lawgraph:events")

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisBus{
		log:     log.With("service", "RedisEventBus"),
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
	}, nil
}

func (b *redisBus) Publish(ctx context.Context, requestID string, ev domain.PipelineEvent) error {
	raw, err := json.Marshal(busEnvelope{Origin: b.origin, RequestID: requestID, Event: ev})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *redisBus) StartForwarder(ctx context.Context, onEvent func(requestID string, ev domain.PipelineEvent)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var env busEnvelope
				if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
					b.log.Warn("bad redis event payload", "error", err)
					continue
				}
				// Locally published events already reached the hub.
				if env.Origin == b.origin {
					continue
				}
				onEvent(env.RequestID, env.Event)
			}
		}
	}()
	return nil
}

func (b *redisBus) Close() error { return b.rdb.Close() }

const fanoutQueueSize = 1024

type fanoutItem struct {
	requestID string
	event     domain.PipelineEvent
}

// FanoutSink publishes locally and, when a bus is attached, to the other
// replicas. Bus traffic goes through a bounded queue drained off the
// request goroutine; a slow or stalled bus drops events instead of
// delaying the pipeline.
type FanoutSink struct {
	log   *logger.Logger
	hub   *Hub
	bus   Bus
	queue chan fanoutItem
	done  chan struct{}
}

func NewFanoutSink(log *logger.Logger, hub *Hub, bus Bus) *FanoutSink {
	s := &FanoutSink{
		log: log.With("service", "EventFanout"),
		hub: hub,
		bus: bus,
	}
	if bus != nil {
		s.queue = make(chan fanoutItem, fanoutQueueSize)
		s.done = make(chan struct{})
		go s.forward()
	}
	return s
}

func (s *FanoutSink) Publish(requestID string, ev domain.PipelineEvent) {
	s.hub.Publish(requestID, ev)
	if s.queue == nil {
		return
	}
	select {
	case s.queue <- fanoutItem{requestID: requestID, event: ev}:
	default:
		s.log.Warn("event bus queue full, dropping event", "request_id", requestID)
	}
}

func (s *FanoutSink) forward() {
	for {
		select {
		case <-s.done:
			return
		case item := <-s.queue:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			err := s.bus.Publish(ctx, item.requestID, item.event)
			cancel()
			if err != nil {
				s.log.Warn("event bus publish failed", "error", err)
			}
		}
	}
}

// Close stops the forwarder; queued events still in flight are dropped.
func (s *FanoutSink) Close() {
	if s.done != nil {
		close(s.done)
	}
}
