package events

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"taskboard/domain"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisPublisherForwardsEvents(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, "board-events")
	t.Cleanup(func() { _ = sub.Close() })
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	logger, _ := test.NewNullLogger()
	pub := NewRedisPublisher(client, PublisherConfig{Channel: "board-events", Workers: 2, Buffer: 8}, logger)
	defer pub.Close()

	bus := NewBus()
	bus.Subscribe(pub.Handle)
	bus.Publish(ProgressChanged{Progress: domain.Progress{Total: 3, Completed: 1, Percent: 33}})

	select {
	case msg := <-sub.Channel():
		ev, err := Decode([]byte(msg.Payload))
		if err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		pc, ok := ev.(ProgressChanged)
		if !ok || pc.Progress.Percent != 33 {
			t.Fatalf("unexpected event: %#v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for published event")
	}
}

func TestRedisPublisherDropsWhenSaturated(t *testing.T) {
	logger, hook := test.NewNullLogger()
	p := &RedisPublisher{
		client: newTestRedis(t),
		cfg:    PublisherConfig{Channel: "board-events", Buffer: 1, HandoffTimeout: 10 * time.Millisecond},
		logger: logger,
		jobs:   make(chan []byte, 1),
	}
	p.jobs <- []byte("queued")

	start := time.Now()
	p.Handle(TasksChanged{})
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected handoff to wait for capacity")
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Level != log.WarnLevel {
		t.Fatalf("expected warning for dropped event, got %#v", entry)
	}
	if len(p.jobs) != 1 {
		t.Fatalf("expected queue to stay full")
	}
}

func TestRedisPublisherRejectsAfterClose(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pub := NewRedisPublisher(newTestRedis(t), PublisherConfig{Channel: "c", Workers: 1, Buffer: 1}, logger)
	pub.Close()
	pub.Close()

	if pub.tryEnqueue([]byte("late")) {
		t.Fatal("expected enqueue to fail after close")
	}
}
