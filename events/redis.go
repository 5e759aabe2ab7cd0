package events

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// PublisherConfig tunes the Redis bridge.
type PublisherConfig struct {
	Channel        string
	Workers        int
	Buffer         int
	HandoffTimeout time.Duration
	PublishTimeout time.Duration
}

// RedisPublisher forwards bus events to a Redis pub/sub channel so other
// processes (a progress shell, a second board instance) can follow the
// board. Publishing happens on worker goroutines; when the buffer stays
// full past the handoff timeout the event is dropped and logged.
type RedisPublisher struct {
	client *redis.Client
	cfg    PublisherConfig
	logger *log.Logger

	mu     sync.RWMutex
	jobs   chan []byte
	wg     sync.WaitGroup
	closed bool
}

// NewRedisPublisher starts cfg.Workers publishing goroutines.
func NewRedisPublisher(client *redis.Client, cfg PublisherConfig, logger *log.Logger) *RedisPublisher {
	if client == nil {
		panic("events.NewRedisPublisher: redis client is nil")
	}
	if logger == nil {
		panic("events.NewRedisPublisher: logger is nil")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = cfg.Workers * 64
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	p := &RedisPublisher{
		client: client,
		cfg:    cfg,
		logger: logger,
		jobs:   make(chan []byte, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Infof("event publisher started, channel: %s, workers: %d, buffer: %d, handoff: %v", cfg.Channel, cfg.Workers, cfg.Buffer, cfg.HandoffTimeout)
	return p
}

// Handle is a bus Handler.
func (p *RedisPublisher) Handle(ev Event) {
	data, err := Encode(ev)
	if err != nil {
		p.logger.WithError(err).WithField("event", ev.Kind()).Error("encode event for redis")
		return
	}
	if !p.tryEnqueue(data) {
		p.logger.WithField("event", ev.Kind()).Warn("event publisher saturated; dropping event")
	}
}

// Close stops accepting events and waits for queued ones to be published.
func (p *RedisPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *RedisPublisher) worker(id int) {
	defer p.wg.Done()
	for data := range p.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PublishTimeout)
		err := p.client.Publish(ctx, p.cfg.Channel, data).Err()
		cancel()
		if err != nil {
			p.logger.Errorf("publish failed, err: %v, channel: %s, worker: %d", err, p.cfg.Channel, id)
		}
	}
}

func (p *RedisPublisher) tryEnqueue(data []byte) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.jobs <- data:
		return true
	default:
	}

	if p.cfg.HandoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(p.cfg.HandoffTimeout)
	defer timer.Stop()
	select {
	case p.jobs <- data:
		return true
	case <-timer.C:
		return false
	}
}
