package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mrrustybutter/orchestrator/internal/models"
)

// statusChannel is the Redis channel status notifications are mirrored to.
const statusChannel = "orchestrator:status"

// RedisPublisher mirrors status-bus notifications to Redis pub/sub so
// dashboards on other instances can follow event lifecycles. Entirely
// optional: when no Redis is configured the orchestrator runs without it.
type RedisPublisher struct {
	client *redis.Client
	bus    *StatusBus
	subID  string
	cancel context.CancelFunc
}

// NewRedisPublisher connects to Redis and verifies the connection
func NewRedisPublisher(redisURL string, bus *StatusBus) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisPublisher{
		client: client,
		bus:    bus,
		subID:  "redis-" + uuid.New().String(),
	}, nil
}

// Start subscribes to the status bus and forwards notifications to Redis
func (p *RedisPublisher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	ch := p.bus.Subscribe(p.subID, 64)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				p.forward(ctx, event)
			}
		}
	}()

	log.Printf("✅ [REDIS] Mirroring status notifications to %s", statusChannel)
}

func (p *RedisPublisher) forward(ctx context.Context, event models.StatusEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("⚠️ [REDIS] Failed to marshal status event: %v", err)
		return
	}
	if err := p.client.Publish(ctx, statusChannel, data).Err(); err != nil {
		log.Printf("⚠️ [REDIS] Publish failed: %v", err)
	}
}

// Stop unsubscribes and closes the Redis connection
func (p *RedisPublisher) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.bus.Unsubscribe(p.subID)
	return p.client.Close()
}
