package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/pulsar/internal/logging"
	"github.com/redis/go-redis/v9"
)

// InvalidationChannel is the Redis Pub/Sub channel carrying read-through
// evictions between Pulsar instances that share a durable store.
const InvalidationChannel = "pulsar:cache:invalidate"

// Evictor drops a key from a process-local cache.
type Evictor interface {
	Delete(key string)
}

// Invalidator publishes the keys written or deleted by this instance and
// evicts keys published by other instances from the local read-through
// layer. Delivery is best-effort; LocalCache TTL bounds what a lost message
// can cost.
type Invalidator struct {
	local      Evictor
	client     *redis.Client
	instanceID string
	timeout    time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// NewInvalidator creates an invalidator evicting from local.
func NewInvalidator(local Evictor, client *redis.Client, publishTimeout time.Duration) *Invalidator {
	if publishTimeout <= 0 {
		publishTimeout = DefaultGuardTimeout
	}
	return &Invalidator{
		local:      local,
		client:     client,
		instanceID: uuid.NewString(),
		timeout:    publishTimeout,
	}
}

// InstanceID identifies this process on the invalidation channel.
func (ci *Invalidator) InstanceID() string {
	return ci.instanceID
}

// Start listens for invalidation signals. It blocks until the context is
// cancelled or Close is called.
func (ci *Invalidator) Start(ctx context.Context) {
	subCtx, cancel := context.WithCancel(ctx)
	ci.mu.Lock()
	if ci.closed {
		ci.mu.Unlock()
		cancel()
		return
	}
	ci.cancel = cancel
	ci.mu.Unlock()

	pubsub := ci.client.Subscribe(subCtx, InvalidationChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			origin, key, ok := strings.Cut(msg.Payload, "\x00")
			if !ok || origin == ci.instanceID {
				continue
			}
			ci.local.Delete(key)
		}
	}
}

// Publish announces that key changed on this instance.
func (ci *Invalidator) Publish(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, ci.timeout)
	defer cancel()
	return ci.client.Publish(ctx, InvalidationChannel, ci.instanceID+"\x00"+key).Err()
}

// Close stops the listener.
func (ci *Invalidator) Close() error {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	if ci.closed {
		return nil
	}
	ci.closed = true
	if ci.cancel != nil {
		ci.cancel()
	}
	logging.Op().Debug("cache invalidator stopped", "instance", ci.instanceID)
	return nil
}
