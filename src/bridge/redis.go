package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gudfood/realtime/src/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const startTimeout = 3 * time.Second

// RedisBridge relays routed messages between broker instances via Redis pub/sub.
type RedisBridge struct {
	rdb        *redis.Client
	channel    string
	instanceID string
	target     LocalTarget
	logger     zerolog.Logger

	published atomic.Int64
	relayed   atomic.Int64
	dropped   atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active bool
}

// NewRedisBridge creates a relay over Redis pub/sub. Nothing is dialed
// until Start.
func NewRedisBridge(cfg *RedisConfig, target LocalTarget, logger zerolog.Logger) *RedisBridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisBridge{
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		channel:    cfg.Prefix + "messages",
		instanceID: uuid.NewString(),
		target:     target,
		logger:     logger.With().Str("component", "redis-bridge").Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start verifies Redis is reachable, subscribes to the relay channel and
// forwards foreign messages to the target until Stop.
func (b *RedisBridge) Start() error {
	ctx, cancel := context.WithTimeout(b.ctx, startTimeout)
	defer cancel()

	if err := b.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", b.rdb.Options().Addr, err)
	}
	sub := b.rdb.Subscribe(b.ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe %s: %w", b.channel, err)
	}

	b.mu.Lock()
	b.active = true
	b.mu.Unlock()

	b.wg.Add(1)
	go b.listen(sub)

	b.logger.Info().Str("instance_id", b.instanceID).Str("channel", b.channel).Msg("redis relay started")
	return nil
}

// Publish sends a message to the other broker instances.
func (b *RedisBridge) Publish(msg types.Message) error {
	data, err := json.Marshal(envelope{Origin: b.instanceID, Message: msg})
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(b.ctx, b.channel, data).Err(); err != nil {
		return err
	}
	b.published.Add(1)
	return nil
}

// Stop unsubscribes and closes the Redis connection.
func (b *RedisBridge) Stop() error {
	b.mu.Lock()
	b.active = false
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return b.rdb.Close()
}

// Available reports whether the relay is subscribed.
func (b *RedisBridge) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

func (b *RedisBridge) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Relayed:   b.relayed.Load(),
		Dropped:   b.dropped.Load(),
	}
}

func (b *RedisBridge) listen(sub *redis.PubSub) {
	defer b.wg.Done()
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.relay([]byte(msg.Payload))
		case <-b.ctx.Done():
			return
		}
	}
}

// relay decodes a payload and forwards it unless this instance sent it.
func (b *RedisBridge) relay(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		b.dropped.Add(1)
		b.logger.Error().Err(err).Msg("undecodable relay payload")
		return
	}
	if env.Origin == b.instanceID {
		return
	}
	b.relayed.Add(1)
	b.logger.Debug().
		Str("origin", env.Origin).
		Str("destination", env.Message.Destination).
		Msg("relaying message")
	b.target.BroadcastToLocal(env.Message)
}
