package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/omakh-hive/queen/internal/metrics"
)

const broadcastChannel = "broadcast:all"
const historyKey = "messages:history"

// Redis is the durable backend, grounded on original_source's
// redis_message_bus.py wire shape: a normal and priority list per
// recipient (queue:{recipient} / queue:{recipient}:priority, pushed
// with LPUSH and drained with RPOP so the list reads oldest-first),
// a messages:history sorted set keyed by millisecond timestamp and
// trimmed to historyLimit entries, and a broadcast:all pub/sub
// channel for Broadcast/Subscribe.
type Redis struct {
	client        *redis.Client
	highWaterMark int
	historyLimit  int
	metrics       *metrics.Metrics
}

// NewRedis builds a Redis-backed Bus against addr.
func NewRedis(addr string, highWaterMark, historyLimit int, m *metrics.Metrics) *Redis {
	return &Redis{
		client:        redis.NewClient(&redis.Options{Addr: addr}),
		highWaterMark: highWaterMark,
		historyLimit:  historyLimit,
		metrics:       m,
	}
}

func queueKey(recipient string, lane Lane) string {
	if lane == LanePriority {
		return fmt.Sprintf("queue:%s:priority", recipient)
	}
	return fmt.Sprintf("queue:%s", recipient)
}

// Send implements Bus.
func (b *Redis) Send(ctx context.Context, msg Message) error {
	key := queueKey(msg.Recipient, msg.Lane)

	n, err := b.client.LLen(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("bus: redis LLEN %s: %w", key, err)
	}
	if int(n) >= b.highWaterMark {
		if b.metrics != nil {
			b.metrics.BusMessagesDroppedTotal.WithLabelValues("queue_full").Inc()
		}
		return &ErrQueueFull{Recipient: msg.Recipient, Lane: msg.Lane}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("bus: marshal message: %w", err)
	}
	if err := b.client.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("bus: redis LPUSH %s: %w", key, err)
	}

	b.appendHistory(ctx, msg, data)

	if b.metrics != nil {
		depth, _ := b.client.LLen(ctx, key).Result()
		b.metrics.BusMessagesSentTotal.WithLabelValues(string(msg.Lane)).Inc()
		b.metrics.BusQueueDepth.WithLabelValues(msg.Recipient, string(msg.Lane)).Set(float64(depth))
	}
	return nil
}

// Receive implements Bus, draining the priority list before normal.
func (b *Redis) Receive(ctx context.Context, recipient string) (Message, bool, error) {
	for _, lane := range []Lane{LanePriority, LaneNormal} {
		key := queueKey(recipient, lane)
		data, err := b.client.RPop(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return Message{}, false, fmt.Errorf("bus: redis RPOP %s: %w", key, err)
		}
		var msg Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			return Message{}, false, fmt.Errorf("bus: unmarshal message: %w", err)
		}
		if b.metrics != nil {
			b.metrics.BusMessagesReceivedTotal.WithLabelValues(string(lane)).Inc()
		}
		return msg, true, nil
	}
	return Message{}, false, nil
}

// Broadcast implements Bus.
func (b *Redis) Broadcast(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("bus: marshal broadcast message: %w", err)
	}
	b.appendHistory(ctx, msg, data)
	return b.client.Publish(ctx, broadcastChannel, data).Err()
}

// Subscribe implements Bus.
func (b *Redis) Subscribe(ctx context.Context) (<-chan Message, error) {
	pubsub := b.client.Subscribe(ctx, broadcastChannel)
	raw := pubsub.Channel()
	out := make(chan Message, 64)

	go func() {
		defer close(out)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-raw:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err == nil {
					select {
					case out <- msg:
					default:
					}
				}
			}
		}
	}()

	return out, nil
}

// QueueSize implements Bus.
func (b *Redis) QueueSize(ctx context.Context, recipient string, lane Lane) (int, error) {
	n, err := b.client.LLen(ctx, queueKey(recipient, lane)).Result()
	return int(n), err
}

// ClearQueue implements Bus.
func (b *Redis) ClearQueue(ctx context.Context, recipient string, lane Lane) error {
	return b.client.Del(ctx, queueKey(recipient, lane)).Err()
}

func (b *Redis) appendHistory(ctx context.Context, msg Message, data []byte) {
	score := float64(msg.Timestamp.UnixMilli())
	b.client.ZAdd(ctx, historyKey, redis.Z{Score: score, Member: data})
	b.client.ZRemRangeByRank(ctx, historyKey, 0, -int64(b.historyLimit)-1)
}

// History implements Bus.
func (b *Redis) History(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = b.historyLimit
	}
	raw, err := b.client.ZRevRange(ctx, historyKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("bus: redis ZREVRANGE: %w", err)
	}
	out := make([]Message, 0, len(raw))
	for _, r := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(r), &msg); err == nil {
			out = append(out, msg)
		}
	}
	return out, nil
}

// Health implements Bus.
func (b *Redis) Health(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close implements Bus.
func (b *Redis) Close() error { return b.client.Close() }
