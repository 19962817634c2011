package bus

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/omakh-hive/queen/internal/config"
	"github.com/omakh-hive/queen/internal/metrics"
)

// New builds the Bus configured by cfg. When cfg.Backend is "durable"
// but the Redis endpoint is unreachable at startup, New falls back to
// the in-process Memory backend rather than refusing to boot — the
// Memory backend implements identical observable semantics, so
// callers never need to special-case the fallback.
func New(cfg *config.BusConfig, m *metrics.Metrics, log *zap.Logger) Bus {
	if cfg.Backend != "durable" {
		return NewMemory(cfg.QueueHighWaterMark, cfg.HistoryLimit, m)
	}

	r := NewRedis(cfg.RedisAddr, cfg.QueueHighWaterMark, cfg.HistoryLimit, m)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Health(ctx); err != nil {
		if log != nil {
			log.Warn("durable bus backend unreachable at startup, falling back to in-process bus",
				zap.String("redis_addr", cfg.RedisAddr), zap.Error(err))
		}
		if m != nil {
			m.BusBackendDegraded.Set(1)
		}
		_ = r.Close()
		return NewMemory(cfg.QueueHighWaterMark, cfg.HistoryLimit, m)
	}
	if m != nil {
		m.BusBackendDegraded.Set(0)
	}
	return r
}
