package cache

import (
	"context"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"goldex.com/internal/quotes/model"
	"goldex.com/pkg/logger"
	"goldex.com/pkg/metrics"
)

const keyPrefix = "gold:price:"

func Key(symbol string) string { return keyPrefix + symbol }

// Mirror keeps a copy of the latest records in Redis so that a restarted
// node can serve something before its first refresh.
type Mirror struct {
	client *redis.Client
	ttl    time.Duration
}

func NewMirror(c *redis.Client, ttl time.Duration) *Mirror {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Mirror{client: c, ttl: ttl}
}

func (m *Mirror) Name() string { return "redis" }

// OnUpdate writes rec under gold:price:<SYMBOL>.
func (m *Mirror) OnUpdate(ctx context.Context, rec model.PriceRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	start := time.Now()
	// 加入随机时间 防止同时过期
	err = m.client.Set(ctx, Key(rec.Symbol), b, withJitter(m.ttl, time.Second)).Err()
	metrics.RedisCmdDuration.WithLabelValues("set", metrics.Status(err)).Observe(time.Since(start).Seconds())
	return err
}

// Warm loads mirrored records into c. Entries already present in c are kept.
// A broken record is deleted and skipped.
func (m *Mirror) Warm(ctx context.Context, c *PriceCache, symbols []string) (int, error) {
	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = Key(s)
	}

	start := time.Now()
	vals, err := m.client.MGet(ctx, keys...).Result()
	metrics.RedisCmdDuration.WithLabelValues("mget", metrics.Status(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, err
	}

	n := 0
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rec model.PriceRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil || rec.Symbol != symbols[i] {
			// 缓存脏了就删掉
			logger.Warn(ctx, "drop bad mirrored record", zap.String("key", keys[i]), zap.Error(err))
			_ = m.client.Del(ctx, keys[i]).Err()
			continue
		}
		if _, exists := c.Get(rec.Symbol); exists {
			continue
		}
		c.SetAt(rec.Symbol, rec, rec.LastUpdate)
		n++
	}
	return n, nil
}

func withJitter(ttl, jitter time.Duration) time.Duration {
	if ttl <= 0 || jitter <= 0 {
		return ttl
	}
	return ttl + time.Duration(rand.Int63n(int64(jitter)))
}
