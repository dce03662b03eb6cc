package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"vialactivo/pkg/stats"
)

// StatisticsKey holds the JSON encoded stats.Snapshot.
const StatisticsKey = "vialactivo:estadisticas:snapshot"

// StatisticsCache stores the latest statistics snapshot with a TTL.
// Every Invalidate bumps a generation; PutIfCurrent refuses snapshots
// computed before the latest invalidation in this process.
type StatisticsCache struct {
	kv     KVStore
	ttl    time.Duration
	logger *zap.Logger

	mu         sync.Mutex
	generation uint64
}

func NewStatisticsCache(kv KVStore, ttl time.Duration, logger *zap.Logger) *StatisticsCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatisticsCache{kv: kv, ttl: ttl, logger: logger}
}

// Get returns the cached snapshot or ErrCacheMiss.
func (c *StatisticsCache) Get(ctx context.Context) (*stats.Snapshot, error) {
	raw, err := c.kv.Get(ctx, StatisticsKey)
	if err != nil {
		return nil, err
	}
	var snap stats.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		// a corrupt entry behaves like a miss and is overwritten on the next Put
		c.logger.Warn("Discarding undecodable statistics cache entry", zap.Error(err))
		return nil, ErrCacheMiss
	}
	return &snap, nil
}

// Generation identifies the current invalidation epoch. Read it before
// loading the reports a snapshot is built from.
func (c *StatisticsCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// PutIfCurrent stores snap only when no invalidation happened since gen was
// read. It reports whether the snapshot was stored.
func (c *StatisticsCache) PutIfCurrent(ctx context.Context, snap stats.Snapshot, gen uint64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		c.logger.Debug("Skipping stale statistics snapshot",
			zap.Uint64("generation", gen),
			zap.Uint64("current", c.generation))
		return false, nil
	}
	return true, c.put(ctx, snap)
}

func (c *StatisticsCache) Put(ctx context.Context, snap stats.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.put(ctx, snap)
}

func (c *StatisticsCache) put(ctx context.Context, snap stats.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal statistics snapshot: %w", err)
	}
	if err := c.kv.Set(ctx, StatisticsKey, string(data), c.ttl); err != nil {
		return fmt.Errorf("failed to set statistics cache: %w", err)
	}

	c.logger.Debug("Updated statistics cache",
		zap.String("key", StatisticsKey),
		zap.Duration("ttl", c.ttl),
	)
	return nil
}

// Invalidate drops the cached snapshot.
func (c *StatisticsCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	if err := c.kv.Delete(ctx, StatisticsKey); err != nil && !errors.Is(err, ErrCacheMiss) {
		return fmt.Errorf("failed to invalidate statistics cache: %w", err)
	}
	return nil
}
