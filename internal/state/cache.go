package state

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/nerrad567/lumina-bridge/internal/metrics"
)

const shardCount = 32

// Store persists state so it survives restarts. Save must apply the same
// timestamp rule as the cache and report whether the row was written.
type Store interface {
	Save(ctx context.Context, deviceID string, s State) (applied bool, err error)
	LoadAll(ctx context.Context) (map[string]State, error)
}

// Logger defines the logging interface used by the Cache.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type shard struct {
	mu      sync.RWMutex
	entries map[string]State
}

// Cache maps device ID to last known state. Writes are last-writer-wins by
// timestamp: a write is accepted when its timestamp is not older than the
// stored one. Writes to the same device are serialised by a sharded lock
// table, so the comparison and the update happen atomically.
type Cache struct {
	shards [shardCount]*shard
	store  Store
	logger Logger

	listenersMu sync.RWMutex
	listeners   []func(Change)
}

// NewCache creates a cache. store may be nil for a memory-only cache.
func NewCache(store Store) *Cache {
	c := &Cache{store: store, logger: noopLogger{}}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[string]State)}
	}
	return c
}

// SetLogger sets the logger for the cache.
func (c *Cache) SetLogger(logger Logger) {
	c.logger = logger
}

// OnChange registers fn to be called after every applied write. Listeners run
// on the writer's goroutine after the device lock is released and must not
// block.
func (c *Cache) OnChange(fn func(Change)) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, fn)
	c.listenersMu.Unlock()
}

func (c *Cache) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id)) //nolint:errcheck // hash writes never fail
	return c.shards[h.Sum32()%shardCount]
}

// Get returns the state of each requested device. Devices with no recorded
// state are reported as Default rather than omitted.
func (c *Cache) Get(ctx context.Context, ids []string) (map[string]State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]State, len(ids))
	for _, id := range ids {
		sh := c.shardFor(id)
		sh.mu.RLock()
		s, ok := sh.entries[id]
		sh.mu.RUnlock()
		if !ok {
			s = Default()
		}
		out[id] = s
	}
	return out, nil
}

// Put records s for deviceID at timestamp ts and reports whether the write
// was applied. A stale write (ts older than the stored timestamp) returns
// false and no error. A store failure returns ErrStoreUnavailable and leaves
// the cache unchanged.
func (c *Cache) Put(ctx context.Context, deviceID string, s State, ts time.Time, src Source) (bool, error) {
	s.UpdatedAt = ts

	sh := c.shardFor(deviceID)
	sh.mu.Lock()

	prev, exists := sh.entries[deviceID]
	if exists && ts.Before(prev.UpdatedAt) {
		sh.mu.Unlock()
		c.logger.Debug("stale state write rejected",
			"device_id", deviceID, "source", src,
			"write_ts", ts, "stored_ts", prev.UpdatedAt)
		metrics.IncStateWrite(string(src), metrics.WriteStale)
		return false, nil
	}

	if c.store != nil {
		applied, err := c.store.Save(ctx, deviceID, s)
		if err != nil {
			sh.mu.Unlock()
			metrics.IncStateWrite(string(src), metrics.WriteFailed)
			return false, fmt.Errorf("%w: saving %s: %w", ErrStoreUnavailable, deviceID, err)
		}
		if !applied {
			// The store holds something newer than memory; another writer
			// sharing the database got there first.
			sh.mu.Unlock()
			metrics.IncStateWrite(string(src), metrics.WriteStale)
			return false, nil
		}
	}

	sh.entries[deviceID] = s
	sh.mu.Unlock()
	metrics.IncStateWrite(string(src), metrics.WriteApplied)

	if !exists {
		prev = Default()
	}
	c.notify(Change{DeviceID: deviceID, State: s, Previous: prev, Source: src})
	return true, nil
}

// Warm loads persisted state into memory. Entries already newer in memory
// are kept.
func (c *Cache) Warm(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	all, err := c.store.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: loading state: %w", ErrStoreUnavailable, err)
	}

	n := 0
	for id, s := range all {
		sh := c.shardFor(id)
		sh.mu.Lock()
		if cur, ok := sh.entries[id]; !ok || !s.UpdatedAt.Before(cur.UpdatedAt) {
			sh.entries[id] = s
			n++
		}
		sh.mu.Unlock()
	}
	c.logger.Info("state cache warmed", "devices", n)
	return n, nil
}

// Len returns the number of devices with recorded state.
func (c *Cache) Len() int {
	n := 0
	for _, sh := range c.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

func (c *Cache) notify(ch Change) {
	c.listenersMu.RLock()
	listeners := c.listeners
	c.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(ch)
	}
}
