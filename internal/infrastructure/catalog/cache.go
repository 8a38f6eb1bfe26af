package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCacheUnavailable is returned when a live-only cache has never loaded
var ErrCacheUnavailable = errors.New("catalog: item cache is empty; wait for the live item query to complete")

// Mode selects where the catalog comes from
type Mode string

const (
	// ModeSnapshot loads an exported item list
	ModeSnapshot Mode = "snapshot"
	// ModeLive fills the cache from item queries relayed by the Web Connector
	ModeLive Mode = "live"
)

// ParseMode accepts the mode names plus their historical aliases
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "snapshot", "csv", "file":
		return ModeSnapshot, nil
	case "live", "qbwc", "query":
		return ModeLive, nil
	default:
		return "", fmt.Errorf("catalog: unknown source mode %q", s)
	}
}

// String returns the string representation of Mode
func (m Mode) String() string {
	return string(m)
}

// Status is a point-in-time view of the cache for diagnostics
type Status struct {
	Source    string     `json:"source"`
	Ready     bool       `json:"cacheReady"`
	Fresh     bool       `json:"cacheFresh"`
	ItemCount int        `json:"itemCount"`
	LoadedAt  *time.Time `json:"loadedAt,omitempty"`
	Items     []string   `json:"items,omitempty"`
}

// Cache holds the known inventory item names.
// Published KeySets are never mutated, so callers may keep using a set
// returned by EnsureReady while the cache moves on.
type Cache struct {
	mu       sync.RWMutex
	mode     Mode
	source   Source
	refresh  time.Duration
	mirror   Mirror
	logger   *zap.Logger
	now      func() time.Time
	keys     KeySet
	names    map[string]struct{}
	stamp    Stamp
	loadedAt time.Time
}

// Option configures a Cache
type Option func(*Cache)

// WithSource sets the snapshot source
func WithSource(src Source) Option {
	return func(c *Cache) {
		c.source = src
	}
}

// WithRefreshInterval sets how long a loaded catalog stays fresh; zero never expires
func WithRefreshInterval(d time.Duration) Option {
	return func(c *Cache) {
		c.refresh = d
	}
}

// WithMirror sets where catalog changes are published
func WithMirror(m Mirror) Option {
	return func(c *Cache) {
		c.mirror = m
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates an empty cache
func NewCache(mode Mode, opts ...Option) *Cache {
	c := &Cache{
		mode:   mode,
		logger: zap.NewNop(),
		now:    time.Now,
		keys:   KeySet{},
		names:  map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mode returns the configured source mode
func (c *Cache) Mode() Mode {
	return c.mode
}

// EnsureReady returns the current key set. In snapshot mode the source is
// re-read when its stamp changed; in live mode an empty cache is an error.
func (c *Cache) EnsureReady(ctx context.Context) (KeySet, error) {
	if c.mode == ModeLive {
		c.mu.RLock()
		defer c.mu.RUnlock()
		if len(c.keys) == 0 {
			return nil, ErrCacheUnavailable
		}
		return c.keys, nil
	}
	return c.loadSnapshot(ctx)
}

func (c *Cache) loadSnapshot(ctx context.Context) (KeySet, error) {
	if c.source == nil {
		return nil, errors.New("catalog: no snapshot source configured")
	}
	stamp, err := c.source.Stat(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	if stamp == c.stamp && len(c.keys) > 0 {
		keys := c.keys
		c.mu.RUnlock()
		return keys, nil
	}
	c.mu.RUnlock()

	rc, err := c.source.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	rows, err := readRows(rc, c.source.Format())
	if err != nil {
		return nil, err
	}
	names, err := ParseSnapshot(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stamp.Location, err)
	}

	keys := c.swap(names)
	c.mu.Lock()
	c.stamp = stamp
	c.mu.Unlock()

	c.logger.Info("Catalog snapshot loaded",
		zap.String("location", stamp.Location),
		zap.Int("items", len(names)),
	)
	return keys, nil
}

// IsFresh reports whether the cache holds data younger than the refresh interval
func (c *Cache) IsFresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.freshLocked()
}

func (c *Cache) freshLocked() bool {
	if len(c.keys) == 0 {
		return false
	}
	return c.refresh <= 0 || c.now().Sub(c.loadedAt) < c.refresh
}

// Remember adds a newly created item so it is not created again
func (c *Cache) Remember(ctx context.Context, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}

	c.mu.Lock()
	c.keys = c.keys.with(name)
	names := make(map[string]struct{}, len(c.names)+1)
	for n := range c.names {
		names[n] = struct{}{}
	}
	names[name] = struct{}{}
	c.names = names
	c.loadedAt = c.now()
	snapshot := sortedNames(names)
	c.mu.Unlock()

	c.publish(ctx, snapshot)
}

// ReplaceAll atomically swaps the catalog for names. An empty list is
// rejected and leaves the current catalog in place.
func (c *Cache) ReplaceAll(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return ErrNoInventoryRows
	}
	c.swap(names)

	c.mu.RLock()
	snapshot := sortedNames(c.names)
	c.mu.RUnlock()

	c.logger.Info("Catalog replaced", zap.Int("items", len(snapshot)))
	c.publish(ctx, snapshot)
	return nil
}

func (c *Cache) swap(names []string) KeySet {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			set[n] = struct{}{}
		}
	}
	keys := NewKeySet(names...)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = keys
	c.names = set
	c.loadedAt = c.now()
	return keys
}

func (c *Cache) publish(ctx context.Context, names []string) {
	if c.mirror == nil {
		return
	}
	if err := c.mirror.Publish(ctx, names); err != nil {
		c.logger.Warn("Failed to publish catalog mirror", zap.Error(err))
	}
}

// Names returns the known item names in order
func (c *Cache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedNames(c.names)
}

// Status returns diagnostics, listing at most sample item names
func (c *Cache) Status(sample int) Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Status{
		Source:    c.mode.String(),
		Ready:     len(c.keys) > 0,
		Fresh:     c.freshLocked(),
		ItemCount: len(c.names),
	}
	if !c.loadedAt.IsZero() {
		at := c.loadedAt
		st.LoadedAt = &at
	}
	if sample > 0 {
		names := sortedNames(c.names)
		if len(names) > sample {
			names = names[:sample]
		}
		st.Items = names
	}
	return st
}
