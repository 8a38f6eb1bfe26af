package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mirror publishes the current catalog for consumers outside this process
type Mirror interface {
	Publish(ctx context.Context, names []string) error
}

// Mirrors fans a publish out to several mirrors
type Mirrors []Mirror

var _ Mirror = Mirrors(nil)

// Publish implements Mirror, attempting every mirror
func (ms Mirrors) Publish(ctx context.Context, names []string) error {
	var errs []error
	for _, m := range ms {
		if err := m.Publish(ctx, names); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FileMirror writes the catalog as a CSV snapshot with Sku and Type columns,
// readable back through FileSource.
type FileMirror struct {
	path string
}

var _ Mirror = (*FileMirror)(nil)

// NewFileMirror creates a FileMirror writing to path
func NewFileMirror(path string) *FileMirror {
	return &FileMirror{path: path}
}

// Publish implements Mirror. The file is replaced atomically.
func (m *FileMirror) Publish(_ context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("catalog: create mirror dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".catalog-*.csv")
	if err != nil {
		return fmt.Errorf("catalog: create mirror file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	_ = w.Write([]string{"Sku", "Type"})
	for _, n := range names {
		_ = w.Write([]string{n, "Inventory Part"})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("catalog: write mirror file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("catalog: close mirror file: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("catalog: replace mirror file: %w", err)
	}
	return nil
}

// RedisMirror stores the catalog as a Redis set plus a load timestamp
type RedisMirror struct {
	client redis.Cmdable
	key    string
	now    func() time.Time
}

var _ Mirror = (*RedisMirror)(nil)

// NewRedisMirror creates a RedisMirror writing to key
func NewRedisMirror(client redis.Cmdable, key string) *RedisMirror {
	if key == "" {
		key = "qbsync:catalog:items"
	}
	return &RedisMirror{client: client, key: key, now: time.Now}
}

// Publish implements Mirror, replacing the set in one transaction
func (m *RedisMirror) Publish(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	members := make([]any, len(names))
	for i, n := range names {
		members[i] = n
	}

	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, m.key)
		pipe.SAdd(ctx, m.key, members...)
		pipe.Set(ctx, m.key+":loaded_at", m.now().UTC().Format(time.RFC3339), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("catalog: publish to redis: %w", err)
	}
	return nil
}
