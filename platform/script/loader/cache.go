package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/robbyt/go-replkit/internal/helpers"
)

const (
	// DefaultCacheSize is the number of archives kept in memory.
	DefaultCacheSize = 32

	// MaxArchiveSize bounds a single download.
	MaxArchiveSize = 256 << 20
)

// Cache fetches each source URL at most once while it stays resident.
type Cache struct {
	entries *lru.Cache[string, []byte]
	logger  *slog.Logger

	// one fetch per key at a time
	mu       sync.Mutex
	inflight map[string]*keyLock
}

// keyLock serializes fetches of one key. It is dropped from inflight when the last
// holder or waiter releases it.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewCache creates a cache holding up to size archives. size <= 0 means DefaultCacheSize.
func NewCache(size int, handler slog.Handler) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create fetch cache: %w", err)
	}
	_, logger := helpers.SetupLogger(handler, "loader", "Cache")
	return &Cache{
		entries:  entries,
		logger:   logger,
		inflight: make(map[string]*keyLock),
	}, nil
}

// Fetch returns the content behind l, downloading it on a miss.
func (c *Cache) Fetch(ctx context.Context, l Loader) ([]byte, error) {
	logger := c.logger.WithGroup("Fetch")
	key := l.GetSourceURL().String()

	if data, ok := c.entries.Get(key); ok {
		logger.DebugContext(ctx, "cache hit", "source", key)
		return data, nil
	}

	kl := c.acquire(key)
	defer c.release(key, kl)

	// another caller may have filled it while we waited
	if data, ok := c.entries.Get(key); ok {
		return data, nil
	}

	logger.InfoContext(ctx, "downloading classpath entry", "source", key)
	r, err := l.GetReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, MaxArchiveSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceNotAvailable, err)
	}
	if len(data) > MaxArchiveSize {
		return nil, fmt.Errorf("%w: %s", ErrSourceTooLarge, key)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInputEmpty, key)
	}

	c.entries.Add(key, data)
	logger.DebugContext(ctx, "cached classpath entry", "source", key, "bytes", len(data), "sha256", helpers.ShortDigest(data))
	return data, nil
}

// Len returns the number of resident entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.entries.Purge()
}

func (c *Cache) acquire(key string) *keyLock {
	c.mu.Lock()
	kl, ok := c.inflight[key]
	if !ok {
		kl = &keyLock{}
		c.inflight[key] = kl
	}
	kl.refs++
	c.mu.Unlock()

	kl.mu.Lock()
	return kl
}

func (c *Cache) release(key string, kl *keyLock) {
	kl.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(c.inflight, key)
	}
}

func (c *Cache) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}
