// Package cache memoizes instrumented source files by content.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"scriptrunner/internal/instrument"
)

// InstrumentFunc produces the instrumented form of a file.
type InstrumentFunc func(filename, src string) (*instrument.Result, error)

// Stats are the cache counters.
type Stats struct {
	Hits   uint64
	Misses uint64
	Len    int
}

// Instrumented is a fixed size LRU of instrumented files. Entries are keyed by
// file name and a digest of the source, so an edited file is instrumented
// again.
type Instrumented struct {
	lru    *lru.Cache[string, *instrument.Result]
	fn     InstrumentFunc
	hits   atomic.Uint64
	misses atomic.Uint64
}

func New(size int, fn InstrumentFunc) (*Instrumented, error) {
	if size <= 0 {
		size = 1
	}
	c, err := lru.New[string, *instrument.Result](size)
	if err != nil {
		return nil, err
	}
	return &Instrumented{lru: c, fn: fn}, nil
}

// Get returns the instrumented form of src, instrumenting it on a miss.
// Failures are not cached.
func (c *Instrumented) Get(filename, src string) (*instrument.Result, error) {
	key := cacheKey(filename, src)
	if res, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		return res, nil
	}
	c.misses.Add(1)
	res, err := c.fn(filename, src)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, res)
	return res, nil
}

func (c *Instrumented) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Len: c.lru.Len()}
}

func (c *Instrumented) Purge() { c.lru.Purge() }

func cacheKey(filename, src string) string {
	sum := sha256.Sum256([]byte(src))
	return filename + "\x00" + hex.EncodeToString(sum[:])
}
