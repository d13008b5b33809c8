package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"health-geo/internal/logger"
	"health-geo/internal/metrics"
)

type entry struct {
	key string
	val []byte
	exp time.Time
}

// Memory is an LRU bounded by capacity with a fixed TTL per entry. Expired entries are dropped
// lazily on Get and in bulk by Sweep.
type Memory struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	now  Clock
	lst  *list.List
	dict map[string]*list.Element
}

// NewMemory returns a cache holding at most capacity entries for ttl each. A nil clock means
// time.Now.
func NewMemory(capacity int, ttl time.Duration, clock Clock) *Memory {
	if capacity <= 0 {
		capacity = 1024
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if clock == nil {
		clock = time.Now
	}
	return &Memory{cap: capacity, ttl: ttl, now: clock, lst: list.New(), dict: make(map[string]*list.Element)}
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.dict[key]
	if !ok {
		metrics.CacheMissesTotal.WithLabelValues("memory").Inc()
		return nil, false, nil
	}
	it := e.Value.(*entry)
	if !c.now().Before(it.exp) {
		c.remove(e)
		metrics.CacheEvictionsTotal.WithLabelValues("expired").Inc()
		metrics.CacheMissesTotal.WithLabelValues("memory").Inc()
		return nil, false, nil
	}
	c.lst.MoveToFront(e)
	metrics.CacheHitsTotal.WithLabelValues("memory").Inc()
	return it.val, true, nil
}

func (c *Memory) Set(_ context.Context, key string, val []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp := c.now().Add(c.ttl)
	if e, ok := c.dict[key]; ok {
		it := e.Value.(*entry)
		it.val, it.exp = val, exp
		c.lst.MoveToFront(e)
		return nil
	}
	c.dict[key] = c.lst.PushFront(&entry{key: key, val: val, exp: exp})
	for c.lst.Len() > c.cap {
		c.remove(c.lst.Back())
		metrics.CacheEvictionsTotal.WithLabelValues("capacity").Inc()
	}
	return nil
}

func (c *Memory) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[key]; ok {
		c.remove(e)
	}
	return nil
}

func (c *Memory) Clear(_ context.Context) error {
	c.mu.Lock()
	n := c.lst.Len()
	c.lst.Init()
	c.dict = make(map[string]*list.Element)
	c.mu.Unlock()
	metrics.CacheEvictionsTotal.WithLabelValues("clear").Add(float64(n))
	logger.L().Info("cache_cleared", "backend", "memory", "entries", n)
	return nil
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *Memory) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for e := c.lst.Back(); e != nil; {
		prev := e.Prev()
		if !now.Before(e.Value.(*entry).exp) {
			c.remove(e)
			n++
		}
		e = prev
	}
	if n > 0 {
		metrics.CacheEvictionsTotal.WithLabelValues("expired").Add(float64(n))
	}
	return n
}

// Len counts live and not yet swept entries.
func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}

// StartSweeper runs Sweep every interval until ctx is done.
func (c *Memory) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := c.Sweep(); n > 0 {
					logger.L().Debug("cache_sweep", "expired", n)
				}
			}
		}
	}()
}

func (c *Memory) remove(e *list.Element) {
	delete(c.dict, e.Value.(*entry).key)
	c.lst.Remove(e)
}
