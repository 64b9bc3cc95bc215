package plancache

import (
	"context"
	"sync"
	"time"

	"github.com/yanqian/mealplanner/internal/domain/mealplan"
)

type entry struct {
	plan      mealplan.MealPlan
	expiresAt time.Time
}

type cacheKey struct {
	userID int64
	planID int64
}

// MemoryCache is an in-memory plan cache for tests/dev.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[cacheKey]entry
}

// NewMemoryCache constructs a cache; ttl <= 0 keeps entries forever.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now, entries: make(map[cacheKey]entry)}
}

func (c *MemoryCache) Get(_ context.Context, userID, id int64) (mealplan.MealPlan, bool, error) {
	c.mu.RLock()
	rec, ok := c.entries[cacheKey{userID, id}]
	c.mu.RUnlock()
	if !ok {
		return mealplan.MealPlan{}, false, nil
	}
	if !rec.expiresAt.IsZero() && c.now().After(rec.expiresAt) {
		c.mu.Lock()
		delete(c.entries, cacheKey{userID, id})
		c.mu.Unlock()
		return mealplan.MealPlan{}, false, nil
	}
	return rec.plan, true, nil
}

func (c *MemoryCache) Put(_ context.Context, userID int64, plan mealplan.MealPlan) error {
	if plan.ID <= 0 {
		return nil
	}
	var expires time.Time
	if c.ttl > 0 {
		expires = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	c.entries[cacheKey{userID, plan.ID}] = entry{plan: plan, expiresAt: expires}
	c.mu.Unlock()
	return nil
}

var _ mealplan.Cache = (*MemoryCache)(nil)
