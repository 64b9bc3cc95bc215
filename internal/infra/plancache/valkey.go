package plancache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/mealplanner/internal/domain/mealplan"
)

// ValkeyCache stores plans as JSON in a Valkey-compatible database.
type ValkeyCache struct {
	client valkey.Client
	prefix string
	ttl    time.Duration
}

// NewValkeyCache constructs a cache backed by Valkey.
func NewValkeyCache(client valkey.Client, prefix string, ttl time.Duration) *ValkeyCache {
	if prefix == "" {
		prefix = "mealplanner"
	}
	return &ValkeyCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *ValkeyCache) Get(ctx context.Context, userID, id int64) (mealplan.MealPlan, bool, error) {
	payload, err := c.client.Do(ctx, c.client.B().Get().Key(c.key(userID, id)).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return mealplan.MealPlan{}, false, nil
		}
		return mealplan.MealPlan{}, false, err
	}
	var plan mealplan.MealPlan
	if err := json.Unmarshal([]byte(payload), &plan); err != nil {
		return mealplan.MealPlan{}, false, err
	}
	return plan, true, nil
}

func (c *ValkeyCache) Put(ctx context.Context, userID int64, plan mealplan.MealPlan) error {
	if plan.ID <= 0 {
		return nil
	}
	payload, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	builder := c.client.B().Set().Key(c.key(userID, plan.ID)).Value(string(payload))
	var cmd valkey.Completed
	if c.ttl > 0 {
		ttl := c.ttl
		if ttl < time.Second {
			ttl = time.Second
		}
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}
	return c.client.Do(ctx, cmd).Error()
}

func (c *ValkeyCache) key(userID, id int64) string {
	return fmt.Sprintf("%s:plan:%d:%d", c.prefix, userID, id)
}

var _ mealplan.Cache = (*ValkeyCache)(nil)
