package planarchive

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/yanqian/mealplanner/internal/domain/mealplan"
)

// ObjectKey is the archive location of a plan.
func ObjectKey(userID, planID int64) string {
	return fmt.Sprintf("plans/%d/%d.json", userID, planID)
}

// MemoryArchive keeps archived plans in memory. Useful for tests and local dev.
type MemoryArchive struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryArchive constructs an empty archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{objects: make(map[string][]byte)}
}

func (a *MemoryArchive) Archive(_ context.Context, userID int64, plan mealplan.MealPlan) (string, error) {
	payload, err := json.Marshal(plan)
	if err != nil {
		return "", err
	}
	key := ObjectKey(userID, plan.ID)
	a.mu.Lock()
	a.objects[key] = payload
	a.mu.Unlock()
	return key, nil
}

// Object returns the stored payload for key.
func (a *MemoryArchive) Object(key string) ([]byte, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	data, ok := a.objects[key]
	return data, ok
}

var _ mealplan.Archiver = (*MemoryArchive)(nil)
