package mealplan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	apperrors "github.com/yanqian/mealplanner/pkg/errors"
)

// Service serves meal plan reads for the signed-in user.
type Service struct {
	cfg    Config
	api    API
	authz  Authorizer
	cache  Cache
	logger *slog.Logger
}

// NewService constructs the query service. cache may be nil.
func NewService(cfg Config, api API, authz Authorizer, cache Cache, logger *slog.Logger) *Service {
	return &Service{
		cfg:    cfg,
		api:    api,
		authz:  authz,
		cache:  cache,
		logger: logger.With("component", "mealplan.service"),
	}
}

// List returns plan summaries in the order the remote reports them.
func (s *Service) List(ctx context.Context) ([]MealPlan, error) {
	var plans []MealPlan
	err := s.authz.Authorized(ctx, func(ctx context.Context, token string) error {
		var err error
		plans, err = s.api.ListPlans(ctx, token)
		return err
	})
	if err != nil {
		return nil, err
	}
	if plans == nil {
		plans = []MealPlan{}
	}
	return plans, nil
}

// Latest returns the newest plan; found is false when the user has none.
func (s *Service) Latest(ctx context.Context) (MealPlan, bool, error) {
	var (
		plan  MealPlan
		found bool
	)
	err := s.authz.Authorized(ctx, func(ctx context.Context, token string) error {
		var err error
		plan, found, err = s.api.LatestPlan(ctx, token)
		return err
	})
	if err != nil {
		return MealPlan{}, false, err
	}
	return plan, found, nil
}

// Get returns a full plan, preferring the cache.
func (s *Service) Get(ctx context.Context, id int64) (MealPlan, error) {
	if id <= 0 {
		return MealPlan{}, apperrors.Wrap(apperrors.CodeNotFound, "meal plan not found", nil)
	}
	userID := s.userID()
	if s.cache != nil && userID != 0 {
		plan, ok, err := s.cache.Get(ctx, userID, id)
		if err != nil {
			s.logger.Warn("plan cache read failed", "plan_id", id, "error", err)
		} else if ok {
			return plan, nil
		}
	}

	var plan MealPlan
	err := s.authz.Authorized(ctx, func(ctx context.Context, token string) error {
		var err error
		plan, err = s.api.GetPlan(ctx, token, id)
		return err
	})
	if err != nil {
		return MealPlan{}, err
	}
	if s.cache != nil && userID != 0 {
		if err := s.cache.Put(ctx, userID, plan); err != nil {
			s.logger.Warn("plan cache write failed", "plan_id", id, "error", err)
		}
	}
	return plan, nil
}

// Public reads a shared plan without credentials.
func (s *Service) Public(ctx context.Context, userID, id int64) (MealPlan, error) {
	if userID <= 0 || id <= 0 {
		return MealPlan{}, apperrors.Wrap(apperrors.CodeNotFound, "meal plan not found", nil)
	}
	return s.api.PublicPlan(ctx, userID, id)
}

// ShareLink builds the public URL of a plan.
func (s *Service) ShareLink(userID, id int64) string {
	base := strings.TrimRight(s.cfg.PublicBaseURL, "/")
	return fmt.Sprintf("%s/public/users/%d/meal-plans/%d", base, userID, id)
}

func (s *Service) userID() int64 {
	snap := s.authz.Snapshot()
	if snap.User == nil {
		return 0
	}
	return snap.User.ID
}
