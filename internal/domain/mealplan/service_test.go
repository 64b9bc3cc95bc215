package mealplan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/mealplanner/pkg/errors"
)

func TestService_GetUsesCache(t *testing.T) {
	api := newStubAPI()
	api.plans[4] = MealPlan{ID: 4, Location: "Lyon", Meals: []Meal{{ID: 1, MealType: MealLunch, Name: "Salade"}}}
	cache := newStubCache()
	svc := NewService(Config{}, api, newStubAuthorizer(), cache, newTestLogger())

	plan, err := svc.Get(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, plan.Meals, 1)

	again, err := svc.Get(context.Background(), 4)
	require.NoError(t, err)
	require.Equal(t, plan, again)
	require.Equal(t, 1, api.getN)

	_, ok, _ := cache.Get(context.Background(), 7, 4)
	require.True(t, ok)
}

func TestService_GetMissingPlan(t *testing.T) {
	svc := NewService(Config{}, newStubAPI(), newStubAuthorizer(), nil, newTestLogger())

	_, err := svc.Get(context.Background(), 99)
	require.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	_, err = svc.Get(context.Background(), 0)
	require.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestService_ListAndLatestRequireSession(t *testing.T) {
	authz := newStubAuthorizer()
	authz.expire()
	svc := NewService(Config{}, newStubAPI(), authz, nil, newTestLogger())

	_, err := svc.List(context.Background())
	require.True(t, apperrors.IsCode(err, apperrors.CodeAuthorizationExpired))

	_, _, err = svc.Latest(context.Background())
	require.True(t, apperrors.IsCode(err, apperrors.CodeAuthorizationExpired))
}

func TestService_ListNeverReturnsNil(t *testing.T) {
	svc := NewService(Config{}, newStubAPI(), newStubAuthorizer(), nil, newTestLogger())

	plans, err := svc.List(context.Background())
	require.NoError(t, err)
	require.NotNil(t, plans)
	require.Empty(t, plans)
}

func TestService_PublicAndShareLink(t *testing.T) {
	api := newStubAPI()
	api.plans[3] = MealPlan{ID: 3, Location: "Porto"}
	svc := NewService(Config{PublicBaseURL: "https://plans.example.com/"}, api, newStubAuthorizer(), nil, newTestLogger())

	plan, err := svc.Public(context.Background(), 7, 3)
	require.NoError(t, err)
	require.Equal(t, "Porto", plan.Location)

	_, err = svc.Public(context.Background(), 0, 3)
	require.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	require.Equal(t, "https://plans.example.com/public/users/7/meal-plans/3", svc.ShareLink(7, 3))
}
