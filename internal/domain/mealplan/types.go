package mealplan

import (
	"context"
	"time"

	"github.com/yanqian/mealplanner/internal/domain/session"
)

// MealType is the slot a meal fills in a day.
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
	MealSnack     MealType = "snack"
)

// Meal is a single dish within a plan.
type Meal struct {
	ID          int64    `json:"id"`
	MealType    MealType `json:"meal_type"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Calories    int      `json:"calories"`
	Protein     float64  `json:"protein"`
	Carbs       float64  `json:"carbs"`
	Fat         float64  `json:"fat"`
	Ingredients string   `json:"ingredients"`
	Preparation string   `json:"preparation"`
}

// MealPlan is immutable once created and identified by ID.
type MealPlan struct {
	ID               int64     `json:"id"`
	Location         string    `json:"location"`
	WeatherCondition string    `json:"weather_condition"`
	Temperature      float64   `json:"temperature"`
	CaloriesBurned   int       `json:"calories_burned"`
	Steps            int       `json:"steps"`
	CreatedAt        time.Time `json:"created_at"`
	Meals            []Meal    `json:"meals,omitempty"`
}

// ManualFitness substitutes externally sourced activity data.
type ManualFitness struct {
	CaloriesBurned int `json:"calories_burned"`
	Steps          int `json:"steps"`
	ActiveMinutes  int `json:"active_minutes"`
}

// GenerationRequest asks the remote to build a new plan.
type GenerationRequest struct {
	Location      string         `json:"location"`
	ManualFitness *ManualFitness `json:"manual_fitness_data,omitempty"`
}

// Submission is the remote's acknowledgement of a generation request.
type Submission struct {
	Accepted   bool     `json:"accepted"`
	MealPlanID int64    `json:"meal_plan_id,omitempty"`
	Message    string   `json:"message,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// API is the remote meal plan surface.
type API interface {
	ListPlans(ctx context.Context, token string) ([]MealPlan, error)
	LatestPlan(ctx context.Context, token string) (MealPlan, bool, error)
	GetPlan(ctx context.Context, token string, id int64) (MealPlan, error)
	Generate(ctx context.Context, token string, req GenerationRequest) (Submission, error)
	PublicPlan(ctx context.Context, userID, id int64) (MealPlan, error)
}

// Authorizer threads the session token through outbound calls.
type Authorizer interface {
	Authorized(ctx context.Context, fn func(ctx context.Context, token string) error) error
	Snapshot() session.Session
}

// Cache keeps immutable plans per user.
type Cache interface {
	Get(ctx context.Context, userID, id int64) (MealPlan, bool, error)
	Put(ctx context.Context, userID int64, plan MealPlan) error
}

// Archiver stores a copy of delivered plans outside the remote.
type Archiver interface {
	Archive(ctx context.Context, userID int64, plan MealPlan) (string, error)
}

// Config drives the generation workflow and share links.
type Config struct {
	PollInterval  time.Duration
	Timeout       time.Duration
	PublicBaseURL string
}
