package mealapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/mealplanner/internal/domain/mealplan"
	"github.com/yanqian/mealplanner/internal/domain/session"
	apperrors "github.com/yanqian/mealplanner/pkg/errors"
)

func TestClient_LoginSendsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/sessions", r.URL.Path)
		require.Empty(t, r.Header.Get("Authorization"))
		require.NotEmpty(t, r.Header.Get("X-Request-ID"))
		var req session.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "secret1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"non_field_errors":["Unable to log in with provided credentials."]}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"abc","user_id":3,"username":"ana"}`))
	}))
	defer srv.Close()
	client := newTestClient(srv.URL + "/api")

	resp, err := client.Login(context.Background(), session.LoginRequest{Username: "ana", Password: "secret1"})
	require.NoError(t, err)
	require.Equal(t, session.AuthResponse{Token: "abc", UserID: 3, Username: "ana"}, resp)

	_, err = client.Login(context.Background(), session.LoginRequest{Username: "ana", Password: "nope"})
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidCredentials))
}

func TestClient_AttachesAuthScheme(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":3,"username":"ana","email":"ana@example.com","profile":{"age":31,"dietary_preference":"vegan","location":"Lisbon"}}`))
	}))
	defer srv.Close()
	client := newTestClient(srv.URL)

	profile, err := client.Profile(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, "ana@example.com", profile.Email)
	require.NotNil(t, profile.Profile)
	require.Equal(t, session.DietVegan, profile.Profile.DietaryPreference)
	require.Equal(t, 31, *profile.Profile.Age)

	_, err = client.Profile(context.Background(), "stale")
	require.True(t, apperrors.IsCode(err, apperrors.CodeAuthorizationExpired))
}

func TestClient_ForbiddenIsAuthorizationExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ListPlans(context.Background(), "abc")
	require.True(t, apperrors.IsCode(err, apperrors.CodeAuthorizationExpired))
}

func TestClient_RegisterFieldErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"username":["A user with that username already exists."],"email":"Enter a valid email address.","profile":{"age":["Must be positive."]}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Register(context.Background(), session.RegisterRequest{Username: "ana"})
	require.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
	fields := apperrors.FieldsOf(err)
	require.Equal(t, "A user with that username already exists.", fields["username"])
	require.Equal(t, "Enter a valid email address.", fields["email"])
	require.Equal(t, "Must be positive.", fields["profile.age"])
}

func TestClient_LatestPlanAbsent(t *testing.T) {
	for _, tc := range []struct {
		name   string
		status int
		body   string
	}{
		{name: "not found", status: http.StatusNotFound, body: `{"error":"No meal plans found"}`},
		{name: "no content", status: http.StatusNoContent},
		{name: "empty object", status: http.StatusOK, body: `{}`},
		{name: "null", status: http.StatusOK, body: `null`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, found, err := newTestClient(srv.URL).LatestPlan(context.Background(), "abc")
			require.NoError(t, err)
			require.False(t, found)
		})
	}
}

func TestClient_LatestPlanFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/meal-plans/latest", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":12,"location":"Lima","weather_condition":"Clear","temperature":21.5,"calories_burned":400,"steps":8000,"created_at":"2024-05-01T10:00:00Z","meals":[{"id":1,"meal_type":"breakfast","name":"Oats","calories":350}]}`))
	}))
	defer srv.Close()

	plan, found, err := newTestClient(srv.URL).LatestPlan(context.Background(), "abc")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(12), plan.ID)
	require.Equal(t, "Clear", plan.WeatherCondition)
	require.Len(t, plan.Meals, 1)
	require.Equal(t, mealplan.MealBreakfast, plan.Meals[0].MealType)
	require.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), plan.CreatedAt)
}

func TestClient_GenerateWarnings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req mealplan.GenerationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch req.Location {
		case "Lima":
			require.NotNil(t, req.ManualFitness)
			require.Equal(t, 9000, req.ManualFitness.Steps)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"message":"Meal plan generated successfully","meal_plan_id":5,"warnings":["Using default fitness data"," "]}`))
		case "Nowhere":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"Could not fetch weather data","warnings":["Weather service unavailable"]}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()
	client := newTestClient(srv.URL)

	sub, err := client.Generate(context.Background(), "abc", mealplan.GenerationRequest{
		Location:      "Lima",
		ManualFitness: &mealplan.ManualFitness{Steps: 9000},
	})
	require.NoError(t, err)
	require.True(t, sub.Accepted)
	require.Equal(t, int64(5), sub.MealPlanID)
	require.Equal(t, []string{"Using default fitness data"}, sub.Warnings)

	_, err = client.Generate(context.Background(), "abc", mealplan.GenerationRequest{Location: "Nowhere"})
	require.True(t, apperrors.IsCode(err, apperrors.CodeGenerationFailed))
	require.Equal(t, []string{"Weather service unavailable"}, apperrors.WarningsOf(err))
	require.Contains(t, err.Error(), "Could not fetch weather data")

	_, err = client.Generate(context.Background(), "stale", mealplan.GenerationRequest{Location: "Paris"})
	require.True(t, apperrors.IsCode(err, apperrors.CodeAuthorizationExpired))
}

func TestClient_GenerateNotAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"accepted":false,"message":"quota exceeded"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Generate(context.Background(), "abc", mealplan.GenerationRequest{Location: "Lima"})
	require.True(t, apperrors.IsCode(err, apperrors.CodeGenerationFailed))
	require.Contains(t, err.Error(), "quota exceeded")
}

func TestClient_ServerErrorIsReportedOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ListPlans(context.Background(), "abc")
	require.True(t, apperrors.IsCode(err, apperrors.CodeNetwork))
	require.Equal(t, int32(1), calls.Load())
}

func TestClient_UnreachableIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).Profile(context.Background(), "abc")
	require.True(t, apperrors.IsCode(err, apperrors.CodeNetwork))
}

func TestClient_PublicPlanNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/public/users/4/meal-plans/9", r.URL.Path)
		require.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).PublicPlan(context.Background(), 4, 9)
	require.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func newTestClient(baseURL string) *Client {
	return NewClient(Options{BaseURL: baseURL, Timeout: 2 * time.Second}, newTestLogger())
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
