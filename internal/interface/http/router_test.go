package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/mealplanner/internal/domain/mealplan"
	"github.com/yanqian/mealplanner/internal/domain/session"
	"github.com/yanqian/mealplanner/internal/infra/config"
	apperrors "github.com/yanqian/mealplanner/pkg/errors"
	"github.com/yanqian/mealplanner/pkg/metrics"
	"github.com/yanqian/mealplanner/pkg/util"
)

func TestRouter_SessionStartsUnauthenticated(t *testing.T) {
	env := newRouterUnderTest(t, config.RateLimitConfig{})

	rec := performRequest(env.server, http.MethodGet, "/api/v1/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, session.StateUnauthenticated, got.State)
	require.Nil(t, got.User)
}

func TestRouter_LoginValidation(t *testing.T) {
	env := newRouterUnderTest(t, config.RateLimitConfig{})

	rec := performRequest(env.server, http.MethodPost, "/api/v1/session/login", `{"username":"ana"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorBody(t, rec.Body.Bytes())
	require.Equal(t, apperrors.CodeValidation, body.Error.Code)
	require.Contains(t, body.Error.Fields, "password")

	rec = performRequest(env.server, http.MethodPost, "/api/v1/session/login", `{"username":"ana","password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, apperrors.CodeInvalidCredentials, decodeErrorBody(t, rec.Body.Bytes()).Error.Code)
}

func TestRouter_LoginThenProfile(t *testing.T) {
	env := newRouterUnderTest(t, config.RateLimitConfig{})

	rec := performRequest(env.server, http.MethodGet, "/api/v1/profile", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, apperrors.CodeAuthorizationExpired, decodeErrorBody(t, rec.Body.Bytes()).Error.Code)

	rec = performRequest(env.server, http.MethodPost, "/api/v1/session/login", `{"username":"ana","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, session.StateAuthenticated, got.State)

	rec = performRequest(env.server, http.MethodGet, "/api/v1/profile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var profile session.UserProfile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	require.Equal(t, "ana", profile.Username)

	rec = performRequest(env.server, http.MethodPut, "/api/v1/profile", `{"email":"broken"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorBody(t, rec.Body.Bytes())
	require.Equal(t, apperrors.CodeValidation, body.Error.Code)
	require.Equal(t, "taken", body.Error.Fields["email"])

	rec = performRequest(env.server, http.MethodPost, "/api/v1/session/logout", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, session.StateUnauthenticated, env.sessions.Snapshot().State)
}

func TestRouter_LatestPlanEmpty(t *testing.T) {
	env := newRouterUnderTest(t, config.RateLimitConfig{})
	env.sessions.signIn()

	rec := performRequest(env.server, http.MethodGet, "/api/v1/meal-plans/latest", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRouter_GetPlanIncludesShareLink(t *testing.T) {
	env := newRouterUnderTest(t, config.RateLimitConfig{})
	env.sessions.signIn()
	env.api.setPlan(mealplan.MealPlan{ID: 8, Location: "Oslo"})

	rec := performRequest(env.server, http.MethodGet, "/api/v1/meal-plans/8", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "Oslo", got["location"])
	require.Equal(t, "http://ui.test/public/users/3/meal-plans/8", got["share_url"])

	rec = performRequest(env.server, http.MethodGet, "/api/v1/meal-plans/abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = performRequest(env.server, http.MethodGet, "/api/v1/meal-plans/99", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_PublicPlanNeedsNoSession(t *testing.T) {
	env := newRouterUnderTest(t, config.RateLimitConfig{})
	env.api.setPlan(mealplan.MealPlan{ID: 8, Location: "Oslo"})

	rec := performRequest(env.server, http.MethodGet, "/api/v1/public/users/3/meal-plans/8", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_GenerateLifecycle(t *testing.T) {
	env := newRouterUnderTest(t, config.RateLimitConfig{})
	env.sessions.signIn()

	rec := performRequest(env.server, http.MethodPost, "/api/v1/meal-plans/generate", `{"location":"  "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, apperrors.CodeMissingLocation, decodeErrorBody(t, rec.Body.Bytes()).Error.Code)

	rec = performRequest(env.server, http.MethodGet, "/api/v1/meal-plans/generation", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = performRequest(env.server, http.MethodPost, "/api/v1/meal-plans/generate", `{"location":"Lima"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted generateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.GenerationID)
	require.Equal(t, []string{"Using default fitness data"}, accepted.Warnings)
	require.Equal(t, mealplan.GenerationRunning, accepted.Status.State)

	rec = performRequest(env.server, http.MethodPost, "/api/v1/meal-plans/generate", `{"location":"Lima"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, apperrors.CodeGenerationInProgress, decodeErrorBody(t, rec.Body.Bytes()).Error.Code)

	rec = performRequest(env.server, http.MethodDelete, "/api/v1/meal-plans/generation", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = performRequest(env.server, http.MethodGet, "/api/v1/meal-plans/generation", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status mealplan.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, accepted.GenerationID, status.ID)
	require.Equal(t, mealplan.GenerationCancelled, status.State)

	rec = performRequest(env.server, http.MethodDelete, "/api/v1/meal-plans/generation", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_GenerationFailureCarriesWarnings(t *testing.T) {
	env := newRouterUnderTest(t, config.RateLimitConfig{})
	env.sessions.signIn()
	env.api.generateErr = apperrors.WithWarnings(apperrors.CodeGenerationFailed, "Could not fetch weather data", nil, []string{"Weather service unavailable"})

	rec := performRequest(env.server, http.MethodPost, "/api/v1/meal-plans/generate", `{"location":"Lima"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeErrorBody(t, rec.Body.Bytes())
	require.Equal(t, apperrors.CodeGenerationFailed, body.Error.Code)
	require.Equal(t, []string{"Weather service unavailable"}, body.Error.Warnings)
}

func TestRouter_RateLimitsCredentialAttempts(t *testing.T) {
	env := newRouterUnderTest(t, config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1})

	rec := performRequest(env.server, http.MethodPost, "/api/v1/session/login", `{"username":"ana","password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = performRequest(env.server, http.MethodPost, "/api/v1/session/login", `{"username":"ana","password":"wrong"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = performRequest(env.server, http.MethodGet, "/api/v1/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_SuccessfulLoginRefillsAttempts(t *testing.T) {
	env := newRouterUnderTest(t, config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1})

	for i := 0; i < 3; i++ {
		rec := performRequest(env.server, http.MethodPost, "/api/v1/session/login", `{"username":"ana","password":"secret1"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRouter_RejectsCrossSiteWrites(t *testing.T) {
	env := newRouterUnderTest(t, config.RateLimitConfig{})
	env.sessions.signIn()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/logout", nil)
	req.Header.Set("Origin", "http://evil.test")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "forbidden_origin", decodeErrorBody(t, rec.Body.Bytes()).Error.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/meal-plans/generate", strings.NewReader(`{"location":"Lima"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec = httptest.NewRecorder()
	env.server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	require.Zero(t, env.api.generateCalls())
	require.True(t, env.sessions.Snapshot().Authenticated())

	req = httptest.NewRequest(http.MethodPost, "/api/v1/session/logout", nil)
	req.Header.Set("Origin", "http://ui.test")
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	env.server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.False(t, env.sessions.Snapshot().Authenticated())
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	env := newRouterUnderTest(t, config.RateLimitConfig{})

	rec := performRequest(env.server, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = performRequest(env.server, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "mealplanner_http_requests_total")
}

func TestRouter_EventsStreamGenerationOutcome(t *testing.T) {
	env := newRouterUnderTest(t, config.RateLimitConfig{})
	env.sessions.signIn()
	srv := httptest.NewServer(env.server.Handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return env.hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	resp, err := http.Post(srv.URL+"/api/v1/meal-plans/generate", "application/json", strings.NewReader(`{"location":"Lima"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	env.api.setLatest(mealplan.MealPlan{ID: 2})
	env.clock.Advance(3 * time.Second)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, MessageGeneration, msg.Type)
	require.NotNil(t, msg.Generation)
	require.Equal(t, mealplan.GenerationSucceeded, msg.Generation.State)
	require.Equal(t, int64(2), msg.Generation.PlanID)
}

type routerEnv struct {
	server   *http.Server
	sessions *stubSessions
	api      *stubPlanAPI
	hub      *EventHub
	clock    *util.FakeClock
}

func newRouterUnderTest(t *testing.T, rateLimit config.RateLimitConfig) routerEnv {
	t.Helper()
	logger := newTestLogger()
	sessions := &stubSessions{session: session.Session{State: session.StateUnauthenticated}}
	api := &stubPlanAPI{plans: make(map[int64]mealplan.MealPlan)}
	clock := util.NewFakeClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	m := metrics.New()
	planCfg := mealplan.Config{PollInterval: 3 * time.Second, Timeout: 30 * time.Second, PublicBaseURL: "http://ui.test"}
	poller := mealplan.NewPoller(planCfg, api, sessions, nil, nil, clock, m, logger)
	plans := mealplan.NewService(planCfg, api, sessions, nil, logger)
	hub := NewEventHub(nil, logger)
	t.Cleanup(func() {
		poller.Cancel()
		hub.Close()
	})

	cfg := &config.Config{
		HTTP: config.HTTPConfig{
			Address:        ":0",
			ReadTimeout:    time.Second,
			WriteTimeout:   time.Second,
			RateLimit:      rateLimit,
			AllowedOrigins: []string{"http://ui.test"},
		},
	}
	handler := NewHandler(sessions, plans, poller, hub, logger)
	return routerEnv{
		server:   NewRouter(cfg, handler, m),
		sessions: sessions,
		api:      api,
		hub:      hub,
		clock:    clock,
	}
}

func performRequest(server *http.Server, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	return rec
}

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, nil)
	return slog.New(handler)
}

type errorEnvelope struct {
	Error struct {
		Code     string            `json:"code"`
		Message  string            `json:"message"`
		Fields   map[string]string `json:"fields"`
		Warnings []string          `json:"warnings"`
	} `json:"error"`
}

func decodeErrorBody(t *testing.T, raw []byte) errorEnvelope {
	t.Helper()
	var body errorEnvelope
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

type stubSessions struct {
	mu      sync.Mutex
	session session.Session
}

func (s *stubSessions) signIn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session.Session{
		Token: "tok",
		User:  &session.UserProfile{ID: 3, Username: "ana"},
		State: session.StateAuthenticated,
	}
}

func (s *stubSessions) Login(_ context.Context, req session.LoginRequest) (session.UserProfile, error) {
	if req.Password != "secret1" {
		return session.UserProfile{}, apperrors.Wrap(apperrors.CodeInvalidCredentials, "invalid username or password", nil)
	}
	s.signIn()
	return *s.Snapshot().User, nil
}

func (s *stubSessions) Register(ctx context.Context, req session.RegisterRequest) (session.UserProfile, error) {
	return s.Login(ctx, session.LoginRequest{Username: req.Username, Password: req.Password})
}

func (s *stubSessions) Logout(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session.Session{State: session.StateUnauthenticated}
}

func (s *stubSessions) FetchProfile(context.Context) (session.UserProfile, error) {
	snap := s.Snapshot()
	if snap.User == nil {
		return session.UserProfile{}, apperrors.Wrap(apperrors.CodeAuthorizationExpired, "not signed in", nil)
	}
	return *snap.User, nil
}

func (s *stubSessions) UpdateProfile(_ context.Context, update session.ProfileUpdate) (session.UserProfile, error) {
	if update.Email != nil {
		return session.UserProfile{}, apperrors.Validation("profile update rejected", map[string]string{"email": "taken"})
	}
	return *s.Snapshot().User, nil
}

func (s *stubSessions) Snapshot() session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *stubSessions) Authorized(ctx context.Context, fn func(ctx context.Context, token string) error) error {
	token := s.Snapshot().Token
	if token == "" {
		return apperrors.Wrap(apperrors.CodeAuthorizationExpired, "not signed in", nil)
	}
	return fn(ctx, token)
}

type stubPlanAPI struct {
	mu          sync.Mutex
	plans       map[int64]mealplan.MealPlan
	latest      *mealplan.MealPlan
	generateErr error
	generateN   int
}

func (s *stubPlanAPI) generateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generateN
}

func (s *stubPlanAPI) setPlan(plan mealplan.MealPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[plan.ID] = plan
}

func (s *stubPlanAPI) setLatest(plan mealplan.MealPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = &plan
}

func (s *stubPlanAPI) ListPlans(context.Context, string) ([]mealplan.MealPlan, error) {
	return nil, nil
}

func (s *stubPlanAPI) LatestPlan(context.Context, string) (mealplan.MealPlan, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return mealplan.MealPlan{}, false, nil
	}
	return *s.latest, true, nil
}

func (s *stubPlanAPI) GetPlan(_ context.Context, _ string, id int64) (mealplan.MealPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[id]
	if !ok {
		return mealplan.MealPlan{}, apperrors.Wrap(apperrors.CodeNotFound, "meal plan not found", nil)
	}
	return plan, nil
}

func (s *stubPlanAPI) Generate(context.Context, string, mealplan.GenerationRequest) (mealplan.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generateN++
	if s.generateErr != nil {
		return mealplan.Submission{}, s.generateErr
	}
	return mealplan.Submission{Accepted: true, Warnings: []string{"Using default fitness data"}}, nil
}

func (s *stubPlanAPI) PublicPlan(ctx context.Context, _ int64, id int64) (mealplan.MealPlan, error) {
	return s.GetPlan(ctx, "", id)
}
