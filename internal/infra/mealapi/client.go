package mealapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yanqian/mealplanner/internal/domain/mealplan"
	"github.com/yanqian/mealplanner/internal/domain/session"
	apperrors "github.com/yanqian/mealplanner/pkg/errors"
)

const (
	defaultBaseURL    = "http://localhost:8000/api"
	defaultAuthScheme = "Token"
	maxResponseBytes  = 1 << 20
)

// Client talks to the remote meal planning API.
type Client struct {
	baseURL    string
	authScheme string
	httpClient *http.Client
	logger     *slog.Logger
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	AuthScheme string
	Timeout    time.Duration
}

// NewClient builds an API client.
func NewClient(opts Options, logger *slog.Logger) *Client {
	url := strings.TrimSpace(opts.BaseURL)
	if url == "" {
		url = defaultBaseURL
	}
	scheme := strings.TrimSpace(opts.AuthScheme)
	if scheme == "" {
		scheme = defaultAuthScheme
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(url, "/"),
		authScheme: scheme,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "mealapi.client"),
	}
}

type response struct {
	status int
	body   []byte
}

func (r response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// send performs a single call; failures are reported, never retried.
func (c *Client) send(ctx context.Context, method, path, token string, payload any) (response, error) {
	var encoded []byte
	if payload != nil {
		var err error
		if encoded, err = json.Marshal(payload); err != nil {
			return response{}, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}
	return c.do(ctx, method, path, token, encoded)
}

func (c *Client) do(ctx context.Context, method, path, token string, encoded []byte) (response, error) {
	var body io.Reader
	if encoded != nil {
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return response{}, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if encoded != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", c.authScheme+" "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, apperrors.Wrap(apperrors.CodeNetwork, "meal planner service unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return response{}, apperrors.Wrap(apperrors.CodeNetwork, "failed to read meal planner response", err)
	}
	c.logger.Debug("remote call", "method", method, "path", path, "status", resp.StatusCode, "latency_ms", time.Since(start).Milliseconds())
	return response{status: resp.StatusCode, body: data}, nil
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, req session.LoginRequest) (session.AuthResponse, error) {
	resp, err := c.send(ctx, http.MethodPost, "/sessions", "", req)
	if err != nil {
		return session.AuthResponse{}, err
	}
	switch {
	case resp.ok():
	case resp.status == http.StatusBadRequest, resp.status == http.StatusUnauthorized, resp.status == http.StatusForbidden:
		return session.AuthResponse{}, apperrors.Wrap(apperrors.CodeInvalidCredentials, "invalid username or password", nil)
	default:
		return session.AuthResponse{}, unexpectedStatus(resp)
	}
	var out session.AuthResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return session.AuthResponse{}, apperrors.Wrap(apperrors.CodeNetwork, "decode login response", err)
	}
	return out, nil
}

// Register creates an account and returns its first token.
func (c *Client) Register(ctx context.Context, req session.RegisterRequest) (session.AuthResponse, error) {
	resp, err := c.send(ctx, http.MethodPost, "/accounts", "", req)
	if err != nil {
		return session.AuthResponse{}, err
	}
	if !resp.ok() {
		if resp.status == http.StatusBadRequest {
			return session.AuthResponse{}, apperrors.Validation("registration rejected", parseFieldErrors(resp.body))
		}
		return session.AuthResponse{}, unexpectedStatus(resp)
	}
	var out session.AuthResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return session.AuthResponse{}, apperrors.Wrap(apperrors.CodeNetwork, "decode register response", err)
	}
	return out, nil
}

// Revoke invalidates the token on the remote.
func (c *Client) Revoke(ctx context.Context, token string) error {
	resp, err := c.send(ctx, http.MethodPost, "/sessions/revoke", token, nil)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return authorizedStatus(resp)
	}
	return nil
}

// Profile fetches the full profile for token.
func (c *Client) Profile(ctx context.Context, token string) (session.UserProfile, error) {
	resp, err := c.send(ctx, http.MethodGet, "/profile", token, nil)
	if err != nil {
		return session.UserProfile{}, err
	}
	if !resp.ok() {
		return session.UserProfile{}, authorizedStatus(resp)
	}
	var out session.UserProfile
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return session.UserProfile{}, apperrors.Wrap(apperrors.CodeNetwork, "decode profile", err)
	}
	return out, nil
}

// UpdateProfile sends a full or partial profile edit.
func (c *Client) UpdateProfile(ctx context.Context, token string, update session.ProfileUpdate) (session.UserProfile, error) {
	resp, err := c.send(ctx, http.MethodPut, "/profile", token, update)
	if err != nil {
		return session.UserProfile{}, err
	}
	if !resp.ok() {
		if resp.status == http.StatusBadRequest {
			return session.UserProfile{}, apperrors.Validation("profile update rejected", parseFieldErrors(resp.body))
		}
		return session.UserProfile{}, authorizedStatus(resp)
	}
	var out session.UserProfile
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return session.UserProfile{}, apperrors.Wrap(apperrors.CodeNetwork, "decode profile", err)
	}
	return out, nil
}

// ListPlans returns plan summaries, newest first.
func (c *Client) ListPlans(ctx context.Context, token string) ([]mealplan.MealPlan, error) {
	resp, err := c.send(ctx, http.MethodGet, "/meal-plans", token, nil)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, authorizedStatus(resp)
	}
	var out []mealplan.MealPlan
	if isEmptyBody(resp.body) {
		return out, nil
	}
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeNetwork, "decode meal plans", err)
	}
	return out, nil
}

// LatestPlan returns the most recent plan. found is false when the user has none.
func (c *Client) LatestPlan(ctx context.Context, token string) (mealplan.MealPlan, bool, error) {
	resp, err := c.send(ctx, http.MethodGet, "/meal-plans/latest", token, nil)
	if err != nil {
		return mealplan.MealPlan{}, false, err
	}
	if resp.status == http.StatusNotFound || resp.status == http.StatusNoContent {
		return mealplan.MealPlan{}, false, nil
	}
	if !resp.ok() {
		return mealplan.MealPlan{}, false, authorizedStatus(resp)
	}
	if isEmptyBody(resp.body) {
		return mealplan.MealPlan{}, false, nil
	}
	var out mealplan.MealPlan
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return mealplan.MealPlan{}, false, apperrors.Wrap(apperrors.CodeNetwork, "decode latest meal plan", err)
	}
	if out.ID == 0 {
		return mealplan.MealPlan{}, false, nil
	}
	return out, true, nil
}

// GetPlan fetches a plan with its meals.
func (c *Client) GetPlan(ctx context.Context, token string, id int64) (mealplan.MealPlan, error) {
	resp, err := c.send(ctx, http.MethodGet, fmt.Sprintf("/meal-plans/%d", id), token, nil)
	if err != nil {
		return mealplan.MealPlan{}, err
	}
	if !resp.ok() {
		return mealplan.MealPlan{}, authorizedStatus(resp)
	}
	return decodePlan(resp.body)
}

// Generate submits a generation request. Warnings are advisory on success and
// carried by the error otherwise.
func (c *Client) Generate(ctx context.Context, token string, req mealplan.GenerationRequest) (mealplan.Submission, error) {
	resp, err := c.send(ctx, http.MethodPost, "/meal-plans/generate", token, req)
	if err != nil {
		return mealplan.Submission{}, err
	}
	var payload generateResponse
	if !isEmptyBody(resp.body) {
		// A malformed body is tolerated; only the status decides acceptance.
		_ = json.Unmarshal(resp.body, &payload)
	}
	if resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden {
		return mealplan.Submission{}, authorizedStatus(resp)
	}
	if !resp.ok() {
		message := firstNonEmpty(payload.Error, payload.Message, "failed to generate meal plan")
		cause := fmt.Errorf("status=%d", resp.status)
		return mealplan.Submission{}, apperrors.WithWarnings(apperrors.CodeGenerationFailed, message, cause, normalizeWarnings(payload.Warnings))
	}
	accepted := true
	if payload.Accepted != nil {
		accepted = *payload.Accepted
	}
	if !accepted {
		message := firstNonEmpty(payload.Error, payload.Message, "meal plan generation was not accepted")
		return mealplan.Submission{}, apperrors.WithWarnings(apperrors.CodeGenerationFailed, message, nil, normalizeWarnings(payload.Warnings))
	}
	return mealplan.Submission{
		Accepted:   true,
		MealPlanID: payload.MealPlanID,
		Message:    payload.Message,
		Warnings:   normalizeWarnings(payload.Warnings),
	}, nil
}

// PublicPlan reads a shared plan without credentials.
func (c *Client) PublicPlan(ctx context.Context, userID, id int64) (mealplan.MealPlan, error) {
	resp, err := c.send(ctx, http.MethodGet, fmt.Sprintf("/public/users/%d/meal-plans/%d", userID, id), "", nil)
	if err != nil {
		return mealplan.MealPlan{}, err
	}
	if !resp.ok() {
		if resp.status == http.StatusNotFound {
			return mealplan.MealPlan{}, apperrors.Wrap(apperrors.CodeNotFound, "meal plan not found", nil)
		}
		return mealplan.MealPlan{}, unexpectedStatus(resp)
	}
	return decodePlan(resp.body)
}

type generateResponse struct {
	Accepted   *bool    `json:"accepted"`
	MealPlanID int64    `json:"meal_plan_id"`
	Message    string   `json:"message"`
	Error      string   `json:"error"`
	Warnings   []string `json:"warnings"`
}

func decodePlan(body []byte) (mealplan.MealPlan, error) {
	var out mealplan.MealPlan
	if err := json.Unmarshal(body, &out); err != nil {
		return mealplan.MealPlan{}, apperrors.Wrap(apperrors.CodeNetwork, "decode meal plan", err)
	}
	return out, nil
}

// authorizedStatus maps a failed authorized call onto the error taxonomy.
func authorizedStatus(resp response) error {
	switch resp.status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.Wrap(apperrors.CodeAuthorizationExpired, "session is no longer valid", nil)
	case http.StatusNotFound:
		return apperrors.Wrap(apperrors.CodeNotFound, "resource not found", nil)
	default:
		return unexpectedStatus(resp)
	}
}

func unexpectedStatus(resp response) error {
	snippet := string(resp.body)
	if len(snippet) > 512 {
		snippet = snippet[:512]
	}
	return apperrors.Wrap(apperrors.CodeNetwork, "meal planner service error", fmt.Errorf("status=%d body=%s", resp.status, snippet))
}

// parseFieldErrors flattens a field error document such as
// {"username":["taken"],"profile":{"age":["invalid"]}} into dotted keys.
func parseFieldErrors(body []byte) map[string]string {
	fields := make(map[string]string)
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		if msg := strings.TrimSpace(string(body)); msg != "" {
			fields["general"] = msg
		}
		return fields
	}
	flattenFieldErrors("", raw, fields)
	if len(fields) == 0 {
		fields["general"] = "request rejected"
	}
	return fields
}

func flattenFieldErrors(prefix string, raw map[string]json.RawMessage, out map[string]string) {
	for key, value := range raw {
		if key == "warnings" {
			continue
		}
		name := key
		switch key {
		case "non_field_errors", "detail", "error":
			name = "general"
		}
		if prefix != "" {
			name = prefix + "." + key
		}
		if msg, ok := messageOf(value); ok {
			out[name] = msg
			continue
		}
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(value, &nested); err == nil {
			flattenFieldErrors(name, nested, out)
		}
	}
}

func messageOf(value json.RawMessage) (string, bool) {
	var single string
	if err := json.Unmarshal(value, &single); err == nil {
		return single, true
	}
	var many []string
	if err := json.Unmarshal(value, &many); err == nil {
		return strings.Join(many, " "), true
	}
	return "", false
}

func normalizeWarnings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if clean := strings.TrimSpace(item); clean != "" {
			out = append(out, clean)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func isEmptyBody(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}"))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var (
	_ session.API  = (*Client)(nil)
	_ mealplan.API = (*Client)(nil)
)
