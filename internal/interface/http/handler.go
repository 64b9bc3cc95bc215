package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/mealplanner/internal/domain/mealplan"
	"github.com/yanqian/mealplanner/internal/domain/session"
	apperrors "github.com/yanqian/mealplanner/pkg/errors"
)

// SessionService is the session surface the handlers drive.
type SessionService interface {
	Login(ctx context.Context, req session.LoginRequest) (session.UserProfile, error)
	Register(ctx context.Context, req session.RegisterRequest) (session.UserProfile, error)
	Logout(ctx context.Context)
	FetchProfile(ctx context.Context) (session.UserProfile, error)
	UpdateProfile(ctx context.Context, update session.ProfileUpdate) (session.UserProfile, error)
	Snapshot() session.Session
}

// PlanService serves meal plan reads.
type PlanService interface {
	List(ctx context.Context) ([]mealplan.MealPlan, error)
	Latest(ctx context.Context) (mealplan.MealPlan, bool, error)
	Get(ctx context.Context, id int64) (mealplan.MealPlan, error)
	Public(ctx context.Context, userID, id int64) (mealplan.MealPlan, error)
	ShareLink(userID, id int64) string
}

// Generator runs the generation workflow.
type Generator interface {
	Start(ctx context.Context, req mealplan.GenerationRequest) (*mealplan.Generation, error)
	Current() (*mealplan.Generation, bool)
	Cancel() bool
}

// Handler wires the HTTP transport to the client domains.
type Handler struct {
	sessions SessionService
	plans    PlanService
	poller   Generator
	events   *EventHub
	logger   *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(sessions SessionService, plans PlanService, poller Generator, events *EventHub, logger *slog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		plans:    plans,
		poller:   poller,
		events:   events,
		logger:   logger.With("component", "http.handler"),
	}
}

type sessionResponse struct {
	State session.State        `json:"state"`
	User  *session.UserProfile `json:"user,omitempty"`
}

func toSessionResponse(s session.Session) sessionResponse {
	return sessionResponse{State: s.State, User: s.User}
}

// Session reports the current state machine position.
func (h *Handler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, toSessionResponse(h.sessions.Snapshot()))
}

// Login exchanges credentials for a session.
func (h *Handler) Login(c *gin.Context) {
	var req session.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	fields := map[string]string{}
	if req.Username == "" {
		fields["username"] = "Username is required"
	}
	if req.Password == "" {
		fields["password"] = "Password is required"
	}
	if len(fields) > 0 {
		fail(c, apperrors.Validation("login form is invalid", fields))
		return
	}

	if _, err := h.sessions.Login(c.Request.Context(), req); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(h.sessions.Snapshot()))
}

// Register creates an account and signs in.
func (h *Handler) Register(c *gin.Context) {
	var req session.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	if _, err := h.sessions.Register(c.Request.Context(), req); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(h.sessions.Snapshot()))
}

// Logout ends the session and any running generation.
func (h *Handler) Logout(c *gin.Context) {
	h.poller.Cancel()
	h.sessions.Logout(c.Request.Context())
	c.Status(http.StatusNoContent)
}

// Profile returns the refreshed user profile.
func (h *Handler) Profile(c *gin.Context) {
	profile, err := h.sessions.FetchProfile(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// UpdateProfile applies a full or partial profile edit.
func (h *Handler) UpdateProfile(c *gin.Context) {
	var update session.ProfileUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	profile, err := h.sessions.UpdateProfile(c.Request.Context(), update)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// ListPlans returns the user's plan history.
func (h *Handler) ListPlans(c *gin.Context) {
	plans, err := h.plans.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, plans)
}

// LatestPlan returns the newest plan or 204 when there is none.
func (h *Handler) LatestPlan(c *gin.Context) {
	plan, found, err := h.plans.Latest(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if !found {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, plan)
}

type planView struct {
	mealplan.MealPlan
	ShareURL string `json:"share_url,omitempty"`
}

// GetPlan returns a plan with its meals and share link.
func (h *Handler) GetPlan(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	plan, err := h.plans.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	view := planView{MealPlan: plan}
	if user, ok := currentUser(c); ok {
		view.ShareURL = h.plans.ShareLink(user.ID, plan.ID)
	}
	c.JSON(http.StatusOK, view)
}

type generateResponse struct {
	GenerationID string          `json:"generationId"`
	Warnings     []string        `json:"warnings,omitempty"`
	Status       mealplan.Status `json:"status"`
}

// Generate submits a generation request and returns once it is accepted.
// The outcome is pushed over the event stream and exposed by GenerationStatus.
func (h *Handler) Generate(c *gin.Context) {
	var req mealplan.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	gen, err := h.poller.Start(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	go h.announce(gen)
	c.JSON(http.StatusAccepted, generateResponse{
		GenerationID: gen.ID(),
		Warnings:     gen.Warnings(),
		Status:       gen.Status(),
	})
}

func (h *Handler) announce(gen *mealplan.Generation) {
	<-gen.Done()
	status := gen.Status()
	h.logger.Debug("generation finished", "generation_id", status.ID, "state", status.State)
	if h.events != nil {
		h.events.Broadcast(Message{Type: MessageGeneration, Generation: &status})
	}
}

// GenerationStatus reports the current or last workflow.
func (h *Handler) GenerationStatus(c *gin.Context) {
	gen, ok := h.poller.Current()
	if !ok {
		fail(c, apperrors.Wrap(apperrors.CodeNotFound, "no meal plan generation yet", nil))
		return
	}
	c.JSON(http.StatusOK, gen.Status())
}

// CancelGeneration stops the running workflow.
func (h *Handler) CancelGeneration(c *gin.Context) {
	if !h.poller.Cancel() {
		fail(c, apperrors.Wrap(apperrors.CodeNotFound, "no meal plan generation is running", nil))
		return
	}
	c.Status(http.StatusNoContent)
}

// PublicPlan serves a shared plan without a session.
func (h *Handler) PublicPlan(c *gin.Context) {
	userID, ok := parseID(c, "userId")
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	plan, err := h.plans.Public(c.Request.Context(), userID, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", name+" must be a positive integer", err))
		return 0, false
	}
	return id, true
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
