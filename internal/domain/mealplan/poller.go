package mealplan

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/yanqian/mealplanner/pkg/errors"
	"github.com/yanqian/mealplanner/pkg/metrics"
	"github.com/yanqian/mealplanner/pkg/util"
)

const (
	defaultPollInterval = 3 * time.Second
	defaultTimeout      = 30 * time.Second
	sideEffectTimeout   = 10 * time.Second
)

// GenerationState is the lifecycle position of a generation workflow.
type GenerationState string

const (
	GenerationRunning   GenerationState = "running"
	GenerationSucceeded GenerationState = "succeeded"
	GenerationTimedOut  GenerationState = "timed_out"
	GenerationCancelled GenerationState = "cancelled"
	GenerationFailed    GenerationState = "failed"
)

// Outcome is delivered once when a workflow sees a new plan.
type Outcome struct {
	Plan     MealPlan `json:"plan"`
	Warnings []string `json:"warnings,omitempty"`
	Polls    int      `json:"polls"`
}

// Status is a point-in-time view of a workflow.
type Status struct {
	ID         string          `json:"id"`
	State      GenerationState `json:"state"`
	Location   string          `json:"location"`
	Warnings   []string        `json:"warnings,omitempty"`
	PlanID     int64           `json:"planId,omitempty"`
	Polls      int             `json:"polls"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
	ErrorCode  string          `json:"errorCode,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Generation is the handle of one running workflow. It owns both the poll
// interval and the deadline; Cancel stops both.
type Generation struct {
	id        string
	request   GenerationRequest
	warnings  []string
	priorID   int64
	token     string
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}

	mu         sync.Mutex
	state      GenerationState
	polls      int
	outcome    Outcome
	err        error
	finishedAt time.Time
}

// ID identifies the workflow.
func (g *Generation) ID() string { return g.id }

// Warnings returns the advisory warnings from the submission.
func (g *Generation) Warnings() []string { return append([]string(nil), g.warnings...) }

// Done is closed once the workflow reached a terminal state.
func (g *Generation) Done() <-chan struct{} { return g.done }

// Cancel stops polling and the deadline. It is a no-op once the workflow finished.
func (g *Generation) Cancel() { g.cancel() }

// Wait blocks until the workflow finishes or ctx ends. Ending ctx cancels the workflow.
func (g *Generation) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-g.done:
	case <-ctx.Done():
		g.Cancel()
		<-g.done
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.outcome, g.err
}

// Status reports the workflow's current state.
func (g *Generation) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := Status{
		ID:        g.id,
		State:     g.state,
		Location:  g.request.Location,
		Warnings:  append([]string(nil), g.warnings...),
		PlanID:    g.outcome.Plan.ID,
		Polls:     g.polls,
		StartedAt: g.startedAt,
	}
	if !g.finishedAt.IsZero() {
		finished := g.finishedAt
		st.FinishedAt = &finished
	}
	if g.err != nil {
		st.ErrorCode = apperrors.CodeOf(g.err)
		st.Error = g.err.Error()
	}
	return st
}

func (g *Generation) finished() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

// Poller drives the submit-then-poll generation workflow for one session.
// At most one workflow runs at a time.
type Poller struct {
	cfg      Config
	api      API
	authz    Authorizer
	cache    Cache
	archiver Archiver
	clock    util.Clock
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu       sync.Mutex
	starting bool
	current  *Generation
}

// NewPoller wires the generation workflow. cache and archiver may be nil.
func NewPoller(cfg Config, api API, authz Authorizer, cache Cache, archiver Archiver, clock util.Clock, m *metrics.Metrics, logger *slog.Logger) *Poller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if clock == nil {
		clock = util.RealClock()
	}
	return &Poller{
		cfg:      cfg,
		api:      api,
		authz:    authz,
		cache:    cache,
		archiver: archiver,
		clock:    clock,
		metrics:  m,
		logger:   logger.With("component", "mealplan.poller"),
	}
}

// Generate submits req and blocks until the new plan arrives, the deadline
// passes or ctx ends.
func (p *Poller) Generate(ctx context.Context, req GenerationRequest) (Outcome, error) {
	gen, err := p.Start(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	return gen.Wait(ctx)
}

// Start submits req and returns once the remote acknowledged it. Polling
// continues in the background until the returned handle finishes.
func (p *Poller) Start(ctx context.Context, req GenerationRequest) (*Generation, error) {
	req.Location = strings.TrimSpace(req.Location)
	if req.Location == "" {
		return nil, apperrors.Wrap(apperrors.CodeMissingLocation, "please enter your location", nil)
	}
	if err := p.reserve(); err != nil {
		return nil, err
	}
	released := false
	release := func() {
		if !released {
			released = true
			p.mu.Lock()
			p.starting = false
			p.mu.Unlock()
		}
	}
	defer release()

	priorID, err := p.latestID(ctx)
	if err != nil {
		return nil, err
	}

	var (
		sub       Submission
		submitted string
	)
	err = p.authz.Authorized(ctx, func(ctx context.Context, token string) error {
		var err error
		submitted = token
		sub, err = p.api.Generate(ctx, token, req)
		return err
	})
	if err != nil {
		p.metrics.Generation("submit_failed")
		if apperrors.IsCode(err, apperrors.CodeAuthorizationExpired) || apperrors.IsCode(err, apperrors.CodeGenerationFailed) {
			return nil, err
		}
		return nil, apperrors.WithWarnings(apperrors.CodeGenerationFailed, "failed to generate meal plan", err, apperrors.WarningsOf(err))
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	gen := &Generation{
		id:        uuid.NewString(),
		request:   req,
		warnings:  sub.Warnings,
		priorID:   priorID,
		token:     submitted,
		startedAt: p.clock.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     GenerationRunning,
	}
	// The ticker is armed before the deadline so a poll due at the deadline
	// instant still runs; nothing is scheduled after it.
	ticker := p.clock.NewTicker(p.cfg.PollInterval)
	deadline := p.clock.NewTimer(p.cfg.Timeout)

	p.mu.Lock()
	p.current = gen
	p.starting = false
	released = true
	p.mu.Unlock()

	p.logger.Info("meal plan generation submitted", "generation_id", gen.id, "location", req.Location, "prior_plan_id", priorID, "warnings", len(sub.Warnings))
	go p.run(runCtx, gen, ticker, deadline)
	return gen, nil
}

func (p *Poller) reserve() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.starting || (p.current != nil && !p.current.finished()) {
		return apperrors.Wrap(apperrors.CodeGenerationInProgress, "a meal plan is already being generated", nil)
	}
	p.starting = true
	return nil
}

// latestID returns the id of the plan known before submission, 0 when absent.
func (p *Poller) latestID(ctx context.Context) (int64, error) {
	var (
		plan  MealPlan
		found bool
	)
	err := p.authz.Authorized(ctx, func(ctx context.Context, token string) error {
		var err error
		plan, found, err = p.api.LatestPlan(ctx, token)
		return err
	})
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeAuthorizationExpired) {
			return 0, err
		}
		p.logger.Warn("could not read latest plan before generation", "error", err)
		return 0, nil
	}
	if !found {
		return 0, nil
	}
	return plan.ID, nil
}

type pollResult struct {
	plan  MealPlan
	found bool
	err   error
}

func (p *Poller) run(ctx context.Context, gen *Generation, ticker util.Ticker, deadline util.Timer) {
	defer ticker.Stop()
	defer deadline.Stop()
	defer gen.cancel()

	deadlineAt := gen.startedAt.Add(p.cfg.Timeout)
	for {
		select {
		case <-ctx.Done():
			p.cancelled(gen)
			return
		case <-deadline.C():
			p.timedOut(gen)
			return
		case <-ticker.C():
			if ctx.Err() != nil {
				continue
			}
			if !p.sameSession(gen) {
				return
			}
			res, ok := p.pollUntilDeadline(ctx, gen, ticker, deadline, deadlineAt)
			if !ok {
				return
			}
			if res.err != nil {
				p.metrics.Poll("error")
				p.logger.Debug("latest plan poll failed", "generation_id", gen.id, "error", res.err)
				continue
			}
			if !res.found || res.plan.ID == gen.priorID {
				p.metrics.Poll("unchanged")
				continue
			}
			if !p.sameSession(gen) {
				return
			}
			p.metrics.Poll("changed")
			p.deliver(gen, res.plan)
			return
		}
	}
}

// pollUntilDeadline issues one poll and waits for its answer. A poll still in
// flight when the deadline fires is abandoned and the workflow times out; only
// a poll issued at the deadline instant is waited for. ok is false once the
// workflow has finished.
func (p *Poller) pollUntilDeadline(ctx context.Context, gen *Generation, ticker util.Ticker, deadline util.Timer, deadlineAt time.Time) (pollResult, bool) {
	issuedAt := p.clock.Now()
	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	results := make(chan pollResult, 1)
	go func() {
		plan, found, err := p.poll(pollCtx, gen)
		results <- pollResult{plan: plan, found: found, err: err}
	}()

	final := false
	for {
		select {
		case res := <-results:
			if final && (res.err != nil || !res.found || res.plan.ID == gen.priorID) {
				p.timedOut(gen)
				return pollResult{}, false
			}
			return res, true
		case <-ticker.C():
			// overlapping tick, dropped like time.Ticker does
		case <-ctx.Done():
			p.cancelled(gen)
			return pollResult{}, false
		case <-deadline.C():
			if issuedAt.Before(deadlineAt) {
				p.timedOut(gen)
				return pollResult{}, false
			}
			final = true
		}
	}
}

// sameSession ends the workflow when the session that started it is gone.
func (p *Poller) sameSession(gen *Generation) bool {
	snap := p.authz.Snapshot()
	if !snap.Authenticated() {
		p.finish(gen, GenerationFailed, Outcome{}, apperrors.Wrap(apperrors.CodeAuthorizationExpired, "session ended during meal plan generation", nil))
		return false
	}
	if snap.Token != gen.token {
		p.finish(gen, GenerationCancelled, Outcome{}, apperrors.Wrap(apperrors.CodeGenerationCancelled, "session changed during meal plan generation", nil))
		return false
	}
	return true
}

func (p *Poller) cancelled(gen *Generation) {
	p.finish(gen, GenerationCancelled, Outcome{}, apperrors.Wrap(apperrors.CodeGenerationCancelled, "meal plan generation cancelled", nil))
}

func (p *Poller) timedOut(gen *Generation) {
	p.finish(gen, GenerationTimedOut, Outcome{}, apperrors.Wrap(apperrors.CodeGenerationTimeout, "meal plan generation is taking longer than expected, please check back later", nil))
}

func (p *Poller) poll(ctx context.Context, gen *Generation) (MealPlan, bool, error) {
	gen.mu.Lock()
	gen.polls++
	gen.mu.Unlock()

	var (
		plan  MealPlan
		found bool
	)
	err := p.authz.Authorized(ctx, func(ctx context.Context, token string) error {
		if token != gen.token {
			return apperrors.Wrap(apperrors.CodeGenerationCancelled, "session changed during meal plan generation", nil)
		}
		var err error
		plan, found, err = p.api.LatestPlan(ctx, token)
		return err
	})
	return plan, found, err
}

func (p *Poller) deliver(gen *Generation, plan MealPlan) {
	gen.mu.Lock()
	polls := gen.polls
	gen.mu.Unlock()
	outcome := Outcome{Plan: plan, Warnings: gen.Warnings(), Polls: polls}
	p.finish(gen, GenerationSucceeded, outcome, nil)
	p.keep(plan)
}

// keep stores the new plan in the cache and archive; failures are only logged.
func (p *Poller) keep(plan MealPlan) {
	if p.cache == nil && p.archiver == nil {
		return
	}
	snapshot := p.authz.Snapshot()
	if snapshot.User == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()
	if p.cache != nil {
		if err := p.cache.Put(ctx, snapshot.User.ID, plan); err != nil {
			p.logger.Warn("failed to cache generated plan", "plan_id", plan.ID, "error", err)
		}
	}
	if p.archiver != nil {
		key, err := p.archiver.Archive(ctx, snapshot.User.ID, plan)
		if err != nil {
			p.logger.Warn("failed to archive generated plan", "plan_id", plan.ID, "error", err)
			return
		}
		p.logger.Info("generated plan archived", "plan_id", plan.ID, "key", key)
	}
}

func (p *Poller) finish(gen *Generation, state GenerationState, outcome Outcome, err error) {
	gen.mu.Lock()
	gen.state = state
	gen.outcome = outcome
	gen.err = err
	gen.finishedAt = p.clock.Now()
	polls := gen.polls
	gen.mu.Unlock()
	close(gen.done)

	p.metrics.Generation(string(state))
	if err != nil {
		p.logger.Info("meal plan generation ended", "generation_id", gen.id, "state", state, "polls", polls, "error", err)
		return
	}
	p.logger.Info("meal plan generation completed", "generation_id", gen.id, "plan_id", outcome.Plan.ID, "polls", polls)
}

// Current returns the most recent workflow, if any.
func (p *Poller) Current() (*Generation, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.current != nil
}

// Cancel stops the running workflow. It reports whether one was running.
func (p *Poller) Cancel() bool {
	p.mu.Lock()
	gen := p.current
	p.mu.Unlock()
	if gen == nil || gen.finished() {
		return false
	}
	gen.Cancel()
	<-gen.done
	return true
}
