package session

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/yanqian/mealplanner/pkg/errors"
	"github.com/yanqian/mealplanner/pkg/metrics"
)

const subscriberBuffer = 16

// Store is the single source of truth for authentication state. It owns the
// token and decorates every authorized outbound call with it.
type Store struct {
	api     API
	tokens  TokenStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.RWMutex
	session Session

	subsMu  sync.Mutex
	subs    map[int]chan Event
	nextSub int
	closed  bool
}

// NewStore constructs an unauthenticated store; call Init to restore a persisted token.
func NewStore(api API, tokens TokenStore, m *metrics.Metrics, logger *slog.Logger) *Store {
	return &Store{
		api:     api,
		tokens:  tokens,
		logger:  logger.With("component", "session.store"),
		metrics: m,
		now:     time.Now,
		session: Session{State: StateUnauthenticated},
		subs:    make(map[int]chan Event),
	}
}

// Init restores a persisted token and validates it by fetching the profile.
func (s *Store) Init(ctx context.Context) {
	token, ok, err := s.tokens.Load(ctx)
	if err != nil {
		s.logger.Warn("failed to load persisted token", "error", err)
		s.transition(Session{State: StateUnauthenticated}, "token_load_failed")
		return
	}
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		s.transition(Session{State: StateUnauthenticated}, "no_token")
		return
	}
	if tokenExpired(token, s.now()) {
		s.logger.Info("persisted token expired, discarding")
		s.clearPersisted(ctx)
		s.transition(Session{State: StateUnauthenticated}, "token_expired")
		return
	}

	s.transition(Session{Token: token, State: StateLoading}, "restore")
	if _, err := s.FetchProfile(ctx); err != nil {
		if apperrors.IsCode(err, apperrors.CodeAuthorizationExpired) {
			return
		}
		// The token stays persisted so the next start can retry.
		s.logger.Warn("profile fetch failed during restore", "error", err)
		s.transitionIf(token, Session{State: StateUnauthenticated}, "restore_failed")
	}
}

// Login exchanges credentials for a token and establishes the session.
func (s *Store) Login(ctx context.Context, req LoginRequest) (UserProfile, error) {
	resp, err := s.api.Login(ctx, req)
	if err != nil {
		return UserProfile{}, err
	}
	return s.establish(ctx, resp, "login")
}

// Register creates the account and establishes the session like Login.
func (s *Store) Register(ctx context.Context, req RegisterRequest) (UserProfile, error) {
	if fields := validateRegistration(req); len(fields) > 0 {
		return UserProfile{}, apperrors.Validation("registration form is invalid", fields)
	}
	resp, err := s.api.Register(ctx, req)
	if err != nil {
		return UserProfile{}, err
	}
	return s.establish(ctx, resp, "register")
}

func (s *Store) establish(ctx context.Context, resp AuthResponse, reason string) (UserProfile, error) {
	token := strings.TrimSpace(resp.Token)
	if token == "" {
		return UserProfile{}, apperrors.Wrap(apperrors.CodeNetwork, "remote returned an empty token", nil)
	}
	if err := s.tokens.Save(ctx, token); err != nil {
		return UserProfile{}, apperrors.Wrap(apperrors.CodeStorage, "failed to persist session token", err)
	}
	user := UserProfile{ID: resp.UserID, Username: resp.Username}
	s.transition(Session{Token: token, User: &user, State: StateAuthenticated}, reason)
	s.logger.Info("session established", "user_id", user.ID, "via", reason)
	return user, nil
}

// Logout notifies the remote when a token is held, then clears the session.
// Notification failures are logged and never block the local teardown.
func (s *Store) Logout(ctx context.Context) {
	token := s.Token()
	if token != "" {
		if err := s.api.Revoke(ctx, token); err != nil {
			s.logger.Warn("remote logout failed", "error", err)
		}
	}
	s.clearPersisted(ctx)
	s.transition(Session{State: StateUnauthenticated}, "logout")
}

// FetchProfile refreshes the user profile with the current token.
func (s *Store) FetchProfile(ctx context.Context) (UserProfile, error) {
	var profile UserProfile
	token := s.Token()
	err := s.Authorized(ctx, func(ctx context.Context, token string) error {
		var err error
		profile, err = s.api.Profile(ctx, token)
		return err
	})
	if err != nil {
		return UserProfile{}, err
	}
	user := profile
	if !s.transitionIf(token, Session{Token: token, User: &user, State: StateAuthenticated}, "profile") {
		return UserProfile{}, apperrors.Wrap(apperrors.CodeAuthorizationExpired, "session changed during profile fetch", nil)
	}
	return profile, nil
}

// UpdateProfile sends the edit and merges the remote's answer onto the session user.
// On failure the session is left untouched.
func (s *Store) UpdateProfile(ctx context.Context, update ProfileUpdate) (UserProfile, error) {
	if fields := validateProfileUpdate(update); len(fields) > 0 {
		return UserProfile{}, apperrors.Validation("profile form is invalid", fields)
	}
	var updated UserProfile
	token := s.Token()
	err := s.Authorized(ctx, func(ctx context.Context, token string) error {
		var err error
		updated, err = s.api.UpdateProfile(ctx, token, update)
		return err
	})
	if err != nil {
		return UserProfile{}, err
	}

	s.mu.Lock()
	if s.session.Token != token || s.session.State != StateAuthenticated {
		s.mu.Unlock()
		return UserProfile{}, apperrors.Wrap(apperrors.CodeAuthorizationExpired, "session changed during profile update", nil)
	}
	var prior UserProfile
	if s.session.User != nil {
		prior = *s.session.User
	}
	merged := mergeProfile(prior, updated, update)
	next := Session{Token: token, User: &merged, State: StateAuthenticated}
	s.session = next
	s.mu.Unlock()

	s.publish(Event{State: next.State, User: copyUser(next.User), Reason: "profile_updated"})
	return merged, nil
}

// Authorized runs fn with the current token. An authorization failure from fn
// forces a logout, whichever call produced it.
func (s *Store) Authorized(ctx context.Context, fn func(ctx context.Context, token string) error) error {
	token := s.Token()
	if token == "" {
		return apperrors.Wrap(apperrors.CodeAuthorizationExpired, "not signed in", nil)
	}
	err := fn(ctx, token)
	if apperrors.IsCode(err, apperrors.CodeAuthorizationExpired) {
		s.forceLogout(ctx, token)
	}
	return err
}

func (s *Store) forceLogout(ctx context.Context, token string) {
	s.mu.RLock()
	current := s.session.Token
	s.mu.RUnlock()
	if current != token {
		return
	}
	s.logger.Info("authorization rejected by remote, ending session")
	s.clearPersisted(ctx)
	s.transitionIf(token, Session{State: StateUnauthenticated}, "authorization_expired")
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.session
	out.User = copyUser(s.session.User)
	return out
}

// State returns the current state machine position.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.State
}

// Token returns the current token, or "" when signed out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Token
}

// Subscribe returns a channel of state transitions and a function to stop receiving them.
func (s *Store) Subscribe() (<-chan Event, func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
		})
	}
}

// Close releases subscribers and the token backend. The persisted token is kept.
func (s *Store) Close() error {
	s.subsMu.Lock()
	if !s.closed {
		s.closed = true
		for id, ch := range s.subs {
			delete(s.subs, id)
			close(ch)
		}
	}
	s.subsMu.Unlock()
	if closer, ok := s.tokens.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (s *Store) clearPersisted(ctx context.Context) {
	if err := s.tokens.Clear(ctx); err != nil {
		s.logger.Warn("failed to clear persisted token", "error", err)
	}
}

func (s *Store) transition(next Session, reason string) {
	s.mu.Lock()
	s.session = next
	s.mu.Unlock()
	s.announce(next, reason)
}

// transitionIf applies next only while the session still holds token.
func (s *Store) transitionIf(token string, next Session, reason string) bool {
	s.mu.Lock()
	if s.session.Token != token {
		s.mu.Unlock()
		return false
	}
	s.session = next
	s.mu.Unlock()
	s.announce(next, reason)
	return true
}

func (s *Store) announce(next Session, reason string) {
	s.metrics.SessionState(string(next.State))
	s.logger.Debug("session transition", "state", next.State, "reason", reason)
	s.publish(Event{State: next.State, User: copyUser(next.User), Reason: reason})
}

func (s *Store) publish(evt Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			s.logger.Warn("session subscriber lagging, dropping event", "subscriber", id, "state", evt.State)
		}
	}
}

// mergeProfile overlays the remote's answer onto prior. Fields named in the
// update always take the answer's value, so a cleared field stays cleared.
func mergeProfile(prior, updated UserProfile, update ProfileUpdate) UserProfile {
	out := prior
	if updated.ID != 0 {
		out.ID = updated.ID
	}
	if updated.Username != "" {
		out.Username = updated.Username
	}
	out.FirstName = mergeField(out.FirstName, updated.FirstName, update.FirstName)
	out.LastName = mergeField(out.LastName, updated.LastName, update.LastName)
	out.Email = mergeField(out.Email, updated.Email, update.Email)
	if updated.Profile != nil {
		prefs := *updated.Profile
		out.Profile = &prefs
	}
	return out
}

func mergeField(prior, answered string, sent *string) string {
	switch {
	case answered != "":
		return answered
	case sent != nil:
		return *sent
	default:
		return prior
	}
}

func copyUser(user *UserProfile) *UserProfile {
	if user == nil {
		return nil
	}
	out := *user
	if user.Profile != nil {
		prefs := *user.Profile
		out.Profile = &prefs
	}
	return &out
}

// tokenExpired peeks at the exp claim of JWT shaped tokens. Opaque tokens
// never count as expired here; the remote decides.
func tokenExpired(token string, now time.Time) bool {
	if strings.Count(token, ".") != 2 {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Time.Before(now)
}
