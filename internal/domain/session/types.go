package session

import "context"

// State is a position in the session state machine.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateLoading         State = "loading"
	StateAuthenticated   State = "authenticated"
)

// Session is the authenticated identity held by the client.
type Session struct {
	Token string       `json:"-"`
	User  *UserProfile `json:"user,omitempty"`
	State State        `json:"state"`
}

// Authenticated reports whether the session carries a usable identity.
func (s Session) Authenticated() bool {
	return s.State == StateAuthenticated && s.Token != "" && s.User != nil
}

// Gender values accepted by the remote profile.
type Gender string

const (
	GenderUnset  Gender = ""
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// ActivityLevel describes how active the user is day to day.
type ActivityLevel string

const (
	ActivitySedentary  ActivityLevel = "sedentary"
	ActivityLight      ActivityLevel = "light"
	ActivityModerate   ActivityLevel = "moderate"
	ActivityActive     ActivityLevel = "active"
	ActivityVeryActive ActivityLevel = "very_active"
)

// DietaryPreference narrows the meals a plan may contain.
type DietaryPreference string

const (
	DietOmnivore   DietaryPreference = "omnivore"
	DietVegetarian DietaryPreference = "vegetarian"
	DietVegan      DietaryPreference = "vegan"
	DietKeto       DietaryPreference = "keto"
	DietPaleo      DietaryPreference = "paleo"
)

// UserProfile is the identity plus preferences returned by the remote.
type UserProfile struct {
	ID        int64        `json:"id"`
	Username  string       `json:"username"`
	FirstName string       `json:"first_name,omitempty"`
	LastName  string       `json:"last_name,omitempty"`
	Email     string       `json:"email,omitempty"`
	Profile   *Preferences `json:"profile,omitempty"`
}

// Preferences holds the dietary and fitness inputs used for plan generation.
type Preferences struct {
	Age               *int              `json:"age"`
	Height            *float64          `json:"height"`
	Weight            *float64          `json:"weight"`
	Gender            Gender            `json:"gender"`
	ActivityLevel     ActivityLevel     `json:"activity_level"`
	DietaryPreference DietaryPreference `json:"dietary_preference"`
	Allergies         string            `json:"allergies"`
	FitnessAPIID      string            `json:"fitness_api_id"`
	Location          string            `json:"location"`
}

// LoginRequest captures login details.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest captures the registration form.
type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
}

// AuthResponse is returned by the remote on login and registration.
type AuthResponse struct {
	Token    string `json:"token"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// ProfileUpdate is a full or partial profile edit. Nil fields are left untouched.
type ProfileUpdate struct {
	FirstName *string            `json:"first_name,omitempty"`
	LastName  *string            `json:"last_name,omitempty"`
	Email     *string            `json:"email,omitempty"`
	Profile   *PreferencesUpdate `json:"profile,omitempty"`
}

// PreferencesUpdate is the partial form of Preferences.
type PreferencesUpdate struct {
	Age               *int               `json:"age,omitempty"`
	Height            *float64           `json:"height,omitempty"`
	Weight            *float64           `json:"weight,omitempty"`
	Gender            *Gender            `json:"gender,omitempty"`
	ActivityLevel     *ActivityLevel     `json:"activity_level,omitempty"`
	DietaryPreference *DietaryPreference `json:"dietary_preference,omitempty"`
	Allergies         *string            `json:"allergies,omitempty"`
	FitnessAPIID      *string            `json:"fitness_api_id,omitempty"`
	Location          *string            `json:"location,omitempty"`
}

// Event is published on every session state transition.
type Event struct {
	State  State        `json:"state"`
	User   *UserProfile `json:"user,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

// API is the remote account surface used by the store.
type API interface {
	Login(ctx context.Context, req LoginRequest) (AuthResponse, error)
	Register(ctx context.Context, req RegisterRequest) (AuthResponse, error)
	Revoke(ctx context.Context, token string) error
	Profile(ctx context.Context, token string) (UserProfile, error)
	UpdateProfile(ctx context.Context, token string, update ProfileUpdate) (UserProfile, error)
}

// TokenStore persists the session token under a single fixed name.
type TokenStore interface {
	Load(ctx context.Context) (string, bool, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}
