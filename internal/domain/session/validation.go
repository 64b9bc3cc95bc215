package session

import (
	"net/mail"
	"strings"
)

const minPasswordLen = 6

// validateRegistration mirrors the checks the registration form runs before
// any network call. The returned map is keyed by wire field name.
func validateRegistration(req RegisterRequest) map[string]string {
	fields := make(map[string]string)
	if strings.TrimSpace(req.Username) == "" {
		fields["username"] = "Username is required"
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		fields["email"] = "Email is required"
	} else if !validEmail(email) {
		fields["email"] = "Email is invalid"
	}
	if req.Password == "" {
		fields["password"] = "Password is required"
	} else if len(req.Password) < minPasswordLen {
		fields["password"] = "Password must be at least 6 characters"
	}
	if req.Password != req.ConfirmPassword {
		fields["confirm_password"] = "Passwords do not match"
	}
	return fields
}

func validateProfileUpdate(update ProfileUpdate) map[string]string {
	fields := make(map[string]string)
	if update.Email != nil {
		if email := strings.TrimSpace(*update.Email); email != "" {
			if !validEmail(email) {
				fields["email"] = "Email is invalid"
			}
		}
	}
	prefs := update.Profile
	if prefs == nil {
		return fields
	}
	if prefs.Age != nil && *prefs.Age < 0 {
		fields["profile.age"] = "Age cannot be negative"
	}
	if prefs.Height != nil && *prefs.Height < 0 {
		fields["profile.height"] = "Height cannot be negative"
	}
	if prefs.Weight != nil && *prefs.Weight < 0 {
		fields["profile.weight"] = "Weight cannot be negative"
	}
	if prefs.Gender != nil && !prefs.Gender.Valid() {
		fields["profile.gender"] = "Unknown gender"
	}
	if prefs.ActivityLevel != nil && !prefs.ActivityLevel.Valid() {
		fields["profile.activity_level"] = "Unknown activity level"
	}
	if prefs.DietaryPreference != nil && !prefs.DietaryPreference.Valid() {
		fields["profile.dietary_preference"] = "Unknown dietary preference"
	}
	return fields
}

// validEmail requires a bare address with a dotted domain.
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return strings.Contains(email[at+1:], ".")
}

// Valid reports whether g is one of the accepted values.
func (g Gender) Valid() bool {
	switch g {
	case GenderUnset, GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// Valid reports whether a is one of the accepted values.
func (a ActivityLevel) Valid() bool {
	switch a {
	case ActivitySedentary, ActivityLight, ActivityModerate, ActivityActive, ActivityVeryActive:
		return true
	}
	return false
}

// Valid reports whether d is one of the accepted values.
func (d DietaryPreference) Valid() bool {
	switch d {
	case DietOmnivore, DietVegetarian, DietVegan, DietKeto, DietPaleo:
		return true
	}
	return false
}
