package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidEmail(t *testing.T) {
	require.True(t, validEmail("ana@example.com"))
	require.False(t, validEmail("ana@localhost"))
	require.False(t, validEmail("Ana <ana@example.com>"))
	require.False(t, validEmail("ana"))
}

func TestValidateRegistrationAcceptsCompleteForm(t *testing.T) {
	fields := validateRegistration(RegisterRequest{
		Username:        "ana",
		Email:           "ana@example.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	})
	require.Empty(t, fields)
}

func TestValidateProfileUpdate(t *testing.T) {
	age := -1
	gender := Gender("unknown")
	level := ActivityLevel("couch")
	diet := DietKeto
	fields := validateProfileUpdate(ProfileUpdate{
		Email: strPtr("nope"),
		Profile: &PreferencesUpdate{
			Age:               &age,
			Gender:            &gender,
			ActivityLevel:     &level,
			DietaryPreference: &diet,
		},
	})
	require.Equal(t, "Email is invalid", fields["email"])
	require.Contains(t, fields, "profile.age")
	require.Contains(t, fields, "profile.gender")
	require.Contains(t, fields, "profile.activity_level")
	require.NotContains(t, fields, "profile.dietary_preference")

	require.Empty(t, validateProfileUpdate(ProfileUpdate{Email: strPtr("")}))
}
