package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("fetch profile: %w", Wrap(CodeNetwork, "remote unreachable", cause))

	require.True(t, IsCode(err, CodeNetwork))
	require.Equal(t, CodeNetwork, CodeOf(err))
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "remote unreachable: dial tcp: refused")
}

func TestDetailsTravelWithError(t *testing.T) {
	err := Validation("form is invalid", map[string]string{"email": "Enter a valid email"})
	require.Equal(t, "Enter a valid email", FieldsOf(err)["email"])
	require.Nil(t, WarningsOf(err))

	err = WithWarnings(CodeGenerationFailed, "failed to generate meal plan", nil, []string{"fitness data unavailable"})
	require.Equal(t, []string{"fitness data unavailable"}, WarningsOf(err))
	require.Equal(t, "failed to generate meal plan", err.Error())
}

func TestPlainErrorsHaveNoCode(t *testing.T) {
	err := errors.New("boom")
	require.False(t, IsCode(err, CodeNotFound))
	require.Empty(t, CodeOf(err))
	require.Nil(t, FieldsOf(err))
}
