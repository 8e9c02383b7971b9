package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wishliste/donum/internal/apperrors"
)

func TestValidateAndNormalizeDisplayName(t *testing.T) {
	name, err := ValidateAndNormalizeDisplayName("  Анна  ")
	require.NoError(t, err)
	assert.Equal(t, "Анна", name)

	_, err = ValidateAndNormalizeDisplayName(" \t ")
	assert.ErrorIs(t, err, apperrors.ErrDisplayNameRequired)

	_, err = ValidateAndNormalizeDisplayName(strings.Repeat("я", MaxDisplayNameLength))
	assert.NoError(t, err, "length is counted in runes")

	_, err = ValidateAndNormalizeDisplayName(strings.Repeat("a", MaxDisplayNameLength+1))
	assert.ErrorIs(t, err, apperrors.ErrDisplayNameTooLong)
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount(" 400.50 ")
	require.NoError(t, err)
	assert.Equal(t, "400.5", d.String())

	for _, in := range []string{"", "abc", "0", "-1", "0.001"} {
		_, err := ParseAmount(in)
		assert.ErrorIs(t, err, apperrors.ErrInvalidAmount, in)
		assert.ErrorIs(t, err, apperrors.ErrValidation, in)
	}
}

func TestParseChannelKey(t *testing.T) {
	id, isID, err := ParseChannelKey("42")
	require.NoError(t, err)
	assert.True(t, isID)
	assert.Equal(t, int64(42), id)

	_, isID, err = ParseChannelKey("Zk3_x-9Q")
	require.NoError(t, err)
	assert.False(t, isID)

	for _, in := range []string{"", "0", "-3", "has space", "slash/ed", strings.Repeat("a", MaxShareTokenLength+1)} {
		_, _, err := ParseChannelKey(in)
		assert.ErrorIs(t, err, apperrors.ErrValidation, in)
	}
}
