package validation

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/wishliste/donum/internal/apperrors"
)

const (
	// MaxDisplayNameLength is counted in runes.
	MaxDisplayNameLength = 100
	// MaxShareTokenLength matches the share_token column.
	MaxShareTokenLength = 64
	// AmountScale is the number of fractional digits amounts may carry.
	AmountScale = 2
)

// NormalizeDisplayName trims surrounding whitespace.
func NormalizeDisplayName(name string) string {
	return strings.TrimSpace(name)
}

// ValidateDisplayName checks that a display name is present and not too long
func ValidateDisplayName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.ErrDisplayNameRequired
	}
	if utf8.RuneCountInString(strings.TrimSpace(name)) > MaxDisplayNameLength {
		return apperrors.ErrDisplayNameTooLong.WithMetadata("max", strconv.Itoa(MaxDisplayNameLength))
	}
	return nil
}

// ValidateAndNormalizeDisplayName validates a display name and returns its normalized form
func ValidateAndNormalizeDisplayName(name string) (string, error) {
	if err := ValidateDisplayName(name); err != nil {
		return "", err
	}
	return NormalizeDisplayName(name), nil
}

// ParseAmount parses a positive decimal with at most two fractional digits.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, apperrors.Wrap(apperrors.KindValidation, apperrors.CodeInvalidAmount, "amount is not a number", err)
	}
	if !d.IsPositive() {
		return decimal.Zero, apperrors.New(apperrors.KindValidation, apperrors.CodeInvalidAmount, "amount must be positive")
	}
	if !d.Equal(d.Round(AmountScale)) {
		return decimal.Zero, apperrors.New(apperrors.KindValidation, apperrors.CodeInvalidAmount,
			fmt.Sprintf("amount must have at most %d decimal places", AmountScale))
	}
	return d, nil
}

// ParseChannelKey tells a numeric list id from a share token. It returns the
// id and true for a numeric key.
func ParseChannelKey(key string) (int64, bool, error) {
	if key == "" {
		return 0, false, apperrors.New(apperrors.KindValidation, apperrors.CodeBadRequest, "channel key is empty")
	}
	if id, err := strconv.ParseInt(key, 10, 64); err == nil {
		if id <= 0 {
			return 0, false, apperrors.New(apperrors.KindValidation, apperrors.CodeBadRequest, "list id must be positive")
		}
		return id, true, nil
	}
	if err := ValidateShareToken(key); err != nil {
		return 0, false, err
	}
	return 0, false, nil
}

// ValidateShareToken accepts URL-safe base64 alphabets up to the column size.
func ValidateShareToken(token string) error {
	if token == "" || len(token) > MaxShareTokenLength {
		return apperrors.New(apperrors.KindValidation, apperrors.CodeBadRequest,
			fmt.Sprintf("share token must be 1 to %d characters", MaxShareTokenLength))
	}
	for _, r := range token {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return apperrors.New(apperrors.KindValidation, apperrors.CodeBadRequest, "share token contains invalid characters")
		}
	}
	return nil
}
