// Package identity verifies access tokens issued by the account service.
package identity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wishliste/donum/internal/apperrors"
	"github.com/wishliste/donum/internal/models"
	"github.com/wishliste/donum/pkg/validation"
)

// Claims are the access token claims. Subject carries the user id.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

type Option func(*Verifier)

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

func NewVerifier(secret, issuer string, opts ...Option) *Verifier {
	v := &Verifier{secret: []byte(secret), issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks an HS256 access token and returns its user.
func (v *Verifier) Verify(token string) (models.AuthenticatedUser, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.AuthenticatedUser{}, apperrors.ErrTokenInvalid
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return models.AuthenticatedUser{}, mapJWTError(err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return models.AuthenticatedUser{}, apperrors.ErrTokenInvalid.WithMetadata("field", "sub")
	}
	return models.AuthenticatedUser{UserID: userID, DisplayName: displayName(userID, claims.Name)}, nil
}

// Sign issues a token for userID. Used by the dev command and tests.
func (v *Verifier) Sign(userID int64, name string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name: name,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

func displayName(userID int64, name string) string {
	name = validation.NormalizeDisplayName(name)
	if name == "" {
		return fmt.Sprintf("user #%d", userID)
	}
	if utf8.RuneCountInString(name) > validation.MaxDisplayNameLength {
		name = string([]rune(name)[:validation.MaxDisplayNameLength])
	}
	return name
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.ErrTokenInvalid.WithMetadata("reason", "expired")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return apperrors.ErrTokenInvalid.WithMetadata("reason", "issuer")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return apperrors.ErrTokenInvalid.WithMetadata("reason", "signature")
	default:
		return apperrors.Wrap(apperrors.KindUnauthenticated, apperrors.CodeTokenInvalid, "invalid access token", err)
	}
}
