package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess = "access"
	tokenTypeReset  = "password_reset"
	tokenTypeVerify = "verify"
)

const (
	defaultAccessTTL = 8 * 24 * time.Hour
	defaultResetTTL  = 48 * time.Hour
)

// Claims are the JWT claims minted by the Issuer. TokenType keeps access
// tokens, reset tokens and verification tokens from being swapped for one
// another even though they share a signing secret.
type Claims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies bearer credentials and one-time tokens. All state
// lives in the signed payload plus the server secret; nothing is stored.
type Issuer struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
	resetTTL  time.Duration
	now       func() time.Time
}

// IssuerOption configures Issuer behavior.
type IssuerOption func(*Issuer)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.accessTTL = ttl
		}
	}
}

// WithResetTTL overrides the one-time token lifetime.
func WithResetTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.resetTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewIssuer constructs an Issuer over the process-wide signing secret.
func NewIssuer(secret, issuerName string, opts ...IssuerOption) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	iss := &Issuer{
		secret:    []byte(secret),
		issuer:    issuerName,
		accessTTL: defaultAccessTTL,
		resetTTL:  defaultResetTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(iss)
	}
	return iss, nil
}

// AccessTTL returns the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// IssueAccessToken signs a bearer credential for the given user.
func (i *Issuer) IssueAccessToken(userID string) (string, time.Time, error) {
	return i.sign(userID, tokenTypeAccess, i.accessTTL)
}

// VerifyAccessToken checks signature, shape and expiry and returns the subject.
// It deliberately does not consult user state; that is the Resolver's job.
func (i *Issuer) VerifyAccessToken(token string) (string, error) {
	return i.verify(token, tokenTypeAccess)
}

// IssuePasswordResetToken signs a one-time token bound to an email address.
func (i *Issuer) IssuePasswordResetToken(email string) (string, time.Time, error) {
	return i.sign(email, tokenTypeReset, i.resetTTL)
}

// VerifyPasswordResetToken returns the email a reset token was issued for.
func (i *Issuer) VerifyPasswordResetToken(token string) (string, error) {
	return i.verify(token, tokenTypeReset)
}

// IssueVerificationToken signs a one-time email-verification token.
func (i *Issuer) IssueVerificationToken(userID string) (string, time.Time, error) {
	return i.sign(userID, tokenTypeVerify, i.resetTTL)
}

// VerifyVerificationToken returns the user a verification token was issued for.
func (i *Issuer) VerifyVerificationToken(token string) (string, error) {
	return i.verify(token, tokenTypeVerify)
}

func (i *Issuer) sign(subject, tokenType string, ttl time.Duration) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("%w: ttl must be greater than zero", ErrInvalidInput)
	}
	now := i.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (i *Issuer) verify(token, wantType string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidCredential
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidCredential
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return i.now() }))
	if err != nil {
		return "", ErrInvalidCredential
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidCredential
	}
	if claims.TokenType != wantType {
		return "", ErrInvalidCredential
	}
	if i.issuer != "" && claims.Issuer != i.issuer {
		return "", ErrInvalidCredential
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", ErrInvalidCredential
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return "", ErrInvalidCredential
	}
	return subject, nil
}
