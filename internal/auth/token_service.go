package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenExpiry is the fixed lifetime of a bearer token
const DefaultTokenExpiry = 24 * time.Hour

// ErrMissingSecret is returned when a TokenService is built without a signing secret
var ErrMissingSecret = errors.New("token signing secret is required")

// Claims represents the JWT claims structure.
// Fingerprint ties the token to the password hash it was issued against.
type Claims struct {
	Fingerprint string `json:"fp"`
	jwt.RegisteredClaims
}

// AccountID parses the account ID from the Subject claim
func (c *Claims) AccountID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// TokenServiceConfig holds configuration for TokenService.
// Token lifetime is not configurable; every token lives DefaultTokenExpiry.
type TokenServiceConfig struct {
	Secret string
	Issuer string
}

// TokenService handles JWT token generation and validation
type TokenService struct {
	secret []byte
	expiry time.Duration
	issuer string
	clock  Clock
}

// NewTokenService creates a new TokenService instance. A nil clock uses the system clock.
func NewTokenService(cfg TokenServiceConfig, clock Clock) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &TokenService{
		secret: []byte(cfg.Secret),
		expiry: DefaultTokenExpiry,
		issuer: cfg.Issuer,
		clock:  clock,
	}, nil
}

// Fingerprint returns a short, fast digest of a password hash
func Fingerprint(passwordHash string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(passwordHash))
}

// Issue signs a token for the account, bound to its current password hash
func (s *TokenService) Issue(accountID uuid.UUID, passwordHash string) (string, error) {
	now := s.clock.Now()

	claims := Claims{
		Fingerprint: Fingerprint(passwordHash),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   accountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks signature and expiry and returns the claims.
// It does not know whether the fingerprint is still current.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.clock.Now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}

	if _, err := claims.AccountID(); err != nil || claims.Fingerprint == "" {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// Expiry returns the token lifetime
func (s *TokenService) Expiry() time.Duration {
	return s.expiry
}
