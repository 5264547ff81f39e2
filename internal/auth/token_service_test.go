package auth

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"pgregory.net/rapid"
)

// fakeClock is a manually advanced Clock safe for concurrent use
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const testSecret = "test-signing-secret-key-32-chars"

// Test configuration for property tests
func newTestTokenService(clock Clock) *TokenService {
	svc, err := NewTokenService(TokenServiceConfig{
		Secret: testSecret,
		Issuer: "test-issuer",
	}, clock)
	if err != nil {
		panic(err)
	}
	return svc
}

func TestNewTokenService_RequiresSecret(t *testing.T) {
	_, err := NewTokenService(TokenServiceConfig{}, nil)
	if !errors.Is(err, ErrMissingSecret) {
		t.Errorf("expected ErrMissingSecret, got %v", err)
	}

	svc, err := NewTokenService(TokenServiceConfig{Secret: "s"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.Expiry() != DefaultTokenExpiry {
		t.Errorf("expected fixed expiry %v, got %v", DefaultTokenExpiry, svc.Expiry())
	}
}

// Property: tokens expire exactly one expiry period after issuance
func TestPropertyTokenExpiry(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		clock := newFakeClock()
		svc := newTestTokenService(clock)
		accountID := uuid.New()

		token, err := svc.Issue(accountID, "hash")
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}

		elapsed := time.Duration(rapid.Int64Range(0, int64(48*time.Hour/time.Second)).Draw(t, "elapsedSeconds")) * time.Second
		clock.Advance(elapsed)

		claims, err := svc.Verify(token)
		if elapsed < DefaultTokenExpiry {
			if err != nil {
				t.Fatalf("token should be valid after %v, got %v", elapsed, err)
			}
			if claims.ExpiresAt.Sub(claims.IssuedAt.Time) != DefaultTokenExpiry {
				t.Errorf("exp-iat = %v, want %v", claims.ExpiresAt.Sub(claims.IssuedAt.Time), DefaultTokenExpiry)
			}
		} else if !errors.Is(err, ErrTokenExpired) {
			t.Fatalf("token should be expired after %v, got %v", elapsed, err)
		}
	})
}

// Property: the same account and password hash always produce the same fingerprint,
// and a different hash produces a different one
func TestPropertyFingerprintStability(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		clock := newFakeClock()
		svc := newTestTokenService(clock)
		accountID := uuid.New()
		hash := rapid.StringMatching(`\$2a\$04\$[./A-Za-z0-9]{53}`).Draw(t, "hash")
		otherHash := rapid.StringMatching(`\$2a\$04\$[./A-Za-z0-9]{53}`).Draw(t, "otherHash")

		first, err := svc.Issue(accountID, hash)
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		clock.Advance(time.Second)
		second, err := svc.Issue(accountID, hash)
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}

		c1, err := svc.Verify(first)
		if err != nil {
			t.Fatalf("Verify(first) error = %v", err)
		}
		c2, err := svc.Verify(second)
		if err != nil {
			t.Fatalf("Verify(second) error = %v", err)
		}

		if c1.Fingerprint != c2.Fingerprint {
			t.Errorf("fingerprints differ for the same hash: %s vs %s", c1.Fingerprint, c2.Fingerprint)
		}
		if c1.Fingerprint != Fingerprint(hash) {
			t.Errorf("embedded fingerprint %s does not match Fingerprint(hash) %s", c1.Fingerprint, Fingerprint(hash))
		}
		if len(c1.Fingerprint) != 16 {
			t.Errorf("fingerprint should be 16 hex digits, got %q", c1.Fingerprint)
		}
		if otherHash != hash && Fingerprint(otherHash) == c1.Fingerprint {
			t.Errorf("different hashes produced the same fingerprint")
		}
	})
}

func TestTokenService_ClaimsStructure(t *testing.T) {
	clock := newFakeClock()
	svc := newTestTokenService(clock)
	accountID := uuid.New()

	token, err := svc.Issue(accountID, "hash")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Fatalf("token should have 3 parts, got %d", len(parts))
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, &Claims{})
	if err != nil {
		t.Fatalf("ParseUnverified() error = %v", err)
	}
	if parsed.Method.Alg() != "HS256" {
		t.Errorf("expected HS256, got %s", parsed.Method.Alg())
	}

	claims := parsed.Claims.(*Claims)
	id, err := claims.AccountID()
	if err != nil || id != accountID {
		t.Errorf("AccountID() = %v, %v; want %v", id, err, accountID)
	}
	if claims.Issuer != "test-issuer" {
		t.Errorf("issuer = %q", claims.Issuer)
	}
	if !claims.IssuedAt.Time.Equal(clock.Now()) {
		t.Errorf("iat = %v, want %v", claims.IssuedAt.Time, clock.Now())
	}
}

func TestTokenService_VerifyRejectsMalformed(t *testing.T) {
	clock := newFakeClock()
	svc := newTestTokenService(clock)

	valid, err := svc.Issue(uuid.New(), "hash")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	otherSecret, _ := NewTokenService(TokenServiceConfig{Secret: "another-secret", Issuer: "test-issuer"}, clock)
	forged, _ := otherSecret.Issue(uuid.New(), "hash")

	otherIssuer, _ := NewTokenService(TokenServiceConfig{Secret: testSecret, Issuer: "someone-else"}, clock)
	wrongIssuer, _ := otherIssuer.Issue(uuid.New(), "hash")

	noneToken, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Fingerprint: "0000000000000000",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    "test-issuer",
			IssuedAt:  jwt.NewNumericDate(clock.Now()),
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	badSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Fingerprint: "0000000000000000",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-uuid",
			Issuer:    "test-issuer",
			IssuedAt:  jwt.NewNumericDate(clock.Now()),
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Fingerprint: "0000000000000000",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  uuid.NewString(),
			Issuer:   "test-issuer",
			IssuedAt: jwt.NewNumericDate(clock.Now()),
		},
	}).SignedString([]byte(testSecret))

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"tampered", valid[:strings.LastIndex(valid, ".")] + forged[strings.LastIndex(forged, "."):]},
		{"wrong secret", forged},
		{"wrong issuer", wrongIssuer},
		{"none algorithm", noneToken},
		{"bad subject", badSubject},
		{"missing expiry", noExpiry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Verify(tt.token); !errors.Is(err, ErrTokenMalformed) {
				t.Errorf("expected ErrTokenMalformed, got %v", err)
			}
		})
	}
}
