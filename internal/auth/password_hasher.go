package auth

import (
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is the minimum accepted password length
	MinPasswordLength = 6
	// MaxPasswordLength is the maximum accepted password length
	MaxPasswordLength = 24
	// DefaultBcryptCost is the cost factor used when none is configured
	DefaultBcryptCost = bcrypt.DefaultCost
)

// PasswordHasher hashes and verifies passwords.
// Verify reports false for a mismatch and for a malformed stored hash.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// BcryptHasher implements PasswordHasher with bcrypt
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a BcryptHasher. Costs outside bcrypt's range fall back to DefaultBcryptCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash creates a salted bcrypt hash of the password
func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify compares a password with its bcrypt hash in constant time
func (h *BcryptHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Cost returns the configured bcrypt cost
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// GetBcryptCost extracts the cost factor from a bcrypt hash
func GetBcryptCost(hash string) (int, error) {
	return bcrypt.Cost([]byte(hash))
}

// PasswordValidationError represents a specific password validation failure
type PasswordValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// PasswordPolicy checks new passwords for length and character classes
type PasswordPolicy struct{}

// NewPasswordPolicy creates a new PasswordPolicy instance
func NewPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{}
}

// Validate returns every rule the password breaks (empty if the password is acceptable)
func (p *PasswordPolicy) Validate(password string) []PasswordValidationError {
	var errors []PasswordValidationError

	length := len([]rune(password))
	if length < MinPasswordLength || length > MaxPasswordLength {
		errors = append(errors, PasswordValidationError{
			Field:   "password",
			Message: "Password must be between 6 and 24 characters long",
		})
	}

	var hasLetter, hasNumber bool
	for _, char := range password {
		switch {
		case unicode.IsLetter(char):
			hasLetter = true
		case unicode.IsDigit(char):
			hasNumber = true
		}
	}

	if !hasLetter {
		errors = append(errors, PasswordValidationError{
			Field:   "password",
			Message: "Password must contain at least one letter",
		})
	}

	if !hasNumber {
		errors = append(errors, PasswordValidationError{
			Field:   "password",
			Message: "Password must contain at least one number",
		})
	}

	return errors
}

// IsValid returns true if the password meets all requirements
func (p *PasswordPolicy) IsValid(password string) bool {
	return len(p.Validate(password)) == 0
}
