// Package auth provides the authentication collaborator of the hub: password and token
// primitives, JWT session tokens, the auth service with its auth-state event stream, and
// the role resolver that turns a platform role plus memberships into an effective role.
// See internal/session for the per-session state built on top of these primitives.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// SecretTokenLength is the length of the random part of generated tokens in bytes
	SecretTokenLength = 32

	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12

	// MinPasswordLength is the shortest accepted password
	MinPasswordLength = 8
)

// GenerateSecretToken creates a new random token with the given prefix.
// Returns the full token (to show once) and its SHA-256 digest (to store and look up).
func GenerateSecretToken(prefix string) (token string, digest string, err error) {
	randomBytes := make([]byte, SecretTokenLength)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	token = fmt.Sprintf("%s_%s", prefix, base64.RawURLEncoding.EncodeToString(randomBytes))
	return token, DigestToken(token), nil
}

// DigestToken returns the hex SHA-256 digest used to store lookup tokens
func DigestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateSetupToken creates the one-time first-run setup token.
// Returns the full token (printed once) and its bcrypt hash (stored).
func GenerateSetupToken() (token string, hash string, err error) {
	token, _, err = GenerateSecretToken("hubsetup")
	if err != nil {
		return "", "", err
	}
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(token), BcryptCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash setup token: %w", err)
	}
	return token, string(hashBytes), nil
}

// HashPassword hashes a password with bcrypt
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashBytes), nil
}

// CheckHash checks if a provided secret matches the stored bcrypt hash
func CheckHash(provided, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(provided)) == nil
}

// ExtractBearerToken extracts the token from an Authorization header
// Expected format: "Bearer eyJhbGciOi..."
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", errors.New("token is empty after Bearer prefix")
	}

	return token, nil
}
