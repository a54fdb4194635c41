// Package auth is the pluggable credential back-end fronting the
// Controller's session login (spec.md §4.9). A single config-file-backed
// implementation is shipped for local/dev use; production back-ends are
// out of scope (spec.md §1) and need only satisfy Checker.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Checker verifies a username/password pair.
type Checker interface {
	Check(ctx context.Context, username, password string) (bool, error)
}

// StaticChecker checks credentials against a JSON file of
// username → bcrypt hash, loaded once at construction. Adapted from the
// teacher's JSON-file-backed secret provider: same load-into-memory-map
// shape, but values are bcrypt hashes checked rather than plaintext
// secrets returned.
type StaticChecker struct {
	mu    sync.RWMutex
	users map[string]string
}

// NewStaticChecker loads username → bcrypt-hash pairs from the JSON file
// at path.
func NewStaticChecker(path string) (*StaticChecker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("auth: reading %s: %w", path, err)
	}

	users := make(map[string]string)
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("auth: parsing %s: %w", path, err)
	}

	return &StaticChecker{users: users}, nil
}

// Check reports whether password matches the stored hash for username.
// An unknown username is not an error; it simply never matches, so a
// caller cannot distinguish "no such user" from "wrong password".
func (c *StaticChecker) Check(ctx context.Context, username, password string) (bool, error) {
	c.mu.RLock()
	hash, ok := c.users[username]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if err == bcrypt.ErrMismatchedHashAndPassword {
		return false, nil
	}
	return false, fmt.Errorf("auth: comparing password for %s: %w", username, err)
}

// HashPassword is a convenience for operators populating the credentials
// file; it is not consumed by the Controller itself.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hash), nil
}
