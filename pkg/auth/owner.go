// Package auth provides bearer-token authentication for the contractd API.
//
// Callers are identified by an owner ID derived from their token, so the
// token itself never has to be stored or logged.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	// ErrEmptyToken is returned when an empty token is provided
	ErrEmptyToken = errors.New("token cannot be empty")
)

// DeriveOwnerID derives a stable owner ID from an API token using SHA256 hashing.
//
// The owner ID is computed as SHA256(token) and returned as a hex-encoded string.
// The mapping is deterministic and one-way: the same token always produces the
// same owner ID and the token cannot be recovered from it.
//
// Example:
//
//	ownerID, err := auth.DeriveOwnerID("ctr_live_abc123")
//	if err != nil {
//	    return fmt.Errorf("derive owner ID: %w", err)
//	}
//
// Returns ErrEmptyToken if token is empty.
func DeriveOwnerID(token string) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}

	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:]), nil
}
