// Package auth authenticates machine clients allowed to submit orders.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

// ScopeSubmitOrder permits placing orders through the checkout submit endpoint.
const ScopeSubmitOrder = "submit_order"

var (
	// ErrKeyNotFound is returned by a Repository when no active key matches.
	ErrKeyNotFound = errors.New("api key not found")
	// ErrUnauthorized is returned for a missing, unknown or under-scoped key.
	ErrUnauthorized = errors.New("unauthorized")
)

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key grants scope.
func (i *APIKeyInfo) HasScope(scope string) bool {
	return slices.Contains(i.Scopes, scope)
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// HashKey returns the hex HMAC-SHA256 of key under pepper. Only hashes are stored.
func HashKey(pepper, key string) string {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticator checks raw API keys against a Repository.
type Authenticator struct {
	keys   Repository
	pepper string
}

// NewAuthenticator returns an Authenticator hashing keys with pepper.
func NewAuthenticator(keys Repository, pepper string) *Authenticator {
	return &Authenticator{keys: keys, pepper: pepper}
}

// Authenticate resolves key and requires it to carry scope. Every failure is
// reported as ErrUnauthorized; lookup failures other than a missing key are
// wrapped so callers can log them.
func (a *Authenticator) Authenticate(ctx context.Context, key, scope string) (*APIKeyInfo, error) {
	if key == "" {
		return nil, ErrUnauthorized
	}
	hash := HashKey(a.pepper, key)
	info, err := a.keys.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, errors.Wrap(ErrUnauthorized, err.Error())
	}
	if subtle.ConstantTimeCompare([]byte(hash), []byte(info.KeyHash)) != 1 {
		return nil, ErrUnauthorized
	}
	if !info.HasScope(scope) {
		return nil, errors.Wrapf(ErrUnauthorized, "key %s lacks scope %s", info.ID, scope)
	}
	return info, nil
}
