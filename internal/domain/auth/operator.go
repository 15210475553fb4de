// Package auth identifies the operator behind an API key.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/go-faster/errors"
)

// ErrUnauthorized is returned for a missing, unknown or revoked API key.
var ErrUnauthorized = errors.New("unauthorized")

// Operator is a cashier allowed to use the POS.
type Operator struct {
	ID      string
	Name    string
	KeyHash string
	Roles   []string
}

// Repository provides lookup of active operators by API key hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*Operator, error)
}

// HashKey returns the hex HMAC-SHA256 of key under pepper, as stored in the
// operators table.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticator resolves API keys to operators.
type Authenticator struct {
	operators Repository
	pepper    []byte
}

// NewAuthenticator creates an Authenticator with the given repository and
// HMAC pepper.
func NewAuthenticator(operators Repository, pepper []byte) *Authenticator {
	return &Authenticator{operators: operators, pepper: pepper}
}

// Authenticate hashes key, looks the hash up and compares it in constant
// time with the stored one.
func (a *Authenticator) Authenticate(ctx context.Context, key string) (*Operator, error) {
	if key == "" {
		return nil, ErrUnauthorized
	}
	hash := HashKey(a.pepper, key)

	op, err := a.operators.FindByHash(ctx, hash)
	if err != nil {
		return nil, ErrUnauthorized
	}

	stored, err := hex.DecodeString(op.KeyHash)
	if err != nil {
		return nil, ErrUnauthorized
	}
	computed, _ := hex.DecodeString(hash)
	if subtle.ConstantTimeCompare(computed, stored) != 1 {
		return nil, ErrUnauthorized
	}
	return op, nil
}

type operatorKey struct{}

// WithOperator returns a copy of ctx carrying op.
func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, operatorKey{}, op)
}

// FromContext returns the operator stored by WithOperator.
func FromContext(ctx context.Context) (*Operator, bool) {
	op, ok := ctx.Value(operatorKey{}).(*Operator)
	return op, ok && op != nil
}
