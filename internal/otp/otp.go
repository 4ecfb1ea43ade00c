// Package otp keeps short-lived one-time login codes. Codes are stored as
// bcrypt hashes and are consumed by the first successful verification.
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// MaxAttempts is how many wrong guesses burn a code.
const MaxAttempts = 5

const (
	codeMin  = 100000
	codeSpan = 900000
)

// Store saves and checks codes by key, typically a mobile number.
type Store interface {
	// Save replaces any code pending under key.
	Save(ctx context.Context, key, code string, ttl time.Duration) error
	// Verify reports whether code matches the pending code for key and
	// consumes it on success. Unknown, expired and burned keys report false.
	Verify(ctx context.Context, key, code string) (bool, error)
}

// Generate returns a uniformly random six digit code in [100000, 999999].
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}

// hasher wraps bcrypt with a configurable cost so tests can run at MinCost.
type hasher struct {
	cost int
}

func (h hasher) hash(code string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(code), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash code: %w", err)
	}
	return string(b), nil
}

func (h hasher) matches(hash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}

type Option func(*hasher)

// WithHashCost overrides bcrypt.DefaultCost.
func WithHashCost(cost int) Option {
	return func(h *hasher) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			h.cost = cost
		}
	}
}

func newHasher(opts []Option) hasher {
	h := hasher{cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(&h)
	}
	return h
}
