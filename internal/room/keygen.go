package room

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

const (
	keyAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	keyGroupLength = 4
	keyGroups      = 3
)

var keyPattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

var ErrKeySpaceExhausted = errors.New("could not find a free access key")

// ValidKey reports whether s looks like XXXX-XXXX-XXXX
func ValidKey(s string) bool {
	return keyPattern.MatchString(s)
}

// NormalizeKey upper-cases and trims user input before validation
func NormalizeKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// RandomKey draws a key from crypto/rand
func RandomKey() (string, error) {
	var b strings.Builder
	b.Grow(keyGroups*keyGroupLength + keyGroups - 1)

	base := big.NewInt(int64(len(keyAlphabet)))
	for g := 0; g < keyGroups; g++ {
		if g > 0 {
			b.WriteByte('-')
		}
		for i := 0; i < keyGroupLength; i++ {
			n, err := rand.Int(rand.Reader, base)
			if err != nil {
				return "", fmt.Errorf("failed to read random: %w", err)
			}
			b.WriteByte(keyAlphabet[n.Int64()])
		}
	}
	return b.String(), nil
}

type keyChecker interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// KeyGenerator hands out access keys that no stored room uses
type KeyGenerator struct {
	store       keyChecker
	maxAttempts int
	random      func() (string, error)
}

func NewKeyGenerator(store keyChecker) *KeyGenerator {
	return &KeyGenerator{
		store:       store,
		maxAttempts: 10,
		random:      RandomKey,
	}
}

// Generate re-draws on collision. The store's unique constraint still
// guards the insert against a concurrent create.
func (g *KeyGenerator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		key, err := g.random()
		if err != nil {
			return "", err
		}

		exists, err := g.store.Exists(ctx, key)
		if err != nil {
			return "", fmt.Errorf("failed to check key: %w", err)
		}
		if !exists {
			return key, nil
		}
	}
	return "", ErrKeySpaceExhausted
}
