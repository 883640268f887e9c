package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinLength is the shortest password a registered user may choose
	MinLength = 6
	// MaxLength is bcrypt's input limit in bytes
	MaxLength = 72
)

// Check reports whether pass fits the length bounds
func Check(pass string) error {
	if len(pass) < MinLength {
		return fmt.Errorf("password must be at least %d characters long", MinLength)
	}
	if len(pass) > MaxLength {
		return fmt.Errorf("password must be no more than %d bytes long", MaxLength)
	}
	return nil
}

func Hash(pass string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify compares pass against a stored hash. Guests have no hash and
// never verify.
func Verify(pass, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass)) == nil
}
