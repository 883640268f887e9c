package user

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rx3lixir/echonet/pkg/password"
)

const maxUsernameLen = 28

func validateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if n := utf8.RuneCountInString(username); n > maxUsernameLen {
		return fmt.Errorf("username must be no more than %d characters long, got %d", maxUsernameLen, n)
	}
	return nil
}

func validateRegisterRequest(req *RegisterRequest) error {
	if err := validateUsername(req.Username); err != nil {
		return err
	}
	if req.Email != "" {
		if err := validateEmail(req.Email); err != nil {
			return fmt.Errorf("invalid email: %w", err)
		}
	}
	return password.Check(req.Password)
}

func validateEmail(email string) error {
	// Basic validation - at least has @ with text before and after, and a dot after @
	atIndex := strings.Index(email, "@")
	if atIndex <= 0 {
		return fmt.Errorf("must contain @ with text before it")
	}

	afterAt := email[atIndex+1:]
	if afterAt == "" || !strings.Contains(afterAt, ".") {
		return fmt.Errorf("must have a domain with a dot after @")
	}

	dotIndex := strings.LastIndex(afterAt, ".")
	if dotIndex == 0 || dotIndex == len(afterAt)-1 {
		return fmt.Errorf("invalid domain format")
	}

	return nil
}
