package domain

import (
	"fmt"
	"regexp"
)

var (
	emailRegex   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	worldIDRegex = regexp.MustCompile(`^[a-z0-9\-]{1,64}$`)
)

// ValidateEmail checks if an email address is valid.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateWorldID checks a world identifier.
func ValidateWorldID(worldID string) error {
	if !worldIDRegex.MatchString(worldID) {
		return fmt.Errorf("invalid world id: %s", worldID)
	}
	return nil
}

// ValidatePositiveAmount checks that a resource amount is positive.
func ValidatePositiveAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", amount)
	}
	return nil
}

// ValidateEventName checks a scheduler event label.
func ValidateEventName(name string) error {
	if name == "" {
		return fmt.Errorf("event name is required")
	}
	if len(name) > 128 {
		return fmt.Errorf("event name too long: %d characters", len(name))
	}
	return nil
}
