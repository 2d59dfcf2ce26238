package crypto

import (
	"errors"
	"unicode"
)

// ValidateRegistrationPassword enforces the legacy registration floor.
func ValidateRegistrationPassword(password string) error {
	if len(password) < 6 {
		return errors.New("Password must be at least 6 characters")
	}
	return nil
}

// ValidateResetPassword enforces the stricter policy applied when a
// password is chosen through the reset flow.
func ValidateResetPassword(password string) error {
	if len(password) < 8 {
		return errors.New("Password must be at least 8 characters")
	}
	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsSpace(r):
			return errors.New("Password must not contain whitespace")
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	if !lower || !upper || !digit || !symbol {
		return errors.New("Password must contain lowercase, uppercase, number and special character")
	}
	return nil
}
