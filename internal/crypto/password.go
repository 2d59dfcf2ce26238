package crypto

import "golang.org/x/crypto/bcrypt"

// DefaultCost is used when the configured bcrypt cost is out of range.
const DefaultCost = 10

// HashPassword derives a bcrypt hash from the plaintext password.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a stored bcrypt hash against a candidate
// password in constant time.
func CheckPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
