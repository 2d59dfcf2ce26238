package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the self-describing payload carried by a session
// bearer token.
type SessionClaims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	ChapterID *int64 `json:"chapter_id,omitempty"`
	Purpose   string `json:"purpose"`
	jwt.RegisteredClaims
}

// DeviceClaims asserts only user identity. The purpose claim keeps a
// device token from ever verifying as a session.
type DeviceClaims struct {
	UserID  string `json:"user_id"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Purpose claims keep the two credential types from verifying as one
// another.
const (
	sessionPurpose = "session"
	devicePurpose  = "device"
)

var errWrongPurpose = errors.New("token purpose mismatch")

// NewSessionToken mints a signed session credential.
func NewSessionToken(secret, issuer string, ttl time.Duration, claims SessionClaims) (string, error) {
	now := time.Now().UTC()
	claims.Purpose = sessionPurpose
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseSessionToken verifies signature and expiry and returns the
// session claims.
func ParseSessionToken(secret, tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Purpose != sessionPurpose {
		return nil, errWrongPurpose
	}
	return claims, nil
}

// NewDeviceToken mints the long-lived remember-device credential.
func NewDeviceToken(secret, issuer string, ttl time.Duration, userID string) (string, error) {
	now := time.Now().UTC()
	claims := DeviceClaims{
		UserID:  userID,
		Purpose: devicePurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseDeviceToken verifies a remember-device credential and returns
// the asserted user id.
func ParseDeviceToken(secret, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &DeviceClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*DeviceClaims)
	if !ok || !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}
	if claims.Purpose != devicePurpose {
		return "", errWrongPurpose
	}
	return claims.UserID, nil
}
