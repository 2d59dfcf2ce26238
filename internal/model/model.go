package model

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by stores when no row matches.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint is violated.
	ErrConflict = errors.New("already exists")
)

// Roles a user can hold. Admins receive the full permission catalog.
const (
	RoleUser    = "user"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// ValidRole reports whether role is one of the enumerated values.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}

// Supported federated identity providers.
const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
)

type User struct {
	ID            uuid.UUID
	Email         string
	PasswordHash  *string
	FirstName     string
	LastName      string
	Role          string
	ChapterID     *int64
	IsActive      bool
	Is2FAEnabled  bool
	EmailVerified bool

	Bio         *string
	Location    *string
	Phone       *string
	Specialties json.RawMessage
	Interests   json.RawMessage

	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt *time.Time
}

// UserPatch carries profile fields to update; nil means leave as is.
type UserPatch struct {
	FirstName   *string
	LastName    *string
	Bio         *string
	Location    *string
	Phone       *string
	Specialties json.RawMessage
	Interests   json.RawMessage
}

type Chapter struct {
	ID       int64
	Name     string
	Location string
	IsActive bool
}

type ProviderIdentity struct {
	UserID         uuid.UUID
	Provider       string
	ProviderUserID string
	LastUsedAt     time.Time
}

type OTPCode struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	CodeHash  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type ResetToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

type VerificationToken struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Email      string
	TokenHash  string
	ExpiresAt  time.Time
	Used       bool
	Verified   bool
	VerifiedAt *time.Time
	CreatedAt  time.Time
}

// Activity event kinds. The enumeration is open: stores accept any
// string, these are the kinds the core itself writes.
const (
	EventLogin                 = "login"
	EventFailedLogin           = "failed_login"
	EventLogout                = "logout"
	EventLogin2FA              = "login_2fa"
	EventRegister              = "register"
	EventPasswordResetRequest  = "password_reset_request"
	EventPasswordReset         = "password_reset"
	EventEmailVerified         = "email_verified"
	EventVerificationEmailSent = "verification_email_sent"
)

// ActivityEvent is a single immutable audit record.
type ActivityEvent struct {
	ID            uuid.UUID
	UserID        *uuid.UUID
	Kind          string
	IP            string
	UserAgent     string
	Device        string
	Browser       string
	OS            string
	Location      string
	Success       bool
	FailureReason *string
	Metadata      json.RawMessage
	CreatedAt     time.Time
}

// Alert severities.
const (
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Alert kinds the detector emits.
const (
	AlertMultipleIPs        = "multiple_ips"
	AlertFailedAttempts     = "failed_attempts"
	AlertSuspiciousLocation = "suspicious_location"
)

type Alert struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Kind         string
	Description  string
	Severity     string
	ActivityData json.RawMessage
	Resolved     bool
	ResolvedBy   *uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HistoryQuery filters an activity history read.
type HistoryQuery struct {
	Limit  int
	Offset int
	Kind   string
	Since  *time.Time
	Until  *time.Time
}
