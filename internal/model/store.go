package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserStore is the credential-store surface the auth flows depend on.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id uuid.UUID) (User, error)
	FindByProviderID(ctx context.Context, provider, providerUserID string) (User, error)
	Create(ctx context.Context, user User) (User, error)
	LinkProvider(ctx context.Context, userID uuid.UUID, provider, providerUserID string) error
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
	UpdateProfile(ctx context.Context, userID uuid.UUID, patch UserPatch) (User, error)
	TouchLastLogin(ctx context.Context, userID uuid.UUID) error
	SetTwoFactorEnabled(ctx context.Context, userID uuid.UUID, enabled bool) error
	MarkEmailVerified(ctx context.Context, userID uuid.UUID) error
}

// ChapterStore exposes the chapters registration validates against.
type ChapterStore interface {
	GetChapter(ctx context.Context, id int64) (Chapter, error)
	ListActiveChapters(ctx context.Context) ([]Chapter, error)
}

// TokenStore persists single-use token rows (OTP, reset, verification).
type TokenStore interface {
	CreateOTP(ctx context.Context, otp OTPCode) error
	OTPCandidates(ctx context.Context, userID uuid.UUID, now time.Time) ([]OTPCode, error)
	DeleteOTP(ctx context.Context, id uuid.UUID) error

	CreateResetToken(ctx context.Context, token ResetToken) error
	FindResetToken(ctx context.Context, tokenHash string) (ResetToken, error)
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time) (ResetToken, error)

	CreateVerificationToken(ctx context.Context, token VerificationToken) error
	FindVerificationToken(ctx context.Context, tokenHash string) (VerificationToken, error)
	ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (VerificationToken, error)
}

// ActivityStore is the append-only event stream plus the read slices
// the anomaly rules need.
type ActivityStore interface {
	InsertEvent(ctx context.Context, event ActivityEvent) error
	HistoryFor(ctx context.Context, userID uuid.UUID, query HistoryQuery) ([]ActivityEvent, error)
	CountFailures(ctx context.Context, ip string, userID *uuid.UUID, since time.Time) (int, error)
	DistinctLoginIPs(ctx context.Context, userID uuid.UUID, since time.Time) ([]string, error)
	LastLoginFromOtherIP(ctx context.Context, userID uuid.UUID, currentIP string) (ActivityEvent, error)
}

// AlertStore holds derived anomaly alerts.
type AlertStore interface {
	FindOpenAlert(ctx context.Context, userID uuid.UUID, kind string, since time.Time) (Alert, error)
	InsertAlert(ctx context.Context, alert Alert) error
	UpdateAlert(ctx context.Context, alert Alert) error
	ListUnresolved(ctx context.Context, userID uuid.UUID) ([]Alert, error)
	ResolveAlert(ctx context.Context, alertID, resolvedBy uuid.UUID) error
}

// PermissionStore backs the permission resolver.
type PermissionStore interface {
	RolePermissions(ctx context.Context, role string) ([]string, error)
	AllPermissions(ctx context.Context) ([]string, error)
}
