package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/crypto"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/model"
)

// ErrInvalidToken is returned when a token is unknown, expired or
// already consumed. Callers see one failure mode by design.
var ErrInvalidToken = errors.New("invalid or expired token")

// OTPStore holds outstanding OTP hashes. Implementations must keep
// multiple codes per user and consume the newest match exactly once.
type OTPStore interface {
	SaveOTP(ctx context.Context, userID uuid.UUID, codeHash string, expiresAt time.Time) error
	// ConsumeOTP walks unexpired hashes newest-first and deletes the
	// first one match accepts. It reports whether a code was consumed.
	ConsumeOTP(ctx context.Context, userID uuid.UUID, match func(hash string) bool) (bool, error)
}

// Options carries the token lifetimes and hashing cost.
type Options struct {
	OTPTTL     time.Duration
	ResetTTL   time.Duration
	VerifyTTL  time.Duration
	BcryptCost int
}

// Registry issues and consumes the short-lived artifacts of the auth
// flows. Plaintext values are returned to the caller once and never
// persisted.
type Registry struct {
	store model.TokenStore
	otp   OTPStore
	opts  Options
}

// New builds a Registry. When otp is nil the Postgres token store
// backs OTP codes as well.
func New(store model.TokenStore, otp OTPStore, opts Options) *Registry {
	if otp == nil {
		otp = &pgOTPStore{store: store}
	}
	return &Registry{store: store, otp: otp, opts: opts}
}

// IssueOTP stores a new salted code hash without invalidating earlier
// codes and returns the plaintext for delivery.
func (r *Registry) IssueOTP(ctx context.Context, userID uuid.UUID) (string, time.Time, error) {
	code, err := crypto.NewOTPCode()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate otp: %w", err)
	}
	hash, err := crypto.HashPassword(code, r.opts.BcryptCost)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to hash otp: %w", err)
	}
	expiresAt := time.Now().UTC().Add(r.opts.OTPTTL)
	if err := r.otp.SaveOTP(ctx, userID, hash, expiresAt); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to store otp: %w", err)
	}
	return code, expiresAt, nil
}

// ConsumeOTP deletes the newest matching unexpired code. A second call
// with the same code fails.
func (r *Registry) ConsumeOTP(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	return r.otp.ConsumeOTP(ctx, userID, func(hash string) bool {
		return crypto.CheckPassword(hash, code) == nil
	})
}

// IssueResetToken stores a hashed single-use password-reset token.
func (r *Registry) IssueResetToken(ctx context.Context, userID uuid.UUID) (string, time.Time, error) {
	token, err := crypto.NewToken()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate reset token: %w", err)
	}
	expiresAt := time.Now().UTC().Add(r.opts.ResetTTL)
	record := model.ResetToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: crypto.HashToken(token),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.CreateResetToken(ctx, record); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to store reset token: %w", err)
	}
	return token, expiresAt, nil
}

// VerifyResetToken checks a token without consuming it.
func (r *Registry) VerifyResetToken(ctx context.Context, token string) (model.ResetToken, error) {
	record, err := r.store.FindResetToken(ctx, crypto.HashToken(token))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.ResetToken{}, ErrInvalidToken
		}
		return model.ResetToken{}, err
	}
	if record.Used || time.Now().UTC().After(record.ExpiresAt) {
		return model.ResetToken{}, ErrInvalidToken
	}
	return record, nil
}

// ConsumeResetToken returns the owning token row exactly once.
func (r *Registry) ConsumeResetToken(ctx context.Context, token string) (model.ResetToken, error) {
	record, err := r.store.ConsumeResetToken(ctx, crypto.HashToken(token), time.Now().UTC())
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.ResetToken{}, ErrInvalidToken
		}
		return model.ResetToken{}, err
	}
	return record, nil
}

// IssueVerificationToken stores a hashed email-verification token
// bound to the address at time of issue.
func (r *Registry) IssueVerificationToken(ctx context.Context, userID uuid.UUID, email string) (string, time.Time, error) {
	token, err := crypto.NewToken()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate verification token: %w", err)
	}
	expiresAt := time.Now().UTC().Add(r.opts.VerifyTTL)
	record := model.VerificationToken{
		ID:        uuid.New(),
		UserID:    userID,
		Email:     email,
		TokenHash: crypto.HashToken(token),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.CreateVerificationToken(ctx, record); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to store verification token: %w", err)
	}
	return token, expiresAt, nil
}

// VerifyVerificationToken checks a token without consuming it.
func (r *Registry) VerifyVerificationToken(ctx context.Context, token string) (model.VerificationToken, error) {
	record, err := r.store.FindVerificationToken(ctx, crypto.HashToken(token))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.VerificationToken{}, ErrInvalidToken
		}
		return model.VerificationToken{}, err
	}
	if record.Used || time.Now().UTC().After(record.ExpiresAt) {
		return model.VerificationToken{}, ErrInvalidToken
	}
	return record, nil
}

// ConsumeVerificationToken marks the token used and verified.
func (r *Registry) ConsumeVerificationToken(ctx context.Context, token string) (model.VerificationToken, error) {
	record, err := r.store.ConsumeVerificationToken(ctx, crypto.HashToken(token), time.Now().UTC())
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.VerificationToken{}, ErrInvalidToken
		}
		return model.VerificationToken{}, err
	}
	return record, nil
}

// pgOTPStore adapts the relational token store to OTPStore.
type pgOTPStore struct {
	store model.TokenStore
}

func (s *pgOTPStore) SaveOTP(ctx context.Context, userID uuid.UUID, codeHash string, expiresAt time.Time) error {
	return s.store.CreateOTP(ctx, model.OTPCode{
		ID:        uuid.New(),
		UserID:    userID,
		CodeHash:  codeHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	})
}

func (s *pgOTPStore) ConsumeOTP(ctx context.Context, userID uuid.UUID, match func(hash string) bool) (bool, error) {
	candidates, err := s.store.OTPCandidates(ctx, userID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	for _, candidate := range candidates {
		if !match(candidate.CodeHash) {
			continue
		}
		if err := s.store.DeleteOTP(ctx, candidate.ID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				// a parallel consume won the row
				continue
			}
			return false, err
		}
		return true, nil
	}
	return false, nil
}
