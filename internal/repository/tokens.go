package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/model"
)

func (s *Store) CreateOTP(ctx context.Context, otp model.OTPCode) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO otp_codes (id, user_id, code_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, otp.ID, otp.UserID, otp.CodeHash, otp.ExpiresAt, otp.CreatedAt)
	return err
}

// OTPCandidates returns unexpired codes for the user, newest first.
func (s *Store) OTPCandidates(ctx context.Context, userID uuid.UUID, now time.Time) ([]model.OTPCode, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, code_hash, expires_at, created_at
		FROM otp_codes
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY created_at DESC
	`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	codes := make([]model.OTPCode, 0)
	for rows.Next() {
		var otp model.OTPCode
		if err := rows.Scan(&otp.ID, &otp.UserID, &otp.CodeHash, &otp.ExpiresAt, &otp.CreatedAt); err != nil {
			return nil, err
		}
		codes = append(codes, otp)
	}
	return codes, rows.Err()
}

func (s *Store) DeleteOTP(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM otp_codes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *Store) CreateResetToken(ctx context.Context, token model.ResetToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, token.ID, token.UserID, token.TokenHash, token.ExpiresAt, token.Used, token.CreatedAt)
	return err
}

func (s *Store) FindResetToken(ctx context.Context, tokenHash string) (model.ResetToken, error) {
	var token model.ResetToken
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, expires_at, used, created_at
		FROM password_reset_tokens
		WHERE token_hash = $1
	`, tokenHash)
	err := row.Scan(&token.ID, &token.UserID, &token.TokenHash, &token.ExpiresAt, &token.Used, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ResetToken{}, model.ErrNotFound
		}
		return model.ResetToken{}, err
	}
	return token, nil
}

// ConsumeResetToken flips the used flag exactly once; a second call
// for the same hash reports ErrNotFound.
func (s *Store) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time) (model.ResetToken, error) {
	var token model.ResetToken
	row := s.pool.QueryRow(ctx, `
		UPDATE password_reset_tokens
		SET used = true
		WHERE token_hash = $1 AND used = false AND expires_at > $2
		RETURNING id, user_id, token_hash, expires_at, used, created_at
	`, tokenHash, now)
	err := row.Scan(&token.ID, &token.UserID, &token.TokenHash, &token.ExpiresAt, &token.Used, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ResetToken{}, model.ErrNotFound
		}
		return model.ResetToken{}, err
	}
	return token, nil
}

func (s *Store) CreateVerificationToken(ctx context.Context, token model.VerificationToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO email_verification_tokens (id, user_id, email, token_hash, expires_at, used, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, token.ID, token.UserID, token.Email, token.TokenHash, token.ExpiresAt, token.Used, token.Verified, token.CreatedAt)
	return err
}

func (s *Store) FindVerificationToken(ctx context.Context, tokenHash string) (model.VerificationToken, error) {
	var token model.VerificationToken
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, email, token_hash, expires_at, used, verified, verified_at, created_at
		FROM email_verification_tokens
		WHERE token_hash = $1
	`, tokenHash)
	err := row.Scan(&token.ID, &token.UserID, &token.Email, &token.TokenHash, &token.ExpiresAt,
		&token.Used, &token.Verified, &token.VerifiedAt, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.VerificationToken{}, model.ErrNotFound
		}
		return model.VerificationToken{}, err
	}
	return token, nil
}

func (s *Store) ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (model.VerificationToken, error) {
	var token model.VerificationToken
	row := s.pool.QueryRow(ctx, `
		UPDATE email_verification_tokens
		SET used = true, verified = true, verified_at = $2
		WHERE token_hash = $1 AND used = false AND expires_at > $2
		RETURNING id, user_id, email, token_hash, expires_at, used, verified, verified_at, created_at
	`, tokenHash, now)
	err := row.Scan(&token.ID, &token.UserID, &token.Email, &token.TokenHash, &token.ExpiresAt,
		&token.Used, &token.Verified, &token.VerifiedAt, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.VerificationToken{}, model.ErrNotFound
		}
		return model.VerificationToken{}, err
	}
	return token, nil
}
