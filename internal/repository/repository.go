package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/model"
)

// Store implements the credential, token, activity and permission
// stores on a shared pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var (
	_ model.UserStore       = (*Store)(nil)
	_ model.ChapterStore    = (*Store)(nil)
	_ model.TokenStore      = (*Store)(nil)
	_ model.ActivityStore   = (*Store)(nil)
	_ model.AlertStore      = (*Store)(nil)
	_ model.PermissionStore = (*Store)(nil)
)

const userColumns = `id, email, password_hash, first_name, last_name, role, chapter_id,
	is_active, is_2fa_enabled, email_verified, bio, location, phone, specialties, interests,
	created_at, updated_at, last_login_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&user.ChapterID,
		&user.IsActive,
		&user.Is2FAEnabled,
		&user.EmailVerified,
		&user.Bio,
		&user.Location,
		&user.Phone,
		&user.Specialties,
		&user.Interests,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, err
	}
	return user, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *Store) FindByProviderID(ctx context.Context, provider, providerUserID string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users u
		JOIN provider_identities p ON p.user_id = u.id
		WHERE p.provider = $1 AND p.provider_user_id = $2
	`, provider, providerUserID)
	return scanUser(row)
}

func (s *Store) Create(ctx context.Context, user model.User) (model.User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, role, chapter_id,
			is_active, is_2fa_enabled, email_verified, bio, location, phone, specialties, interests,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Role,
		user.ChapterID, user.IsActive, user.Is2FAEnabled, user.EmailVerified,
		user.Bio, user.Location, user.Phone, user.Specialties, user.Interests,
		user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return model.User{}, model.ErrConflict
		}
		return model.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (s *Store) LinkProvider(ctx context.Context, userID uuid.UUID, provider, providerUserID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO provider_identities (user_id, provider, provider_user_id, last_used_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, provider)
		DO UPDATE SET provider_user_id = EXCLUDED.provider_user_id, last_used_at = now()
	`, userID, provider, providerUserID)
	return err
}

func (s *Store) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2
	`, passwordHash, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateProfile(ctx context.Context, userID uuid.UUID, patch model.UserPatch) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE users SET
			first_name = COALESCE($2, first_name),
			last_name = COALESCE($3, last_name),
			bio = COALESCE($4, bio),
			location = COALESCE($5, location),
			phone = COALESCE($6, phone),
			specialties = COALESCE($7, specialties),
			interests = COALESCE($8, interests),
			updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		userID, patch.FirstName, patch.LastName, patch.Bio, patch.Location, patch.Phone,
		patch.Specialties, patch.Interests)
	return scanUser(row)
}

func (s *Store) TouchLastLogin(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET last_login_at = now() WHERE id = $1`, userID)
	return err
}

func (s *Store) SetTwoFactorEnabled(ctx context.Context, userID uuid.UUID, enabled bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET is_2fa_enabled = $1, updated_at = now() WHERE id = $2
	`, enabled, userID)
	return err
}

func (s *Store) MarkEmailVerified(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET email_verified = true, updated_at = now() WHERE id = $1
	`, userID)
	return err
}

func (s *Store) GetChapter(ctx context.Context, id int64) (model.Chapter, error) {
	var chapter model.Chapter
	row := s.pool.QueryRow(ctx, `SELECT id, name, location, is_active FROM chapters WHERE id = $1`, id)
	if err := row.Scan(&chapter.ID, &chapter.Name, &chapter.Location, &chapter.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Chapter{}, model.ErrNotFound
		}
		return model.Chapter{}, err
	}
	return chapter, nil
}

func (s *Store) ListActiveChapters(ctx context.Context) ([]model.Chapter, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, location, is_active FROM chapters WHERE is_active = true ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chapters := make([]model.Chapter, 0)
	for rows.Next() {
		var chapter model.Chapter
		if err := rows.Scan(&chapter.ID, &chapter.Name, &chapter.Location, &chapter.IsActive); err != nil {
			return nil, err
		}
		chapters = append(chapters, chapter)
	}
	return chapters, rows.Err()
}

func (s *Store) RolePermissions(ctx context.Context, role string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT permission_key FROM role_permissions WHERE role = $1 ORDER BY permission_key
	`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (s *Store) AllPermissions(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key FROM permissions ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func scanStrings(rows pgx.Rows) ([]string, error) {
	values := make([]string, 0)
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, rows.Err()
}
