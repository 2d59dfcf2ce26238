package authflow

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/model"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/schema"
)

type fakeUsers struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]model.User
	links map[string]uuid.UUID
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[uuid.UUID]model.User{}, links: map[string]uuid.UUID{}}
}

func linkKey(provider, providerUserID string) string {
	return provider + "|" + providerUserID
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, model.ErrNotFound
}

func (f *fakeUsers) FindByID(_ context.Context, id uuid.UUID) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) FindByProviderID(_ context.Context, provider, providerUserID string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.links[linkKey(provider, providerUserID)]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return f.byID[id], nil
}

func (f *fakeUsers) Create(_ context.Context, user model.User) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, u := range f.byID {
		if u.Email == user.Email {
			return model.User{}, model.ErrConflict
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = time.Now().UTC()
	f.byID[user.ID] = user
	return user, nil
}

func (f *fakeUsers) LinkProvider(_ context.Context, userID uuid.UUID, provider, providerUserID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[linkKey(provider, providerUserID)] = userID
	return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, userID uuid.UUID, passwordHash string) error {
	return f.patch(userID, func(u *model.User) { u.PasswordHash = &passwordHash })
}

func (f *fakeUsers) UpdateProfile(_ context.Context, userID uuid.UUID, patch model.UserPatch) (model.User, error) {
	err := f.patch(userID, func(u *model.User) {
		if patch.FirstName != nil {
			u.FirstName = *patch.FirstName
		}
		if patch.LastName != nil {
			u.LastName = *patch.LastName
		}
	})
	if err != nil {
		return model.User{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[userID], nil
}

func (f *fakeUsers) TouchLastLogin(_ context.Context, userID uuid.UUID) error {
	now := time.Now().UTC()
	return f.patch(userID, func(u *model.User) { u.LastLoginAt = &now })
}

func (f *fakeUsers) SetTwoFactorEnabled(_ context.Context, userID uuid.UUID, enabled bool) error {
	return f.patch(userID, func(u *model.User) { u.Is2FAEnabled = enabled })
}

func (f *fakeUsers) MarkEmailVerified(_ context.Context, userID uuid.UUID) error {
	return f.patch(userID, func(u *model.User) { u.EmailVerified = true })
}

func (f *fakeUsers) patch(userID uuid.UUID, apply func(*model.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return model.ErrNotFound
	}
	apply(&u)
	f.byID[userID] = u
	return nil
}

type fakeChapters struct {
	byID map[int64]model.Chapter
}

func (f *fakeChapters) GetChapter(_ context.Context, id int64) (model.Chapter, error) {
	c, ok := f.byID[id]
	if !ok {
		return model.Chapter{}, model.ErrNotFound
	}
	return c, nil
}

func (f *fakeChapters) ListActiveChapters(_ context.Context) ([]model.Chapter, error) {
	var out []model.Chapter
	for _, c := range f.byID {
		if c.IsActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeTokenStore struct {
	mu     sync.Mutex
	otps   []model.OTPCode
	resets map[string]model.ResetToken
	verifs map[string]model.VerificationToken
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{
		resets: map[string]model.ResetToken{},
		verifs: map[string]model.VerificationToken{},
	}
}

func (s *fakeTokenStore) CreateOTP(_ context.Context, otp model.OTPCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.otps = append(s.otps, otp)
	return nil
}

func (s *fakeTokenStore) OTPCandidates(_ context.Context, userID uuid.UUID, now time.Time) ([]model.OTPCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.OTPCode
	for _, otp := range s.otps {
		if otp.UserID == userID && otp.ExpiresAt.After(now) {
			out = append(out, otp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeTokenStore) DeleteOTP(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, otp := range s.otps {
		if otp.ID == id {
			s.otps = append(s.otps[:i], s.otps[i+1:]...)
			return nil
		}
	}
	return model.ErrNotFound
}

func (s *fakeTokenStore) CreateResetToken(_ context.Context, token model.ResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets[token.TokenHash] = token
	return nil
}

func (s *fakeTokenStore) FindResetToken(_ context.Context, tokenHash string) (model.ResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.resets[tokenHash]
	if !ok {
		return model.ResetToken{}, model.ErrNotFound
	}
	return t, nil
}

func (s *fakeTokenStore) ConsumeResetToken(_ context.Context, tokenHash string, now time.Time) (model.ResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.resets[tokenHash]
	if !ok || t.Used || !t.ExpiresAt.After(now) {
		return model.ResetToken{}, model.ErrNotFound
	}
	t.Used = true
	s.resets[tokenHash] = t
	return t, nil
}

func (s *fakeTokenStore) CreateVerificationToken(_ context.Context, token model.VerificationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifs[token.TokenHash] = token
	return nil
}

func (s *fakeTokenStore) FindVerificationToken(_ context.Context, tokenHash string) (model.VerificationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.verifs[tokenHash]
	if !ok {
		return model.VerificationToken{}, model.ErrNotFound
	}
	return t, nil
}

func (s *fakeTokenStore) ConsumeVerificationToken(_ context.Context, tokenHash string, now time.Time) (model.VerificationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.verifs[tokenHash]
	if !ok || t.Used || !t.ExpiresAt.After(now) {
		return model.VerificationToken{}, model.ErrNotFound
	}
	t.Used = true
	t.Verified = true
	s.verifs[tokenHash] = t
	return t, nil
}

func (s *fakeTokenStore) otpCount(userID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, otp := range s.otps {
		if otp.UserID == userID {
			n++
		}
	}
	return n
}

func (s *fakeTokenStore) resetCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.resets)
}

type sentMail struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail bool
}

func (f *fakeMailer) Send(_ context.Context, to, subject, html, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("relay down")
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, HTML: html, Text: text})
	return "fake-id", nil
}

func (f *fakeMailer) last() sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []model.ActivityEvent
}

func (f *fakeRecorder) Record(_ context.Context, event model.ActivityEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeRecorder) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Kind)
	}
	return out
}

type staticProbe map[schema.Capability]bool

func (p staticProbe) Has(_ context.Context, cap schema.Capability) bool { return p[cap] }
