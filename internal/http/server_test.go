package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/activity"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/authflow"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/config"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/logger"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/model"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/oauth"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/permissions"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/schema"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/tokens"
)

var testOTPPattern = regexp.MustCompile(`\b\d{6}\b`)

// memBackend is an in-memory stand-in for the Postgres store covering
// every store interface the handlers reach.
type memBackend struct {
	mu     sync.Mutex
	users  map[uuid.UUID]model.User
	links  map[string]uuid.UUID
	otps   []model.OTPCode
	resets map[string]model.ResetToken
	verifs map[string]model.VerificationToken
	events []model.ActivityEvent
	alerts map[uuid.UUID]model.Alert
	perms  map[string][]string
}

func newMemBackend() *memBackend {
	return &memBackend{
		users:  map[uuid.UUID]model.User{},
		links:  map[string]uuid.UUID{},
		resets: map[string]model.ResetToken{},
		verifs: map[string]model.VerificationToken{},
		alerts: map[uuid.UUID]model.Alert{},
		perms: map[string][]string{
			model.RoleUser: {"courses.view", "forums.post"},
		},
	}
}

func (m *memBackend) FindByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, model.ErrNotFound
}

func (m *memBackend) FindByID(_ context.Context, id uuid.UUID) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return u, nil
}

func (m *memBackend) FindByProviderID(_ context.Context, provider, providerUserID string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.links[provider+"|"+providerUserID]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return m.users[id], nil
}

func (m *memBackend) Create(_ context.Context, user model.User) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, u := range m.users {
		if u.Email == user.Email {
			return model.User{}, model.ErrConflict
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = time.Now().UTC()
	m.users[user.ID] = user
	return user, nil
}

func (m *memBackend) LinkProvider(_ context.Context, userID uuid.UUID, provider, providerUserID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[provider+"|"+providerUserID] = userID
	return nil
}

func (m *memBackend) UpdatePassword(_ context.Context, userID uuid.UUID, passwordHash string) error {
	return m.patchUser(userID, func(u *model.User) { u.PasswordHash = &passwordHash })
}

func (m *memBackend) UpdateProfile(_ context.Context, userID uuid.UUID, _ model.UserPatch) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return u, nil
}

func (m *memBackend) TouchLastLogin(_ context.Context, userID uuid.UUID) error {
	now := time.Now().UTC()
	return m.patchUser(userID, func(u *model.User) { u.LastLoginAt = &now })
}

func (m *memBackend) SetTwoFactorEnabled(_ context.Context, userID uuid.UUID, enabled bool) error {
	return m.patchUser(userID, func(u *model.User) { u.Is2FAEnabled = enabled })
}

func (m *memBackend) MarkEmailVerified(_ context.Context, userID uuid.UUID) error {
	return m.patchUser(userID, func(u *model.User) { u.EmailVerified = true })
}

func (m *memBackend) patchUser(userID uuid.UUID, apply func(*model.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return model.ErrNotFound
	}
	apply(&u)
	m.users[userID] = u
	return nil
}

func (m *memBackend) GetChapter(_ context.Context, id int64) (model.Chapter, error) {
	if id == 1 {
		return model.Chapter{ID: 1, Name: "Addis Ababa", IsActive: true}, nil
	}
	return model.Chapter{}, model.ErrNotFound
}

func (m *memBackend) ListActiveChapters(_ context.Context) ([]model.Chapter, error) {
	return []model.Chapter{{ID: 1, Name: "Addis Ababa", Location: "Addis Ababa", IsActive: true}}, nil
}

func (m *memBackend) CreateOTP(_ context.Context, otp model.OTPCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.otps = append(m.otps, otp)
	return nil
}

func (m *memBackend) OTPCandidates(_ context.Context, userID uuid.UUID, now time.Time) ([]model.OTPCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.OTPCode
	for _, otp := range m.otps {
		if otp.UserID == userID && otp.ExpiresAt.After(now) {
			out = append(out, otp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memBackend) DeleteOTP(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, otp := range m.otps {
		if otp.ID == id {
			m.otps = append(m.otps[:i], m.otps[i+1:]...)
			return nil
		}
	}
	return model.ErrNotFound
}

func (m *memBackend) CreateResetToken(_ context.Context, token model.ResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[token.TokenHash] = token
	return nil
}

func (m *memBackend) FindResetToken(_ context.Context, tokenHash string) (model.ResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.resets[tokenHash]
	if !ok {
		return model.ResetToken{}, model.ErrNotFound
	}
	return t, nil
}

func (m *memBackend) ConsumeResetToken(_ context.Context, tokenHash string, now time.Time) (model.ResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.resets[tokenHash]
	if !ok || t.Used || !t.ExpiresAt.After(now) {
		return model.ResetToken{}, model.ErrNotFound
	}
	t.Used = true
	m.resets[tokenHash] = t
	return t, nil
}

func (m *memBackend) CreateVerificationToken(_ context.Context, token model.VerificationToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifs[token.TokenHash] = token
	return nil
}

func (m *memBackend) FindVerificationToken(_ context.Context, tokenHash string) (model.VerificationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.verifs[tokenHash]
	if !ok {
		return model.VerificationToken{}, model.ErrNotFound
	}
	return t, nil
}

func (m *memBackend) ConsumeVerificationToken(_ context.Context, tokenHash string, now time.Time) (model.VerificationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.verifs[tokenHash]
	if !ok || t.Used || !t.ExpiresAt.After(now) {
		return model.VerificationToken{}, model.ErrNotFound
	}
	t.Used = true
	t.Verified = true
	m.verifs[tokenHash] = t
	return t, nil
}

func (m *memBackend) InsertEvent(_ context.Context, event model.ActivityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memBackend) HistoryFor(_ context.Context, userID uuid.UUID, query model.HistoryQuery) ([]model.ActivityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ActivityEvent
	for _, e := range m.events {
		if e.UserID == nil || *e.UserID != userID {
			continue
		}
		if query.Kind != "" && e.Kind != query.Kind {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memBackend) CountFailures(_ context.Context, ip string, userID *uuid.UUID, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Kind != model.EventFailedLogin || e.CreatedAt.Before(since) {
			continue
		}
		if ip != "" && e.IP != ip {
			continue
		}
		if userID != nil && (e.UserID == nil || *e.UserID != *userID) {
			continue
		}
		n++
	}
	return n, nil
}

func (m *memBackend) DistinctLoginIPs(_ context.Context, userID uuid.UUID, since time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	for _, e := range m.events {
		if e.Kind == model.EventLogin && e.Success && e.UserID != nil && *e.UserID == userID && !e.CreatedAt.Before(since) {
			seen[e.IP] = true
		}
	}
	out := make([]string, 0, len(seen))
	for ip := range seen {
		out = append(out, ip)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memBackend) LastLoginFromOtherIP(_ context.Context, userID uuid.UUID, currentIP string) (model.ActivityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if e.Kind == model.EventLogin && e.Success && e.UserID != nil && *e.UserID == userID && e.IP != currentIP {
			return e, nil
		}
	}
	return model.ActivityEvent{}, model.ErrNotFound
}

func (m *memBackend) FindOpenAlert(_ context.Context, userID uuid.UUID, kind string, since time.Time) (model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.UserID == userID && a.Kind == kind && !a.Resolved && !a.CreatedAt.Before(since) {
			return a, nil
		}
	}
	return model.Alert{}, model.ErrNotFound
}

func (m *memBackend) InsertAlert(_ context.Context, alert model.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[alert.ID] = alert
	return nil
}

func (m *memBackend) UpdateAlert(_ context.Context, alert model.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[alert.ID] = alert
	return nil
}

func (m *memBackend) ListUnresolved(_ context.Context, userID uuid.UUID) ([]model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Alert
	for _, a := range m.alerts {
		if a.UserID == userID && !a.Resolved {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memBackend) ResolveAlert(_ context.Context, alertID, resolvedBy uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[alertID]
	if !ok {
		return model.ErrNotFound
	}
	a.Resolved = true
	a.ResolvedBy = &resolvedBy
	m.alerts[alertID] = a
	return nil
}

func (m *memBackend) RolePermissions(_ context.Context, role string) ([]string, error) {
	return m.perms[role], nil
}

func (m *memBackend) AllPermissions(_ context.Context) ([]string, error) {
	return []string{"courses.view", "courses.manage", "forums.post", "alerts.resolve"}, nil
}

type staticProbe map[schema.Capability]bool

func (p staticProbe) Has(_ context.Context, cap schema.Capability) bool { return p[cap] }

type captureMailer struct {
	mu   sync.Mutex
	html []string
}

func (c *captureMailer) Send(_ context.Context, _, _, html, _ string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.html = append(c.html, html)
	return "test-id", nil
}

func (c *captureMailer) lastCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return testOTPPattern.FindString(c.html[len(c.html)-1])
}

type stubProvider struct {
	info oauth.UserInfo
}

func (p *stubProvider) Name() string { return "google" }

func (p *stubProvider) Exchange(_ context.Context, code string) (oauth.UserInfo, error) {
	if code != "good-code" {
		return oauth.UserInfo{}, oauth.ErrExchangeFailed
	}
	return p.info, nil
}

type testEnv struct {
	srv     *httptest.Server
	backend *memBackend
	mailer  *captureMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.New(0)
	backend := newMemBackend()
	mailer := &captureMailer{}
	probe := staticProbe{schema.CapTwoFactor: true, schema.CapActivityLog: true}

	cfg := config.Config{
		Environment: "development",
		JWTSecret:   "handler-test-secret",
		SessionTTL:  time.Hour,
		DeviceTTL:   30 * 24 * time.Hour,
		BcryptCost:  4,
		FrontendURL: "http://localhost:3000",
	}

	registry := tokens.New(backend, nil, tokens.Options{
		OTPTTL:     10 * time.Minute,
		ResetTTL:   time.Hour,
		VerifyTTL:  24 * time.Hour,
		BcryptCost: 4,
	})
	recorder := activity.NewRecorder(backend, backend, probe, log)
	flows := authflow.New(backend, backend, registry, mailer, recorder, probe, authflow.Config{
		JWTSecret:   cfg.JWTSecret,
		Issuer:      "eoty",
		SessionTTL:  cfg.SessionTTL,
		DeviceTTL:   cfg.DeviceTTL,
		BcryptCost:  cfg.BcryptCost,
		FrontendURL: cfg.FrontendURL,
	}, log)
	resolver := permissions.NewResolver(backend, log)
	providers := map[string]oauth.Provider{
		model.ProviderGoogle: &stubProvider{info: oauth.UserInfo{ProviderID: "g-1", Email: "new@ex.com", GivenName: "New", Surname: "User"}},
	}

	server := NewServer(cfg, flows, recorder, resolver, backend, backend, providers, log)
	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, backend: backend, mailer: mailer}
}

type apiResponse struct {
	Status  int
	Success bool
	Message string
	Code    string
	Data    map[string]any
	Cookies []*http.Cookie
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) apiResponse {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if k == "Cookie" {
			req.Header.Add("Cookie", v)
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env struct {
		Success bool           `json:"success"`
		Message string         `json:"message"`
		Code    string         `json:"code"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return apiResponse{
		Status:  resp.StatusCode,
		Success: env.Success,
		Message: env.Message,
		Code:    env.Code,
		Data:    env.Data,
		Cookies: resp.Cookies(),
	}
}

func (e *testEnv) register(t *testing.T, email string) apiResponse {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/auth/register", map[string]string{
		"firstName": "Ana",
		"lastName":  "B",
		"email":     email,
		"password":  "secret1",
		"chapter":   "1",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.Status)
	return resp
}

// authenticate walks register → login → verify-2fa and returns the
// session token and the device cookie.
func (e *testEnv) authenticate(t *testing.T, email string) (string, *http.Cookie) {
	t.Helper()
	e.register(t, email)

	login := e.do(t, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": "secret1"}, nil)
	require.Equal(t, http.StatusOK, login.Status)
	require.Equal(t, true, login.Data["requires2FA"])

	verify := e.do(t, http.MethodPost, "/auth/verify-2fa", map[string]string{
		"userId": login.Data["userId"].(string),
		"code":   e.mailer.lastCode(),
	}, nil)
	require.Equal(t, http.StatusOK, verify.Status)

	var device *http.Cookie
	for _, c := range verify.Cookies {
		if c.Name == deviceCookieName {
			device = c
		}
	}
	require.NotNil(t, device)
	return verify.Data["token"].(string), device
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	resp := e.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, resp.Success)
}

func TestRegisterEndpoint(t *testing.T) {
	e := newTestEnv(t)

	resp := e.register(t, "ana@ex.com")
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Data["userId"])
	assert.Equal(t, true, resp.Data["requires2FA"])

	dup := e.do(t, http.MethodPost, "/auth/register", map[string]string{
		"firstName": "Ana", "lastName": "B", "email": "ANA@EX.COM", "password": "secret1", "chapter": "1",
	}, nil)
	assert.Equal(t, http.StatusConflict, dup.Status)
	assert.False(t, dup.Success)

	bad := e.do(t, http.MethodPost, "/auth/register", map[string]string{
		"firstName": "Ana", "lastName": "B", "email": "x@ex.com", "password": "short", "chapter": "1",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, bad.Status)
}

func TestLoginChallengeAndVerify(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, "ana@ex.com")

	login := e.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "Ana@Ex.com", "password": "secret1"}, nil)
	require.Equal(t, http.StatusOK, login.Status)
	assert.Equal(t, true, login.Data["requires2FA"])
	assert.Nil(t, login.Data["token"], "no session before the second factor")

	verify := e.do(t, http.MethodPost, "/auth/verify-2fa", map[string]string{
		"userId": login.Data["userId"].(string),
		"code":   e.mailer.lastCode(),
	}, nil)
	require.Equal(t, http.StatusOK, verify.Status)
	assert.NotEmpty(t, verify.Data["token"])

	var device *http.Cookie
	for _, c := range verify.Cookies {
		if c.Name == deviceCookieName {
			device = c
		}
	}
	require.NotNil(t, device, "remember_device cookie set after 2fa")
	assert.True(t, device.HttpOnly)
	assert.Equal(t, "/", device.Path)
	assert.Equal(t, http.SameSiteLaxMode, device.SameSite)
	assert.False(t, device.Secure, "secure only in production")
}

func TestLoginWithTrustedDeviceCookie(t *testing.T) {
	e := newTestEnv(t)
	_, device := e.authenticate(t, "ana@ex.com")

	login := e.do(t, http.MethodPost, "/auth/login",
		map[string]string{"email": "ana@ex.com", "password": "secret1"},
		map[string]string{"Cookie": device.Name + "=" + device.Value})
	require.Equal(t, http.StatusOK, login.Status)
	assert.Nil(t, login.Data["requires2FA"])
	assert.NotEmpty(t, login.Data["token"])
}

func TestLoginFailures(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, "ana@ex.com")

	wrong := e.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "ana@ex.com", "password": "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, wrong.Status)
	assert.Equal(t, "Invalid credentials", wrong.Message)

	unknown := e.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "ghost@ex.com", "password": "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, unknown.Status)
	assert.Equal(t, "Invalid credentials", unknown.Message)

	missing := e.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "", "password": ""}, nil)
	assert.Equal(t, http.StatusBadRequest, missing.Status)
}

func TestOAuthCallback(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/auth/google/callback", map[string]string{"code": "good-code"}, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, true, resp.Data["requires2FA"], "fresh federated users are challenged")

	bad := e.do(t, http.MethodPost, "/auth/google/callback", map[string]string{"code": "bad-code"}, nil)
	assert.Equal(t, http.StatusBadRequest, bad.Status)

	unconfigured := e.do(t, http.MethodPost, "/auth/facebook/callback", map[string]string{"code": "good-code"}, nil)
	assert.Equal(t, http.StatusBadRequest, unconfigured.Status)
}

func TestForgotAndResetPassword(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, "ana@ex.com")

	unknown := e.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "nobody@ex.com"}, nil)
	assert.Equal(t, http.StatusOK, unknown.Status)
	assert.Contains(t, unknown.Message, "If an account exists")
	assert.Empty(t, e.backend.resets)

	ok := e.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "ana@ex.com"}, nil)
	require.Equal(t, http.StatusOK, ok.Status)

	linkPattern := regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)
	match := linkPattern.FindStringSubmatch(e.mailer.html[len(e.mailer.html)-1])
	require.Len(t, match, 2)

	weak := e.do(t, http.MethodPost, "/auth/reset-password", map[string]string{"token": match[1], "password": "short1!"}, nil)
	assert.Equal(t, http.StatusBadRequest, weak.Status)
	assert.Equal(t, "Password must be at least 8 characters", weak.Message)

	reset := e.do(t, http.MethodPost, "/auth/reset-password", map[string]string{"token": match[1], "password": "Abcdef1!"}, nil)
	assert.Equal(t, http.StatusOK, reset.Status)

	again := e.do(t, http.MethodPost, "/auth/reset-password", map[string]string{"token": match[1], "password": "Abcdef1!"}, nil)
	assert.Equal(t, http.StatusBadRequest, again.Status, "reset tokens are single-use")

	old := e.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "ana@ex.com", "password": "secret1"}, nil)
	assert.Equal(t, http.StatusUnauthorized, old.Status)
}

func TestVerifyEmailEndpoint(t *testing.T) {
	e := newTestEnv(t)
	reg := e.register(t, "ana@ex.com")

	linkPattern := regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)
	match := linkPattern.FindStringSubmatch(e.mailer.html[len(e.mailer.html)-1])
	require.Len(t, match, 2)

	resp := e.do(t, http.MethodPost, "/auth/verify-email", map[string]string{"token": match[1]}, nil)
	assert.Equal(t, http.StatusOK, resp.Status)

	userID := uuid.MustParse(reg.Data["userId"].(string))
	user, err := e.backend.FindByID(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, user.EmailVerified)

	again := e.do(t, http.MethodPost, "/auth/verify-email", map[string]string{"token": match[1]}, nil)
	assert.Equal(t, http.StatusBadRequest, again.Status)
}

func TestResendVerificationEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, "ana@ex.com")

	resp := e.do(t, http.MethodPost, "/auth/resend-verification", map[string]string{"email": "ana@ex.com"}, nil)
	assert.Equal(t, http.StatusOK, resp.Status)

	missing := e.do(t, http.MethodPost, "/auth/resend-verification", map[string]string{"email": "ghost@ex.com"}, nil)
	assert.Equal(t, http.StatusNotFound, missing.Status)
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	e := newTestEnv(t)

	for _, path := range []string{"/auth/me", "/auth/permissions", "/auth/activity-logs", "/auth/alerts"} {
		resp := e.do(t, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.Status, path)
	}

	resp := e.do(t, http.MethodGet, "/auth/me", nil, map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
}

func TestDeviceCredentialIsNotABearerToken(t *testing.T) {
	e := newTestEnv(t)
	_, device := e.authenticate(t, "ana@ex.com")

	resp := e.do(t, http.MethodGet, "/auth/me", nil, map[string]string{"Authorization": "Bearer " + device.Value})
	assert.Equal(t, http.StatusUnauthorized, resp.Status, "remember_device credential must not open a session")
}

func TestMeAndPermissions(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.authenticate(t, "ana@ex.com")
	authz := map[string]string{"Authorization": "Bearer " + token}

	me := e.do(t, http.MethodGet, "/auth/me", nil, authz)
	require.Equal(t, http.StatusOK, me.Status)
	user := me.Data["user"].(map[string]any)
	assert.Equal(t, "ana@ex.com", user["email"])
	assert.Equal(t, "user", user["role"])

	perms := e.do(t, http.MethodGet, "/auth/permissions", nil, authz)
	require.Equal(t, http.StatusOK, perms.Status)
	assert.Equal(t, "user", perms.Data["role"])
	assert.ElementsMatch(t, []any{"courses.view", "forums.post"}, perms.Data["permissions"].([]any))
}

func TestActivityLogsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.authenticate(t, "ana@ex.com")

	resp := e.do(t, http.MethodGet, "/auth/activity-logs?kind=login_2fa", nil, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, resp.Status)
	logs := resp.Data["logs"].([]any)
	require.NotEmpty(t, logs)
	assert.Equal(t, "login_2fa", logs[0].(map[string]any)["kind"])
}

func TestAlertsEndpointAndAdminResolve(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.authenticate(t, "ana@ex.com")
	authz := map[string]string{"Authorization": "Bearer " + token}

	me := e.do(t, http.MethodGet, "/auth/me", nil, authz)
	userID := uuid.MustParse(me.Data["user"].(map[string]any)["id"].(string))

	alertID := uuid.New()
	require.NoError(t, e.backend.InsertAlert(context.Background(), model.Alert{
		ID: alertID, UserID: userID, Kind: model.AlertFailedAttempts,
		Description: "8 failed login attempts", Severity: model.SeverityHigh,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}))

	list := e.do(t, http.MethodGet, "/auth/alerts", nil, authz)
	require.Equal(t, http.StatusOK, list.Status)
	require.Len(t, list.Data["alerts"].([]any), 1)

	// Plain users cannot resolve.
	denied := e.do(t, http.MethodPost, fmt.Sprintf("/auth/alerts/%s/resolve", alertID), nil, authz)
	assert.Equal(t, http.StatusForbidden, denied.Status)

	// Promote and sign in again so the session carries the admin role.
	require.NoError(t, e.backend.patchUser(userID, func(u *model.User) {
		u.Role = model.RoleAdmin
		u.Is2FAEnabled = false
	}))
	login := e.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "ana@ex.com", "password": "secret1"}, nil)
	require.Equal(t, http.StatusOK, login.Status)
	adminAuthz := map[string]string{"Authorization": "Bearer " + login.Data["token"].(string)}

	resolved := e.do(t, http.MethodPost, fmt.Sprintf("/auth/alerts/%s/resolve", alertID), nil, adminAuthz)
	assert.Equal(t, http.StatusOK, resolved.Status)

	empty := e.do(t, http.MethodGet, "/auth/alerts", nil, adminAuthz)
	assert.Empty(t, empty.Data["alerts"])
}

func TestChaptersEndpoint(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/auth/chapters", nil, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	chapters := resp.Data["chapters"].([]any)
	require.Len(t, chapters, 1)
	assert.Equal(t, "Addis Ababa", chapters[0].(map[string]any)["name"])
}

func TestRecovererWritesEnvelope(t *testing.T) {
	s := &Server{log: logger.New(0)}
	handler := s.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/register", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var env struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, "Something went wrong", env.Message)
}

func TestLogoutEndpoint(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.authenticate(t, "ana@ex.com")

	resp := e.do(t, http.MethodPost, "/auth/logout", nil, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, resp.Status)
}
