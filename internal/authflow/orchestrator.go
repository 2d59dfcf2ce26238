// Package authflow sequences credential check, second-factor challenge
// and session issuance for every authentication entry point.
package authflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	authpkg "github.com/cherinet-woyesa/eoty-platform-sub006/internal/auth"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/crypto"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/logger"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/mail"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/metrics"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/model"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/oauth"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/schema"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/tokens"
)

// EventRecorder is the slice of the activity recorder the flows write
// through. Record never fails the caller.
type EventRecorder interface {
	Record(ctx context.Context, event model.ActivityEvent)
}

// CapabilityProbe reports which optional schema features exist.
type CapabilityProbe interface {
	Has(ctx context.Context, cap schema.Capability) bool
}

// Config holds the flow parameters read once at start-up.
type Config struct {
	JWTSecret   string
	Issuer      string
	SessionTTL  time.Duration
	DeviceTTL   time.Duration
	BcryptCost  int
	FrontendURL string
}

// RequestMeta carries the network facts of the incoming request.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// Orchestrator owns the authentication state machine. Every public
// method converts its failures to *Error and never leaks a partial
// session.
type Orchestrator struct {
	users    model.UserStore
	chapters model.ChapterStore
	registry *tokens.Registry
	mailer   mail.Dispatcher
	recorder EventRecorder
	probe    CapabilityProbe
	cfg      Config
	log      *logger.Logger
}

func New(users model.UserStore, chapters model.ChapterStore, registry *tokens.Registry, mailer mail.Dispatcher, recorder EventRecorder, probe CapabilityProbe, cfg Config, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		users:    users,
		chapters: chapters,
		registry: registry,
		mailer:   mailer,
		recorder: recorder,
		probe:    probe,
		cfg:      cfg,
		log:      log,
	}
}

type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	ChapterID int64
}

type RegisterResult struct {
	UserID      uuid.UUID
	Email       string
	Requires2FA bool
}

type LoginInput struct {
	Email       string
	Password    string
	DeviceToken string
}

// LoginResult is either a standing session (Token set) or an issued
// challenge (Requires2FA set); never both.
type LoginResult struct {
	Requires2FA bool
	UserID      uuid.UUID
	Email       string

	User        model.User
	Token       string
	DeviceToken string
}

// Register creates an email/password account bound to an active
// chapter, arms the second factor when the schema supports it, and
// sends a single verification mail carrying both the sign-in code and
// the verification link.
func (o *Orchestrator) Register(ctx context.Context, in RegisterInput, meta RequestMeta) (RegisterResult, error) {
	in.Email = foldEmail(in.Email)
	if in.FirstName == "" || in.LastName == "" || in.Email == "" || in.Password == "" {
		return RegisterResult{}, validation("First name, last name, email and password are required")
	}
	if !strings.Contains(in.Email, "@") {
		return RegisterResult{}, validation("A valid email address is required")
	}
	if err := crypto.ValidateRegistrationPassword(in.Password); err != nil {
		return RegisterResult{}, validation(err.Error())
	}
	if in.ChapterID == 0 {
		return RegisterResult{}, validation("Chapter is required")
	}

	chapter, err := o.chapters.GetChapter(ctx, in.ChapterID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return RegisterResult{}, validation("Chapter not found")
		}
		o.log.Error("chapter lookup failed", "error", err)
		return RegisterResult{}, internal("Something went wrong")
	}
	if !chapter.IsActive {
		return RegisterResult{}, validation("Chapter is not active")
	}

	hash, err := crypto.HashPassword(in.Password, o.cfg.BcryptCost)
	if err != nil {
		o.log.Error("password hashing failed", "error", err)
		return RegisterResult{}, internal("Something went wrong")
	}

	user, err := o.users.Create(ctx, model.User{
		ID:           uuid.New(),
		Email:        in.Email,
		PasswordHash: &hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         model.RoleUser,
		ChapterID:    &in.ChapterID,
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, model.ErrConflict) {
			return RegisterResult{}, conflict("Email is already in use")
		}
		o.log.Error("user creation failed", "error", err)
		return RegisterResult{}, internal("Something went wrong")
	}

	// Arming 2FA is best-effort: only when the column exists, and a
	// failure must not undo the registration.
	if o.probe.Has(ctx, schema.CapTwoFactor) {
		if err := o.users.SetTwoFactorEnabled(ctx, user.ID, true); err != nil {
			o.log.Warn("failed to enable 2fa at registration", "user_id", user.ID, "error", err)
		} else {
			user.Is2FAEnabled = true
		}
	}

	o.recorder.Record(ctx, model.ActivityEvent{
		UserID:    &user.ID,
		Kind:      model.EventRegister,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Success:   true,
	})

	o.sendRegistrationMail(ctx, user, meta)
	metrics.Challenges.WithLabelValues("register").Inc()

	return RegisterResult{UserID: user.ID, Email: user.Email, Requires2FA: true}, nil
}

// sendRegistrationMail issues the OTP and verification token and mails
// them together. None of it may fail the registration.
func (o *Orchestrator) sendRegistrationMail(ctx context.Context, user model.User, meta RequestMeta) {
	code, _, err := o.registry.IssueOTP(ctx, user.ID)
	if err != nil {
		o.log.Error("failed to issue registration otp", "user_id", user.ID, "error", err)
		return
	}
	token, _, err := o.registry.IssueVerificationToken(ctx, user.ID, user.Email)
	if err != nil {
		o.log.Error("failed to issue verification token", "user_id", user.ID, "error", err)
		return
	}

	msg := mail.VerificationMessage(user.FirstName, code, o.verificationLink(token))
	if _, err := o.mailer.Send(ctx, user.Email, msg.Subject, msg.HTML, msg.Text); err != nil {
		o.log.Error("failed to send verification mail", "user_id", user.ID, "error", err)
		return
	}

	o.recorder.Record(ctx, model.ActivityEvent{
		UserID:    &user.ID,
		Kind:      model.EventVerificationEmailSent,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Success:   true,
	})
}

// Login runs the password branch of the state machine.
func (o *Orchestrator) Login(ctx context.Context, in LoginInput, meta RequestMeta) (result LoginResult, err error) {
	defer o.boundary(ctx, meta, &err)

	if in.Email == "" || in.Password == "" {
		return LoginResult{}, validation("Email and password are required")
	}

	user, err := o.users.FindByEmail(ctx, foldEmail(in.Email))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			o.recordFailure(ctx, nil, "invalid_credentials", meta)
			return LoginResult{}, auth("Invalid credentials")
		}
		return LoginResult{}, err
	}
	if !user.IsActive {
		o.recordFailure(ctx, &user.ID, "deactivated", meta)
		return LoginResult{}, auth("This account has been deactivated")
	}
	if user.PasswordHash == nil {
		o.recordFailure(ctx, &user.ID, "no_password", meta)
		return LoginResult{}, &Error{
			Kind:    KindAuth,
			Code:    CodeNoPassword,
			Message: "This account signs in with a federated provider",
		}
	}
	if crypto.CheckPassword(*user.PasswordHash, in.Password) != nil {
		o.recordFailure(ctx, &user.ID, "invalid_credentials", meta)
		return LoginResult{}, auth("Invalid credentials")
	}

	if o.needsChallenge(ctx, user, in.DeviceToken) {
		return o.issueChallenge(ctx, user, "login")
	}
	return o.finalizeLogin(ctx, user, model.EventLogin, meta)
}

// Verify2FA consumes the newest outstanding code and completes the
// challenged login.
func (o *Orchestrator) Verify2FA(ctx context.Context, userID uuid.UUID, code string, meta RequestMeta) (result LoginResult, err error) {
	defer o.boundary(ctx, meta, &err)

	if code == "" {
		return LoginResult{}, validation("Verification code is required")
	}

	user, err := o.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return LoginResult{}, notFound("User not found")
		}
		return LoginResult{}, err
	}

	ok, err := o.registry.ConsumeOTP(ctx, user.ID, code)
	if err != nil {
		return LoginResult{}, err
	}
	if !ok {
		o.recordFailure(ctx, &user.ID, "invalid_otp", meta)
		return LoginResult{}, validation("Invalid or expired verification code")
	}

	return o.finalizeLogin(ctx, user, model.EventLogin2FA, meta)
}

// FederatedLogin enters the state machine at CredChecked with an
// identity already vouched for by a provider.
func (o *Orchestrator) FederatedLogin(ctx context.Context, provider string, info oauth.UserInfo, deviceToken string, meta RequestMeta) (result LoginResult, err error) {
	defer o.boundary(ctx, meta, &err)

	user, err := o.users.FindByProviderID(ctx, provider, info.ProviderID)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrNotFound):
		user, err = o.adoptFederatedIdentity(ctx, provider, info, meta)
		if err != nil {
			return LoginResult{}, err
		}
	default:
		return LoginResult{}, err
	}

	if !user.IsActive {
		o.recordFailure(ctx, &user.ID, "deactivated", meta)
		return LoginResult{}, auth("This account has been deactivated")
	}

	// Bump last_used_at on every federated sign-in.
	if err := o.users.LinkProvider(ctx, user.ID, provider, info.ProviderID); err != nil {
		o.log.Warn("failed to refresh provider link", "user_id", user.ID, "provider", provider, "error", err)
	}

	if o.needsChallenge(ctx, user, deviceToken) {
		return o.issueChallenge(ctx, user, "federated")
	}
	return o.finalizeLogin(ctx, user, model.EventLogin, meta)
}

// adoptFederatedIdentity binds the provider id to an existing account
// matched by email, or creates a fresh chapterless user with the
// second factor armed.
func (o *Orchestrator) adoptFederatedIdentity(ctx context.Context, provider string, info oauth.UserInfo, meta RequestMeta) (model.User, error) {
	if info.Email != "" {
		user, err := o.users.FindByEmail(ctx, foldEmail(info.Email))
		if err == nil {
			if err := o.users.LinkProvider(ctx, user.ID, provider, info.ProviderID); err != nil {
				return model.User{}, err
			}
			return user, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return model.User{}, err
		}
	}
	if info.Email == "" {
		return model.User{}, validation("The provider did not share an email address")
	}

	user, err := o.users.Create(ctx, model.User{
		ID:           uuid.New(),
		Email:        foldEmail(info.Email),
		FirstName:    info.GivenName,
		LastName:     info.Surname,
		Role:         model.RoleUser,
		IsActive:     true,
		Is2FAEnabled: true,
	})
	if err != nil {
		return model.User{}, err
	}
	if err := o.users.LinkProvider(ctx, user.ID, provider, info.ProviderID); err != nil {
		return model.User{}, err
	}

	o.recorder.Record(ctx, model.ActivityEvent{
		UserID:    &user.ID,
		Kind:      model.EventRegister,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Success:   true,
	})

	msg := mail.WelcomeMessage(user.FirstName)
	if _, err := o.mailer.Send(ctx, user.Email, msg.Subject, msg.HTML, msg.Text); err != nil {
		o.log.Warn("failed to send welcome mail", "user_id", user.ID, "error", err)
	}
	return user, nil
}

// Logout records the event; sessions are stateless so there is nothing
// to revoke server-side.
func (o *Orchestrator) Logout(ctx context.Context, userID uuid.UUID, meta RequestMeta) {
	o.recorder.Record(ctx, model.ActivityEvent{
		UserID:    &userID,
		Kind:      model.EventLogout,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Success:   true,
	})
}

// ForgotPassword issues a reset token and mails the link. The answer
// is deliberately identical for unknown addresses.
func (o *Orchestrator) ForgotPassword(ctx context.Context, email string, meta RequestMeta) error {
	email = foldEmail(email)
	if email == "" {
		return validation("Email is required")
	}

	user, err := o.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			reason := "unknown_email"
			o.recorder.Record(ctx, model.ActivityEvent{
				Kind:          model.EventPasswordResetRequest,
				IP:            meta.IP,
				UserAgent:     meta.UserAgent,
				Success:       false,
				FailureReason: &reason,
			})
			return nil
		}
		return err
	}
	if !user.IsActive {
		reason := "deactivated"
		o.recorder.Record(ctx, model.ActivityEvent{
			UserID:        &user.ID,
			Kind:          model.EventPasswordResetRequest,
			IP:            meta.IP,
			UserAgent:     meta.UserAgent,
			Success:       false,
			FailureReason: &reason,
		})
		return permission("This account has been deactivated")
	}

	token, _, err := o.registry.IssueResetToken(ctx, user.ID)
	if err != nil {
		o.log.Error("failed to issue reset token", "user_id", user.ID, "error", err)
		return internal("Something went wrong")
	}

	msg := mail.PasswordResetMessage(user.FirstName, o.cfg.FrontendURL+"/reset-password?token="+token)
	if _, err := o.mailer.Send(ctx, user.Email, msg.Subject, msg.HTML, msg.Text); err != nil {
		o.log.Error("failed to send reset mail", "user_id", user.ID, "error", err)
	}

	o.recorder.Record(ctx, model.ActivityEvent{
		UserID:    &user.ID,
		Kind:      model.EventPasswordResetRequest,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Success:   true,
	})
	return nil
}

// ResetPassword consumes a reset token and installs the new password.
func (o *Orchestrator) ResetPassword(ctx context.Context, token, newPassword string, meta RequestMeta) error {
	if token == "" || newPassword == "" {
		return validation("Token and password are required")
	}
	if err := crypto.ValidateResetPassword(newPassword); err != nil {
		return validation(err.Error())
	}

	record, err := o.registry.ConsumeResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, tokens.ErrInvalidToken) {
			return validation("Invalid or expired token")
		}
		return err
	}

	hash, err := crypto.HashPassword(newPassword, o.cfg.BcryptCost)
	if err != nil {
		o.log.Error("password hashing failed", "error", err)
		return internal("Something went wrong")
	}
	if err := o.users.UpdatePassword(ctx, record.UserID, hash); err != nil {
		return err
	}

	o.recorder.Record(ctx, model.ActivityEvent{
		UserID:    &record.UserID,
		Kind:      model.EventPasswordReset,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Success:   true,
	})
	return nil
}

// VerifyEmail consumes a verification token and marks the address
// confirmed.
func (o *Orchestrator) VerifyEmail(ctx context.Context, token string, meta RequestMeta) error {
	if token == "" {
		return validation("Token is required")
	}

	record, err := o.registry.ConsumeVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, tokens.ErrInvalidToken) {
			return validation("Invalid or expired token")
		}
		return err
	}

	user, err := o.users.FindByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return notFound("User not found")
		}
		return err
	}
	if !user.IsActive {
		return permission("This account has been deactivated")
	}

	if err := o.users.MarkEmailVerified(ctx, user.ID); err != nil {
		return err
	}

	o.recorder.Record(ctx, model.ActivityEvent{
		UserID:    &user.ID,
		Kind:      model.EventEmailVerified,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Success:   true,
	})
	return nil
}

// ResendVerification issues a fresh verification token for an
// unverified account.
func (o *Orchestrator) ResendVerification(ctx context.Context, email string, meta RequestMeta) error {
	email = foldEmail(email)
	if email == "" {
		return validation("Email is required")
	}

	user, err := o.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return notFound("User not found")
		}
		return err
	}
	if !user.IsActive {
		return permission("This account has been deactivated")
	}
	if user.EmailVerified {
		return validation("Email is already verified")
	}

	token, _, err := o.registry.IssueVerificationToken(ctx, user.ID, user.Email)
	if err != nil {
		o.log.Error("failed to issue verification token", "user_id", user.ID, "error", err)
		return internal("Something went wrong")
	}

	msg := mail.ResendVerificationMessage(user.FirstName, o.verificationLink(token))
	if _, err := o.mailer.Send(ctx, user.Email, msg.Subject, msg.HTML, msg.Text); err != nil {
		o.log.Error("failed to send verification mail", "user_id", user.ID, "error", err)
	}

	o.recorder.Record(ctx, model.ActivityEvent{
		UserID:    &user.ID,
		Kind:      model.EventVerificationEmailSent,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Success:   true,
	})
	return nil
}

// Profile loads the authenticated user's record.
func (o *Orchestrator) Profile(ctx context.Context, userID uuid.UUID) (model.User, error) {
	user, err := o.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.User{}, notFound("User not found")
		}
		return model.User{}, err
	}
	return user, nil
}

// needsChallenge applies the probe-gated 2FA rule with the
// trusted-device bypass.
func (o *Orchestrator) needsChallenge(ctx context.Context, user model.User, deviceToken string) bool {
	if !o.probe.Has(ctx, schema.CapTwoFactor) || !user.Is2FAEnabled {
		return false
	}
	if deviceToken == "" {
		return true
	}
	userID, err := authpkg.ParseDeviceToken(o.cfg.JWTSecret, deviceToken)
	return err != nil || userID != user.ID.String()
}

// issueChallenge mails a fresh code. A dispatch failure is fatal to
// this login attempt.
func (o *Orchestrator) issueChallenge(ctx context.Context, user model.User, flow string) (LoginResult, error) {
	code, _, err := o.registry.IssueOTP(ctx, user.ID)
	if err != nil {
		o.log.Error("failed to issue otp", "user_id", user.ID, "error", err)
		return LoginResult{}, internal("Failed to send verification code")
	}

	msg := mail.TwoFactorMessage(user.FirstName, code)
	if _, err := o.mailer.Send(ctx, user.Email, msg.Subject, msg.HTML, msg.Text); err != nil {
		o.log.Error("failed to send otp mail", "user_id", user.ID, "error", err)
		return LoginResult{}, internal("Failed to send verification code")
	}

	metrics.Logins.WithLabelValues("challenge").Inc()
	metrics.Challenges.WithLabelValues(flow).Inc()
	return LoginResult{Requires2FA: true, UserID: user.ID, Email: user.Email}, nil
}

// finalizeLogin is the single exit into Authenticated: last-login
// touch, event, session mint, and a device credential when the second
// factor is armed.
func (o *Orchestrator) finalizeLogin(ctx context.Context, user model.User, kind string, meta RequestMeta) (LoginResult, error) {
	if err := o.users.TouchLastLogin(ctx, user.ID); err != nil {
		o.log.Warn("failed to touch last login", "user_id", user.ID, "error", err)
	}

	o.recorder.Record(ctx, model.ActivityEvent{
		UserID:    &user.ID,
		Kind:      kind,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Success:   true,
	})

	token, err := authpkg.NewSessionToken(o.cfg.JWTSecret, o.cfg.Issuer, o.cfg.SessionTTL, authpkg.SessionClaims{
		UserID:    user.ID.String(),
		Email:     user.Email,
		Role:      user.Role,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		ChapterID: user.ChapterID,
	})
	if err != nil {
		o.log.Error("failed to sign session token", "user_id", user.ID, "error", err)
		return LoginResult{}, internal("Something went wrong")
	}

	result := LoginResult{UserID: user.ID, Email: user.Email, User: user, Token: token}
	if user.Is2FAEnabled {
		deviceToken, err := authpkg.NewDeviceToken(o.cfg.JWTSecret, o.cfg.Issuer, o.cfg.DeviceTTL, user.ID.String())
		if err != nil {
			o.log.Error("failed to sign device token", "user_id", user.ID, "error", err)
			return LoginResult{}, internal("Something went wrong")
		}
		result.DeviceToken = deviceToken
	}

	metrics.Logins.WithLabelValues("success").Inc()
	return result, nil
}

func (o *Orchestrator) recordFailure(ctx context.Context, userID *uuid.UUID, reason string, meta RequestMeta) {
	metrics.Logins.WithLabelValues("failure").Inc()
	o.recorder.Record(ctx, model.ActivityEvent{
		UserID:        userID,
		Kind:          model.EventFailedLogin,
		IP:            meta.IP,
		UserAgent:     meta.UserAgent,
		Success:       false,
		FailureReason: &reason,
	})
}

// boundary catches panics at the edge of a login flow and converts any
// unclassified error to an internal one, attempting a failure event so
// the audit trail still shows the attempt.
func (o *Orchestrator) boundary(ctx context.Context, meta RequestMeta, errp *error) {
	if p := recover(); p != nil {
		o.log.Error("panic in auth flow", "panic", p)
		o.recordFailure(ctx, nil, "internal", meta)
		*errp = internal("Something went wrong")
		return
	}
	if *errp == nil {
		return
	}
	var flowErr *Error
	if errors.As(*errp, &flowErr) {
		return
	}
	o.log.Error("unexpected auth flow error", "error", *errp)
	o.recordFailure(ctx, nil, "internal", meta)
	*errp = internal("Something went wrong")
}

func foldEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (o *Orchestrator) verificationLink(token string) string {
	return o.cfg.FrontendURL + "/verify-email?token=" + token
}
