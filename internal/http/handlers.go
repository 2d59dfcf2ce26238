package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/authflow"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/model"
)

type userPayload struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	FirstName     string     `json:"firstName"`
	LastName      string     `json:"lastName"`
	Role          string     `json:"role"`
	ChapterID     *int64     `json:"chapterId"`
	EmailVerified bool       `json:"emailVerified"`
	Is2FAEnabled  bool       `json:"is2faEnabled"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
}

func mapUser(user model.User) userPayload {
	return userPayload{
		ID:            user.ID.String(),
		Email:         user.Email,
		FirstName:     user.FirstName,
		LastName:      user.LastName,
		Role:          user.Role,
		ChapterID:     user.ChapterID,
		EmailVerified: user.EmailVerified,
		Is2FAEnabled:  user.Is2FAEnabled,
		CreatedAt:     user.CreatedAt,
		LastLoginAt:   user.LastLoginAt,
	}
}

type registerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Chapter   string `json:"chapter"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	chapterID, err := strconv.ParseInt(req.Chapter, 10, 64)
	if req.Chapter != "" && err != nil {
		writeError(w, http.StatusBadRequest, "Chapter must be a numeric id")
		return
	}

	res, err := s.flows.Register(r.Context(), authflow.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		ChapterID: chapterID,
	}, requestMeta(r))
	if err != nil {
		s.writeFlowError(w, err)
		return
	}

	writeData(w, http.StatusCreated, map[string]any{
		"userId":      res.UserID.String(),
		"email":       res.Email,
		"requires2FA": res.Requires2FA,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := s.flows.Login(r.Context(), authflow.LoginInput{
		Email:       req.Email,
		Password:    req.Password,
		DeviceToken: deviceTokenFromRequest(r),
	}, requestMeta(r))
	if err != nil {
		s.writeFlowError(w, err)
		return
	}

	s.writeLoginResult(w, res)
}

type verify2FARequest struct {
	UserID string `json:"userId"`
	Code   string `json:"code"`
}

func (s *Server) handleVerify2FA(w http.ResponseWriter, r *http.Request) {
	var req verify2FARequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "A valid userId is required")
		return
	}

	res, err := s.flows.Verify2FA(r.Context(), userID, req.Code, requestMeta(r))
	if err != nil {
		s.writeFlowError(w, err)
		return
	}

	s.writeLoginResult(w, res)
}

// writeLoginResult is the shared exit for every flow that may end in
// either a standing session or a 2FA challenge.
func (s *Server) writeLoginResult(w http.ResponseWriter, res authflow.LoginResult) {
	if res.Requires2FA {
		writeData(w, http.StatusOK, map[string]any{
			"requires2FA": true,
			"userId":      res.UserID.String(),
			"email":       res.Email,
		})
		return
	}
	if res.DeviceToken != "" {
		s.setDeviceCookie(w, res.DeviceToken)
	}
	writeData(w, http.StatusOK, map[string]any{
		"user":  mapUser(res.User),
		"token": res.Token,
	})
}

type oauthCallbackRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleOAuthCallback(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req oauthCallbackRequest
		if err := decodeJSON(r, &req); err != nil || req.Code == "" {
			writeError(w, http.StatusBadRequest, "Authorization code is required")
			return
		}

		exchanger, ok := s.providers[provider]
		if !ok {
			writeError(w, http.StatusBadRequest, "Provider not configured")
			return
		}

		info, err := exchanger.Exchange(r.Context(), req.Code)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Authentication failed")
			return
		}

		res, err := s.flows.FederatedLogin(r.Context(), provider, info, deviceTokenFromRequest(r), requestMeta(r))
		if err != nil {
			s.writeFlowError(w, err)
			return
		}

		s.writeLoginResult(w, res)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid session")
		return
	}

	s.flows.Logout(r.Context(), userID, requestMeta(r))
	writeMessage(w, http.StatusOK, "Logged out")
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.flows.ForgotPassword(r.Context(), req.Email, requestMeta(r)); err != nil {
		s.writeFlowError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "If an account exists for that email, a reset link has been sent")
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.flows.ResetPassword(r.Context(), req.Token, req.Password, requestMeta(r)); err != nil {
		s.writeFlowError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password has been reset")
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.flows.VerifyEmail(r.Context(), req.Token, requestMeta(r)); err != nil {
		s.writeFlowError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Email verified")
}

type resendVerificationRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req resendVerificationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.flows.ResendVerification(r.Context(), req.Email, requestMeta(r)); err != nil {
		s.writeFlowError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Verification email sent")
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessionUserID(w, r)
	if !ok {
		return
	}

	user, err := s.flows.Profile(r.Context(), userID)
	if err != nil {
		s.writeFlowError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"user": mapUser(user)})
}

func (s *Server) handleGetPermissions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	keys := s.resolver.Resolve(r.Context(), claims.Role)
	writeData(w, http.StatusOK, map[string]any{
		"permissions": keys,
		"role":        claims.Role,
	})
}

func (s *Server) handleActivityLogs(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessionUserID(w, r)
	if !ok {
		return
	}

	query := model.HistoryQuery{Kind: r.URL.Query().Get("kind")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			query.Limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			query.Offset = parsed
		}
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			query.Since = &parsed
		}
	}
	if raw := r.URL.Query().Get("until"); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			query.Until = &parsed
		}
	}

	events, err := s.recorder.HistoryFor(r.Context(), userID, query)
	if err != nil {
		s.log.Error("activity history read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	logs := make([]map[string]any, 0, len(events))
	for _, event := range events {
		entry := map[string]any{
			"id":        event.ID.String(),
			"kind":      event.Kind,
			"ip":        event.IP,
			"device":    event.Device,
			"browser":   event.Browser,
			"os":        event.OS,
			"location":  event.Location,
			"success":   event.Success,
			"createdAt": event.CreatedAt,
		}
		if event.FailureReason != nil {
			entry["failureReason"] = *event.FailureReason
		}
		logs = append(logs, entry)
	}
	writeData(w, http.StatusOK, map[string]any{"logs": logs})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessionUserID(w, r)
	if !ok {
		return
	}

	alerts, err := s.alerts.ListUnresolved(r.Context(), userID)
	if err != nil {
		s.log.Error("alert list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	out := make([]map[string]any, 0, len(alerts))
	for _, alert := range alerts {
		out = append(out, map[string]any{
			"id":          alert.ID.String(),
			"kind":        alert.Kind,
			"description": alert.Description,
			"severity":    alert.Severity,
			"createdAt":   alert.CreatedAt,
			"updatedAt":   alert.UpdatedAt,
		})
	}
	writeData(w, http.StatusOK, map[string]any{"alerts": out})
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID, err := uuid.Parse(chi.URLParam(r, "alertID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "A valid alert id is required")
		return
	}
	resolver, ok := s.sessionUserID(w, r)
	if !ok {
		return
	}

	if err := s.alerts.ResolveAlert(r.Context(), alertID, resolver); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Alert not found")
			return
		}
		s.log.Error("alert resolve failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}
	writeMessage(w, http.StatusOK, "Alert resolved")
}

func (s *Server) handleListChapters(w http.ResponseWriter, r *http.Request) {
	chapters, err := s.chapters.ListActiveChapters(r.Context())
	if err != nil {
		s.log.Error("chapter list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	out := make([]map[string]any, 0, len(chapters))
	for _, chapter := range chapters {
		out = append(out, map[string]any{
			"id":       chapter.ID,
			"name":     chapter.Name,
			"location": chapter.Location,
		})
	}
	writeData(w, http.StatusOK, map[string]any{"chapters": out})
}

// sessionUserID extracts the authenticated user id, answering 401 on a
// malformed subject.
func (s *Server) sessionUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid session")
		return uuid.Nil, false
	}
	return userID, true
}
