// Package http carries the JSON surface of the identity service.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/activity"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/auth"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/authflow"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/config"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/logger"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/model"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/oauth"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/permissions"
)

const deviceCookieName = "remember_device"

type Server struct {
	cfg       config.Config
	flows     *authflow.Orchestrator
	recorder  *activity.Recorder
	resolver  *permissions.Resolver
	alerts    model.AlertStore
	chapters  model.ChapterStore
	providers map[string]oauth.Provider
	log       *logger.Logger
}

func NewServer(cfg config.Config, flows *authflow.Orchestrator, recorder *activity.Recorder, resolver *permissions.Resolver, alerts model.AlertStore, chapters model.ChapterStore, providers map[string]oauth.Provider, log *logger.Logger) *Server {
	return &Server{
		cfg:       cfg,
		flows:     flows,
		recorder:  recorder,
		resolver:  resolver,
		alerts:    alerts,
		chapters:  chapters,
		providers: providers,
		log:       log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/verify-2fa", s.handleVerify2FA)
		r.Post("/google/callback", s.handleOAuthCallback(model.ProviderGoogle))
		r.Post("/facebook/callback", s.handleOAuthCallback(model.ProviderFacebook))
		r.Post("/forgot-password", s.handleForgotPassword)
		r.Post("/reset-password", s.handleResetPassword)
		r.Post("/verify-email", s.handleVerifyEmail)
		r.Post("/resend-verification", s.handleResendVerification)
		r.Get("/chapters", s.handleListChapters)

		r.With(s.authMiddleware).Post("/logout", s.handleLogout)
		r.With(s.authMiddleware).Get("/me", s.handleGetMe)
		r.With(s.authMiddleware).Get("/permissions", s.handleGetPermissions)
		r.With(s.authMiddleware).Get("/activity-logs", s.handleActivityLogs)
		r.With(s.authMiddleware).Get("/alerts", s.handleListAlerts)
		r.With(s.authMiddleware, s.requireAdmin).Post("/alerts/{alertID}/resolve", s.handleResolveAlert)
	})

	return r
}

// envelope is the uniform response wrapper on every route.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
}

func decodeJSON(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: true, Message: message})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

// writeFlowError maps the flow-error taxonomy to HTTP statuses.
func (s *Server) writeFlowError(w http.ResponseWriter, err error) {
	flowErr := authflow.AsError(err)
	status := http.StatusInternalServerError
	switch flowErr.Kind {
	case authflow.KindValidation:
		status = http.StatusBadRequest
	case authflow.KindAuth:
		status = http.StatusUnauthorized
	case authflow.KindPermission:
		status = http.StatusForbidden
	case authflow.KindNotFound:
		status = http.StatusNotFound
	case authflow.KindConflict:
		status = http.StatusConflict
	case authflow.KindLocked:
		status = http.StatusLocked
	}

	message := flowErr.Message
	if flowErr.Kind == authflow.KindInternal {
		s.log.Error("request failed", "error", err)
		if s.cfg.IsProduction() {
			message = "Something went wrong"
		}
	}
	writeJSON(w, status, envelope{Success: false, Message: message, Code: flowErr.Code})
}

// recoverer keeps a handler panic from dropping the connection; the
// client still gets the JSON envelope.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.log.Error("panic serving request", "method", r.Method, "path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, "Something went wrong")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		claims, err := auth.ParseSessionToken(s.cfg.JWTSecret, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired session")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil || claims.Role != model.RoleAdmin {
			writeError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.SessionClaims {
	claims, _ := ctx.Value(claimsKey{}).(*auth.SessionClaims)
	return claims
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}

func requestMeta(r *http.Request) authflow.RequestMeta {
	return authflow.RequestMeta{IP: clientIP(r), UserAgent: r.UserAgent()}
}

// setDeviceCookie installs the trusted-device credential on the
// client. It is the only cookie the service writes.
func (s *Server) setDeviceCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     deviceCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.cfg.DeviceTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
}

func deviceTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(deviceCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
