package router

import (
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/account"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/qrcode"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/session"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/setting"
)

// Config holds HTTP surface settings.
type Config struct {
	// AllowedOrigins may call the API with credentials (the browser client).
	AllowedOrigins []string
}

// ConfigFromEnv reads CORS_ALLOWED_ORIGIN, a comma separated list.
func ConfigFromEnv() Config {
	var origins []string
	for _, o := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGIN"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return Config{AllowedOrigins: origins}
}

// Deps are the handlers and services the routes are mounted on.
type Deps struct {
	Logger   *zap.SugaredLogger
	Sessions *session.Service
	Accounts *account.Handler
	QRCodes  *qrcode.Handler
	Settings *setting.Handler
	Config   Config
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
func RegisterRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()

	// health
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// auth
	mux.HandleFunc("POST /auth/register", d.Accounts.Register)
	mux.HandleFunc("POST /auth/login", d.Accounts.Login)
	mux.HandleFunc("GET /auth/logout", d.Accounts.Logout)
	mux.HandleFunc("POST /auth/logout", d.Accounts.Logout)
	mux.HandleFunc("POST /auth/forgot-password", d.Accounts.ForgotPassword)
	mux.HandleFunc("POST /auth/reset-password", d.Accounts.ResetPassword)
	mux.HandleFunc("GET /auth/me", d.Accounts.Me)
	mux.HandleFunc("GET /auth/users", d.Accounts.ListUsers)
	mux.HandleFunc("GET /auth/admins", d.Accounts.ListAdmins)

	// qr registry and claims
	mux.HandleFunc("POST /qr/generate", d.QRCodes.Generate)
	mux.HandleFunc("POST /qr/save", d.QRCodes.Save)
	mux.HandleFunc("POST /qr/claim", d.QRCodes.Claim)
	mux.HandleFunc("GET /qr/all", d.QRCodes.ListAll)
	mux.HandleFunc("GET /qr/details/{value}", d.QRCodes.Details)
	mux.HandleFunc("DELETE /qr/{id}", d.QRCodes.Delete)

	// settings
	mux.HandleFunc("GET /settings/role-codes", d.Settings.ListRoleCodes)
	mux.HandleFunc("PUT /settings/role-codes/{role}", d.Settings.RotateRoleCode)

	var handler http.Handler = mux
	handler = session.Middleware(d.Sessions, d.Logger)(handler)
	handler = SecurityHeadersMiddleware()(handler)
	handler = CORSMiddleware(d.Config.AllowedOrigins)(handler)
	handler = RecoveryMiddleware(d.Logger)(handler)
	handler = LoggingMiddleware(d.Logger)(handler)
	handler = RequestIDMiddleware()(handler)
	return handler
}
