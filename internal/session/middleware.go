package session

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/access"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/apperr"
)

// Middleware attaches the caller's principal to the request context when the
// session cookie is valid. Requests without a valid session pass through
// anonymously; services reject them with unauthenticated. A session lookup
// that fails for infrastructure reasons ends the request with 500.
func Middleware(svc *Service, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := svc.TokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			p, err := svc.Authenticate(r.Context(), token)
			if err != nil {
				if apperr.KindOf(err) == apperr.KindInternal {
					logger.Errorw("session lookup failed", "err", err)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(apperr.BodyOf(err))
					return
				}
				logger.Debugw("session rejected", "err", err)
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(access.WithPrincipal(r.Context(), p)))
		})
	}
}
