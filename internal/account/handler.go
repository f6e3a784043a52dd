package account

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/access"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/session"
)

// Handler exposes HTTP endpoints for account operations (register / login / listings).
type Handler struct {
	svc      *Service
	sessions *session.Service
	logger   *zap.SugaredLogger
}

func NewHandler(svc *Service, sessions *session.Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, sessions: sessions, logger: logger}
}

const maxBodyBytes = 16 << 10

type userResponse struct {
	User *entity.Summary `json:"user"`
}

// RegisterRequest request body for register endpoint. AdminCode carries the
// signup code for either privileged role; RoleCode is accepted as an alias.
type RegisterRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	AdminCode string `json:"adminCode"`
	RoleCode  string `json:"roleCode"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.logger.Debugw("invalid register payload", "err", err)
		h.writeError(w, err)
		return
	}
	code := req.AdminCode
	if code == "" {
		code = req.RoleCode
	}
	sum, err := h.svc.Register(r.Context(), RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		RoleCode: code,
	})
	if err != nil {
		h.logger.Debugw("register failed", "err", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, userResponse{User: sum})
}

// LoginRequest login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		h.writeError(w, err)
		return
	}
	a, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Debugw("login failed", "err", err)
		h.writeError(w, err)
		return
	}
	token, expires, err := h.sessions.Issue(r.Context(), a.ID, a.Role)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.sessions.SetCookie(w, token, expires)
	sum := a.Summary()
	h.writeJSON(w, http.StatusOK, userResponse{User: &sum})
}

// Logout revokes the current session, if any, and always clears the cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.RevokeToken(r.Context(), h.sessions.TokenFromRequest(r)); err != nil {
		h.logger.Warnw("logout revoke failed", "err", err)
	}
	h.sessions.ClearCookie(w)
	h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type emailRequest struct {
	Email string `json:"email"`
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ResetPasswordRequest reset payload.
type ResetPasswordRequest struct {
	Email       string `json:"email"`
	NewPassword string `json:"newPassword"`
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Email, req.NewPassword); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, _ := access.FromContext(r.Context())
	sum, err := h.svc.Me(r.Context(), p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, userResponse{User: sum})
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	p, _ := access.FromContext(r.Context())
	out, err := h.svc.ListAccounts(r.Context(), p, r.URL.Query().Get("role"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string][]entity.Summary{"users": out})
}

func (h *Handler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	p, _ := access.FromContext(r.Context())
	out, err := h.svc.ListAdmins(r.Context(), p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string][]entity.Summary{"admins": out})
}

// readJSON decodes a capped request body into v.
func (h *Handler) readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Wrap(err, apperr.KindInvalidArgument, "request body too large")
		}
		return apperr.Wrap(err, apperr.KindInvalidArgument, "invalid payload")
	}
	return nil
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		h.logger.Errorw("account request failed", "err", err)
	}
	h.writeJSON(w, apperr.HTTPStatus(kind), apperr.BodyOf(err))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
