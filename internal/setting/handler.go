package setting

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/access"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/apperr"
)

// Handler contains dependencies for handling setting endpoints.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

// NewHandler constructs a new Handler.
func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// ListRoleCodes reports which signup codes are configured.
func (h *Handler) ListRoleCodes(w http.ResponseWriter, r *http.Request) {
	p, _ := access.FromContext(r.Context())
	out, err := h.svc.ListRoleCodes(r.Context(), p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

type rotateRequest struct {
	Code string `json:"code"`
}

// RotateRoleCode handles PUT /settings/role-codes/{role}.
func (h *Handler) RotateRoleCode(w http.ResponseWriter, r *http.Request) {
	p, _ := access.FromContext(r.Context())
	if err := access.Require(p, access.SuperAdmins...); err != nil {
		h.writeError(w, err)
		return
	}
	var req rotateRequest
	r.Body = http.MaxBytesReader(w, r.Body, 4<<10)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid role code payload", "err", err)
		h.writeError(w, apperr.InvalidArgument("invalid payload"))
		return
	}
	if err := h.svc.RotateRoleCode(r.Context(), p, r.PathValue("role"), req.Code); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		h.logger.Errorw("setting request failed", "err", err)
	}
	h.writeJSON(w, apperr.HTTPStatus(kind), apperr.BodyOf(err))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
