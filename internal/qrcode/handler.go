package qrcode

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/access"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/qrcode/entity"
)

// Handler exposes HTTP endpoints for the QR registry and claims.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// maxBodyBytes caps request bodies; a full save batch is well below it.
const maxBodyBytes = 64 << 10

// listResponse and itemResponse are the envelopes the web client reads.
type listResponse struct {
	QRCodes []entity.View `json:"qrCodes"`
}

type itemResponse struct {
	QRCode *entity.View `json:"qrCode"`
}

// GenerateRequest request body for generate endpoint.
type GenerateRequest struct {
	Count int `json:"count"`
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	p, _ := access.FromContext(r.Context())
	if err := access.Require(p, access.Admins...); err != nil {
		h.writeError(w, err)
		return
	}
	var req GenerateRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.logger.Debugw("invalid generate payload", "err", err)
		h.writeError(w, err)
		return
	}
	out, err := h.svc.Generate(r.Context(), p, req.Count)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, listResponse{QRCodes: out})
}

// SaveRequest carries a client-produced batch.
type SaveRequest struct {
	QRCodes []SaveItem `json:"qrCodes"`
}

func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	p, _ := access.FromContext(r.Context())
	if err := access.Require(p, access.Admins...); err != nil {
		h.writeError(w, err)
		return
	}
	var req SaveRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.logger.Debugw("invalid save payload", "err", err)
		h.writeError(w, err)
		return
	}
	out, err := h.svc.Save(r.Context(), p, req.QRCodes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, listResponse{QRCodes: out})
}

func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	p, _ := access.FromContext(r.Context())
	out, err := h.svc.ListAll(r.Context(), p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listResponse{QRCodes: out})
}

func (h *Handler) Details(w http.ResponseWriter, r *http.Request) {
	p, _ := access.FromContext(r.Context())
	out, err := h.svc.GetDetails(r.Context(), p, r.PathValue("value"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, itemResponse{QRCode: out})
}

// ClaimRequest claim payload.
type ClaimRequest struct {
	Value   string `json:"value"`
	Purpose string `json:"purpose"`
}

func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	p, _ := access.FromContext(r.Context())
	if err := access.Require(p, access.Users...); err != nil {
		h.writeError(w, err)
		return
	}
	var req ClaimRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.logger.Debugw("invalid claim payload", "err", err)
		h.writeError(w, err)
		return
	}
	out, err := h.svc.Claim(r.Context(), p, req.Value, req.Purpose)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, itemResponse{QRCode: out})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	// an unparsable id is reported after the role check, as not found
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	p, _ := access.FromContext(r.Context())
	if err := h.svc.Delete(r.Context(), p, id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
		h.logger.Errorw("qr request failed", "err", err)
	}
	h.writeJSON(w, apperr.HTTPStatus(kind), apperr.BodyOf(err))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
