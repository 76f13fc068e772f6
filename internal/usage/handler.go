package usage

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/podiumhq/podium/internal/api"
	"github.com/podiumhq/podium/internal/auth"
)

// Handler exposes the reservation protocol over HTTP. Denials are HTTP 200
// domain results; protocol violations (complete without reserve) are 409.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

// Reserve handles POST /ai/reserve.
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	result, err := h.svc.Reserve(r.Context(), userID)
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, result)
}

type completeRequest struct {
	Mode Mode `json:"mode" validate:"required,oneof=free paid"`
}

// Complete handles POST /ai/complete.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError("mode must be \"free\" or \"paid\""))
		return
	}

	result, err := h.svc.Complete(r.Context(), userID, req.Mode)
	if errors.Is(err, ErrNoPendingReservation) {
		api.HandleError(w, api.ErrNoPendingReservation)
		return
	}
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, result)
}

// Release handles POST /ai/release.
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	result, err := h.svc.Release(r.Context(), userID)
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, result)
}

// GetUsage handles GET /ai/usage.
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	snap, err := h.svc.Usage(r.Context(), userID)
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, snap)
}
