package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/podiumhq/podium/internal/api"
	"github.com/podiumhq/podium/internal/auth"
)

// Handler exposes the metered AI endpoints. Chat responds as soon as the
// reservation and response record exist; the stream itself runs detached
// and is observed through the response events endpoint.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

type chatRequest struct {
	Prompt string `json:"prompt" validate:"required,min=1,max=32768"`
}

type chatResponse struct {
	ResponseID string `json:"responseId"`
	Mode       string `json:"mode"`
}

// Chat handles POST /ai/chat. A denied reservation is a 200 domain result;
// an accepted request is 202 with the response id to follow.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError("prompt is required"))
		return
	}

	start, err := h.svc.Start(r.Context(), userID)
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if !start.Reservation.Allowed {
		api.JSON(w, http.StatusOK, start.Reservation)
		return
	}

	// The stream outlives this request. Detach from the request context so a
	// client that only polls the events endpoint does not kill the run.
	go func(ctx context.Context) {
		if _, err := h.svc.Run(ctx, userID, start, req.Prompt); err != nil {
			slog.Error("chat stream failed",
				"user_id", userID,
				"response_id", start.ResponseID,
				"error", err)
		}
	}(context.WithoutCancel(r.Context()))

	api.JSON(w, http.StatusAccepted, chatResponse{
		ResponseID: start.ResponseID,
		Mode:       string(start.Reservation.Mode),
	})
}

type analyzeRequest struct {
	Content string `json:"content" validate:"required,min=1"`
}

// Analyze handles POST /ai/analyze synchronously: the structured result (or
// its parse failure) is part of the response.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError("content is required"))
		return
	}

	outcome, err := h.svc.Analyze(r.Context(), userID, req.Content)
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if !outcome.Reservation.Allowed {
		api.JSON(w, http.StatusOK, outcome.Reservation)
		return
	}
	if outcome.ParseError != "" {
		api.JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"responseId": outcome.ResponseID,
			"parseError": outcome.ParseError,
		})
		return
	}

	api.JSON(w, http.StatusOK, map[string]any{
		"responseId":   outcome.ResponseID,
		"analysis":     outcome.Analysis,
		"finishReason": outcome.FinishReason,
		"trackError":   outcome.TrackError,
	})
}
