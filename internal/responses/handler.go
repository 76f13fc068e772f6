package responses

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/podiumhq/podium/internal/api"
	"github.com/podiumhq/podium/internal/auth"
	"github.com/podiumhq/podium/internal/events"
)

// Handler exposes AI response records and their live event stream.
type Handler struct {
	store Store
	sub   *events.Subscriber
}

// NewHandler creates a Handler. sub may be nil when NATS is not configured;
// the events endpoint then reports 503.
func NewHandler(store Store, sub *events.Subscriber) *Handler {
	return &Handler{store: store, sub: sub}
}

// Get handles GET /ai/responses/{responseID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if auth.UserID(r.Context()) == "" {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	id := chi.URLParam(r, "responseID")
	record, err := h.store.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		api.HandleError(w, api.ErrResponseNotFound)
		return
	}
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, record)
}

// Events handles GET /ai/responses/{responseID}/events as an SSE relay of
// the record's chunk and terminal events. The connection closes after a
// terminal event or when the client goes away.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if auth.UserID(r.Context()) == "" {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}
	if h.sub == nil {
		api.JSONErrorMessage(w, http.StatusServiceUnavailable, "event streaming not configured")
		return
	}

	id := chi.URLParam(r, "responseID")
	if _, err := h.store.Get(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			api.HandleError(w, api.ErrResponseNotFound)
			return
		}
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	done := make(chan struct{})
	stop, err := h.sub.SubscribeResponse(r.Context(), id, func(ev events.ResponseEvent) {
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, ev.Raw)
		flusher.Flush()
		if ev.Kind == events.KindCompleted || ev.Kind == events.KindFailed {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	})
	if err != nil {
		// Headers are already out; the best we can do is end the stream.
		return
	}
	defer stop()

	select {
	case <-r.Context().Done():
	case <-done:
	}
}
