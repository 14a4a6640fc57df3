package relay

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/improv-battle/backend/pkg/utils"
)

const heartbeatPeriod = 15 * time.Second

// handleStream offers the room events as Server-Sent Events for read-only
// observers. EventSource cannot set headers, so the token usually arrives as
// the access_token query parameter.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "roomName")

	claims, status, err := h.authenticate(r, room)
	if err != nil {
		utils.RespondError(w, status, err.Error())
		return
	}
	if !claims.CanSubscribe() {
		utils.RespondError(w, http.StatusForbidden, "token does not allow subscribing")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	events, err := h.bus.Subscribe(ctx, room)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "subscribe failed")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := log.With().Str("component", "relay").Str("room", room).Str("identity", claims.Identity()).Logger()
	logger.Info().Msg("opening event stream")

	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("closing event stream")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Type), ev); err != nil {
				logger.Debug().Err(err).Msg("stream write failed")
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}
