package live

import (
	"net/http"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/aristath/solana-signal-daas/internal/domain"
)

// Handler upgrades elite-tier requests to the live alert stream. It is gated
// by both a feature flag and the caller's tier, decided by the caller
// (internal/server attaches tier to the request context via its API-key
// middleware before routing here).
type Handler struct {
	hub     *Hub
	enabled bool
	log     zerolog.Logger
}

// NewHandler builds a stream Handler bound to hub.
func NewHandler(hub *Hub, enabled bool, log zerolog.Logger) *Handler {
	return &Handler{hub: hub, enabled: enabled, log: log.With().Str("component", "live").Logger()}
}

// ServeHTTP upgrades the connection and blocks, streaming alerts until the
// client disconnects. tier must already have been validated as domain.TierElite
// by the caller.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request, tier domain.Tier) {
	if !h.enabled {
		http.Error(w, `{"error":"live stream disabled"}`, http.StatusServiceUnavailable)
		return
	}
	if tier != domain.TierElite {
		http.Error(w, `{"error":"live stream requires elite tier"}`, http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	h.hub.Serve(r.Context(), conn)
}
