// Package live implements the elite-tier websocket stream that broadcasts
// accepted alerts as they land, server-side counterpart to the teacher's
// reconnecting websocket client idiom (adapted for a broadcast hub rather
// than a single upstream connection).
package live

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"nhooyr.io/websocket"

	"github.com/aristath/solana-signal-daas/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	subscriberSend = 16 // buffered alerts per subscriber before a slow reader is dropped
)

// Hub fans accepted alerts out to connected websocket subscribers. It
// implements copytrader.Observer so it can be registered directly onto the
// Alert Engine.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan domain.Alert]struct{}
	log         zerolog.Logger
}

// NewHub builds an empty Hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[chan domain.Alert]struct{}),
		log:         log.With().Str("component", "live").Logger(),
	}
}

// OnAlert implements copytrader.Observer: it fans the alert out to every
// connected subscriber without blocking on slow readers.
func (h *Hub) OnAlert(alert domain.Alert) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers {
		select {
		case ch <- alert:
		default:
			h.log.Warn().Msg("dropping alert for slow subscriber")
		}
	}
}

func (h *Hub) subscribe() chan domain.Alert {
	ch := make(chan domain.Alert, subscriberSend)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan domain.Alert) {
	h.mu.Lock()
	delete(h.subscribers, ch)
	h.mu.Unlock()
	close(ch)
}

// Subscribers returns the current subscriber count, for health/metrics surfaces.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Serve streams alerts over an already-accepted websocket connection until
// the client disconnects or ctx is cancelled. It never returns an error the
// caller needs to act on beyond logging: once the upgrade succeeds the
// connection lifecycle is fully owned here. Alerts are framed as msgpack
// binary messages rather than JSON text — this stream is the one elite-tier
// surface where wire compactness matters more than readability.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close(websocket.StatusNormalClosure, "")

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case alert, ok := <-ch:
			if !ok {
				return
			}
			encoded, err := msgpack.Marshal(alert)
			if err != nil {
				h.log.Error().Err(err).Msg("failed to encode alert for stream")
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err = conn.Write(writeCtx, websocket.MessageBinary, encoded)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("subscriber write failed, closing")
				return
			}
		}
	}
}
