package live

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/solana-signal-daas/internal/domain"
)

func TestHandlerServeHTTPDisabledReturns503(t *testing.T) {
	h := NewHandler(NewHub(zerolog.Nop()), false, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/signals/stream", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req, domain.TierElite)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandlerServeHTTPRejectsNonEliteTier(t *testing.T) {
	h := NewHandler(NewHub(zerolog.Nop()), true, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/signals/stream", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req, domain.TierPro)

	require.Equal(t, http.StatusForbidden, rec.Code)
}
