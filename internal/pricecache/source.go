package pricecache

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// PriceSource looks up a token's price in SOL from an external oracle. A miss (for
// any reason — network error, bad response shape, non-positive price) is reported as
// (0, false); callers never treat oracle failure as an error worth surfacing.
type PriceSource interface {
	PriceSOL(mint string) (float64, bool)
}

// JupiterSource fetches a token's USD price and the SOL USD price from Jupiter's
// public price API, then derives token/SOL by division. It is always consulted
// first since it needs no credential.
type JupiterSource struct {
	client  *http.Client
	baseURL string
	log     zerolog.Logger
}

// NewJupiterSource builds a JupiterSource.
func NewJupiterSource(log zerolog.Logger) *JupiterSource {
	return &JupiterSource{
		client:  &http.Client{Timeout: 5 * time.Second},
		baseURL: "https://price.jup.ag/v6/price",
		log:     log.With().Str("source", "jupiter").Logger(),
	}
}

type jupiterResponse struct {
	Data map[string]struct {
		Price float64 `json:"price"`
	} `json:"data"`
}

// PriceSOL implements PriceSource.
func (s *JupiterSource) PriceSOL(mint string) (float64, bool) {
	reqURL := fmt.Sprintf("%s?ids=%s,%s", s.baseURL, url.QueryEscape(mint), url.QueryEscape(WSOLMint))

	resp, err := s.client.Get(reqURL)
	if err != nil {
		s.log.Debug().Err(err).Str("mint", mint).Msg("jupiter price lookup failed")
		return 0, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, false
	}

	var parsed jupiterResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, false
	}

	tokenUSD := parsed.Data[mint].Price
	solUSD := parsed.Data[WSOLMint].Price
	if tokenUSD <= 0 || solUSD <= 0 {
		return 0, false
	}
	return tokenUSD / solUSD, true
}

// BirdeyeSource fetches a token's USD price via Birdeye and derives SOL price using
// the configured fiat/SOL approximation. Consulted only when an API key is set, and
// only as a second opinion after Jupiter misses (spec §4.2).
type BirdeyeSource struct {
	client           *http.Client
	apiKey           string
	fiatSolApproxUSD float64
	log              zerolog.Logger
}

// NewBirdeyeSource builds a BirdeyeSource. If apiKey is empty, PriceSOL always
// reports a miss.
func NewBirdeyeSource(apiKey string, fiatSolApproxUSD float64, log zerolog.Logger) *BirdeyeSource {
	return &BirdeyeSource{
		client:           &http.Client{Timeout: 5 * time.Second},
		apiKey:           apiKey,
		fiatSolApproxUSD: fiatSolApproxUSD,
		log:              log.With().Str("source", "birdeye").Logger(),
	}
}

type birdeyeResponse struct {
	Data struct {
		Value float64 `json:"value"`
	} `json:"data"`
}

// PriceSOL implements PriceSource.
func (s *BirdeyeSource) PriceSOL(mint string) (float64, bool) {
	if s.apiKey == "" {
		return 0, false
	}

	req, err := http.NewRequest(http.MethodGet, "https://public-api.birdeye.so/v1/price", nil)
	if err != nil {
		return 0, false
	}
	req.Header.Set("X-API-KEY", s.apiKey)
	q := req.URL.Query()
	q.Set("address", mint)
	req.URL.RawQuery = q.Encode()

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Debug().Err(err).Str("mint", mint).Msg("birdeye price lookup failed")
		return 0, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, false
	}

	var parsed birdeyeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, false
	}
	if parsed.Data.Value <= 0 {
		return 0, false
	}
	return parsed.Data.Value / s.fiatSolApproxUSD, true
}

// Lookup consults cache first, then each source in order, caching the first hit.
// Returns (0, false) only when both cache and every source miss.
func Lookup(cache *Cache, ttl time.Duration, sources []PriceSource, mint string) (float64, bool) {
	if price, ok := cache.Get(mint, ttl); ok {
		return price, true
	}
	for _, source := range sources {
		if price, ok := source.PriceSOL(mint); ok {
			_ = cache.Set(mint, price)
			return price, true
		}
	}
	return 0, false
}
