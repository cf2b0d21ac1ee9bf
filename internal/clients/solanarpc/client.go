// Package solanarpc implements the RPC Client Fabric: endpoint rotation with a
// per-endpoint circuit breaker, jittered retry, and a fixture mode for deterministic
// tests (spec §4.1).
package solanarpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/solana-signal-daas/internal/backoff"
	"github.com/aristath/solana-signal-daas/internal/circuit"
	"github.com/aristath/solana-signal-daas/internal/errs"
)

// Mode selects between live JSON-RPC calls and the filesystem fixture harness.
type Mode string

const (
	ModeLive     Mode = "live"
	ModeFixtures Mode = "fixtures"
)

// Config configures a Client.
type Config struct {
	Endpoints              []string
	TimeoutSec             float64
	MaxRetries             int
	CircuitBreakerFailures int
	CircuitBreakerPauseSec float64
	JitterBase             float64
	JitterMax              float64
	Mode                   Mode
	FixturesDir            string
}

// Client is the RPC Client Fabric. Safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	circuits   *circuit.Registry
	log        zerolog.Logger

	mu    sync.Mutex
	index int
}

// New builds a Client from cfg.
func New(cfg Config, log zerolog.Logger) *Client {
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = []string{"https://api.mainnet-beta.solana.com"}
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSec * float64(time.Second))},
		circuits:   circuit.NewRegistry(cfg.CircuitBreakerFailures, time.Duration(cfg.CircuitBreakerPauseSec*float64(time.Second))),
		log:        log.With().Str("client", "solanarpc").Logger(),
	}
}

func (c *Client) currentEndpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Endpoints[c.index]
}

func (c *Client) rotate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.cfg.Endpoints) <= 1 {
		return
	}
	c.index = (c.index + 1) % len(c.cfg.Endpoints)
	c.log.Warn().Str("endpoint", c.cfg.Endpoints[c.index]).Msg("rpc endpoint rotated")
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call performs a single JSON-RPC request against the current endpoint, honoring
// the circuit breaker and jittered retry loop. On persistent failure it returns an
// errs.TransientNetwork error.
func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	if c.cfg.Mode == ModeFixtures {
		return c.callFixture(method, params)
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		endpoint := c.currentEndpoint()
		br := c.circuits.Get(endpoint)

		if !br.Allow(time.Now()) {
			c.rotate()
			lastErr = errs.New(errs.TransientNetwork, "circuit open for "+endpoint, nil)
			continue
		}

		result, err := c.doRequest(ctx, endpoint, method, params)
		if err == nil {
			br.RecordSuccess()
			return result, nil
		}

		br.RecordFailure(time.Now())
		if br.CurrentState() == circuit.Open {
			c.log.Warn().Str("endpoint", endpoint).Msg("rpc circuit opened")
			c.rotate()
		}
		lastErr = err

		delay := backoff.Delay(attempt, c.cfg.JitterBase, c.cfg.JitterMax, c.cfg.TimeoutSec)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, errs.New(errs.TransientNetwork, fmt.Sprintf("rpc call %s exhausted retries", method), lastErr)
}

func (c *Client) doRequest(ctx context.Context, endpoint, method string, params []interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, errs.New(errs.MalformedInput, "marshal rpc request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errs.New(errs.TransientNetwork, "build rpc request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.New(errs.TransientNetwork, "rpc transport error", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New(errs.TransientNetwork, "read rpc response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.RemoteServiceError, fmt.Sprintf("rpc http %d", resp.StatusCode), nil)
	}

	var parsed rpcResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, errs.New(errs.RemoteServiceError, "decode rpc response", err)
	}
	if parsed.Error != nil {
		return nil, errs.New(errs.RemoteServiceError, parsed.Error.Message, nil)
	}

	return parsed.Result, nil
}

func (c *Client) callFixture(method string, params []interface{}) (json.RawMessage, error) {
	var relPath string
	switch method {
	case "getSignaturesForAddress":
		addr, _ := params[0].(string)
		relPath = filepath.Join("signatures", addr+".json")
	case "getTransaction":
		sig, _ := params[0].(string)
		relPath = filepath.Join("transactions", sig+".json")
	default:
		return nil, nil
	}

	fullPath := filepath.Join(c.cfg.FixturesDir, relPath)
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if method == "getSignaturesForAddress" {
			return json.RawMessage("[]"), nil
		}
		return nil, nil
	}
	return json.RawMessage(data), nil
}
