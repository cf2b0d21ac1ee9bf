// Package profit implements the Profit Estimator: walks a wallet's recent
// transactions and derives a realized-profit estimate plus a confidence score from
// four measurable sub-metrics (spec §4.3).
package profit

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/solana-signal-daas/internal/clients/solanarpc"
	"github.com/aristath/solana-signal-daas/internal/domain"
	"github.com/aristath/solana-signal-daas/internal/pricecache"
)

const lamportsPerSOL = 1e9

// RPC is the subset of the RPC Client Fabric the estimator needs.
type RPC interface {
	GetTransaction(ctx context.Context, signature string) (*solanarpc.TxDetail, error)
}

// Estimator walks signatures and accumulates a profit estimate.
type Estimator struct {
	rpc               RPC
	cache             *pricecache.Cache
	sources           []pricecache.PriceSource
	balanceTolerancePct float64
	log               zerolog.Logger
}

// New builds an Estimator.
func New(rpc RPC, cache *pricecache.Cache, sources []pricecache.PriceSource, balanceTolerancePct float64, log zerolog.Logger) *Estimator {
	return &Estimator{rpc: rpc, cache: cache, sources: sources, balanceTolerancePct: balanceTolerancePct, log: log.With().Str("component", "profit").Logger()}
}

type accumulator struct {
	profit         float64
	totalTokens    int
	pricedTokens   int
	uniqueMints    map[string]struct{}
	totalInnerInst int
	feeKnown       bool
	feeTotal       float64
	solDeltaSum    float64
	tokenDeltaSum  float64
	counterparties map[string]struct{}
	programs       map[string]struct{}
	txCount        int
}

func newAccumulator() *accumulator {
	return &accumulator{
		feeKnown:       true,
		uniqueMints:    make(map[string]struct{}),
		counterparties: make(map[string]struct{}),
		programs:       make(map[string]struct{}),
	}
}

// Estimate walks the first maxTx signatures for wallet and returns the aggregate
// profit, confidence, counterparties, programs, and sub-metrics (spec §4.3). A
// per-signature RPC failure is retried internally up to two times by the caller's
// RPC layer; on persistent per-signature failure the signature is skipped and does
// not poison the aggregate. An unexpected error walking every signature yields a
// zeroed result at confidence low.
func (e *Estimator) Estimate(ctx context.Context, wallet string, signatures []domain.Signature, maxTx int) domain.ProfitResult {
	if maxTx > len(signatures) {
		maxTx = len(signatures)
	}
	if maxTx < 0 {
		maxTx = 0
	}

	acc := newAccumulator()
	observedAny := false

	for _, sig := range signatures[:maxTx] {
		tx, err := e.rpc.GetTransaction(ctx, sig.Value)
		if err != nil {
			e.log.Debug().Err(err).Str("signature", sig.Value).Msg("skipping signature after rpc failure")
			continue
		}
		if tx == nil {
			continue
		}
		observedAny = true
		acc.txCount++
		e.applyTransaction(wallet, tx, acc)
	}

	if !observedAny {
		return domain.ProfitResult{Profit: 0, Confidence: domain.ConfidenceLow}
	}

	sub := computeSubMetrics(acc, e.balanceTolerancePct)

	return domain.ProfitResult{
		Profit:         acc.profit,
		Confidence:     confidenceFromSubMetrics(sub),
		Counterparties: keys(acc.counterparties),
		Programs:       keys(acc.programs),
		SubMetrics:     sub,
	}
}

func (e *Estimator) applyTransaction(wallet string, tx *solanarpc.TxDetail, acc *accumulator) {
	// 1. Native delta.
	solDelta := lamportChange(tx.PreBalances, tx.PostBalances, tx.AccountKeys, wallet)
	acc.profit += solDelta
	acc.solDeltaSum += math.Abs(solDelta)

	// 2/3. Token deltas (wrapped-native normalized at 1:1, others priced).
	tokenDeltaSOL, wsolDeltaSOL, mintsThisTx := e.tokenDelta(tx.PreTokenBalances, tx.PostTokenBalances, wallet)
	acc.profit += tokenDeltaSOL
	acc.profit += wsolDeltaSOL
	acc.tokenDeltaSum += math.Abs(tokenDeltaSOL)
	acc.solDeltaSum += math.Abs(wsolDeltaSOL)

	for mint := range mintsThisTx {
		acc.totalTokens++
		acc.uniqueMints[mint] = struct{}{}
		if mint == pricecache.WSOLMint {
			continue
		}
		if _, ok := e.cache.Get(mint, 0); ok {
			acc.pricedTokens++
		}
	}

	// 4. Fee.
	feeSOL := float64(tx.Fee) / lamportsPerSOL
	acc.feeTotal += feeSOL
	acc.profit -= feeSOL
	if !tx.FeeKnown {
		acc.feeKnown = false
	}

	// 5. Complexity.
	for _, group := range tx.InnerInstructions {
		acc.totalInnerInst += len(group.Instructions)
	}

	// 6. Counterparties / programs.
	programSet := make(map[int]struct{})
	for _, ins := range tx.Instructions {
		if ins.ProgramIDIndex >= 0 && ins.ProgramIDIndex < len(tx.AccountKeys) {
			programSet[ins.ProgramIDIndex] = struct{}{}
			acc.programs[tx.AccountKeys[ins.ProgramIDIndex]] = struct{}{}
		}
	}
	for i, key := range tx.AccountKeys {
		if key == wallet {
			continue
		}
		if _, isProgram := programSet[i]; isProgram {
			continue
		}
		acc.counterparties[key] = struct{}{}
	}
}

func lamportChange(pre, post []int64, keys []string, wallet string) float64 {
	idx := -1
	for i, k := range keys {
		if k == wallet {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= len(pre) || idx >= len(post) {
		return 0
	}
	return float64(post[idx]-pre[idx]) / lamportsPerSOL
}

// tokenDelta computes (non-wrapped priced delta in SOL, wrapped-native delta in SOL,
// set of mints touched) for wallet's token balances in one transaction.
func (e *Estimator) tokenDelta(pre, post []solanarpc.TokenBalance, wallet string) (float64, float64, map[string]struct{}) {
	type key struct{ owner, mint string }
	preMap := make(map[key]float64)
	postMap := make(map[key]float64)
	mints := make(map[string]struct{})

	for _, tb := range pre {
		if tb.Owner == wallet {
			preMap[key{tb.Owner, tb.Mint}] = tb.UIAmount
		}
		if tb.Mint != "" {
			mints[tb.Mint] = struct{}{}
		}
	}
	for _, tb := range post {
		if tb.Owner == wallet {
			postMap[key{tb.Owner, tb.Mint}] = tb.UIAmount
		}
		if tb.Mint != "" {
			mints[tb.Mint] = struct{}{}
		}
	}

	seen := make(map[key]struct{})
	for k := range preMap {
		seen[k] = struct{}{}
	}
	for k := range postMap {
		seen[k] = struct{}{}
	}

	var deltaSOL, deltaWSOL float64
	for k := range seen {
		delta := postMap[k] - preMap[k]
		if math.Abs(delta) < 1e-9 {
			continue
		}
		if k.mint == pricecache.WSOLMint {
			deltaWSOL += delta
			continue
		}
		price, ok := pricecache.Lookup(e.cache, 0, e.sources, k.mint)
		if !ok {
			continue
		}
		deltaSOL += delta * price
	}

	return deltaSOL, deltaWSOL, mints
}

func computeSubMetrics(acc *accumulator, balanceTolerancePct float64) domain.SubMetrics {
	priceCoverage := 1.0
	if acc.totalTokens > 0 {
		priceCoverage = float64(acc.pricedTokens) / float64(acc.totalTokens)
	}

	routeComplexity := float64(acc.totalInnerInst) / math.Max(float64(acc.txCount), 1)
	if routeComplexity > 10 {
		routeComplexity = 10
	}

	feeCompleteness := 0.0
	if acc.feeKnown {
		feeCompleteness = 1.0
	}

	totalValorized := acc.solDeltaSum + acc.tokenDeltaSum
	totalObserved := math.Abs(acc.profit) + acc.feeTotal
	tolerance := balanceTolerancePct / 100.0
	balanceAlignment := 0.5
	if math.Abs(totalValorized-totalObserved)/math.Max(totalValorized, 1e-9) <= tolerance {
		balanceAlignment = 1.0
	}

	return domain.SubMetrics{
		PriceCoverage:    priceCoverage,
		RouteComplexity:  routeComplexity,
		FeeCompleteness:  feeCompleteness,
		BalanceAlignment: balanceAlignment,
		TotalTokens:      acc.totalTokens,
		PricedTokens:     acc.pricedTokens,
		UniqueMints:      len(acc.uniqueMints),
		TotalInnerInst:   acc.totalInnerInst,
	}
}

func confidenceFromSubMetrics(sub domain.SubMetrics) domain.Confidence {
	score := 2
	if sub.PriceCoverage < 0.7 || sub.RouteComplexity > 5 {
		score--
	}
	if sub.FeeCompleteness < 1 || sub.BalanceAlignment < 0.8 {
		score--
	}
	if score < 0 {
		score = 0
	}
	if score > 2 {
		score = 2
	}

	switch score {
	case 0:
		return domain.ConfidenceLow
	case 1:
		return domain.ConfidenceMed
	default:
		return domain.ConfidenceHigh
	}
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
