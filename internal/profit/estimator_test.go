package profit

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/solana-signal-daas/internal/clients/solanarpc"
	"github.com/aristath/solana-signal-daas/internal/database"
	"github.com/aristath/solana-signal-daas/internal/domain"
	"github.com/aristath/solana-signal-daas/internal/pricecache"
)

type fakeRPC struct {
	byID map[string]*solanarpc.TxDetail
}

func (f *fakeRPC) GetTransaction(_ context.Context, signature string) (*solanarpc.TxDetail, error) {
	return f.byID[signature], nil
}

func newTestCache(t *testing.T) *pricecache.Cache {
	t.Helper()
	db, err := database.New(database.Config{Path: "file::memory:?cache=shared", Profile: database.ProfileCache, Name: "profit-test"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return pricecache.New(db.Conn())
}

func TestEstimateSimpleNativeGain(t *testing.T) {
	wallet := "WalletA"
	rpc := &fakeRPC{byID: map[string]*solanarpc.TxDetail{
		"sig1": {
			AccountKeys:  []string{wallet, "ProgramX"},
			PreBalances:  []int64{1_000_000_000, 0},
			PostBalances: []int64{1_100_000_000, 0},
			Fee:          5000,
			FeeKnown:     true,
			Instructions: []solanarpc.Instruction{{ProgramIDIndex: 1, Accounts: []int{0}}},
		},
	}}

	e := New(rpc, newTestCache(t), nil, 10.0, zerolog.Nop())
	result := e.Estimate(context.Background(), wallet, []domain.Signature{{Value: "sig1"}}, 5)

	require.InDelta(t, 0.099995, result.Profit, 1e-6)
	require.Equal(t, domain.ConfidenceHigh, result.Confidence)
	require.Contains(t, result.Programs, "ProgramX")
}

func TestEstimateAllSignaturesMissingYieldsLowConfidence(t *testing.T) {
	rpc := &fakeRPC{byID: map[string]*solanarpc.TxDetail{}}
	e := New(rpc, newTestCache(t), nil, 10.0, zerolog.Nop())

	result := e.Estimate(context.Background(), "WalletA", []domain.Signature{{Value: "missing"}}, 5)

	require.Equal(t, 0.0, result.Profit)
	require.Equal(t, domain.ConfidenceLow, result.Confidence)
}

func TestEstimateWrappedSOLNormalizedAtParValue(t *testing.T) {
	wallet := "WalletA"
	rpc := &fakeRPC{byID: map[string]*solanarpc.TxDetail{
		"sig1": {
			AccountKeys:  []string{wallet},
			PreBalances:  []int64{0},
			PostBalances: []int64{0},
			Fee:          0,
			FeeKnown:     true,
			PreTokenBalances: []solanarpc.TokenBalance{
				{Owner: wallet, Mint: pricecache.WSOLMint, UIAmount: 0},
			},
			PostTokenBalances: []solanarpc.TokenBalance{
				{Owner: wallet, Mint: pricecache.WSOLMint, UIAmount: 2.0},
			},
		},
	}}

	e := New(rpc, newTestCache(t), nil, 10.0, zerolog.Nop())
	result := e.Estimate(context.Background(), wallet, []domain.Signature{{Value: "sig1"}}, 5)

	require.InDelta(t, 2.0, result.Profit, 1e-9)
}

func TestEstimateUnpricedTokenExcludedFromProfit(t *testing.T) {
	wallet := "WalletA"
	rpc := &fakeRPC{byID: map[string]*solanarpc.TxDetail{
		"sig1": {
			AccountKeys:  []string{wallet},
			PreBalances:  []int64{0},
			PostBalances: []int64{0},
			FeeKnown:     true,
			PreTokenBalances: []solanarpc.TokenBalance{
				{Owner: wallet, Mint: "UnknownMint", UIAmount: 0},
			},
			PostTokenBalances: []solanarpc.TokenBalance{
				{Owner: wallet, Mint: "UnknownMint", UIAmount: 100},
			},
		},
	}}

	e := New(rpc, newTestCache(t), nil, 10.0, zerolog.Nop())
	result := e.Estimate(context.Background(), wallet, []domain.Signature{{Value: "sig1"}}, 5)

	require.Equal(t, 0.0, result.Profit)
	require.Equal(t, 1, result.SubMetrics.TotalTokens)
	require.Equal(t, 0, result.SubMetrics.PricedTokens)
}
