package solanarpc

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func fixturesClient(t *testing.T, dir string) *Client {
	t.Helper()
	return New(Config{
		Mode:        ModeFixtures,
		FixturesDir: dir,
		MaxRetries:  1,
	}, zerolog.Nop())
}

func TestGetSignaturesForAddressMissingFixtureIsEmpty(t *testing.T) {
	c := fixturesClient(t, t.TempDir())
	sigs, err := c.GetSignaturesForAddress(context.Background(), "SomeWallet111", 20)
	require.NoError(t, err)
	require.Empty(t, sigs)
}

func TestGetSignaturesForAddressReadsFixture(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "signatures"), 0o755))
	payload := `[{"signature":"sig1","slot":100},{"signature":"sig2","slot":101,"err":{"InstructionError":[0,"Custom"]}}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "signatures", "WalletA.json"), []byte(payload), 0o644))

	c := fixturesClient(t, dir)
	sigs, err := c.GetSignaturesForAddress(context.Background(), "WalletA", 20)
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	require.Equal(t, "sig1", sigs[0].Value)
	require.False(t, sigs[0].Err)
	require.True(t, sigs[1].Err)
}

func TestGetTransactionMissingFixtureIsNil(t *testing.T) {
	c := fixturesClient(t, t.TempDir())
	tx, err := c.GetTransaction(context.Background(), "missing-sig")
	require.NoError(t, err)
	require.Nil(t, tx)
}

func TestGetTransactionDecodesFixture(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "transactions"), 0o755))

	fee := int64(5000)
	raw := map[string]interface{}{
		"meta": map[string]interface{}{
			"fee":          fee,
			"preBalances":  []int64{1000000000, 0},
			"postBalances": []int64{1100000000, 0},
			"preTokenBalances":  []interface{}{},
			"postTokenBalances": []interface{}{},
			"innerInstructions": []interface{}{
				map[string]interface{}{"index": 0, "instructions": []interface{}{}},
			},
		},
		"transaction": map[string]interface{}{
			"message": map[string]interface{}{
				"accountKeys":  []string{"WalletA", "ProgramX"},
				"instructions": []interface{}{map[string]interface{}{"programIdIndex": 1, "accounts": []int{0}}},
			},
		},
	}
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "transactions", "sig1.json"), data, 0o644))

	c := fixturesClient(t, dir)
	tx, err := c.GetTransaction(context.Background(), "sig1")
	require.NoError(t, err)
	require.NotNil(t, tx)
	require.True(t, tx.FeeKnown)
	require.Equal(t, int64(5000), tx.Fee)
	require.Equal(t, []string{"WalletA", "ProgramX"}, tx.AccountKeys)
	require.Len(t, tx.InnerInstructions, 1)
	require.Len(t, tx.Instructions, 1)
}
