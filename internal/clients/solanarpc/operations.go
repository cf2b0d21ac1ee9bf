package solanarpc

import (
	"context"
	"encoding/json"

	"github.com/aristath/solana-signal-daas/internal/domain"
)

// GetSignaturesForAddress returns up to limit recent signatures for addr, most
// recent first. A persistent RPC failure is returned as an error; a missing fixture
// or an undecodable result yields no signatures and no error.
func (c *Client) GetSignaturesForAddress(ctx context.Context, addr string, limit int) ([]domain.Signature, error) {
	raw, err := c.call(ctx, "getSignaturesForAddress", []interface{}{addr, map[string]interface{}{"limit": limit}})
	if err != nil {
		c.log.Warn().Err(err).Str("wallet", addr).Msg("getSignaturesForAddress failed")
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var entries []struct {
		Signature string      `json:"signature"`
		Slot      uint64      `json:"slot"`
		Err       interface{} `json:"err"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, nil
	}

	out := make([]domain.Signature, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.Signature{Value: e.Signature, Slot: e.Slot, Err: e.Err != nil})
	}
	return out, nil
}

// TokenBalance is one pre/post SPL token balance record attached to a transaction.
type TokenBalance struct {
	Owner    string
	Mint     string
	UIAmount float64
	Decimals int
}

// InnerInstructionGroup is one instruction's nested inner-instruction list.
type InnerInstructionGroup struct {
	Index        int
	Instructions []Instruction
}

// Instruction is a top-level or nested instruction reference.
type Instruction struct {
	ProgramIDIndex int
	Accounts       []int
}

// TxDetail is the decoded shape of a getTransaction result needed by the Profit
// Estimator (spec §4.1, §4.3).
type TxDetail struct {
	AccountKeys        []string
	PreBalances        []int64
	PostBalances       []int64
	PreTokenBalances   []TokenBalance
	PostTokenBalances  []TokenBalance
	Fee                int64
	FeeKnown           bool
	InnerInstructions  []InnerInstructionGroup
	Instructions       []Instruction
}

type rawTx struct {
	Meta struct {
		Fee               *int64 `json:"fee"`
		PreBalances       []int64 `json:"preBalances"`
		PostBalances      []int64 `json:"postBalances"`
		PreTokenBalances  []rawTokenBalance `json:"preTokenBalances"`
		PostTokenBalances []rawTokenBalance `json:"postTokenBalances"`
		InnerInstructions []rawInnerInstructionGroup `json:"innerInstructions"`
	} `json:"meta"`
	Transaction struct {
		Message struct {
			AccountKeys  []string `json:"accountKeys"`
			Instructions []rawInstruction `json:"instructions"`
		} `json:"message"`
	} `json:"transaction"`
}

type rawTokenBalance struct {
	Owner         string `json:"owner"`
	Mint          string `json:"mint"`
	UITokenAmount struct {
		UIAmount float64 `json:"uiAmount"`
		Decimals int     `json:"decimals"`
	} `json:"uiTokenAmount"`
}

type rawInnerInstructionGroup struct {
	Index        int              `json:"index"`
	Instructions []rawInstruction `json:"instructions"`
}

type rawInstruction struct {
	ProgramIDIndex int   `json:"programIdIndex"`
	Accounts       []int `json:"accounts"`
}

// GetTransaction fetches and decodes a single transaction. Returns (nil, nil) when
// the RPC reports no result, which callers treat as a skippable signature.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*TxDetail, error) {
	raw, err := c.call(ctx, "getTransaction", []interface{}{
		signature,
		map[string]interface{}{"encoding": "jsonParsed", "maxSupportedTransactionVersion": 0},
	})
	if err != nil {
		c.log.Warn().Err(err).Str("signature", signature).Msg("getTransaction failed")
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var rt rawTx
	if err := json.Unmarshal(raw, &rt); err != nil {
		return nil, nil
	}

	detail := &TxDetail{
		AccountKeys:  rt.Transaction.Message.AccountKeys,
		PreBalances:  rt.Meta.PreBalances,
		PostBalances: rt.Meta.PostBalances,
		FeeKnown:     rt.Meta.Fee != nil,
	}
	if rt.Meta.Fee != nil {
		detail.Fee = *rt.Meta.Fee
	}

	for _, tb := range rt.Meta.PreTokenBalances {
		detail.PreTokenBalances = append(detail.PreTokenBalances, TokenBalance{
			Owner: tb.Owner, Mint: tb.Mint, UIAmount: tb.UITokenAmount.UIAmount, Decimals: tb.UITokenAmount.Decimals,
		})
	}
	for _, tb := range rt.Meta.PostTokenBalances {
		detail.PostTokenBalances = append(detail.PostTokenBalances, TokenBalance{
			Owner: tb.Owner, Mint: tb.Mint, UIAmount: tb.UITokenAmount.UIAmount, Decimals: tb.UITokenAmount.Decimals,
		})
	}
	for _, ig := range rt.Meta.InnerInstructions {
		group := InnerInstructionGroup{Index: ig.Index}
		for _, ins := range ig.Instructions {
			group.Instructions = append(group.Instructions, Instruction{ProgramIDIndex: ins.ProgramIDIndex, Accounts: ins.Accounts})
		}
		detail.InnerInstructions = append(detail.InnerInstructions, group)
	}
	for _, ins := range rt.Transaction.Message.Instructions {
		detail.Instructions = append(detail.Instructions, Instruction{ProgramIDIndex: ins.ProgramIDIndex, Accounts: ins.Accounts})
	}

	return detail, nil
}
