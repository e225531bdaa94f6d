// Package solana adapts the Solana JSON-RPC getTransaction response into the
// typed transaction model of package chain. Each RPC query gets its own
// schema-defined response struct; nothing downstream sees the wire format.
package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"fanlock.app/internal/chain"
)

const defaultTimeout = 15 * time.Second

// Client talks to a Solana RPC node.
type Client struct {
	endpoint string
	http     *http.Client
}

var _ chain.Client = (*Client)(nil)

// New creates a client for the given RPC endpoint.
func New(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: defaultTimeout},
	}
}

// NewWithHTTPClient creates a client with a caller-supplied http.Client.
func NewWithHTTPClient(endpoint string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{endpoint: endpoint, http: hc}
}

// rpcRequest is the JSON-RPC 2.0 envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// getTransactionResponse is the schema of the getTransaction reply, reduced to
// the fields the verifier needs.
type getTransactionResponse struct {
	Result *transactionResult `json:"result"`
	Error  *rpcError          `json:"error"`
}

type transactionResult struct {
	Slot        uint64          `json:"slot"`
	BlockTime   *int64          `json:"blockTime"`
	Meta        *transactionMeta `json:"meta"`
	Transaction transactionBody `json:"transaction"`
}

type transactionMeta struct {
	Err               any                `json:"err"`
	InnerInstructions []innerInstruction `json:"innerInstructions"`
	PreTokenBalances  []tokenBalance     `json:"preTokenBalances"`
	PostTokenBalances []tokenBalance     `json:"postTokenBalances"`
}

type innerInstruction struct {
	Index        int                 `json:"index"`
	Instructions []parsedInstruction `json:"instructions"`
}

type tokenBalance struct {
	AccountIndex int    `json:"accountIndex"`
	Mint         string `json:"mint"`
}

type transactionBody struct {
	Message struct {
		AccountKeys  []accountKey        `json:"accountKeys"`
		Instructions []parsedInstruction `json:"instructions"`
	} `json:"message"`
}

type accountKey struct {
	Pubkey string `json:"pubkey"`
}

type parsedInstruction struct {
	Program   string          `json:"program"`
	ProgramID string          `json:"programId"`
	Parsed    *parsedDetail   `json:"parsed"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type parsedDetail struct {
	Type string         `json:"type"`
	Info transferDetail `json:"info"`
}

type transferDetail struct {
	Source      string       `json:"source"`
	Destination string       `json:"destination"`
	Mint        string       `json:"mint"`
	Amount      string       `json:"amount"`
	TokenAmount *tokenAmount `json:"tokenAmount"`
}

type tokenAmount struct {
	Amount         string `json:"amount"`
	Decimals       uint8  `json:"decimals"`
	UIAmountString string `json:"uiAmountString"`
}

// GetConfirmedTransaction fetches a confirmed transaction by signature and
// projects it into the chain model. A null result or a failed transaction maps
// to chain.ErrTxNotFound; transport and node errors map to
// chain.ErrChainUnavailable.
func (c *Client) GetConfirmedTransaction(ctx context.Context, ref string) (*chain.Tx, error) {
	sig, err := solanago.SignatureFromBase58(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed signature %q", chain.ErrTxNotFound, ref)
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getTransaction",
		Params: []any{
			sig.String(),
			map[string]any{
				"encoding":                       "jsonParsed",
				"commitment":                     "confirmed",
				"maxSupportedTransactionVersion": 0,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chain.ErrChainUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: rpc status %d", chain.ErrChainUnavailable, resp.StatusCode)
	}

	var out getTransactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", chain.ErrChainUnavailable, err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("%w: rpc error %d: %s", chain.ErrChainUnavailable, out.Error.Code, out.Error.Message)
	}
	if out.Result == nil {
		return nil, chain.ErrTxNotFound
	}
	tx := project(sig.String(), out.Result)
	if tx.Failed {
		return nil, fmt.Errorf("%w: transaction failed on chain", chain.ErrTxNotFound)
	}
	return tx, nil
}

// project flattens the RPC result into the chain model. Inner instruction
// groups are attached under the top-level instruction they belong to, so the
// extraction fold sees the same nesting the chain recorded.
func project(ref string, res *transactionResult) *chain.Tx {
	mintByAccount := make(map[string]string)
	keys := res.Transaction.Message.AccountKeys
	if res.Meta != nil {
		for _, tb := range append(res.Meta.PreTokenBalances, res.Meta.PostTokenBalances...) {
			if tb.AccountIndex >= 0 && tb.AccountIndex < len(keys) {
				mintByAccount[keys[tb.AccountIndex].Pubkey] = tb.Mint
			}
		}
	}

	top := make([]chain.Instruction, len(res.Transaction.Message.Instructions))
	for i, ix := range res.Transaction.Message.Instructions {
		top[i] = projectInstruction(ix, mintByAccount)
	}
	if res.Meta != nil {
		for _, group := range res.Meta.InnerInstructions {
			if group.Index < 0 || group.Index >= len(top) {
				continue
			}
			for _, ix := range group.Instructions {
				top[group.Index].Inner = append(top[group.Index].Inner, projectInstruction(ix, mintByAccount))
			}
		}
	}

	tx := &chain.Tx{
		Reference:    ref,
		Slot:         res.Slot,
		Instructions: top,
	}
	if res.BlockTime != nil {
		tx.BlockTime = time.Unix(*res.BlockTime, 0).UTC()
	}
	if res.Meta != nil && res.Meta.Err != nil {
		tx.Failed = true
	}
	return tx
}

func projectInstruction(ix parsedInstruction, mintByAccount map[string]string) chain.Instruction {
	out := chain.Instruction{ProgramID: ix.ProgramID}
	if ix.Parsed == nil {
		return out
	}
	out.Kind = ix.Parsed.Type
	info := ix.Parsed.Info
	out.Source = info.Source
	out.Destination = info.Destination
	out.Mint = info.Mint

	switch {
	case info.TokenAmount != nil:
		// transferChecked carries the amount-with-decimals variant
		amt, _ := strconv.ParseUint(info.TokenAmount.Amount, 10, 64)
		out.Amount = amt
		out.Token = &chain.TokenAmount{
			Amount:   amt,
			Decimals: info.TokenAmount.Decimals,
			Display:  info.TokenAmount.UIAmountString,
		}
	case info.Amount != "":
		amt, _ := strconv.ParseUint(info.Amount, 10, 64)
		out.Amount = amt
	}

	// plain transfer omits the mint; resolve it through the destination token
	// account's balance record
	if out.Mint == "" && out.Destination != "" {
		out.Mint = mintByAccount[out.Destination]
	}
	return out
}

// ValidAddress reports whether s parses as a base58 public key.
func ValidAddress(s string) bool {
	_, err := solanago.PublicKeyFromBase58(s)
	return err == nil
}
