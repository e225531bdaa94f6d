// Package chain models confirmed on-chain transactions and extracts the token
// transfers they carry. The model is our own typed projection, independent of
// the RPC response format; package solana adapts the external ledger's wire
// shape into it.
package chain

import (
	"context"
	"errors"
	"time"
)

// TokenProgramID identifies the fungible-token program whose transfer
// instructions move value.
const TokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

var (
	// ErrTxNotFound: the reference is unknown to the ledger or not yet confirmed.
	ErrTxNotFound = errors.New("chain: transaction not found")
	// ErrChainUnavailable: the external ledger could not be reached.
	ErrChainUnavailable = errors.New("chain: ledger unavailable")
)

// TokenAmount is a transfer amount together with its mint's decimals, the
// "token amount with decimals" variant the ledger reports alongside raw units.
type TokenAmount struct {
	Amount   uint64 `json:"amount"`
	Decimals uint8  `json:"decimals"`
	Display  string `json:"display"`
}

// Instruction is one typed instruction record. Transfer-kind instructions of
// the token program carry Mint, Destination and Amount; anything else keeps
// only ProgramID and Kind. Inner holds instructions the program emitted while
// executing this one; a single signed transaction may move value several
// times through nested instructions (e.g. the legs of a split payment).
type Instruction struct {
	ProgramID   string        `json:"program_id"`
	Kind        string        `json:"kind"`
	Mint        string        `json:"mint,omitempty"`
	Source      string        `json:"source,omitempty"`
	Destination string        `json:"destination,omitempty"`
	Amount      uint64        `json:"amount,omitempty"`
	Token       *TokenAmount  `json:"token,omitempty"`
	Inner       []Instruction `json:"inner,omitempty"`
}

// IsTransfer reports whether the instruction moves tokens of the given mint.
func (in Instruction) IsTransfer(mint string) bool {
	if in.ProgramID != TokenProgramID {
		return false
	}
	if in.Kind != "transfer" && in.Kind != "transferChecked" {
		return false
	}
	return in.Mint == mint
}

// Tx is a confirmed transaction as fetched from the external ledger.
type Tx struct {
	Reference    string        `json:"reference"`
	Slot         uint64        `json:"slot"`
	BlockTime    time.Time     `json:"block_time"`
	Failed       bool          `json:"failed"`
	Instructions []Instruction `json:"instructions"`
}

// Client fetches confirmed transactions from the external ledger.
type Client interface {
	GetConfirmedTransaction(ctx context.Context, ref string) (*Tx, error)
}

// ExtractTransferTotal sums the base units moved on mint across the
// transaction's top-level and inner instructions. Pure fold; it does not
// interpret destinations; pair it with ExtractTransfersByDestination when
// recipient checks are enforced.
func ExtractTransferTotal(tx *Tx, mint string) uint64 {
	var total uint64
	for _, in := range tx.Instructions {
		total += instructionTotal(in, mint)
	}
	return total
}

// ExtractTransfersByDestination sums transferred base units per destination
// token account, again walking both top-level and inner instructions.
func ExtractTransfersByDestination(tx *Tx, mint string) map[string]uint64 {
	sums := make(map[string]uint64)
	for _, in := range tx.Instructions {
		addDestinations(sums, in, mint)
	}
	return sums
}

// VerifyAmount applies the acceptance policy: under-payment fails, over-payment
// is accepted silently (the buyer chose the transfer amounts client-side and
// this system issues no refunds).
func VerifyAmount(observed, expected uint64) bool { return observed >= expected }

func instructionTotal(in Instruction, mint string) uint64 {
	var total uint64
	if in.IsTransfer(mint) {
		total += in.Amount
	}
	for _, inner := range in.Inner {
		total += instructionTotal(inner, mint)
	}
	return total
}

func addDestinations(sums map[string]uint64, in Instruction, mint string) {
	if in.IsTransfer(mint) && in.Destination != "" {
		sums[in.Destination] += in.Amount
	}
	for _, inner := range in.Inner {
		addDestinations(sums, inner, mint)
	}
}
