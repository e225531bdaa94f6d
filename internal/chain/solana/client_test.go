package solana

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"fanlock.app/internal/chain"
)

// docs example signature, structurally valid base58 for 64 bytes
const testSig = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"

const mintUSDC = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func rpcServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetConfirmedTransactionProjectsNestedTransfers(t *testing.T) {
	payload := `{
	  "jsonrpc": "2.0",
	  "id": 1,
	  "result": {
	    "slot": 423,
	    "blockTime": 1754000000,
	    "meta": {
	      "err": null,
	      "innerInstructions": [
	        {
	          "index": 0,
	          "instructions": [
	            {
	              "program": "spl-token",
	              "programId": "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
	              "parsed": {
	                "type": "transferChecked",
	                "info": {
	                  "source": "srcATA",
	                  "destination": "creatorATA",
	                  "mint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	                  "tokenAmount": {"amount": "900000", "decimals": 6, "uiAmountString": "0.9"}
	                }
	              }
	            },
	            {
	              "program": "spl-token",
	              "programId": "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
	              "parsed": {
	                "type": "transfer",
	                "info": {
	                  "source": "srcATA",
	                  "destination": "platformATA",
	                  "amount": "100000"
	                }
	              }
	            }
	          ]
	        }
	      ],
	      "preTokenBalances": [],
	      "postTokenBalances": [
	        {"accountIndex": 2, "mint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"}
	      ]
	    },
	    "transaction": {
	      "message": {
	        "accountKeys": [
	          {"pubkey": "payer"},
	          {"pubkey": "creatorATA"},
	          {"pubkey": "platformATA"}
	        ],
	        "instructions": [
	          {"program": "paywall", "programId": "PaywalL1111111111111111111111111111111111111"}
	        ]
	      }
	    }
	  }
	}`
	srv := rpcServer(t, payload)
	c := New(srv.URL)

	tx, err := c.GetConfirmedTransaction(context.Background(), testSig)
	require.NoError(t, err)
	require.Equal(t, uint64(423), tx.Slot)
	require.False(t, tx.Failed)
	require.Len(t, tx.Instructions, 1)
	require.Len(t, tx.Instructions[0].Inner, 2)

	// the plain transfer resolves its mint via the destination token balance
	require.Equal(t, mintUSDC, tx.Instructions[0].Inner[1].Mint)
	require.Equal(t, uint64(1_000_000), chain.ExtractTransferTotal(tx, mintUSDC))

	byDest := chain.ExtractTransfersByDestination(tx, mintUSDC)
	require.Equal(t, uint64(900_000), byDest["creatorATA"])
	require.Equal(t, uint64(100_000), byDest["platformATA"])
}

func TestGetConfirmedTransactionNotFound(t *testing.T) {
	srv := rpcServer(t, `{"jsonrpc":"2.0","id":1,"result":null}`)
	c := New(srv.URL)

	_, err := c.GetConfirmedTransaction(context.Background(), testSig)
	require.ErrorIs(t, err, chain.ErrTxNotFound)
}

func TestGetConfirmedTransactionFailedOnChain(t *testing.T) {
	payload := `{"jsonrpc":"2.0","id":1,"result":{"slot":1,"meta":{"err":{"InstructionError":[0,"Custom"]}},"transaction":{"message":{"accountKeys":[],"instructions":[]}}}}`
	srv := rpcServer(t, payload)
	c := New(srv.URL)

	_, err := c.GetConfirmedTransaction(context.Background(), testSig)
	require.ErrorIs(t, err, chain.ErrTxNotFound)
}

func TestGetConfirmedTransactionRPCError(t *testing.T) {
	srv := rpcServer(t, `{"jsonrpc":"2.0","id":1,"error":{"code":-32005,"message":"node is behind"}}`)
	c := New(srv.URL)

	_, err := c.GetConfirmedTransaction(context.Background(), testSig)
	require.ErrorIs(t, err, chain.ErrChainUnavailable)
}

func TestGetConfirmedTransactionUnreachable(t *testing.T) {
	srv := rpcServer(t, "{}")
	url := srv.URL
	srv.Close()
	c := New(url)

	_, err := c.GetConfirmedTransaction(context.Background(), testSig)
	require.ErrorIs(t, err, chain.ErrChainUnavailable)
}

func TestGetConfirmedTransactionMalformedReference(t *testing.T) {
	srv := rpcServer(t, "{}")
	c := New(srv.URL)

	_, err := c.GetConfirmedTransaction(context.Background(), "not-base58!!")
	require.ErrorIs(t, err, chain.ErrTxNotFound)
}

func TestValidAddress(t *testing.T) {
	require.True(t, ValidAddress(mintUSDC))
	require.False(t, ValidAddress("0xdeadbeef"))
}
