package settle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fanlock.app/internal/chain"
	"fanlock.app/internal/content"
	"fanlock.app/internal/ledger"
	"fanlock.app/internal/money"
	"fanlock.app/internal/nonce"
)

const (
	mint            = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	platformAccount = "platformATA"
	creatorWallet   = "creatorWallet"
	creatorAccount  = "creatorATA"
	fanWallet       = "fanWallet"
)

// fakeChain serves canned transactions by reference.
type fakeChain struct {
	txs map[string]*chain.Tx
	err error
}

func (f *fakeChain) GetConfirmedTransaction(ctx context.Context, ref string) (*chain.Tx, error) {
	if f.err != nil {
		return nil, f.err
	}
	tx, ok := f.txs[ref]
	if !ok {
		return nil, chain.ErrTxNotFound
	}
	return tx, nil
}

// paymentTx builds a transaction whose inner instructions pay the given
// destinations on the test mint.
func paymentTx(legs map[string]uint64) *chain.Tx {
	var inner []chain.Instruction
	for dest, amt := range legs {
		inner = append(inner, chain.Instruction{
			ProgramID:   chain.TokenProgramID,
			Kind:        "transferChecked",
			Mint:        mint,
			Destination: dest,
			Amount:      amt,
		})
	}
	return &chain.Tx{Instructions: []chain.Instruction{{ProgramID: "Router", Inner: inner}}}
}

type fixture struct {
	engine  *Engine
	nonces  *nonce.InMemory
	catalog *content.InMemory
	store   *ledger.InMemory
	chain   *fakeChain
}

func newFixture(t *testing.T, strict bool) *fixture {
	t.Helper()
	f := &fixture{
		nonces:  nonce.NewInMemory(0),
		catalog: content.NewInMemory(),
		store:   ledger.NewInMemory(),
		chain:   &fakeChain{txs: make(map[string]*chain.Tx)},
	}
	f.catalog.Put(content.Content{
		ID:           "c1",
		OwnerWallet:  creatorWallet,
		OwnerAccount: creatorAccount,
		Price:        5_000_000,
	})
	f.engine = New(Config{
		Mint:               mint,
		PlatformAccount:    platformAccount,
		VerifyDestinations: strict,
	}, f.nonces, f.chain, f.catalog, f.store, nil)
	return f
}

func (f *fixture) issue(t *testing.T, bindID string) string {
	t.Helper()
	n, err := f.nonces.Issue(context.Background(), bindID, fanWallet)
	require.NoError(t, err)
	return n.Token
}

func TestUnlockEndToEnd(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	token := f.issue(t, "c1")
	f.chain.txs["sigA"] = paymentTx(map[string]uint64{creatorAccount: 4_500_000, platformAccount: 500_000})

	rec, err := f.engine.Unlock(ctx, UnlockRequest{Wallet: fanWallet, ContentID: "c1", Nonce: token, TxRef: "sigA"})
	require.NoError(t, err)
	require.Equal(t, money.Amount(5_000_000), rec.Amount)
	require.NotEmpty(t, rec.PurchaseID)

	unlocked, err := f.store.HasPurchase(ctx, fanWallet, "c1")
	require.NoError(t, err)
	require.True(t, unlocked)

	// replay with the same nonce is rejected, not re-recorded
	_, err = f.engine.Unlock(ctx, UnlockRequest{Wallet: fanWallet, ContentID: "c1", Nonce: token, TxRef: "sigA"})
	require.ErrorIs(t, err, ErrInvalidNonce)
}

func TestUnlockUnderpaymentByOneBaseUnit(t *testing.T) {
	f := newFixture(t, false)
	token := f.issue(t, "c1")
	f.chain.txs["sigA"] = paymentTx(map[string]uint64{creatorAccount: 4_999_999})

	_, err := f.engine.Unlock(context.Background(), UnlockRequest{Wallet: fanWallet, ContentID: "c1", Nonce: token, TxRef: "sigA"})
	require.ErrorIs(t, err, ErrAmountMismatch)

	// rejection released the nonce; a corrected settlement may reuse it
	f.chain.txs["sigB"] = paymentTx(map[string]uint64{creatorAccount: 5_000_000})
	_, err = f.engine.Unlock(context.Background(), UnlockRequest{Wallet: fanWallet, ContentID: "c1", Nonce: token, TxRef: "sigB"})
	require.NoError(t, err)
}

func TestUnlockOverpaymentAccepted(t *testing.T) {
	f := newFixture(t, false)
	token := f.issue(t, "c1")
	f.chain.txs["sig"] = paymentTx(map[string]uint64{creatorAccount: 6_000_000})

	rec, err := f.engine.Unlock(context.Background(), UnlockRequest{Wallet: fanWallet, ContentID: "c1", Nonce: token, TxRef: "sig"})
	require.NoError(t, err)
	// the recorded amount is the price, not the over-payment
	require.Equal(t, money.Amount(5_000_000), rec.Amount)
}

func TestUnlockDestinationEnforcement(t *testing.T) {
	f := newFixture(t, true)
	token := f.issue(t, "c1")
	// total covers the price but the platform leg is missing
	f.chain.txs["sig"] = paymentTx(map[string]uint64{creatorAccount: 5_000_000})

	_, err := f.engine.Unlock(context.Background(), UnlockRequest{Wallet: fanWallet, ContentID: "c1", Nonce: token, TxRef: "sig"})
	require.ErrorIs(t, err, ErrAmountMismatch)
}

func TestUnlockReferralSplit(t *testing.T) {
	f := newFixture(t, true)
	f.catalog.Put(content.Content{
		ID:              "c2",
		OwnerWallet:     creatorWallet,
		OwnerAccount:    creatorAccount,
		ReferrerWallet:  "refWallet",
		ReferrerAccount: "refATA",
		Price:           1_000_000,
	})
	token := f.issue(t, "c2")
	f.chain.txs["sig"] = paymentTx(map[string]uint64{
		creatorAccount:  900_000,
		platformAccount: 50_000,
		"refATA":        50_000,
	})

	_, err := f.engine.Unlock(context.Background(), UnlockRequest{Wallet: fanWallet, ContentID: "c2", Nonce: token, TxRef: "sig"})
	require.NoError(t, err)
}

func TestUnlockChainUnavailableReleasesNonce(t *testing.T) {
	f := newFixture(t, false)
	token := f.issue(t, "c1")
	f.chain.err = chain.ErrChainUnavailable

	_, err := f.engine.Unlock(context.Background(), UnlockRequest{Wallet: fanWallet, ContentID: "c1", Nonce: token, TxRef: "sig"})
	require.ErrorIs(t, err, chain.ErrChainUnavailable)

	f.chain.err = nil
	f.chain.txs["sig"] = paymentTx(map[string]uint64{creatorAccount: 5_000_000})
	_, err = f.engine.Unlock(context.Background(), UnlockRequest{Wallet: fanWallet, ContentID: "c1", Nonce: token, TxRef: "sig"})
	require.NoError(t, err)
}

func TestUnlockConsumeBeforeChainIO(t *testing.T) {
	f := newFixture(t, false)
	f.chain.err = errors.New("chain must not be touched")

	_, err := f.engine.Unlock(context.Background(), UnlockRequest{Wallet: fanWallet, ContentID: "c1", Nonce: "bogus", TxRef: "sig"})
	require.ErrorIs(t, err, ErrInvalidNonce)
}

func TestUnlockFreeContentRejected(t *testing.T) {
	f := newFixture(t, false)
	f.catalog.Put(content.Content{ID: "free", OwnerWallet: creatorWallet, Price: 0})
	token := f.issue(t, "free")

	_, err := f.engine.Unlock(context.Background(), UnlockRequest{Wallet: fanWallet, ContentID: "free", Nonce: token, TxRef: "sig"})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestUnlockUnknownContent(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.engine.Unlock(context.Background(), UnlockRequest{Wallet: fanWallet, ContentID: "ghost", Nonce: "n", TxRef: "sig"})
	require.ErrorIs(t, err, content.ErrNotFound)
}

func TestTipEndToEnd(t *testing.T) {
	f := newFixture(t, false)
	token := f.issue(t, "c1")
	f.chain.txs["sig"] = paymentTx(map[string]uint64{creatorAccount: 2_000_000})

	rec, err := f.engine.Tip(context.Background(), TipRequest{
		Wallet: fanWallet, ContentID: "c1", Nonce: token, TxRef: "sig", Amount: 2_000_000,
	})
	require.NoError(t, err)
	require.Equal(t, money.Amount(2_000_000), rec.Amount)

	// tips never unlock
	unlocked, _ := f.store.HasPurchase(context.Background(), fanWallet, "c1")
	require.False(t, unlocked)
}

func TestSubscribeAndRenew(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	tier, err := f.store.CreateTier(ctx, ledger.SubscriptionTier{Creator: creatorWallet, Name: "Gold", Price: 3_000_000})
	require.NoError(t, err)

	token := f.issue(t, tier.ID)
	f.chain.txs["sub-sig"] = paymentTx(map[string]uint64{creatorAccount: 3_000_000})

	rec, err := f.engine.Subscribe(ctx, SubscribeRequest{
		Wallet: fanWallet, TierID: tier.ID, Nonce: token, TxRef: "sub-sig", AutoRenew: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, rec.SubscriptionID)

	_, covered, err := f.store.ActiveSubscription(ctx, fanWallet, creatorWallet, time.Now())
	require.NoError(t, err)
	require.True(t, covered)

	renewNonce, err := f.nonces.Issue(ctx, rec.SubscriptionID, fanWallet)
	require.NoError(t, err)
	f.chain.txs["renew-sig"] = paymentTx(map[string]uint64{creatorAccount: 3_000_000})

	renewed, err := f.engine.Renew(ctx, RenewRequest{
		Wallet: fanWallet, SubscriptionID: rec.SubscriptionID, Nonce: renewNonce.Token, TxRef: "renew-sig",
	})
	require.NoError(t, err)
	require.True(t, renewed.Renewed)

	sub, err := f.store.GetSubscription(ctx, rec.SubscriptionID)
	require.NoError(t, err)
	require.Equal(t, money.Amount(6_000_000), sub.TotalPaid)
}

func TestRenewNoOpOnCancelled(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	tier, _ := f.store.CreateTier(ctx, ledger.SubscriptionTier{Creator: creatorWallet, Name: "Gold", Price: 3_000_000})
	sub, _ := f.store.RecordSubscription(ctx, fanWallet, creatorWallet, tier.ID, 3_000_000, true)
	require.NoError(t, f.store.CancelSubscription(ctx, sub.ID, fanWallet))

	token, err := f.nonces.Issue(ctx, sub.ID, fanWallet)
	require.NoError(t, err)
	f.chain.txs["sig"] = paymentTx(map[string]uint64{creatorAccount: 3_000_000})

	rec, err := f.engine.Renew(ctx, RenewRequest{Wallet: fanWallet, SubscriptionID: sub.ID, Nonce: token.Token, TxRef: "sig"})
	require.NoError(t, err)
	require.False(t, rec.Renewed)
}

func TestRenewForeignSubscriptionUnauthorized(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	tier, _ := f.store.CreateTier(ctx, ledger.SubscriptionTier{Creator: creatorWallet, Name: "Gold", Price: 3_000_000})
	sub, _ := f.store.RecordSubscription(ctx, fanWallet, creatorWallet, tier.ID, 3_000_000, true)

	_, err := f.engine.Renew(ctx, RenewRequest{Wallet: "intruder", SubscriptionID: sub.ID, Nonce: "n", TxRef: "sig"})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestSubscribeInactiveTierRejected(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	tier, _ := f.store.CreateTier(ctx, ledger.SubscriptionTier{Creator: creatorWallet, Name: "Gold", Price: 3_000_000})
	require.NoError(t, f.store.DeactivateTier(ctx, tier.ID, creatorWallet))

	_, err := f.engine.Subscribe(ctx, SubscribeRequest{Wallet: fanWallet, TierID: tier.ID, Nonce: "n", TxRef: "sig"})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestTxNotFound(t *testing.T) {
	f := newFixture(t, false)
	token := f.issue(t, "c1")

	_, err := f.engine.Unlock(context.Background(), UnlockRequest{Wallet: fanWallet, ContentID: "c1", Nonce: token, TxRef: "missing"})
	require.ErrorIs(t, err, chain.ErrTxNotFound)
}
