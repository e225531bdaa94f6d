package auth

import (
	"context"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	t.Setenv("FANLOCK_AUTH_SECRET", "test-secret")
	ResetSecretForTests()

	token, err := GenerateToken("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Wallet() != "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin" {
		t.Fatalf("wallet = %q", claims.Wallet())
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Setenv("FANLOCK_AUTH_SECRET", "test-secret")
	ResetSecretForTests()

	for _, tok := range []string{"", "deadbeef", "a.b.c"} {
		if _, err := ParseAndValidate(tok); err != ErrInvalidToken {
			t.Fatalf("token %q: got %v", tok, err)
		}
	}
}

func TestParseRejectsForeignSecret(t *testing.T) {
	t.Setenv("FANLOCK_AUTH_SECRET", "secret-a")
	ResetSecretForTests()
	token, err := GenerateToken("wallet", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv("FANLOCK_AUTH_SECRET", "secret-b")
	ResetSecretForTests()
	if _, err := ParseAndValidate(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestMissingSecret(t *testing.T) {
	t.Setenv("FANLOCK_AUTH_SECRET", "")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if _, err := GenerateToken("wallet", time.Minute); err == nil {
		t.Fatal("expected error with no secret configured")
	}
}

func TestWalletContext(t *testing.T) {
	ctx := ContextWithWallet(context.Background(), "w1")
	got, ok := WalletFromContext(ctx)
	if !ok || got != "w1" {
		t.Fatalf("wallet from context: %q %v", got, ok)
	}
	if _, ok := WalletFromContext(context.Background()); ok {
		t.Fatal("empty context should carry no wallet")
	}
}
