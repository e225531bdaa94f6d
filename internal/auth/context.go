package auth

import "context"

type walletContextKey struct{}
type tokenContextKey struct{}

// ContextWithWallet attaches the authenticated wallet address to the context.
func ContextWithWallet(ctx context.Context, wallet string) context.Context {
	if wallet == "" {
		return ctx
	}
	return context.WithValue(ctx, walletContextKey{}, wallet)
}

// WalletFromContext extracts the authenticated wallet from the context.
func WalletFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(walletContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// ContextWithToken stores the raw bearer token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
