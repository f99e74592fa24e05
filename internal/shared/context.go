package shared

import "context"

type claimsContextKey struct{}

// ContextWithClaims stores the decoded token claims of the caller.
func ContextWithClaims(ctx context.Context, claims map[string]any) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext returns the caller's claims or nil for anonymous requests.
func ClaimsFromContext(ctx context.Context) map[string]any {
	claims, _ := ctx.Value(claimsContextKey{}).(map[string]any)
	return claims
}
