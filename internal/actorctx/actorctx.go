package actorctx

import (
	"context"

	"github.com/geocoder89/devicewatch/internal/auth"
)

type ctxKey struct{ name string }

var (
	keyClaims    = ctxKey{"claims"}
	keyRequestID = ctxKey{"request_id"}
)

// WithClaims stores the verified session claims on ctx.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, keyClaims, claims)
}

func ClaimsFrom(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(keyClaims).(*auth.Claims)
	return c, ok && c != nil
}

func UserIDFrom(ctx context.Context) (string, bool) {
	c, ok := ClaimsFrom(ctx)
	if !ok || c.UserID == "" {
		return "", false
	}
	return c.UserID, true
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

func RequestIDFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)
	return v, ok && v != ""
}
