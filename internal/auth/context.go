package auth

import "context"

type ctxKey string

const actorKey ctxKey = "econtract.actor"

// WithActor stores the authenticated user id in context.
func WithActor(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, actorKey, id)
}

// ActorFromCtx fetches the authenticated user id from context.
func ActorFromCtx(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(actorKey).(string)
	return id, ok && id != ""
}
