package banking

import "context"

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	UserID string
	Admin  bool
}

type actorKey struct{}

// WithActor attaches the caller to ctx. Operations run without an actor, such
// as the monthly scheduler, are not subject to ownership checks.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the caller attached to ctx, if any.
func ActorFrom(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

func authorize(ctx context.Context, ownerID string) error {
	actor, ok := ActorFrom(ctx)
	if !ok || actor.Admin || actor.UserID == ownerID {
		return nil
	}
	return ErrNotOwner
}
