package activity

import (
	"context"

	"github.com/celerix-dev/celerix-agent/pkg/schema"
)

type contextKey string

const actorContextKey contextKey = "celerix.actor"

// WithActor attaches the identity responsible for work done under ctx.
func WithActor(ctx context.Context, actor schema.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorFromContext returns the actor attached with WithActor.
func ActorFromContext(ctx context.Context) (schema.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(schema.Actor)
	return actor, ok
}

// actorOf falls back to an anonymous visitor.
func actorOf(ctx context.Context) schema.Actor {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor
	}
	return schema.Actor{Type: schema.ActorVisitor, Name: "Visitor"}
}
