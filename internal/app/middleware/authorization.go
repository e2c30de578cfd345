package middleware

import (
	"context"
	"fmt"

	"carrental/internal/app/commands"
	"carrental/internal/app/queries"
	"carrental/internal/app/services/auth"
	"carrental/internal/domain/shared/errkind"
)

type Authorizer interface {
	Authorize(ctx context.Context, message any) error
}

func Authorization(a Authorizer) CommandMiddleware {
	if a == nil {
		panic("middleware: authorizer required")
	}
	return func(next commands.Bus) commands.Bus {
		return DispatchFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if err := a.Authorize(ctx, cmd); err != nil {
				return nil, err
			}
			return next.Dispatch(ctx, cmd)
		})
	}
}

func QueryAuthorization(a Authorizer) QueryMiddleware {
	if a == nil {
		panic("middleware: authorizer required")
	}
	return func(next queries.Bus) queries.Bus {
		return AskFunc(func(ctx context.Context, q queries.Query) (any, error) {
			if err := a.Authorize(ctx, q); err != nil {
				return nil, err
			}
			return next.Ask(ctx, q)
		})
	}
}

// ActorScoped is implemented by messages issued on behalf of a user.
type ActorScoped interface {
	ActorID() string
}

var ErrActorMismatch = fmt.Errorf("%w: request actor does not match the authenticated user", errkind.ErrForbidden)

// ActorAuthorizer requires actor-scoped messages to carry an actor, and that
// actor to be the authenticated principal when one is on the context. Messages
// without an actor (jobs, webhooks) pass through.
type ActorAuthorizer struct{}

func (ActorAuthorizer) Authorize(ctx context.Context, message any) error {
	scoped, ok := message.(ActorScoped)
	if !ok {
		return nil
	}
	actor := scoped.ActorID()
	if actor == "" {
		return auth.ErrUnauthenticated
	}
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return nil
	}
	if principal.UserID != actor && !principal.IsAdmin() {
		return ErrActorMismatch
	}
	return nil
}
