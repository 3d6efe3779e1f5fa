package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-chi/jwtauth/v5"
	"github.com/labforge/equipment-mgmt/pkg/types"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.opentelemetry.io/otel"
)

type actorContextKey struct{ name string }

var actorCtxKey = &actorContextKey{"actor"}

var tracer = otel.Tracer("equipment-mgmt/authn")

var ErrNoActor = errors.New("token carries no usable identity")

func NewTokenAuth(secret []byte) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", secret, nil)
}

// ActorFromToken builds the request principal from a verified token. The
// subject claim is the actor id; role, org and unit come from private claims.
// Scope resolution later fails closed on anything missing here, so this only
// rejects tokens with no subject at all.
func ActorFromToken(token jwt.Token) (types.Actor, error) {
	if token == nil || token.Subject() == "" {
		return types.Actor{}, ErrNoActor
	}

	actor := types.Actor{ID: token.Subject()}

	if role, ok := token.Get("role"); ok {
		if s, ok := role.(string); ok {
			actor.Role = types.Role(s)
		}
	}
	if org, ok := token.Get("orgID"); ok {
		if s, ok := org.(string); ok {
			actor.OrgID = s
		}
	}
	if unit, ok := token.Get("unitID"); ok {
		if s, ok := unit.(string); ok {
			actor.UnitID = s
		}
	}

	return actor, nil
}

// NewAuthenticator returns middleware that requires a valid bearer token and
// stores the resulting actor in the request context, so the handlers only
// ever see an authenticated actor.
func NewAuthenticator(tokenAuth *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		verifier := jwtauth.Verifier(tokenAuth)

		return verifier(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var err error

			ctx, span := tracer.Start(r.Context(), "check-auth")
			defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

			logger := logging.GetFromContext(ctx)

			token, _, err := jwtauth.FromContext(ctx)
			if err != nil {
				logger.Info("token verification failed", "err", err.Error())
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			actor, err := ActorFromToken(token)
			if err != nil {
				logger.Info("token rejected", "err", err.Error())
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(NewContextWithActor(ctx, actor)))
		}))
	}
}

func NewContextWithActor(ctx context.Context, actor types.Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey, actor)
}

func ActorFromContext(ctx context.Context) (types.Actor, bool) {
	actor, ok := ctx.Value(actorCtxKey).(types.Actor)
	return actor, ok
}
