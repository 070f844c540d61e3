package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/normbook/normbook/core"
	"github.com/normbook/normbook/core/norm"
)

const (
	contextTokenKey = "userToken"
	contextActorKey = "actor"
)

// Claims represents the authorization claims transmitted via a JWT.
// Tokens are issued by the identity service; this API only verifies them.
type Claims struct {
	jwt.StandardClaims
	Role string `json:"role"`
}

func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.Server.JWTSecret),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// NewClaims returns claims for actor, valid for ttl.
func NewClaims(actor norm.Actor, conf *core.Config, ttl time.Duration) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.Server.JWTIssuer,
			Subject:   actor.ID,
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		Role: actor.Role,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(claims *Claims, conf *core.Config) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(conf.Server.JWTSecret))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// actorMiddleware turns verified claims into the norm.Actor handlers work with.
func actorMiddleware(conf *core.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if claims.Subject == "" {
				return errUnauthorized
			}
			if conf.Server.JWTIssuer != "" && !claims.VerifyIssuer(conf.Server.JWTIssuer, true) {
				return errUnauthorized
			}
			if claims.Role != norm.RoleAdmin && claims.Role != norm.RoleTrainer {
				return errHttpForbidden
			}
			ctx.Set(contextActorKey, norm.Actor{ID: claims.Subject, Role: claims.Role})
			return next(ctx)
		}
	}
}

func getContextActor(ctx echo.Context) (norm.Actor, error) {
	if actor, ok := ctx.Get(contextActorKey).(norm.Actor); ok {
		return actor, nil
	}
	return norm.Actor{}, errUnauthorized
}
