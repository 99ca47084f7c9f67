package api

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/oaiiae/contactbook/handlers"
)

// claims of the bearer tokens accepted by the API.
type claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

type identity struct {
	Subject string
	Roles   []string
}

// ctxauth is a [context.Context] key and acts as a virtual package for operations related to it.
type ctxauth struct{}

// subject returns the authenticated subject from [context.Context], empty if none.
func (key ctxauth) subject(ctx context.Context) string {
	id, _ := ctx.Value(key).(identity)
	return id.Subject
}

// authMiddleware returns a middleware that authenticates the bearer token of
// requests to operations restricted by [handlers.MetadataRoles] and checks
// the token grants one of the roles. Without secret every request is
// granted every role.
func (key ctxauth) authMiddleware(secret []byte) func(huma.API) func(huma.Context, func(huma.Context)) {
	return func(api huma.API) func(huma.Context, func(huma.Context)) {
		return func(ctx huma.Context, next func(huma.Context)) {
			allowed := handlers.OperationRoles(ctx.Operation())
			if allowed == nil {
				next(ctx)
				return
			}
			if len(secret) == 0 {
				next(huma.WithValue(ctx, key, identity{Roles: []string{handlers.RoleAdmin, handlers.RoleUser}}))
				return
			}

			token, ok := strings.CutPrefix(ctx.Header("Authorization"), "Bearer ")
			if !ok || token == "" {
				ctx.SetHeader("WWW-Authenticate", "Bearer")
				huma.WriteErr(api, ctx, http.StatusUnauthorized, "missing bearer token") //nolint: errcheck // response already started
				return
			}

			var c claims
			_, err := jwt.ParseWithClaims(token, &c,
				func(*jwt.Token) (any, error) { return secret, nil },
				jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
			)
			if err != nil {
				ctx.SetHeader("WWW-Authenticate", `Bearer error="invalid_token"`)
				huma.WriteErr(api, ctx, http.StatusUnauthorized, "invalid bearer token", err) //nolint: errcheck // response already started
				return
			}

			if !slices.ContainsFunc(c.Roles, func(role string) bool { return slices.Contains(allowed, role) }) {
				huma.WriteErr(api, ctx, http.StatusForbidden, "requires one of the roles: "+strings.Join(allowed, ", ")) //nolint: errcheck,golines
				return
			}

			next(huma.WithValue(ctx, key, identity{Subject: c.Subject, Roles: c.Roles}))
		}
	}
}
