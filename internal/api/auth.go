package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-pokerplan/internal/types"
)

// The identity token is issued by the external identity provider; this
// system only verifies its signature and trusts the claims.
const (
	tokenCookieKey = "token"

	subjectClaim     = "sub"
	emailClaim       = "email"
	displayNameClaim = "name"
	photoURLClaim    = "picture"
)

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, identity types.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFrom(ctx context.Context) (types.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(types.Identity)
	return identity, ok
}

func (a *App) verifyToken(tokenString string) (*jwt.Token, error) {
	return jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.signingKey, nil
	})
}

func (a *App) identityFromToken(r *http.Request) (types.Identity, error) {
	tokenString := ""
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		tokenString = strings.TrimPrefix(authz, "Bearer ")
	} else if cookie, err := r.Cookie(tokenCookieKey); err == nil {
		tokenString = cookie.Value
	}

	if tokenString == "" {
		return types.Identity{}, fmt.Errorf("no identity token")
	}

	token, err := a.verifyToken(tokenString)
	if err != nil {
		return types.Identity{}, fmt.Errorf("verify token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return types.Identity{}, fmt.Errorf("invalid token claims")
	}

	sub, ok := claims[subjectClaim].(string)
	if !ok || sub == "" {
		return types.Identity{}, fmt.Errorf("invalid subject claim")
	}

	identity := types.Identity{Id: sub}
	if email, ok := claims[emailClaim].(string); ok {
		identity.Email = email
	}
	if name, ok := claims[displayNameClaim].(string); ok {
		identity.DisplayName = name
	}
	if photoURL, ok := claims[photoURLClaim].(string); ok {
		identity.PhotoURL = photoURL
	}

	return identity, nil
}

func (a *App) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.identityFromToken(r)
		if err != nil {
			a.log.Println("authenticate request:", err)
			errResp := NewUnauthorizedError()
			a.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		ctx := WithIdentity(r.Context(), identity)
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}
