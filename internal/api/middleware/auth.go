package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/beaconhq/beacon/internal/retrieval"
)

type contextKey string

const principalKey contextKey = "principal"

type principalClaims struct {
	Groups []string `json:"groups"`
	jwt.RegisteredClaims
}

// Auth verifies the bearer token of a calling service and places the
// principal identity it asserts into the request context. Retrieval
// enforces document access against that identity; a request without a
// valid token never reaches a search.
type Auth struct {
	secret []byte
}

func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			unauthorized(w, "missing bearer token")
			return
		}

		claims := &principalClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return a.secret, nil
		})
		if err != nil || !token.Valid || claims.Subject == "" {
			unauthorized(w, "invalid token")
			return
		}

		p := retrieval.Principal{ID: claims.Subject, Groups: claims.Groups}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, p)))
	})
}

// PrincipalFrom returns the authenticated identity, if any.
func PrincipalFrom(ctx context.Context) (retrieval.Principal, bool) {
	p, ok := ctx.Value(principalKey).(retrieval.Principal)
	return p, ok
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
