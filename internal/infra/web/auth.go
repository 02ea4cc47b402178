package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"elearn-settlement/internal/infra/logging"
	"elearn-settlement/internal/usecase"
)

// PayerClaims is what the identity provider puts in the bearer token. The
// settlement service only consumes identity; it never issues credentials.
type PayerClaims struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

type AuthManager struct {
	secret []byte
}

func NewAuthManager(secret string) *AuthManager {
	return &AuthManager{secret: []byte(secret)}
}

type payerCtxKey struct{}

// PayerFromContext returns the authenticated payer set by Middleware.
func PayerFromContext(ctx context.Context) (usecase.Payer, bool) {
	p, ok := ctx.Value(payerCtxKey{}).(usecase.Payer)
	return p, ok
}

// Middleware resolves the Authorization bearer token to a Payer and stores
// it on the request context.
func (a *AuthManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.parseFromRequest(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		payer := usecase.Payer{
			ID:       claims.Subject,
			FullName: claims.FullName,
			Email:    claims.Email,
		}
		ctx := context.WithValue(r.Context(), payerCtxKey{}, payer)
		ctx = logging.WithPayerID(ctx, payer.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *AuthManager) parseFromRequest(r *http.Request) (*PayerClaims, error) {
	hdr := r.Header.Get("Authorization")
	if hdr == "" || !strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
		return nil, errors.New("missing bearer token")
	}
	tok := strings.TrimSpace(hdr[7:])

	claims := &PayerClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
