package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/ruralpay/marketplace/internal/models"
	"github.com/ruralpay/marketplace/internal/services"
)

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity stores the authenticated caller on ctx.
func WithIdentity(ctx context.Context, id services.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the caller placed on ctx by Authenticator.
func IdentityFrom(ctx context.Context) (services.Identity, bool) {
	id, ok := ctx.Value(identityKey).(services.Identity)
	return id, ok && id.AccountID != ""
}

// Authenticator verifies HS256 bearer tokens issued by the auth service.
type Authenticator struct {
	secret []byte
	log    zerolog.Logger
}

func NewAuthenticator(secret string, log zerolog.Logger) *Authenticator {
	return &Authenticator{secret: []byte(secret), log: log.With().Str("component", "auth").Logger()}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		id, err := a.validateToken(parts[1])
		if err != nil {
			a.log.Warn().Err(err).Str("path", r.URL.Path).Msg("Rejected token")
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func (a *Authenticator) validateToken(tokenString string) (services.Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return services.Identity{}, err
	}
	if !token.Valid {
		return services.Identity{}, errors.New("token not valid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return services.Identity{}, errors.New("unexpected claims type")
	}

	userID, ok := claims["user_id"]
	if !ok || userID == nil {
		return services.Identity{}, errors.New("user_id claim missing")
	}

	role := models.RoleUser
	if raw, ok := claims["role"].(string); ok && raw != "" {
		role = models.Role(raw)
	}
	if !role.Valid() {
		return services.Identity{}, fmt.Errorf("unknown role %q", role)
	}

	return services.Identity{AccountID: fmt.Sprintf("%v", userID), Role: role}, nil
}
