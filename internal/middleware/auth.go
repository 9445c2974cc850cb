package middleware

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const AccountCtxKey = contextKey("account_id")

// JWTAuth validates the bearer token and stashes the numeric account id it
// maps to in the request context. A token maps to exactly one account.
func JWTAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jwtSecret := []byte(os.Getenv("JWT_SECRET"))
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "invalid Authorization header", http.StatusUnauthorized)
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return jwtSecret, nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			http.Error(w, "invalid token claims", http.StatusUnauthorized)
			return
		}

		// The id is carried as a string claim to dodge float64 precision.
		idStr, ok := claims["account_id"].(string)
		if !ok {
			http.Error(w, "invalid account_id in token", http.StatusUnauthorized)
			return
		}
		accountID, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			http.Error(w, "invalid account_id in token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), AccountCtxKey, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AccountIDFromContext extracts the authenticated account id in handlers.
func AccountIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(AccountCtxKey).(int64)
	return id, ok
}
