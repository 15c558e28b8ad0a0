package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const clientContextKey contextKey = "client"

// ClientFromContext returns the fingerprint of the API key that
// authenticated the request, or "" when auth is disabled.
func ClientFromContext(ctx context.Context) string {
	c, _ := ctx.Value(clientContextKey).(string)
	return c
}

// APIKeyAuth accepts requests bearing one of keys. Keys are held only as
// sha256 hashes. With no keys configured every request passes.
func APIKeyAuth(keys []string) func(http.Handler) http.Handler {
	hashes := make([][]byte, 0, len(keys))
	for _, k := range keys {
		h := sha256.Sum256([]byte(k))
		hashes = append(hashes, h[:])
	}

	return func(next http.Handler) http.Handler {
		if len(hashes) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			sum := sha256.Sum256([]byte(parts[1]))
			matched := 0
			for _, h := range hashes {
				matched |= subtle.ConstantTimeCompare(sum[:], h)
			}
			if matched != 1 {
				writeError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), clientContextKey, HashAPIKey(parts[1])[:12])
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HashAPIKey returns the hex sha256 of key.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
