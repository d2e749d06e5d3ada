package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

type subjectKey struct{}

// Subject returns the client ID of the verified token carried by ctx, or ""
// when the request was not authenticated.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}

// BearerMiddleware enforces bearer token authentication on next.
//
// Behaviour:
//   - If mode != "jwt", all requests pass through.
//   - Otherwise the Authorization header must carry "Bearer <token>" that iss
//     verifies; the token subject is stored in the request context.
//   - A missing, malformed, expired or foreign token gets 401.
func BearerMiddleware(mode string, iss *Issuer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if mode != "jwt" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			unauthorized(w, "missing bearer token")
			return
		}
		claims, err := iss.Verify(token)
		if err != nil {
			slog.Debug("auth: rejected token", "remote", r.RemoteAddr, "err", err)
			unauthorized(w, "invalid bearer token")
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey{}, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="logship"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg}) //nolint:errcheck
}
