package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"vialactivo/pkg/auth"
	"vialactivo/pkg/shared"
)

// AdminAuth requires a bearer token issued by the admin login route.
func AdminAuth(issuer *auth.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Extract token from Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				sendUnauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.Fields(authHeader)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				sendUnauthorized(w, "Invalid authorization format")
				return
			}

			claims, err := issuer.Verify(parts[1])
			if err != nil {
				sendUnauthorized(w, "Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

func sendUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)

	response := shared.Response{
		Success: false,
		Error: &shared.Error{
			Code:    shared.CodeUnauthorized,
			Message: message,
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}
