package middleware

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"
)

// adminKeyHeader mirrors auth.AdminKeyHeader; auth sits above this package.
const adminKeyHeader = "X-Admin-Key"

// CORS returns the cors.Options for the quota API. Credentials are only
// allowed for an explicit origin list; browsers reject them with "*".
func CORS(allowedOrigins []string) cors.Options {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}

	return cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RequestIDHeader, adminKeyHeader},
		ExposedHeaders:   []string{RequestIDHeader, "Retry-After"},
		AllowCredentials: !slices.Contains(allowedOrigins, "*"),
		MaxAge:           300,
	}
}
