package auth

import (
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/lingoloop/lingoloop/internal/api"
)

// AdminKeyHeader carries the operator key on admin routes.
const AdminKeyHeader = "X-Admin-Key"

const bcryptCost = 12

// HashAdminKey returns the bcrypt hash to put in ADMIN_API_KEY_HASH.
func HashAdminKey(key string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CompareAdminKey checks key against its bcrypt hash.
func CompareAdminKey(hash, key string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
}

// AdminMiddleware admits requests whose X-Admin-Key matches hash. With an
// empty hash every admin request is rejected.
func AdminMiddleware(hash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(AdminKeyHeader)
			if hash == "" || key == "" {
				api.HandleError(w, api.ErrInvalidAdmin)
				return
			}
			if err := CompareAdminKey(hash, key); err != nil {
				slog.Warn("admin: rejected key", "path", r.URL.Path)
				api.HandleError(w, api.ErrInvalidAdmin)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
