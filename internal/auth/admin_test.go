package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAdminKey(t *testing.T) {
	hash, err := HashAdminKey("ops-key")
	require.NoError(t, err)
	assert.NotEqual(t, "ops-key", hash)

	assert.NoError(t, CompareAdminKey(hash, "ops-key"))
	assert.Error(t, CompareAdminKey(hash, "wrong-key"))
}

func TestAdminMiddleware(t *testing.T) {
	hash, err := HashAdminKey("ops-key")
	require.NoError(t, err)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name string
		hash string
		key  string
		want int
	}{
		{"matching key", hash, "ops-key", http.StatusNoContent},
		{"wrong key", hash, "nope", http.StatusUnauthorized},
		{"missing key", hash, "", http.StatusUnauthorized},
		{"admin disabled", "", "ops-key", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/quota/reset", nil)
			if tt.key != "" {
				req.Header.Set(AdminKeyHeader, tt.key)
			}
			rec := httptest.NewRecorder()
			AdminMiddleware(tt.hash)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
