package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedAdminToken(t *testing.T, secret, role string, ttl time.Duration) string {
	t.Helper()
	claims := AdminClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin-user",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func serveAdmin(secret, authHeader string, next http.HandlerFunc) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	AdminJWT(secret)(next).ServeHTTP(rec, req)
	return rec
}

func TestAdminJWTRejects(t *testing.T) {
	noop := func(w http.ResponseWriter, r *http.Request) { t.Fatal("handler must not run") }

	tests := []struct {
		name   string
		secret string
		header string
		status int
	}{
		{"missing secret", "", "Bearer x", http.StatusUnauthorized},
		{"missing header", "secret", "", http.StatusUnauthorized},
		{"wrong secret", "secret", "Bearer " + signedAdminToken(t, "wrong", RoleAdmin, time.Minute), http.StatusUnauthorized},
		{"expired", "secret", "Bearer " + signedAdminToken(t, "secret", RoleAdmin, -time.Minute), http.StatusUnauthorized},
		{"client role", "secret", "Bearer " + signedAdminToken(t, "secret", "client", time.Minute), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveAdmin(tt.secret, tt.header, noop)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestAdminJWTValidToken(t *testing.T) {
	called := false
	rec := serveAdmin("secret", "Bearer "+signedAdminToken(t, "secret", RoleAdmin, 5*time.Minute), func(w http.ResponseWriter, r *http.Request) {
		called = true
		claims, ok := AdminClaimsFromContext(r.Context())
		assert.True(t, ok)
		assert.Equal(t, "admin-user", claims.Subject)
		w.WriteHeader(http.StatusOK)
	})

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}
