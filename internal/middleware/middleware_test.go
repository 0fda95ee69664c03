package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, claims jwt.MapClaims, secret []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	require.NoError(t, err)
	return tokenString
}

func TestExtractAccessToken(t *testing.T) {
	t.Run("Cookie", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: "from-cookie"})
		req.Header.Set("Authorization", "Bearer from-header")

		assert.Equal(t, "from-cookie", ExtractAccessToken(req))
	})

	t.Run("Bearer", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer from-header")

		assert.Equal(t, "from-header", ExtractAccessToken(req))
	})

	t.Run("WrongScheme", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Basic user:pass")

		assert.Empty(t, ExtractAccessToken(req))
	})
}

func TestAuth(t *testing.T) {
	auth := AuthMiddleware(testSecret)

	t.Run("Missing Token", func(t *testing.T) {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok := SubjectFrom(r.Context())
			assert.False(t, ok, "Context should not contain subject")
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest("GET", "/protected", nil)
		w := httptest.NewRecorder()

		auth(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Valid Token", func(t *testing.T) {
		tokenString := signToken(t, jwt.MapClaims{
			"sub":  "ops@example.com",
			"role": "admin",
			"exp":  time.Now().Add(time.Hour).Unix(),
		}, testSecret)

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		w := httptest.NewRecorder()

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ok := SubjectFrom(r.Context())
			assert.True(t, ok)
			assert.Equal(t, "ops@example.com", subject)
			assert.Equal(t, RoleAdmin, RoleFrom(r.Context()))
			w.WriteHeader(http.StatusOK)
		})

		auth(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	anonymous := func(t *testing.T, tokenString string) {
		t.Helper()

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		w := httptest.NewRecorder()

		called := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			_, ok := SubjectFrom(r.Context())
			assert.False(t, ok)
		})

		auth(next).ServeHTTP(w, req)
		assert.True(t, called)
	}

	t.Run("Expired Token", func(t *testing.T) {
		anonymous(t, signToken(t, jwt.MapClaims{
			"sub": "ops@example.com",
			"exp": time.Now().Add(-time.Hour).Unix(),
		}, testSecret))
	})

	t.Run("Wrong Secret", func(t *testing.T) {
		anonymous(t, signToken(t, jwt.MapClaims{"sub": "ops@example.com"}, []byte("other")))
	})

	t.Run("Invalid Token", func(t *testing.T) {
		anonymous(t, "invalid-token")
	})
}

func TestRequireAdmin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RequireAdmin(next)

	tests := []struct {
		name string
		ctx  context.Context
		want int
	}{
		{"Anonymous", context.Background(), http.StatusUnauthorized},
		{"User", SetUserContext(context.Background(), "u@example.com", "user"), http.StatusForbidden},
		{"Admin", SetUserContext(context.Background(), "ops@example.com", RoleAdmin), http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/admin/payments/cancel", nil).WithContext(tt.ctx)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	hit := func(h http.Handler, path, ip string, header map[string]string) int {
		req := httptest.NewRequest("POST", path, nil)
		req.RemoteAddr = ip + ":1234"
		for k, v := range header {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	t.Run("StrictTier", func(t *testing.T) {
		h := NewRateLimiter("", "/admin/").Middleware(ok)

		for i := 0; i < burstStrict; i++ {
			assert.Equal(t, http.StatusOK, hit(h, "/admin/payments/cancel", "10.0.0.1", nil))
		}
		assert.Equal(t, http.StatusTooManyRequests, hit(h, "/admin/payments/cancel", "10.0.0.1", nil))

		// other callers and tiers keep their own buckets
		assert.Equal(t, http.StatusOK, hit(h, "/admin/payments/cancel", "10.0.0.2", nil))
		assert.Equal(t, http.StatusOK, hit(h, "/tinkoff/notification/", "10.0.0.1", nil))
	})

	t.Run("GeneralTier", func(t *testing.T) {
		h := NewRateLimiter("", "/admin/").Middleware(ok)

		for i := 0; i < burstGeneral; i++ {
			assert.Equal(t, http.StatusOK, hit(h, "/tinkoff/notification/", "10.0.0.3", nil))
		}
		assert.Equal(t, http.StatusTooManyRequests, hit(h, "/tinkoff/notification/", "10.0.0.3", nil))
	})

	t.Run("InternalTier", func(t *testing.T) {
		h := NewRateLimiter("svc", "/admin/").Middleware(ok)
		header := map[string]string{"X-Service-Auth": "svc"}

		for i := 0; i < burstStrict+1; i++ {
			assert.Equal(t, http.StatusOK, hit(h, "/admin/payments/cancel", "10.0.0.4", header))
		}
	})

	t.Run("Evict", func(t *testing.T) {
		l := NewRateLimiter("")
		l.getVisitor("ip:1", limitGeneral, burstGeneral)
		l.visitors["ip:1"].lastSeen = time.Now().Add(-time.Hour)
		l.getVisitor("ip:2", limitGeneral, burstGeneral)

		l.evict(3 * time.Minute)

		assert.NotContains(t, l.visitors, "ip:1")
		assert.Contains(t, l.visitors, "ip:2")
	})
}
