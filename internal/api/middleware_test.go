package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signedToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func ownerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(OwnerID(r.Context())))
	})
}

func TestAuthenticator_JWT(t *testing.T) {
	mw := NewAuthenticator(testSecret).Middleware(ownerEcho())

	cases := []struct {
		name   string
		header string
		want   int
		owner  string
	}{
		{
			name:   "valid token",
			header: "Bearer " + signedToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "owner-7", "exp": time.Now().Add(time.Hour).Unix()}),
			want:   http.StatusOK,
			owner:  "owner-7",
		},
		{
			name:   "expired token",
			header: "Bearer " + signedToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "owner-7", "exp": time.Now().Add(-time.Hour).Unix()}),
			want:   http.StatusUnauthorized,
		},
		{
			name:   "wrong secret",
			header: "Bearer " + signedToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "owner-7"}),
			want:   http.StatusUnauthorized,
		},
		{
			name:   "wrong algorithm",
			header: "Bearer " + signedToken(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{"sub": "owner-7"}),
			want:   http.StatusUnauthorized,
		},
		{
			name:   "missing subject",
			header: "Bearer " + signedToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}),
			want:   http.StatusUnauthorized,
		},
		{name: "no bearer prefix", header: "Token abc", want: http.StatusUnauthorized},
		{name: "no header", want: http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			req.Header.Set(OwnerIDHeader, "spoofed")
			rec := httptest.NewRecorder()
			mw.ServeHTTP(rec, req)

			assert.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusOK {
				assert.Equal(t, tc.owner, rec.Body.String())
			}
		})
	}
}

func TestAuthenticator_Header(t *testing.T) {
	mw := NewAuthenticator("").Middleware(ownerEcho())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(OwnerIDHeader, " owner-3 ")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "owner-3", rec.Body.String())

	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoggingMiddleware(t *testing.T) {
	log, hook := test.NewNullLogger()
	h := LoggingMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "req-1", RequestID(r.Context()))
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, http.StatusTeapot, entry.Data["status"])
	assert.Equal(t, "/x", entry.Data["path"])
}
