package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var testSecret = []byte("test-secret")

type staticPerms struct {
	users  map[string]string
	grants map[string][]string
}

func (p staticPerms) UserRole(_ context.Context, userID string) (string, error) {
	if userID == "down" {
		return "", errors.New("db down")
	}
	return p.users[userID], nil
}

func (p staticPerms) HasPermission(_ context.Context, role, code string) (bool, error) {
	if role == "broken" {
		return false, errors.New("cache down")
	}
	for _, c := range p.grants[role] {
		if c == code {
			return true, nil
		}
	}
	return false, nil
}

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newRouter(auth *Authenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/orders", auth.Require("orders.read"), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUserID)+"/"+c.GetString(ContextUserRole))
	})
	return r
}

func TestRequire(t *testing.T) {
	auth := NewAuthenticator(testSecret, staticPerms{
		users:  map[string]string{"u1": "buyer", "u2": "requester", "u3": "broken"},
		grants: map[string][]string{"buyer": {"orders.read"}},
	}, zap.NewNop())
	router := newRouter(auth)
	exp := time.Now().Add(time.Hour).Unix()

	cases := []struct {
		name   string
		header string
		cookie string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"bad format", "Token abc", "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, []byte("other"), jwt.MapClaims{"sub": "u1", "role": "buyer", "exp": exp}), "", http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "role": "buyer", "exp": time.Now().Add(-time.Hour).Unix()}), "", http.StatusUnauthorized},
		{"no role", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "exp": exp}), "", http.StatusUnauthorized},
		{"missing permission", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "u2", "role": "requester", "exp": exp}), "", http.StatusForbidden},
		{"claim cannot raise role", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "u2", "role": "buyer", "exp": exp}), "", http.StatusForbidden},
		{"unknown user", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "u9", "role": "buyer", "exp": exp}), "", http.StatusUnauthorized},
		{"role lookup failure", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "down", "role": "buyer", "exp": exp}), "", http.StatusInternalServerError},
		{"lookup failure", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "u3", "role": "broken", "exp": exp}), "", http.StatusInternalServerError},
		{"stale claim uses user role", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "role": "requester", "exp": exp}), "", http.StatusOK},
		{"header", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "role": "buyer", "exp": exp}), "", http.StatusOK},
		{"cookie", "", signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "role": "buyer", "exp": exp}), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/orders", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "access_token", Value: tc.cookie})
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d (%s)", tc.want, w.Code, w.Body.String())
			}
			if tc.want == http.StatusOK && w.Body.String() != "u1/buyer" {
				t.Fatalf("identity not propagated: %s", w.Body.String())
			}
			if w.Header().Get(HeaderRequestID) == "" {
				t.Fatalf("every response carries a request id")
			}
		})
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Logger(zap.NewNop()), Recovery(zap.NewNop()))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("panics must become 500, got %d", w.Code)
	}
	if w.Header().Get(HeaderRequestID) != "abc-123" {
		t.Fatalf("caller request id must be echoed, got %q", w.Header().Get(HeaderRequestID))
	}
}
