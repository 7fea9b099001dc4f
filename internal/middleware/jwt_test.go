package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const secret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func TestIssueAndParse(t *testing.T) {
	token, exp, err := IssueToken(secret, "client-1", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expiry %v is not in the future", exp)
	}
	id, err := ParseToken(secret, token)
	if err != nil || id != "client-1" {
		t.Fatalf("ParseToken = %q, %v", id, err)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	expired, _, _ := IssueToken(secret, "c", time.Minute, time.Now().Add(-time.Hour))
	wrongKey, _, _ := IssueToken("other", "c", time.Hour, time.Now())
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, SessionClaims{ClientID: "c"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, tok := range map[string]string{
		"expired":   expired,
		"wrong key": wrongKey,
		"alg none":  none,
		"garbage":   "not.a.token",
	} {
		if _, err := ParseToken(secret, tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: err = %v, want ErrInvalidToken", name, err)
		}
	}
}

func TestJWTAuth(t *testing.T) {
	router := gin.New()
	router.GET("/me", JWTAuth(secret), func(c *gin.Context) {
		id, _ := ClientID(c)
		c.String(http.StatusOK, id)
	})
	valid, _, _ := IssueToken(secret, "client-9", time.Hour, time.Now())

	tests := []struct {
		header string
		status int
		body   string
	}{
		{"", http.StatusUnauthorized, ""},
		{"Token " + valid, http.StatusUnauthorized, ""},
		{"Bearer nope", http.StatusUnauthorized, ""},
		{"Bearer " + valid, http.StatusOK, "client-9"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != tt.status {
			t.Fatalf("%q: status = %d, want %d", tt.header, w.Code, tt.status)
		}
		if tt.body != "" && w.Body.String() != tt.body {
			t.Fatalf("body = %q", w.Body.String())
		}
	}
}
