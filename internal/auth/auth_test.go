package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"taskeer/internal/config"
	"taskeer/internal/models"
)

func TestParseExpiry(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"7d", 7 * 24 * time.Hour},
		{"12h", 12 * time.Hour},
		{"90m", 90 * time.Minute},
		{"1h30m", 90 * time.Minute},
		{"", 7 * 24 * time.Hour},
		{"soon", 7 * 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseExpiry(tt.in); got != tt.want {
				t.Errorf("parseExpiry(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTokenRoundTrip(t *testing.T) {
	m := NewJWTManager(config.JWTConfig{Secret: "s3cret", ExpiresIn: "1h"})
	tok, err := m.GenerateToken(&models.User{ID: 42, Email: "ana@example.com", Name: "Ana"})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := m.ValidateToken(tok)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != 42 || claims.Email != "ana@example.com" || claims.Name != "Ana" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	m := NewJWTManager(config.JWTConfig{Secret: "s3cret", ExpiresIn: "1m"})
	tok, err := m.GenerateToken(&models.User{ID: 1})
	if err != nil {
		t.Fatal(err)
	}
	m.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := m.ValidateToken(tok); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestForeignSecretRejected(t *testing.T) {
	a := NewJWTManager(config.JWTConfig{Secret: "a"})
	b := NewJWTManager(config.JWTConfig{Secret: "b"})
	tok, _ := a.GenerateToken(&models.User{ID: 1})
	if _, err := b.ValidateToken(tok); err == nil {
		t.Fatal("expected signature failure")
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPasswordHash("hunter22", hash) {
		t.Error("correct password rejected")
	}
	if CheckPasswordHash("hunter23", hash) {
		t.Error("wrong password accepted")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewJWTManager(config.JWTConfig{Secret: "s3cret"})
	tok, _ := m.GenerateToken(&models.User{ID: 9, Email: "leo@example.com", Name: "Leo"})

	r := gin.New()
	r.GET("/me", JWTMiddleware(m), func(c *gin.Context) {
		id, _ := GetUserID(c)
		email, _ := GetIdentity(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "email": email})
	})

	tests := []struct {
		name   string
		target string
		header string
		status int
	}{
		{"bearer", "/me", "Bearer " + tok, http.StatusOK},
		{"query", "/me?token=" + tok, "", http.StatusOK},
		{"missing", "/me", "", http.StatusUnauthorized},
		{"garbage", "/me", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
		})
	}
}
