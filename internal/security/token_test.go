package security_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Rrens/bi-genie/internal/security"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("superset-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestTokenExpired(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"expired jwt", signed(t, jwt.MapClaims{"sub": "1", "exp": now.Add(-time.Minute).Unix()}), true},
		{"live jwt", signed(t, jwt.MapClaims{"sub": "1", "exp": now.Add(time.Hour).Unix()}), false},
		{"jwt without exp", signed(t, jwt.MapClaims{"sub": "1"}), false},
		{"opaque token", "session-cookie-value", false},
		{"garbage with dots", "a.b.c", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := security.TokenExpired(tt.token, now); got != tt.want {
				t.Errorf("TokenExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := security.Fingerprint("token-a")
	if a != security.Fingerprint("token-a") {
		t.Error("fingerprint must be stable")
	}
	if a == security.Fingerprint("token-b") {
		t.Error("different tokens should not collide")
	}
	if len(a) != 16 {
		t.Errorf("unexpected fingerprint length %d", len(a))
	}
}
