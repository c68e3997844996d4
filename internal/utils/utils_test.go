package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	at, err := NewAccessToken("s3cret", "alice", "member", 15)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	if d := time.Until(at.Exp); d < 14*time.Minute || d > 15*time.Minute {
		t.Fatalf("exp in %v", d)
	}
	c, err := ParseAccessToken("s3cret", at.Token)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if c.Account() != "alice" || c.Role != "member" {
		t.Fatalf("claims = %+v", c)
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	good, _ := NewAccessToken("s3cret", "alice", "member", 15)
	expired, _ := NewAccessToken("s3cret", "alice", "member", -1)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "alice"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice"}).
		SignedString([]byte("s3cret"))

	cases := map[string]struct{ secret, raw string }{
		"wrong secret": {"other", good.Token},
		"expired":      {"s3cret", expired.Token},
		"alg none":     {"s3cret", none},
		"no exp":       {"s3cret", noExp},
		"garbage":      {"s3cret", "a.b.c"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseAccessToken(tc.secret, tc.raw); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestPasswordHash(t *testing.T) {
	h, err := HashPassword("secret1", 4)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !VerifyPassword(h, "secret1") || VerifyPassword(h, "secret2") {
		t.Fatalf("VerifyPassword mismatch")
	}
	if got, _ := bcrypt.Cost([]byte(h)); got != 4 {
		t.Fatalf("cost = %d, want 4", got)
	}
}

func TestPasswordCostClamped(t *testing.T) {
	cases := map[int]int{0: 10, -3: 10, 2: 4, 4: 4, 12: 12, 99: 31}
	for in, want := range cases {
		if got := PasswordCost(in); got != want {
			t.Errorf("PasswordCost(%d) = %d, want %d", in, got, want)
		}
	}
	h, err := HashPassword("secret1", 1)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if got, _ := bcrypt.Cost([]byte(h)); got != 4 {
		t.Fatalf("cost of low-cost hash = %d, want 4", got)
	}
}
