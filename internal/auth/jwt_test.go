package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"sisi-realtime/internal/model"
)

var sam = model.User{ID: "u-sam", Username: "sam", DisplayName: "Sam"}

func TestIssueAndVerifyToken(t *testing.T) {
	cfg := TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	now := time.Now()
	tok, err := IssueToken(sam, cfg, now)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	claims, err := VerifyToken(tok, cfg)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.UserID() != "u-sam" || claims.Username != "sam" || claims.DisplayName != "Sam" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.ID == "" {
		t.Fatalf("expected a token id")
	}
	if claims.ExpiresAt == nil || claims.ExpiresAt.Unix() != now.Add(time.Hour).Unix() {
		t.Fatalf("unexpected expiry %v", claims.ExpiresAt)
	}
}

func TestReadClaimsMatchesIssuedToken(t *testing.T) {
	now := time.Now()
	tok, err := IssueToken(sam, TokenConfig{Secret: "secret", Expiry: time.Minute}, now)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	claims, err := ReadClaims(tok)
	if err != nil {
		t.Fatalf("ReadClaims: %v", err)
	}
	if claims.UserID() != "u-sam" || claims.Username != "sam" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.ExpiredAt(now) {
		t.Fatalf("token should be live when issued")
	}
	if !claims.ExpiredAt(now.Add(2 * time.Minute)) {
		t.Fatalf("token should be expired after its expiry")
	}

	if _, err := ReadClaims("not-a-jwt"); err == nil {
		t.Fatalf("expected error for malformed token")
	}
}

func TestExpiredAtWithoutExp(t *testing.T) {
	c := &Claims{}
	if c.ExpiredAt(time.Now()) {
		t.Fatalf("claims without exp never expire")
	}
}

func TestVerifyToken_WrongSecretOrIssuer(t *testing.T) {
	cfg := TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	tok, err := IssueToken(sam, cfg, time.Now())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	if _, err := VerifyToken(tok, TokenConfig{Secret: "wrong", Issuer: "test"}); err == nil {
		t.Fatalf("expected error for wrong secret")
	}
	if _, err := VerifyToken(tok, TokenConfig{Secret: "secret", Issuer: "other"}); err == nil {
		t.Fatalf("expected error for wrong issuer")
	}
}

func TestVerifyToken_Expired(t *testing.T) {
	tok, err := IssueToken(sam, TokenConfig{Secret: "secret", Expiry: time.Minute}, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := VerifyToken(tok, TokenConfig{Secret: "secret"}); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestVerifyToken_RejectsOtherAlgorithms(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-sam"},
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	if _, err := VerifyToken(tok, TokenConfig{Secret: "secret"}); err == nil {
		t.Fatalf("expected HS512 token to be rejected")
	}
}

func TestVerifyToken_RequiresSubject(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Username: "sam"}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	if _, err := VerifyToken(tok, TokenConfig{Secret: "secret"}); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("expected ErrMissingUser, got %v", err)
	}
}

func TestIssueToken_InvalidInput(t *testing.T) {
	cases := []struct {
		user model.User
		cfg  TokenConfig
		want error
	}{
		{sam, TokenConfig{Expiry: time.Hour}, ErrMissingSecret},
		{model.User{}, TokenConfig{Secret: "s", Expiry: time.Hour}, ErrMissingUser},
		{sam, TokenConfig{Secret: "s", Expiry: -time.Second}, ErrInvalidExpiry},
	}
	for _, tc := range cases {
		if _, err := IssueToken(tc.user, tc.cfg, time.Now()); !errors.Is(err, tc.want) {
			t.Fatalf("expected %v, got %v", tc.want, err)
		}
	}
}

func TestDefaultTokenConfig(t *testing.T) {
	cfg := DefaultTokenConfig("s")
	if cfg.Issuer != "sisi-devserver" || cfg.Expiry != 24*time.Hour {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}
