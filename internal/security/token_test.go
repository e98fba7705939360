package security

import (
	"testing"
	"time"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := NewAccessToken("secret", "schoolhub", time.Hour, Claims{
		UserID: "u1",
		Role:   "parent",
		Email:  "p@example.com",
	})
	if err != nil {
		t.Fatalf("NewAccessToken failed: %v", err)
	}

	claims, err := ParseToken("secret", token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if claims.UserID != "u1" {
		t.Errorf("UserID = %q, want u1", claims.UserID)
	}
	if claims.Role != "parent" {
		t.Errorf("Role = %q, want parent", claims.Role)
	}
	if claims.Email != "p@example.com" {
		t.Errorf("Email = %q, want p@example.com", claims.Email)
	}
	if claims.Issuer != "schoolhub" {
		t.Errorf("Issuer = %q, want schoolhub", claims.Issuer)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewAccessToken("secret", "schoolhub", time.Hour, Claims{UserID: "u1"})
	if err != nil {
		t.Fatalf("NewAccessToken failed: %v", err)
	}

	if _, err := ParseToken("other-secret", token); err == nil {
		t.Error("expected parse with wrong secret to fail")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := NewAccessToken("secret", "schoolhub", -time.Minute, Claims{UserID: "u1"})
	if err != nil {
		t.Fatalf("NewAccessToken failed: %v", err)
	}

	if _, err := ParseToken("secret", token); err == nil {
		t.Error("expected expired token to fail validation")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	if _, err := ParseToken("secret", "not.a.token"); err == nil {
		t.Error("expected malformed token to fail")
	}
}
