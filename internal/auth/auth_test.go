package auth

import (
	"net/http/httptest"
	"testing"
)

func TestPasswordHashing(t *testing.T) {
	a := New("test-secret", 60)

	hash, err := a.HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !a.CheckPassword(hash, "correct horse battery staple") {
		t.Error("correct password rejected")
	}
	if a.CheckPassword(hash, "wrong password") {
		t.Error("wrong password accepted")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	a := New("test-secret", 60)

	token, err := a.GenerateToken("user123", "alice")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != "user123" || claims.Handle != "alice" {
		t.Errorf("claims = %s/%s, want user123/alice", claims.UserID, claims.Handle)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	a := New("secret-one", 60)
	b := New("secret-two", 60)

	token, err := a.GenerateToken("user123", "alice")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := b.ValidateToken(token); err == nil {
		t.Error("token signed with a different secret was accepted")
	}
}

func TestExpiredToken(t *testing.T) {
	a := New("test-secret", -1)

	token, err := a.GenerateToken("user123", "alice")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := a.ValidateToken(token); err == nil {
		t.Error("expired token was accepted")
	}
}

func TestExtractClaims(t *testing.T) {
	a := New("test-secret", 60)
	token, _ := a.GenerateToken("user123", "alice")

	r := httptest.NewRequest("GET", "/api/me", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	claims := a.ExtractClaims(r)
	if claims == nil || claims.UserID != "user123" {
		t.Errorf("ExtractClaims = %+v, want user123", claims)
	}

	r = httptest.NewRequest("GET", "/api/me", nil)
	if a.ExtractClaims(r) != nil {
		t.Error("missing header should yield nil claims")
	}

	r = httptest.NewRequest("GET", "/api/me", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if a.ExtractClaims(r) != nil {
		t.Error("non-bearer header should yield nil claims")
	}

	r = httptest.NewRequest("GET", "/api/me", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	if a.ExtractClaims(r) != nil {
		t.Error("invalid token should yield nil claims")
	}
}
