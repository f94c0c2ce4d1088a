package tokens_test

import (
	"testing"

	"github.com/carebridge/referral-hub/internal/tokens"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	mgr := tokens.NewManager("test-signing-key")

	tok, err := mgr.GenerateAccessToken("user-1", "HOSP1")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	claims, err := mgr.ValidateToken(tok)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("expected user-1, got %s", claims.UserID)
	}
	if claims.HospitalID != "HOSP1" {
		t.Errorf("expected HOSP1, got %s", claims.HospitalID)
	}
	if claims.TokenType != tokens.Access {
		t.Errorf("expected access token, got %s", claims.TokenType)
	}
	if claims.ID == "" {
		t.Error("expected a jti")
	}
}

func TestRefreshTokenCarriesType(t *testing.T) {
	mgr := tokens.NewManager("test-signing-key")

	tok, err := mgr.GenerateRefreshToken("user-1", "")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := mgr.ValidateToken(tok)
	if err != nil {
		t.Fatal(err)
	}
	if claims.TokenType != tokens.Refresh {
		t.Errorf("expected refresh token, got %s", claims.TokenType)
	}
	if claims.HospitalID != "" {
		t.Errorf("expected empty hospital before registration, got %s", claims.HospitalID)
	}
}

func TestValidateToken_WrongKey(t *testing.T) {
	tok, err := tokens.NewManager("key-one").GenerateAccessToken("user-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tokens.NewManager("key-two").ValidateToken(tok); err == nil {
		t.Error("expected validation to fail with the wrong key")
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	if _, err := tokens.NewManager("key").ValidateToken("not.a.jwt"); err == nil {
		t.Error("expected validation to fail")
	}
}

func TestJTIsAreUnique(t *testing.T) {
	mgr := tokens.NewManager("test-signing-key")

	a, _ := mgr.GenerateAccessToken("user-1", "")
	b, _ := mgr.GenerateAccessToken("user-1", "")
	ca, err := mgr.ValidateToken(a)
	if err != nil {
		t.Fatal(err)
	}
	cb, err := mgr.ValidateToken(b)
	if err != nil {
		t.Fatal(err)
	}
	if ca.ID == cb.ID {
		t.Error("two tokens must not share a jti")
	}
}
