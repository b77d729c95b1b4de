package utils

import "testing"

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	if !CheckPassword("correct horse battery", hash) {
		t.Errorf("expected matching password to verify")
	}
	if CheckPassword("wrong password", hash) {
		t.Errorf("expected mismatched password to fail")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	secret := "clinic-secret"

	token, err := GenerateToken("a1b2c3", "nurse", secret)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ValidateToken(token, secret)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != "a1b2c3" {
		t.Errorf("expected UserID a1b2c3, got %s", claims.UserID)
	}
	if claims.Role != "nurse" {
		t.Errorf("expected Role nurse, got %s", claims.Role)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("a1b2c3", "patient", "right-secret")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := ValidateToken(token, "wrong-secret"); err == nil {
		t.Errorf("expected validation to fail with wrong secret")
	}
}
