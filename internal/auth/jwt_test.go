package auth

import (
	"context"
	"testing"
)

func TestDevTokenProvider_MintAndValidate(t *testing.T) {
	p := NewDevTokenProvider("test-secret", "user-123")

	tok, err := p.GetToken(context.Background(), "", "", false)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if tok.AccessToken == "" {
		t.Fatal("expected non-empty access token")
	}

	sub, err := ValidateDevToken(tok.AccessToken, "test-secret")
	if err != nil {
		t.Fatalf("ValidateDevToken: %v", err)
	}
	if sub != "user-123" {
		t.Fatalf("expected sub user-123, got %s", sub)
	}
}

func TestValidateDevToken_WrongSecretRejected(t *testing.T) {
	p := NewDevTokenProvider("right-secret", "user-123")
	tok, err := p.Mint()
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	if _, err := ValidateDevToken(tok, "wrong-secret"); err == nil {
		t.Fatal("expected validation to fail with wrong secret")
	}
}

func TestValidateDevToken_EmptyRejected(t *testing.T) {
	if _, err := ValidateDevToken("", "secret"); err == nil {
		t.Fatal("expected error for empty token")
	}
}
