package httpapi

import (
	"context"
	"testing"
	"time"

	"lojapet/backend/internal/domain"
	"lojapet/backend/internal/store/memory"
)

func TestTokenRoundtrip(t *testing.T) {
	auth := NewAuthManager("test-secret", time.Hour, memory.NewSeeded(false))

	token, err := auth.sign("admin", "admin", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	actor, err := auth.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("actor = %+v, want admin/admin", actor)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	repo := memory.NewSeeded(false)
	auth := NewAuthManager("secret-a", time.Hour, repo)
	other := NewAuthManager("secret-b", time.Hour, repo)

	token, err := other.sign("admin", "admin", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatal("token signed with another secret accepted")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := NewAuthManager("test-secret", time.Hour, memory.NewSeeded(false))

	token, err := auth.sign("admin", "admin", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth := NewAuthManager("test-secret", time.Hour, memory.NewSeeded(false))
	ctx := context.Background()

	if _, err := auth.Login(ctx, domain.LoginRequest{Username: "admin", Password: "wrong"}); err == nil {
		t.Fatal("wrong password accepted")
	}
	if _, err := auth.Login(ctx, domain.LoginRequest{Username: "ghost", Password: "admin123"}); err == nil {
		t.Fatal("unknown user accepted")
	}
}

func TestBootstrapAdminIsIdempotent(t *testing.T) {
	repo := memory.NewSeeded(false)
	auth := NewAuthManager("test-secret", time.Hour, repo)
	ctx := context.Background()

	if err := auth.BootstrapAdmin(ctx, "dono", "segredo-forte"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := auth.BootstrapAdmin(ctx, "dono", "outro-segredo"); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}

	// The first password wins.
	if _, err := auth.Login(ctx, domain.LoginRequest{Username: "dono", Password: "segredo-forte"}); err != nil {
		t.Fatalf("login with original password: %v", err)
	}
	if _, err := auth.Login(ctx, domain.LoginRequest{Username: "dono", Password: "outro-segredo"}); err == nil {
		t.Fatal("login with overwritten password accepted")
	}
}
