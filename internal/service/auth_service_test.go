package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ontrak/internal/domain"
)

func TestRegisterAndLogin(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewAuthService(repo, "test-secret", time.Hour)
	ctx := context.Background()

	user, err := svc.Register(ctx, "Ana", "ana@example.com", "s3cret", domain.RoleTrainer)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.PasswordHash != "" {
		t.Error("password hash leaked in register response")
	}

	token, loggedIn, err := svc.Login(ctx, "ana@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token == "" {
		t.Error("empty token on successful login")
	}
	if loggedIn.ID != user.ID {
		t.Errorf("logged in user = %v, want %v", loggedIn.ID, user.ID)
	}
	if loggedIn.PasswordHash != "" {
		t.Error("password hash leaked in login response")
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewAuthService(repo, "test-secret", time.Hour)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "Ana", "ana@example.com", "s3cret", domain.RoleTrainer); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := svc.Register(ctx, "Other", "ana@example.com", "pw", domain.RoleTrainer); !errors.Is(err, ErrUserAlreadyExists) {
		t.Fatalf("err = %v, want ErrUserAlreadyExists", err)
	}
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	svc := NewAuthService(newFakeUserRepo(), "test-secret", time.Hour)
	if _, err := svc.Register(context.Background(), "Ana", "ana@example.com", "pw", domain.Role("client")); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("err = %v, want ErrInvalidRole", err)
	}
}

func TestLoginFailures(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewAuthService(repo, "test-secret", time.Hour)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "Ana", "ana@example.com", "s3cret", domain.RoleTrainer); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, _, err := svc.Login(ctx, "ana@example.com", "wrong"); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("wrong password: err = %v, want ErrAuthenticationFailed", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "s3cret"); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("unknown email: err = %v, want ErrAuthenticationFailed", err)
	}
}
