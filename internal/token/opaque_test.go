package token

import (
	"context"
	"testing"
	"time"

	"github.com/gatehouse-io/authz-go/internal/types"
)

func TestIssueAndValidate(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	value, err := s.Issue(ctx, Record{
		Kind:        KindElevation,
		Subject:     "user:alice",
		TenantID:    "acme",
		GrantID:     "g-1",
		Permissions: []types.Permission{{Action: "read", Resource: "doc:*"}},
		ExpiresAt:   time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if value == "" {
		t.Fatal("empty token value")
	}

	rec, err := s.Validate(ctx, value)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if rec.Subject != "user:alice" || rec.Kind != KindElevation || rec.GrantID != "g-1" {
		t.Fatalf("record mismatch: %+v", rec)
	}
	if rec.IssuedAt.IsZero() {
		t.Fatal("issued-at not stamped")
	}
}

func TestValidateUnknownAndEmpty(t *testing.T) {
	s := NewStore()
	if _, err := s.Validate(context.Background(), ""); err != ErrInvalidToken {
		t.Fatalf("empty value err = %v, want ErrInvalidToken", err)
	}
	if _, err := s.Validate(context.Background(), "bogus"); err != ErrInvalidToken {
		t.Fatalf("unknown value err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateExpired(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	value, err := s.Issue(ctx, Record{Kind: KindElevation, Subject: "user:alice", ExpiresAt: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := s.Validate(ctx, value); err != ErrExpiredToken {
		t.Fatalf("err = %v, want ErrExpiredToken", err)
	}
}

func TestRevokeGrantRevokesAllTokens(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	v1, _ := s.Issue(ctx, Record{Kind: KindEmergencyAccess, GrantID: "bg-1", ExpiresAt: time.Now().Add(time.Hour)})
	v2, _ := s.Issue(ctx, Record{Kind: KindEmergencyAccess, GrantID: "bg-1", ExpiresAt: time.Now().Add(time.Hour)})
	other, _ := s.Issue(ctx, Record{Kind: KindElevation, GrantID: "jit-1", ExpiresAt: time.Now().Add(time.Hour)})

	s.RevokeGrant(ctx, "bg-1")

	if _, err := s.Validate(ctx, v1); err != ErrRevokedToken {
		t.Fatalf("v1 err = %v, want ErrRevokedToken", err)
	}
	if _, err := s.Validate(ctx, v2); err != ErrRevokedToken {
		t.Fatalf("v2 err = %v, want ErrRevokedToken", err)
	}
	if _, err := s.Validate(ctx, other); err != nil {
		t.Fatalf("unrelated grant token should stay valid, got %v", err)
	}
}

func TestIssuedValuesAreUnique(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	v1, _ := s.Issue(ctx, Record{Kind: KindElevation})
	v2, _ := s.Issue(ctx, Record{Kind: KindElevation})
	if v1 == v2 {
		t.Fatal("two issued tokens share a value")
	}
}
