package auth

import (
	"context"
	"testing"
	"time"
)

var tokenTestBase = time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(clock func() time.Time) *TokenManager {
	return NewTokenManager(TokenManagerConfig{
		SigningSecret: []byte("unit-test-secret"),
		Issuer:        "fieldsync",
		Audience:      "fieldsync-clients",
		TokenTTL:      time.Hour,
		Clock:         clock,
	})
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	manager := newTestManager(func() time.Time { return tokenTestBase })

	claims := AccessClaims{TenantID: "tenant-a", DisplayName: "Dana", Role: "member"}
	claims.Subject = "user-1"

	signed, expiresIn, err := manager.Issue(context.Background(), claims)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if expiresIn != int64(time.Hour.Seconds()) {
		t.Fatalf("expected one hour expiry, got %d seconds", expiresIn)
	}

	parsed, err := manager.Validate(signed)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if parsed.TenantID != "tenant-a" || parsed.Subject != "user-1" {
		t.Fatalf("unexpected claims: %+v", parsed)
	}
	if parsed.DisplayName != "Dana" || parsed.Role != "member" {
		t.Fatalf("unexpected profile claims: %+v", parsed)
	}
}

func TestIssueRejectsIncompleteClaims(t *testing.T) {
	manager := newTestManager(func() time.Time { return tokenTestBase })

	noSubject := AccessClaims{TenantID: "tenant-a"}
	if _, _, err := manager.Issue(context.Background(), noSubject); err != ErrMissingSubjectClaim {
		t.Fatalf("expected ErrMissingSubjectClaim, got %v", err)
	}

	noTenant := AccessClaims{}
	noTenant.Subject = "user-1"
	if _, _, err := manager.Issue(context.Background(), noTenant); err != ErrMissingTenantClaim {
		t.Fatalf("expected ErrMissingTenantClaim, got %v", err)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	current := tokenTestBase
	manager := newTestManager(func() time.Time { return current })

	claims := AccessClaims{TenantID: "tenant-a"}
	claims.Subject = "user-1"
	signed, _, err := manager.Issue(context.Background(), claims)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	current = tokenTestBase.Add(2 * time.Hour)
	if _, err := manager.Validate(signed); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	issuer := newTestManager(func() time.Time { return tokenTestBase })
	verifier := NewTokenManager(TokenManagerConfig{
		SigningSecret: []byte("a-different-secret"),
		Issuer:        "fieldsync",
		Audience:      "fieldsync-clients",
		Clock:         func() time.Time { return tokenTestBase },
	})

	claims := AccessClaims{TenantID: "tenant-a"}
	claims.Subject = "user-1"
	signed, _, err := issuer.Issue(context.Background(), claims)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := verifier.Validate(signed); err == nil {
		t.Fatalf("expected signature mismatch to be rejected")
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	manager := newTestManager(func() time.Time { return tokenTestBase })
	if _, err := manager.Validate("not-a-token"); err == nil {
		t.Fatalf("expected malformed token to be rejected")
	}
}
