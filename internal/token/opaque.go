package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"time"

	"github.com/gatehouse-io/authz-go/internal/types"
)

// Validation errors.
var (
	ErrInvalidToken = types.Err("invalid_token")
	ErrExpiredToken = types.Err("expired_token")
	ErrRevokedToken = types.Err("revoked_token")
)

// Kind labels what a token grants.
type Kind string

const (
	KindEmergencyAccess Kind = "emergency_access"
	KindElevation       Kind = "elevation"
)

// Record is the stored metadata for an issued token. Only the sha256 hash
// of the token value is kept; the value itself goes back to the caller once.
type Record struct {
	HashB64     string             `json:"hash_b64"`
	Kind        Kind               `json:"kind"`
	Subject     string             `json:"subject"`
	TenantID    string             `json:"tenant_id"`
	GrantID     string             `json:"grant_id"`
	Permissions []types.Permission `json:"permissions,omitempty"`
	IssuedAt    time.Time          `json:"issued_at"`
	ExpiresAt   time.Time          `json:"expires_at"`
	Revoked     bool               `json:"revoked"`
}

// Store holds token records keyed by value hash.
type Store struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{records: make(map[string]Record), now: time.Now}
}

func hashValue(tokenValue string) string {
	sum := sha256.Sum256([]byte(tokenValue))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Issue generates a cryptographically random opaque token, stores its hash
// with the record, and returns the token value.
func (s *Store) Issue(_ context.Context, rec Record) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	value := base64.RawURLEncoding.EncodeToString(raw)

	rec.HashB64 = hashValue(value)
	if rec.IssuedAt.IsZero() {
		rec.IssuedAt = s.now().UTC()
	}

	s.mu.Lock()
	s.records[rec.HashB64] = rec
	s.mu.Unlock()
	return value, nil
}

// Validate hashes the incoming value, loads the record, and checks revoked
// and expiry. Any lookup miss is reported as invalid, nothing more specific.
func (s *Store) Validate(_ context.Context, tokenValue string) (*Record, error) {
	if tokenValue == "" {
		return nil, ErrInvalidToken
	}
	s.mu.RLock()
	rec, ok := s.records[hashValue(tokenValue)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidToken
	}
	if rec.Revoked {
		return nil, ErrRevokedToken
	}
	if !rec.ExpiresAt.IsZero() && !s.now().UTC().Before(rec.ExpiresAt) {
		return nil, ErrExpiredToken
	}
	return &rec, nil
}

// RevokeGrant revokes every token issued for the given grant id.
func (s *Store) RevokeGrant(_ context.Context, grantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, rec := range s.records {
		if rec.GrantID == grantID {
			rec.Revoked = true
			s.records[h] = rec
		}
	}
}
