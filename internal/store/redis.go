package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gatehouse-io/authz-go/internal/policy"
	"github.com/gatehouse-io/authz-go/internal/types"
)

// RedisStore persists tenant policy sets in Redis: one hash per tenant
// (field = policy id, value = JSON) plus a version counter that every
// mutation INCRs. The version is read together with the hash so the
// consistency token tracks the set the caller actually saw.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "authz", now: time.Now}
}

// NewRedisClient builds a client from GATEHOUSE_REDIS_ADDR /
// GATEHOUSE_REDIS_PASSWORD / GATEHOUSE_REDIS_DB and verifies connectivity.
func NewRedisClient(ctx context.Context) (*redis.Client, error) {
	addr := os.Getenv("GATEHOUSE_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	db := 0
	if raw := os.Getenv("GATEHOUSE_REDIS_DB"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			db = parsed
		}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("GATEHOUSE_REDIS_PASSWORD"),
		DB:       db,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctxPing).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

func (s *RedisStore) hashKey(tenantID string) string {
	return s.prefix + ":policies:" + tenantID
}

func (s *RedisStore) verKey(tenantID string) string {
	return s.prefix + ":policies:" + tenantID + ":ver"
}

func (s *RedisStore) ActivePoliciesFor(ctx context.Context, tenantID string) ([]types.Policy, string, error) {
	// Version and hash are read in one MULTI/EXEC so the token names exactly
	// the set returned, even with writers racing the read.
	pipe := s.client.TxPipeline()
	verCmd := pipe.Get(ctx, s.verKey(tenantID))
	valsCmd := pipe.HVals(ctx, s.hashKey(tenantID))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, "", fmt.Errorf("%w: %v", types.ErrPolicyStoreUnavailable, err)
	}
	ver, err := verCmd.Result()
	if err == redis.Nil {
		ver = "0"
	} else if err != nil {
		return nil, "", fmt.Errorf("%w: %v", types.ErrPolicyStoreUnavailable, err)
	}
	vals, err := valsCmd.Result()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", types.ErrPolicyStoreUnavailable, err)
	}

	var out []types.Policy
	for _, raw := range vals {
		var p types.Policy
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue // skip unreadable records, they never grant access
		}
		if p.Status == types.PolicyStatusActive && p.DeletedAt == nil {
			out = append(out, p)
		}
	}
	policy.SortPolicies(out)
	return out, tenantID + ".v" + ver, nil
}

func (s *RedisStore) put(ctx context.Context, p types.Policy) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.hashKey(p.TenantID), p.ID, data)
	pipe.Incr(ctx, s.verKey(p.TenantID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", types.ErrPolicyStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) CreatePolicy(ctx context.Context, p types.Policy) (types.Policy, error) {
	if p.TenantID == "" {
		return types.Policy{}, types.ErrInvalidRequest
	}
	now := s.now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = types.PolicyStatusDraft
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := s.put(ctx, p); err != nil {
		return types.Policy{}, err
	}
	return p, nil
}

func (s *RedisStore) UpdatePolicy(ctx context.Context, p types.Policy) (types.Policy, error) {
	cur, err := s.GetPolicy(ctx, p.TenantID, p.ID)
	if err != nil {
		return types.Policy{}, err
	}
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = s.now().UTC()
	if err := s.put(ctx, p); err != nil {
		return types.Policy{}, err
	}
	return p, nil
}

func (s *RedisStore) GetPolicy(ctx context.Context, tenantID, id string) (types.Policy, error) {
	raw, err := s.client.HGet(ctx, s.hashKey(tenantID), id).Result()
	if err == redis.Nil {
		return types.Policy{}, types.ErrNotFound
	}
	if err != nil {
		return types.Policy{}, fmt.Errorf("%w: %v", types.ErrPolicyStoreUnavailable, err)
	}
	var p types.Policy
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return types.Policy{}, err
	}
	return p, nil
}

func (s *RedisStore) ListPolicies(ctx context.Context, tenantID string) ([]types.Policy, error) {
	vals, err := s.client.HVals(ctx, s.hashKey(tenantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrPolicyStoreUnavailable, err)
	}
	var out []types.Policy
	for _, raw := range vals {
		var p types.Policy
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue
		}
		if p.DeletedAt == nil {
			out = append(out, p)
		}
	}
	policy.SortPolicies(out)
	return out, nil
}

func (s *RedisStore) DeletePolicy(ctx context.Context, tenantID, id string) error {
	p, err := s.GetPolicy(ctx, tenantID, id)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	p.DeletedAt = &now
	p.UpdatedAt = now
	return s.put(ctx, p)
}
