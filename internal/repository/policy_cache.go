package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/domain"
)

const policyCacheKeyPrefix = "sla:policy:"

// CachedPolicyStore is a read-through Redis cache in front of the policy
// repository. Cache failures degrade to direct reads.
type CachedPolicyStore struct {
	repo   SLAPolicyRepository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedPolicyStore wraps the repository with a Redis cache. A nil
// client disables caching.
func NewCachedPolicyStore(repo SLAPolicyRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedPolicyStore {
	return &CachedPolicyStore{repo: repo, client: client, ttl: ttl, logger: logger}
}

func (c *CachedPolicyStore) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	if c.client != nil {
		raw, err := c.client.Get(ctx, policyCacheKeyPrefix+id).Bytes()
		if err == nil {
			var policy domain.SLAPolicy
			if jsonErr := json.Unmarshal(raw, &policy); jsonErr == nil {
				return &policy, nil
			}
			// corrupt entry falls through to the repository
		} else if err != redis.Nil {
			c.logger.Warn("policy cache read failed", zap.String("policy_id", id), zap.Error(err))
		}
	}

	policy, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, policy)
	return policy, nil
}

// Create persists the policy and invalidates any stale cache entry.
func (c *CachedPolicyStore) Create(ctx context.Context, policy *domain.SLAPolicy) error {
	if err := c.repo.Create(ctx, policy); err != nil {
		return err
	}
	if c.client != nil {
		_ = c.client.Del(ctx, policyCacheKeyPrefix+policy.ID).Err()
	}
	return nil
}

// List passes through to the repository; listings are not cached.
func (c *CachedPolicyStore) List(ctx context.Context, limit, offset int) ([]domain.SLAPolicy, error) {
	return c.repo.List(ctx, limit, offset)
}

func (c *CachedPolicyStore) store(ctx context.Context, policy *domain.SLAPolicy) {
	if c.client == nil {
		return
	}
	raw, err := json.Marshal(policy)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, policyCacheKeyPrefix+policy.ID, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("policy cache write failed", zap.String("policy_id", policy.ID), zap.Error(err))
	}
}
