package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/qcline/qcline/pkg/models"
	"github.com/qcline/qcline/pkg/persistence"
)

// TokenRepository stores continuation tokens in a TTL cache. Items carry the
// token's own lifetime so the cache drops them on its own; DeleteExpired
// additionally reaps against an explicit clock, which keeps the repository
// deterministic under a mocked clock.
type TokenRepository struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, *models.ContinuationToken]
}

func NewTokenRepository() *TokenRepository {
	cache := ttlcache.New[string, *models.ContinuationToken](
		ttlcache.WithDisableTouchOnHit[string, *models.ContinuationToken](),
	)

	go cache.Start()

	return &TokenRepository{cache: cache}
}

func (r *TokenRepository) Save(ctx context.Context, token *models.ContinuationToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *token

	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		// Expiry precedes wall time (mocked clocks); leave reaping to
		// DeleteExpired.
		ttl = ttlcache.NoTTL
	}

	r.cache.Set(token.Token, &clone, ttl)

	return nil
}

func (r *TokenRepository) Get(ctx context.Context, token string) (*models.ContinuationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item := r.cache.Get(token)
	if item == nil {
		return nil, persistence.ErrTokenNotFound
	}

	clone := *item.Value()

	return &clone, nil
}

// Take atomically deletes and returns the token; concurrent callers are
// serialized on the repository mutex.
func (r *TokenRepository) Take(ctx context.Context, token string) (*models.ContinuationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item := r.cache.Get(token)
	if item == nil {
		return nil, persistence.ErrTokenNotFound
	}

	clone := *item.Value()
	r.cache.Delete(token)

	return &clone, nil
}

func (r *TokenRepository) Delete(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache.Delete(token)

	return nil
}

func (r *TokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reaped int64

	for key, item := range r.cache.Items() {
		if item.Value().Expired(now) {
			r.cache.Delete(key)

			reaped++
		}
	}

	return reaped, nil
}

func (r *TokenRepository) stop() {
	r.cache.Stop()
}
