package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"groovie/pkg/domain"
)

const (
	defaultAccessCacheTTL    = 5 * time.Minute
	defaultAccessCachePrefix = "groovie:access"
)

// AccessLevels resolves a user's tier from the user store, with an optional
// Redis read-through cache. Unknown users are free.
type AccessLevels struct {
	users  UserReader
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	group  singleflight.Group
}

// NewAccessLevels builds the resolver. A nil client disables caching.
func NewAccessLevels(users UserReader, client redis.UniversalClient, ttl time.Duration) *AccessLevels {
	if ttl <= 0 {
		ttl = defaultAccessCacheTTL
	}
	return &AccessLevels{
		users:  users,
		client: client,
		ttl:    ttl,
		prefix: defaultAccessCachePrefix,
	}
}

func (a *AccessLevels) AccessLevel(ctx context.Context, userID string) (domain.AccessLevel, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.AccessFree, nil
	}
	if level, ok := a.cached(ctx, userID); ok {
		return level, nil
	}
	// The lookup is shared by every waiter, so one caller going away must not
	// cancel it for the rest.
	lookupCtx := context.WithoutCancel(ctx)
	v, err, _ := a.group.Do(userID, func() (any, error) {
		user, ok, err := a.users.GetUser(lookupCtx, userID)
		if err != nil {
			return domain.AccessFree, err
		}
		level := domain.AccessFree
		if ok && user.AccessLevel.Valid() {
			level = user.AccessLevel
		}
		a.store(lookupCtx, userID, level)
		return level, nil
	})
	if err != nil {
		return domain.AccessFree, err
	}
	return v.(domain.AccessLevel), nil
}

// Invalidate drops the cached tier after the user record changed.
func (a *AccessLevels) Invalidate(ctx context.Context, userID string) error {
	if a.client == nil {
		return nil
	}
	return a.client.Del(ctx, a.key(userID)).Err()
}

func (a *AccessLevels) cached(ctx context.Context, userID string) (domain.AccessLevel, bool) {
	if a.client == nil {
		return "", false
	}
	raw, err := a.client.Get(ctx, a.key(userID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("access cache read failed", "user_id", userID, "err", err)
		}
		return "", false
	}
	level := domain.AccessLevel(raw)
	if !level.Valid() {
		return "", false
	}
	return level, true
}

func (a *AccessLevels) store(ctx context.Context, userID string, level domain.AccessLevel) {
	if a.client == nil {
		return
	}
	if err := a.client.Set(ctx, a.key(userID), string(level), a.ttl).Err(); err != nil {
		slog.Warn("access cache write failed", "user_id", userID, "err", err)
	}
}

func (a *AccessLevels) key(userID string) string {
	return a.prefix + ":" + userID
}
