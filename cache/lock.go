package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLocked is returned when a lock is already held by someone else.
var ErrLocked = errors.New("cache: lock held")

// Lock acquires key with SetNX and returns a release func.
// Release only deletes the key when it still holds our token.
func Lock(ctx context.Context, c Cache, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	ok, err := c.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		cur, err := c.Get(context.Background(), key)
		if err == nil && cur == token {
			_ = c.Del(context.Background(), key)
		}
	}, nil
}
