package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/kasuganosora/kadim/server/cache"
)

// StartSession records token as a live session of accountID for ttl.
func StartSession(ctx context.Context, c cache.Cache, token string, accountID int64, ttl time.Duration) error {
	if err := c.Set(ctx, cache.SessionKey(token), strconv.FormatInt(accountID, 10), ttl); err != nil {
		return err
	}
	return c.SAdd(ctx, cache.AccountSessionsKey(accountID), token)
}

// EndSession removes one session.
func EndSession(ctx context.Context, c cache.Cache, token string, accountID int64) error {
	if err := c.Del(ctx, cache.SessionKey(token)); err != nil {
		return err
	}
	return c.SRem(ctx, cache.AccountSessionsKey(accountID), token)
}

// RevokeSessions ends every session of accountID.
func RevokeSessions(ctx context.Context, c cache.Cache, accountID int64) error {
	setKey := cache.AccountSessionsKey(accountID)
	tokens, err := c.SMembers(ctx, setKey)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(tokens)+1)
	for _, tok := range tokens {
		keys = append(keys, cache.SessionKey(tok))
	}
	keys = append(keys, setKey)
	return c.Del(ctx, keys...)
}

// SessionValid reports whether token still has a live session.
func SessionValid(ctx context.Context, c cache.Cache, token string) bool {
	ok, err := c.Exists(ctx, cache.SessionKey(token))
	return err == nil && ok
}
