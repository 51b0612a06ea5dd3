package cache

import "fmt"

// SessionKey maps a bearer token to its account id.
func SessionKey(token string) string { return "session:" + token }

// AccountSessionsKey is the set of live tokens for an account.
func AccountSessionsKey(accountID int64) string { return fmt.Sprintf("sessions:%d", accountID) }

// BanKey marks an account as banned for the auth middleware.
func BanKey(accountID int64) string { return fmt.Sprintf("ban:%d", accountID) }

// TradeLockKey is the settlement lock for a character pair. The smaller id goes first
// so both sides of a trade contend on the same key.
func TradeLockKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("lock:trade:%d_%d", a, b)
}
