package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/kadim/server/cache"
	"github.com/kasuganosora/kadim/server/config"
)

const (
	AccountIDKey = "account_id"
	TokenKey     = "token"
)

var (
	ErrMissingToken   = errors.New("missing token")
	ErrInvalidToken   = errors.New("invalid token")
	ErrSessionExpired = errors.New("session expired")
	ErrBanned         = errors.New("account banned")
)

// Authenticate validates a JWT, its live session and the account's ban
// marker.
func Authenticate(ctx context.Context, sec config.SecurityConfig, c cache.Cache, token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	claims, err := ParseToken(token, sec.JWTSecret)
	if err != nil {
		return nil, ErrInvalidToken
	}
	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if !SessionValid(cacheCtx, c, token) {
		return nil, ErrSessionExpired
	}
	if banned, _ := c.Exists(cacheCtx, cache.BanKey(claims.AccountID)); banned {
		return nil, ErrBanned
	}
	return claims, nil
}

// AuthStatus maps an Authenticate error to its HTTP status.
func AuthStatus(err error) int {
	if errors.Is(err, ErrBanned) {
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}

// StreamToken returns the token query parameter of an SSE or WebSocket
// request, else its Bearer token.
func StreamToken(c *gin.Context) string {
	if tok := c.Query("token"); tok != "" {
		return tok
	}
	return bearerToken(c)
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// OriginAllowed reports whether a browser origin may open an event stream.
// An empty allow list or a missing Origin header is accepted.
func OriginAllowed(allowed []string, origin string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// Auth validates the Bearer JWT token, checks the session cache and rejects
// banned accounts.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr := bearerToken(ctx)
		claims, err := Authenticate(ctx.Request.Context(), sec, c, tokenStr)
		if err != nil {
			ctx.AbortWithStatusJSON(AuthStatus(err), gin.H{"error": err.Error()})
			return
		}
		ctx.Set(AccountIDKey, claims.AccountID)
		ctx.Set(TokenKey, tokenStr)
		ctx.Next()
	}
}

// GetAccountID retrieves the authenticated account ID from the Gin context.
func GetAccountID(c *gin.Context) int64 {
	if v, exists := c.Get(AccountIDKey); exists {
		return v.(int64)
	}
	return 0
}

// GetToken returns the bearer token of the current request.
func GetToken(c *gin.Context) string {
	return c.GetString(TokenKey)
}
