package middleware

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
)

// IPWhitelist returns a middleware that only allows requests from the given
// IPs or CIDR ranges. If the whitelist is empty, all IPs are allowed.
func IPWhitelist(entries []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(entries))
	var nets []*net.IPNet
	for _, e := range entries {
		if _, n, err := net.ParseCIDR(e); err == nil {
			nets = append(nets, n)
			continue
		}
		allowed[e] = true
	}
	return func(c *gin.Context) {
		if len(allowed) == 0 && len(nets) == 0 {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if allowed[ip] {
			c.Next()
			return
		}
		if parsed := net.ParseIP(ip); parsed != nil {
			for _, n := range nets {
				if n.Contains(parsed) {
					c.Next()
					return
				}
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
	}
}
