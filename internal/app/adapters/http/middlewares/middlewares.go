package middlewares

import (
	"crypto/subtle"
	"github.com/gin-gonic/gin"
	"krosty/pkg/logger"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

type Middlewares struct {
	log logger.Logger
}

func New(log logger.Logger) *Middlewares {
	return &Middlewares{log: log}
}

// Auth checks the bearer token. With no token configured the bridge only
// answers loopback clients.
func (m *Middlewares) Auth(expected string) gin.HandlerFunc {
	if expected == "" {
		return m.LocalOnly()
	}

	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(auth, "Bearer ")), []byte(expected)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (m *Middlewares) LocalOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
		if err != nil {
			host = c.Request.RemoteAddr
		}

		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			m.log.Warn("Rejected non-local request", slog.String("remote", c.Request.RemoteAddr), slog.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
