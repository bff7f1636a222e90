package middleware

import (
	"context"
	"net/http"
	"sereno/services"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	sessionKey       = "session"
	testTokenPrefix  = "test_token_"
	lastSeenInterval = time.Minute
)

// AuthOptions configure AuthMiddleware
type AuthOptions struct {
	Tokens *services.TokenIssuer
	// AllowTestTokens accepts X-User-ID and "Bearer test_token_<id>", local development only
	AllowTestTokens bool
	// Touch is called at most once a minute per user to refresh presence
	Touch func(ctx context.Context, userID string)
	// Resolve swaps the token identity for the stored profile
	Resolve func(ctx context.Context, sess services.Session) (services.Session, error)
}

type lastSeenThrottle struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func (t *lastSeenThrottle) due(userID string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.seen[userID]; ok && now.Sub(last) < lastSeenInterval {
		return false
	}
	t.seen[userID] = now
	return true
}

// AuthMiddleware resolves the caller's session and rejects anonymous requests
func AuthMiddleware(opts AuthOptions) gin.HandlerFunc {
	throttle := &lastSeenThrottle{seen: make(map[string]time.Time)}
	return func(c *gin.Context) {
		sess, ok := resolveSession(c, opts)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		if opts.Resolve != nil {
			resolved, err := opts.Resolve(c.Request.Context(), sess)
			switch {
			case services.KindOf(err) == services.KindNotFound:
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
				return
			case err != nil:
				logrus.WithFields(logrus.Fields{
					"function": "AuthMiddleware",
					"user_id":  sess.UserID,
					"error":    err.Error(),
				}).Error("Failed to resolve session")
				c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": services.UserMessage(err)})
				return
			}
			sess = resolved
		}
		c.Set(sessionKey, sess)
		c.Set("user_id", sess.UserID)
		if opts.Touch != nil && throttle.due(sess.UserID, time.Now()) {
			opts.Touch(c.Request.Context(), sess.UserID)
		}
		c.Next()
	}
}

func resolveSession(c *gin.Context, opts AuthOptions) (services.Session, bool) {
	if opts.AllowTestTokens {
		if userID := strings.TrimSpace(c.GetHeader("X-User-ID")); userID != "" {
			return services.Session{UserID: userID, DisplayName: c.GetHeader("X-User-Name")}, true
		}
	}

	token := bearerToken(c)
	if token == "" {
		// browsers cannot set headers on WebSocket upgrades
		token = c.Query("token")
	}
	if token == "" {
		return services.Session{}, false
	}

	if strings.HasPrefix(token, testTokenPrefix) {
		if !opts.AllowTestTokens {
			return services.Session{}, false
		}
		userID := strings.TrimPrefix(token, testTokenPrefix)
		return services.Session{UserID: userID}, userID != ""
	}

	if opts.Tokens == nil {
		return services.Session{}, false
	}
	sess, err := opts.Tokens.Parse(token)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "AuthMiddleware",
			"path":     c.FullPath(),
			"error":    err.Error(),
		}).Debug("Rejected token")
		return services.Session{}, false
	}
	return sess, true
}

func bearerToken(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// CurrentSession returns the session stored by AuthMiddleware
func CurrentSession(c *gin.Context) (services.Session, bool) {
	value, ok := c.Get(sessionKey)
	if !ok {
		return services.Session{}, false
	}
	sess, ok := value.(services.Session)
	return sess, ok
}

// CORSMiddleware allows the configured origins; "*" allows any
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	originMap := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		originMap[strings.TrimSpace(origin)] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if originMap[origin] || originMap["*"] {
			c.Header("Access-Control-Allow-Origin", origin)
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-User-ID")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
