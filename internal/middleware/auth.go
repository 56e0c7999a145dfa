package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"community-chat/internal/identity"
)

const identityContextKey = "identity"

// AuthMiddleware validates the bearer session token and stores the
// resolved identity on the request context.
func AuthMiddleware(verifier identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		ident, err := verifier.Verify(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(identityContextKey, ident)
		c.Next()
	}
}

// IdentityFromContext retrieves the identity set by AuthMiddleware.
func IdentityFromContext(c *gin.Context) (identity.Identity, bool) {
	val, ok := c.Get(identityContextKey)
	if !ok {
		return identity.Identity{}, false
	}
	ident, ok := val.(identity.Identity)
	return ident, ok
}
