package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxActorClaims = "custodia_actor_claims"

// RequireActor returns a Gin middleware that enforces a valid actor session
// Bearer token.
//
// On success it injects the *ActorClaims into the context under the
// "custodia_actor_claims" key.
func RequireActor(tokens *ActorTokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
			})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := tokens.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}

		c.Set(ctxActorClaims, claims)
		c.Next()
	}
}

// RequireRole returns a Gin middleware that enforces a valid actor token
// carrying the given role. Use it on administrative routes such as disposal.
func RequireRole(tokens *ActorTokenIssuer, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
			})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := tokens.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}

		if claims.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": role + " role required",
			})
			return
		}

		c.Set(ctxActorClaims, claims)
		c.Next()
	}
}

// ActorClaimsFromCtx retrieves the actor claims injected by RequireActor.
// Returns nil if no actor token is present in the context.
func ActorClaimsFromCtx(c *gin.Context) *ActorClaims {
	v, _ := c.Get(ctxActorClaims)
	claims, _ := v.(*ActorClaims)
	return claims
}
