package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const IdentityKey = "identity"

func AuthMiddleWare(verifier *Verifier) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		var token string
		tokenQuery := ctx.Query("token")

		if authHeader != "" {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		} else if tokenQuery != "" {
			token = tokenQuery
		} else {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization is not found!"})
			return
		}

		// verify token
		identity, err := verifier.VerifyJWT(token)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		ctx.Set(IdentityKey, identity)
		ctx.Next()
	}
}

// InternalAuthMiddleware guards endpoints the school backend calls
func InternalAuthMiddleware(secret string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		given := ctx.GetHeader("X-Internal-Secret")
		if given == "" || subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		ctx.Next()
	}
}
