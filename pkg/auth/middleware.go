package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/callowcreation/sfs-api/pkg/ctxkeys"
)

// ExtensionAuthMiddleware validates extension bearer tokens and injects the
// caller identity into the Gin context.
func ExtensionAuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "No authorization header"})
			c.Abort()
			return
		}

		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			c.Abort()
			return
		}

		claims, err := VerifyExtensionToken(parts[1], secret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Set(string(ctxkeys.KeyChannelID), claims.ChannelID)
		c.Set(string(ctxkeys.KeyOpaqueUserID), claims.OpaqueUserID)
		c.Set(string(ctxkeys.KeyUserID), claims.UserID)
		c.Set(string(ctxkeys.KeyRole), claims.Role)
		c.Set(string(ctxkeys.KeyAuthType), "extension_jwt")
		c.Next()
	}
}

// BasicAuthMiddleware validates the static client-id:secret credential used
// by the chat bot for service-to-service calls.
func BasicAuthMiddleware(clientID string, secret []byte) gin.HandlerFunc {
	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte(clientID+":"+base64.StdEncoding.EncodeToString(secret)))
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if subtle.ConstantTimeCompare([]byte(header), []byte(expected)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid service credential"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// IdentityFromContext extracts the identity injected by
// ExtensionAuthMiddleware.
func IdentityFromContext(c *gin.Context) Identity {
	return Identity{
		ChannelID:    c.GetString(string(ctxkeys.KeyChannelID)),
		OpaqueUserID: c.GetString(string(ctxkeys.KeyOpaqueUserID)),
		UserID:       c.GetString(string(ctxkeys.KeyUserID)),
		Role:         c.GetString(string(ctxkeys.KeyRole)),
	}
}
