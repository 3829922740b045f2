package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/callowcreation/sfs-api/pkg/auth"
)

// RegisterRoutes attaches all API routes to the router. Extension routes
// require a channel-scoped bearer token; bot routes use the static service
// credential.
func RegisterRoutes(router *gin.Engine, extensionSecret []byte, botClientID string, botSecret []byte) {
	api := router.Group("/api")
	api.Use(auth.ExtensionAuthMiddleware(extensionSecret))
	{
		api.GET("/shoutouts/:id", GetShoutouts)
		api.PUT("/shoutouts/:id", InsertShoutout)
		api.DELETE("/shoutouts/:id", RemoveShoutout)
		api.PUT("/shoutouts/:id/move-up", MoveUpShoutout)
		api.GET("/shoutouts/:id/pin-item", GetPin)
		api.PUT("/shoutouts/:id/pin-item", PinShoutout)
		api.DELETE("/shoutouts/:id/pin-item", ReleasePin)
		api.GET("/shoutouts/:id/migration", GetMigrationStatus)
		api.GET("/settings/:id", GetSettings)
		api.POST("/settings/:id", SaveSettings)
	}

	bot := router.Group("/channels")
	bot.Use(auth.BasicAuthMiddleware(botClientID, botSecret))
	{
		bot.GET("/ids", ListChannelIDs)
		bot.GET("/behaviours/:id", ChannelBehaviours)
	}

	router.GET("/ws", ServeWS)
	router.GET("/ws/stats", WSStats)
}
