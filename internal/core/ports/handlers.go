package ports

import (
	"github.com/gin-gonic/gin"
)

type AdminHandler interface {
	Health(c *gin.Context)
	Ready(c *gin.Context)
	ListRelays(c *gin.Context)
	ListParticipants(c *gin.Context)
}

type ViewerHandler interface {
	Status(c *gin.Context)
	Tile(c *gin.Context)
	Preview(c *gin.Context)
	Mute(c *gin.Context)
	Start(c *gin.Context)
	Hangup(c *gin.Context)
}
