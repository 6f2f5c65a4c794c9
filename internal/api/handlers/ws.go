package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// WSServer upgrades a request into a ranking subscription.
type WSServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// Stream handles GET /ws. An optional battleId query parameter narrows the feed.
func Stream(hub WSServer) gin.HandlerFunc {
	return func(c *gin.Context) {
		hub.ServeWS(c.Writer, c.Request)
	}
}
