package relay

import (
	"encoding/json"
	"net/http"

	"school-collab/internal/domain"
	apiError "school-collab/internal/errors"
	"school-collab/internal/protocol"
	"school-collab/internal/utils"

	"github.com/gin-gonic/gin"
)

type DataSyncRequest struct {
	UserID  string          `json:"userId"`
	Payload json.RawMessage `json:"payload"`
}

type DeliveryResponse struct {
	Delivered int `json:"delivered"`
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": s.hub.ConnectionCount(),
	})
}

// PushDataSync broadcasts a backend data change to every connection
func (s *Server) PushDataSync(c *gin.Context) {
	var req DataSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apiError.BadRequest("Invalid payload", err))
		return
	}
	if len(req.Payload) == 0 || string(req.Payload) == "null" {
		c.Error(apiError.BadRequest("Payload is required", nil))
		return
	}

	delivered := s.hub.Broadcast(protocol.NewDataSync(req.UserID, req.Payload))
	c.JSON(http.StatusAccepted, DeliveryResponse{Delivered: delivered})
}

// PushSystemAlert broadcasts an alert to every connection
func (s *Server) PushSystemAlert(c *gin.Context) {
	var alert domain.SystemAlert
	if err := c.ShouldBindJSON(&alert); err != nil {
		c.Error(apiError.BadRequest("Invalid payload", err))
		return
	}
	if err := domain.Validate(alert); err != nil {
		c.Error(err)
		return
	}

	ev, err := protocol.NewSystemAlert(alert)
	if err != nil {
		c.Error(err)
		return
	}
	delivered := s.hub.Broadcast(ev)
	c.JSON(http.StatusAccepted, DeliveryResponse{Delivered: delivered})
}

// ListPresence returns the users connected to this relay, paginated
func (s *Server) ListPresence(c *gin.Context) {
	page, pageSize := utils.GetPaginationParams(c)
	users := s.hub.OnlineUsers()

	c.JSON(http.StatusOK, gin.H{
		"users":    utils.Paginate(users, page, pageSize),
		"page":     page,
		"per_page": pageSize,
		"total":    len(users),
	})
}

// ListMirroredPresence reads the Redis mirror, which covers every relay
// instance, and falls back to this relay's hub
func (s *Server) ListMirroredPresence(c *gin.Context) {
	if s.hub.mirror != nil {
		users, err := s.hub.mirror.List(c.Request.Context())
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"users": users, "source": "redis"})
			return
		}
		c.Error(apiError.Internal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": s.hub.OnlineUsers(), "source": "hub"})
}
