package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"comm-terminal/internal/session"
	"comm-terminal/internal/usecase/broadcast"
	"comm-terminal/pkg/utils"
)

type BroadcastHandler struct {
	service *broadcast.Service
}

func NewBroadcastHandler(service *broadcast.Service) *BroadcastHandler {
	return &BroadcastHandler{service: service}
}

func (h *BroadcastHandler) RegisterRoutes(router *gin.RouterGroup) {
	msgs := router.Group("/broadcast")
	{
		msgs.GET("/messages", h.ListMessages)
		msgs.POST("/messages", h.SendMessage)
		msgs.GET("/state", h.GetState)
	}
}

type sendBroadcastRequest struct {
	Content string `json:"content" binding:"required"`
}

// ListMessages returns the cached global feed, oldest first.
func (h *BroadcastHandler) ListMessages(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Broadcast messages retrieved", gin.H{
		"state":    h.service.State(),
		"messages": h.service.Messages(),
	})
}

func (h *BroadcastHandler) SendMessage(c *gin.Context) {
	userID, ok := session.UserIDFromGin(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req sendBroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.Send(c.Request.Context(), userID, req.Content); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusAccepted, "Broadcast sent", nil)
}

func (h *BroadcastHandler) GetState(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Broadcast feed state", gin.H{
		"state":      h.service.State(),
		"last_error": h.service.LastError(),
	})
}
