package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"comm-terminal/internal/session"
	"comm-terminal/internal/usecase/channel"
	"comm-terminal/pkg/utils"
)

type ChannelHandler struct {
	registry *channel.Registry
}

func NewChannelHandler(registry *channel.Registry) *ChannelHandler {
	return &ChannelHandler{registry: registry}
}

func (h *ChannelHandler) RegisterRoutes(router *gin.RouterGroup) {
	channels := router.Group("/channels")
	{
		channels.GET("/official", h.ListOfficial)
		channels.GET("/subscribed", h.ListSubscribed)
		channels.POST("", h.CreateChannel)
		channels.POST("/:id/subscribe", h.Subscribe)
		channels.POST("/:id/unsubscribe", h.Unsubscribe)
		channels.PUT("/:id/mute", h.SetMuted)
		channels.GET("/:id/messages", h.SelectChannel)
		channels.POST("/:id/messages", h.PostMessage)
	}
}

type muteRequest struct {
	Muted bool `json:"muted"`
}

type postMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// ListOfficial serves the system channel catalog. A stale cache plus an
// upstream error still yields the cache, flagged as degraded.
func (h *ChannelHandler) ListOfficial(c *gin.Context) {
	channels, err := h.registry.ListOfficialChannels(c.Request.Context())
	if err != nil {
		if len(channels) == 0 {
			utils.AppErrorResponse(c, err)
			return
		}
		utils.SuccessResponse(c, http.StatusOK, "Serving cached channels, refresh failed", gin.H{
			"channels": channels,
			"stale":    true,
		})
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Official channels retrieved", gin.H{"channels": channels})
}

func (h *ChannelHandler) ListSubscribed(c *gin.Context) {
	userID, ok := session.UserIDFromGin(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	channels, err := h.registry.ListSubscribed(c.Request.Context(), userID)
	if err != nil {
		if len(channels) == 0 {
			utils.AppErrorResponse(c, err)
			return
		}
		utils.SuccessResponse(c, http.StatusOK, "Serving cached subscriptions, refresh failed", gin.H{
			"channels": channels,
			"stale":    true,
		})
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Subscribed channels retrieved", gin.H{"channels": channels})
}

func (h *ChannelHandler) CreateChannel(c *gin.Context) {
	userID, ok := session.UserIDFromGin(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req channel.CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.registry.CreateChannel(c.Request.Context(), userID, &req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Channel created", created)
}

func (h *ChannelHandler) Subscribe(c *gin.Context) {
	userID, channelID, ok := h.principalAndChannel(c)
	if !ok {
		return
	}

	if err := h.registry.Subscribe(c.Request.Context(), userID, channelID); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Subscribed", nil)
}

func (h *ChannelHandler) Unsubscribe(c *gin.Context) {
	userID, channelID, ok := h.principalAndChannel(c)
	if !ok {
		return
	}

	if err := h.registry.Unsubscribe(c.Request.Context(), userID, channelID); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Unsubscribed", nil)
}

func (h *ChannelHandler) SetMuted(c *gin.Context) {
	userID, channelID, ok := h.principalAndChannel(c)
	if !ok {
		return
	}

	var req muteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.registry.SetMuted(c.Request.Context(), userID, channelID, req.Muted); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Mute flag updated", gin.H{"muted": req.Muted})
}

// SelectChannel makes the channel current and returns its recent history;
// subsequent inserts arrive over the realtime stream.
func (h *ChannelHandler) SelectChannel(c *gin.Context) {
	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid channel ID")
		return
	}

	messages, err := h.registry.SelectChannel(c.Request.Context(), channelID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Channel selected", gin.H{"messages": messages})
}

func (h *ChannelHandler) PostMessage(c *gin.Context) {
	userID, channelID, ok := h.principalAndChannel(c)
	if !ok {
		return
	}

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.registry.Post(c.Request.Context(), userID, channelID, req.Content); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusAccepted, "Message posted", nil)
}

func (h *ChannelHandler) principalAndChannel(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := session.UserIDFromGin(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required")
		return uuid.Nil, uuid.Nil, false
	}

	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid channel ID")
		return uuid.Nil, uuid.Nil, false
	}

	return userID, channelID, true
}
