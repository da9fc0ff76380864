package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"comm-terminal/internal/session"
	"comm-terminal/internal/usecase/direct"
	"comm-terminal/pkg/geo"
	"comm-terminal/pkg/utils"
)

type DirectHandler struct {
	service *direct.Service
}

func NewDirectHandler(service *direct.Service) *DirectHandler {
	return &DirectHandler{service: service}
}

func (h *DirectHandler) RegisterRoutes(router *gin.RouterGroup) {
	dm := router.Group("/direct")
	{
		dm.GET("/conversations/:peer_id", h.LoadConversation)
		dm.POST("/reachability", h.CheckReachability)
		dm.POST("/messages", h.SendMessage)
		dm.POST("/messages/:id/read", h.MarkRead)
	}
}

type sendDirectRequest struct {
	RecipientID string  `json:"recipient_id" binding:"required,uuid"`
	Content     string  `json:"content" binding:"required"`
	Latitude    float64 `json:"latitude" binding:"min=-90,max=90"`
	Longitude   float64 `json:"longitude" binding:"min=-180,max=180"`
}

// LoadConversation opens the conversation with peer_id: recent history plus
// a realtime tail. Opening another conversation supersedes this one.
func (h *DirectHandler) LoadConversation(c *gin.Context) {
	userID, ok := session.UserIDFromGin(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	peerID, err := uuid.Parse(c.Param("peer_id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid peer ID")
		return
	}

	messages, err := h.service.LoadMessages(c.Request.Context(), userID, peerID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Conversation loaded", gin.H{"messages": messages})
}

type reachabilityRequest struct {
	RecipientID string  `json:"recipient_id" binding:"required,uuid"`
	Latitude    float64 `json:"latitude" binding:"min=-90,max=90"`
	Longitude   float64 `json:"longitude" binding:"min=-180,max=180"`
}

// CheckReachability answers whether the caller's device currently reaches
// the recipient, with the distance and effective range for the UI.
func (h *DirectHandler) CheckReachability(c *gin.Context) {
	userID, ok := session.UserIDFromGin(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req reachabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid recipient ID")
		return
	}

	selfLoc := geo.Point{Latitude: req.Latitude, Longitude: req.Longitude}
	result, err := h.service.CheckReachability(c.Request.Context(), userID, recipientID, selfLoc)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Reachability computed", result)
}

func (h *DirectHandler) SendMessage(c *gin.Context) {
	userID, ok := session.UserIDFromGin(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req sendDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid recipient ID")
		return
	}

	selfLoc := geo.Point{Latitude: req.Latitude, Longitude: req.Longitude}
	sent, err := h.service.SendMessage(c.Request.Context(), userID, recipientID, req.Content, selfLoc)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Message sent", sent)
}

func (h *DirectHandler) MarkRead(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid message ID")
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), messageID); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Marked read", nil)
}
