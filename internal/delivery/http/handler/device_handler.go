package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"comm-terminal/internal/session"
	"comm-terminal/internal/usecase/device"
	"comm-terminal/pkg/utils"
)

type DeviceHandler struct {
	service *device.Service
}

func NewDeviceHandler(service *device.Service) *DeviceHandler {
	return &DeviceHandler{service: service}
}

func (h *DeviceHandler) RegisterRoutes(router *gin.RouterGroup) {
	devices := router.Group("/device")
	{
		devices.GET("", h.GetDevice)
		devices.PUT("/vitals", h.UpdateVitals)
		devices.POST("/upgrade", h.UpgradeTier)
		devices.DELETE("", h.Deactivate)
	}
}

// GetDevice returns the caller's device, provisioning the starter
// receive-only unit on first contact.
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	userID, ok := session.UserIDFromGin(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	dev, err := h.service.EnsureDevice(c.Request.Context(), userID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device retrieved", device.ToDeviceResponse(dev))
}

func (h *DeviceHandler) UpdateVitals(c *gin.Context) {
	userID, ok := session.UserIDFromGin(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req device.UpdateVitalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	dev, err := h.service.GetDevice(c.Request.Context(), userID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	if dev == nil {
		utils.ErrorResponse(c, http.StatusNotFound, "No device provisioned")
		return
	}

	updated, err := h.service.UpdateVitals(c.Request.Context(), dev.ID, &req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device vitals updated", device.ToDeviceResponse(updated))
}

func (h *DeviceHandler) UpgradeTier(c *gin.Context) {
	userID, ok := session.UserIDFromGin(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req device.UpgradeTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	dev, err := h.service.GetDevice(c.Request.Context(), userID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	if dev == nil {
		utils.ErrorResponse(c, http.StatusNotFound, "No device provisioned")
		return
	}

	upgraded, err := h.service.UpgradeTier(c.Request.Context(), dev.ID, &req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device upgraded", device.ToDeviceResponse(upgraded))
}

func (h *DeviceHandler) Deactivate(c *gin.Context) {
	userID, ok := session.UserIDFromGin(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	dev, err := h.service.GetDevice(c.Request.Context(), userID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	if dev == nil {
		utils.ErrorResponse(c, http.StatusNotFound, "No device provisioned")
		return
	}

	if err := h.service.Deactivate(c.Request.Context(), dev.ID); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device deactivated", nil)
}
