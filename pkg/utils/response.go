package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "comm-terminal/pkg/errors"
)

type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func SuccessResponse(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func ErrorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, Response{
		Success: false,
		Message: message,
	})
}

// AppErrorResponse maps the error taxonomy onto HTTP statuses. Errors without
// a taxonomy code are reported as internal.
func AppErrorResponse(c *gin.Context, err error) {
	switch appErrors.CodeOf(err) {
	case appErrors.CodeValidation:
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case appErrors.CodeAuthorization:
		ErrorResponse(c, http.StatusForbidden, err.Error())
	case appErrors.CodeTransport:
		ErrorResponse(c, http.StatusBadGateway, err.Error())
	case appErrors.CodeDecoding:
		ErrorResponse(c, http.StatusUnprocessableEntity, err.Error())
	default:
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
	}
}
