// Package handlers implements the HTTP handlers of the analysis API.
package handlers

import (
	"github.com/gin-gonic/gin"
)

// Envelope status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// SuccessResponse wraps a successful payload.
type SuccessResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
}

// ErrorResponse describes a failed request. Hint suggests a remedy when one
// is known.
type ErrorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Hint   string `json:"hint,omitempty"`
}

func respondSuccess(c *gin.Context, code int, data interface{}) {
	c.JSON(code, SuccessResponse{Status: StatusSuccess, Data: data})
}

func respondError(c *gin.Context, code int, msg, hint string) {
	c.AbortWithStatusJSON(code, ErrorResponse{Status: StatusError, Error: msg, Hint: hint})
}
