package utils

import "github.com/gin-gonic/gin"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// MessageResponse is the body of acknowledgement-only responses.
type MessageResponse struct {
	Message string `json:"message"`
}

// JSON writes a bare success body.
func JSON(ctx *gin.Context, status int, data interface{}) {
	ctx.JSON(status, data)
}

// Message writes {"message": msg}.
func Message(ctx *gin.Context, status int, msg string) {
	ctx.JSON(status, MessageResponse{Message: msg})
}

// Error returns a standard error response.
func Error(ctx *gin.Context, status int, code int, message string) {
	ctx.JSON(status, ErrorResponse{Error: message, Code: code})
}

// AbortError writes an error response and stops the handler chain.
func AbortError(ctx *gin.Context, status int, code int, message string) {
	ctx.AbortWithStatusJSON(status, ErrorResponse{Error: message, Code: code})
}
