// Package response provides the JSON envelope used by the status server.
// Successful responses carry a data field; failures carry an error field.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope written by every endpoint.
type Response struct {
	Data  any    `json:"data"`
	Error *Error `json:"error"`
}

// Error is an API error with a stable code.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Success wraps data.
func Success(data any) Response {
	return Response{Data: data}
}

// Fail builds an error response.
func Fail(code, message, details string) Response {
	return Response{Error: &Error{Code: code, Message: message, Details: details}}
}

// OK writes data with 200.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Success(data))
}

// NotFound writes a 404.
func NotFound(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusNotFound, Fail("NOT_FOUND", message, ""))
}

// Unauthorized writes a 401.
func Unauthorized(c *gin.Context, details string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Fail("UNAUTHORIZED", "Invalid or missing token", details))
}

// InternalError writes a 500 without exposing the cause.
func InternalError(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, Fail("INTERNAL_ERROR", "Internal server error", "An unexpected error occurred"))
}
