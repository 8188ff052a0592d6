package response

import (
	"github.com/gofiber/fiber/v2"
)

// Success bodies are the bundle documents themselves, not an envelope:
// the wire contract is shared with clients that parse the JSON directly.
// Only errors get a structured body.

type ErrorBody struct {
	Error   ErrorInfo `json:"error"`
	TraceID string    `json:"trace_id,omitempty"`
}

type ErrorInfo struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

type ErrorCode string

const (
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeBadConfig        ErrorCode = "BAD_CONFIG"
	ErrCodeMethodNotAllowed ErrorCode = "METHOD_NOT_ALLOWED"
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
)

func OK(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(data)
}

func Error(c *fiber.Ctx, status int, code ErrorCode, message string) error {
	return c.Status(status).JSON(ErrorBody{
		Error:   ErrorInfo{Code: code, Message: message},
		TraceID: getTraceID(c),
	})
}

func getTraceID(c *fiber.Ctx) string {
	if traceID := c.Locals("traceId"); traceID != nil {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return ""
}
