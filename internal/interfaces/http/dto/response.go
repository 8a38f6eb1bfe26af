// Package dto holds the JSON shapes of the plain HTTP endpoints.
package dto

// Response is the envelope of JSON endpoints
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data any) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// Health is the liveness document served on GET /
type Health struct {
	OK       bool   `json:"ok"`
	Service  string `json:"service"`
	Endpoint string `json:"endpoint"`
	Sessions int    `json:"sessions"`
}
