package gateway

// ErrorResponse is the body of every error the gateway produces itself.
// Errors from the backend are passed through untouched.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Backend string `json:"backend"`
	Uptime  string `json:"uptime"`
}

// Error codes
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeBackendTimeout     = "BACKEND_TIMEOUT"
	ErrCodeBackendUnreachable = "BACKEND_UNREACHABLE"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// NewErrorResponse creates a new error response
func NewErrorResponse(err string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error: err,
		Code:  code,
	}
}

// NewErrorResponseWithDetails creates a new error response with details
func NewErrorResponseWithDetails(err string, code string, details string) *ErrorResponse {
	return &ErrorResponse{
		Error:   err,
		Code:    code,
		Details: details,
	}
}
