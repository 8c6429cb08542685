package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// =============================================================================
// Response Envelope
// =============================================================================
//
// Every endpoint answers with the same envelope:
//
//	{"success": true,  "data": {...}, "timestamp": "..."}
//	{"success": false, "error": {"code", "message", "details", "recovery", "timestamp"}}
//
// Handlers never write raw errors; they build an *APIError and call RespondError.

// ErrorCode is the machine-readable failure category
type ErrorCode string

const (
	// Client errors (4xx)
	ErrCodeValidation       ErrorCode = "VALIDATION_ERROR"   // 400
	ErrCodeMissingParameter ErrorCode = "MISSING_PARAMETER"  // 400
	ErrCodeInvalidParameter ErrorCode = "INVALID_PARAMETER"  // 400
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"          // 404
	ErrCodeModelNotFound    ErrorCode = "MODEL_NOT_FOUND"    // 404
	ErrCodeTaskNotFound     ErrorCode = "TASK_NOT_FOUND"     // 404
	ErrCodeMethodNotAllowed ErrorCode = "METHOD_NOT_ALLOWED" // 405

	// Server errors (5xx)
	ErrCodeExecution          ErrorCode = "EXECUTION_ERROR"     // 500
	ErrCodeFileRead           ErrorCode = "FILE_READ_ERROR"     // 500
	ErrCodeFileWrite          ErrorCode = "FILE_WRITE_ERROR"    // 500
	ErrCodeParse              ErrorCode = "PARSE_ERROR"         // 500 for CLI output, 400 for request bodies
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE" // 503
	ErrCodeToolNotRunning     ErrorCode = "TOOL_NOT_RUNNING"    // 503
)

var defaultStatus = map[ErrorCode]int{
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeMissingParameter:   http.StatusBadRequest,
	ErrCodeInvalidParameter:   http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeModelNotFound:      http.StatusNotFound,
	ErrCodeTaskNotFound:       http.StatusNotFound,
	ErrCodeMethodNotAllowed:   http.StatusMethodNotAllowed,
	ErrCodeExecution:          http.StatusInternalServerError,
	ErrCodeFileRead:           http.StatusInternalServerError,
	ErrCodeFileWrite:          http.StatusInternalServerError,
	ErrCodeParse:              http.StatusInternalServerError,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeToolNotRunning:     http.StatusServiceUnavailable,
}

var defaultRecovery = map[ErrorCode]string{
	ErrCodeValidation:         "Check the request fields and try again.",
	ErrCodeMissingParameter:   "Provide the missing parameter and try again.",
	ErrCodeInvalidParameter:   "Correct the parameter value and try again.",
	ErrCodeNotFound:           "Check the URL against the list of available endpoints.",
	ErrCodeModelNotFound:      "Run GET /models to see which models are available.",
	ErrCodeTaskNotFound:       "Refresh the task board; the task may have been removed.",
	ErrCodeMethodNotAllowed:   "Use one of the methods listed in the Allow header.",
	ErrCodeExecution:          "Check the gateway logs and retry the request.",
	ErrCodeFileRead:           "Check that the file exists and is readable by the gateway.",
	ErrCodeFileWrite:          "Check disk space and write permissions for the data directory.",
	ErrCodeParse:              "Check that the request body or tool output is valid JSON.",
	ErrCodeServiceUnavailable: "Make sure the moltbot CLI is installed and on the PATH.",
	ErrCodeToolNotRunning:     "Start the moltbot gateway and try again.",
}

// timestampLayout is ISO-8601 with millisecond precision in UTC
const timestampLayout = "2006-01-02T15:04:05.000Z"

func timestamp() string {
	return time.Now().UTC().Format(timestampLayout)
}

// APIError is a failure ready to be rendered as an envelope
type APIError struct {
	Status   int
	Code     ErrorCode
	Message  string
	Details  any
	Recovery string
}

// NewError creates an error with the default status and recovery hint for code
func NewError(code ErrorCode, format string, args ...any) *APIError {
	status, ok := defaultStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &APIError{
		Status:   status,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Recovery: defaultRecovery[code],
	}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithStatus overrides the HTTP status
func (e *APIError) WithStatus(status int) *APIError {
	e.Status = status
	return e
}

// WithDetails attaches structured details
func (e *APIError) WithDetails(details any) *APIError {
	e.Details = details
	return e
}

// WithRecovery overrides the recovery hint
func (e *APIError) WithRecovery(recovery string) *APIError {
	e.Recovery = recovery
	return e
}

// SuccessResponse is the success envelope
type SuccessResponse struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// ErrorBody is the error member of the failure envelope
type ErrorBody struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   any       `json:"details,omitempty"`
	Recovery  string    `json:"recovery,omitempty"`
	Timestamp string    `json:"timestamp"`
}

// ErrorResponse is the failure envelope
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

// RespondData sends a 200 success envelope
func RespondData(c *gin.Context, data any) {
	setResponseTime(c)
	c.JSON(http.StatusOK, SuccessResponse{
		Success:   true,
		Data:      data,
		Timestamp: timestamp(),
	})
}

// RespondError sends a failure envelope and aborts the handler chain
func RespondError(c *gin.Context, err *APIError) {
	setResponseTime(c)
	c.AbortWithStatusJSON(err.Status, ErrorResponse{
		Success: false,
		Error: ErrorBody{
			Code:      err.Code,
			Message:   err.Message,
			Details:   err.Details,
			Recovery:  err.Recovery,
			Timestamp: timestamp(),
		},
	})
}

// Shorthands for the common failures

func RespondValidationError(c *gin.Context, message string) {
	RespondError(c, NewError(ErrCodeValidation, "%s", message))
}

func RespondMissingParameter(c *gin.Context, name string) {
	RespondError(c, NewError(ErrCodeMissingParameter, "Missing required parameter: %s", name).
		WithDetails(gin.H{"parameter": name}))
}

func RespondInvalidParameter(c *gin.Context, name, message string) {
	RespondError(c, NewError(ErrCodeInvalidParameter, "%s", message).
		WithDetails(gin.H{"parameter": name}))
}
