// Package validate holds one validator per externally reachable gateway
// parameter. Validators run before any CLI call or file access.
package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Limits
const (
	MaxModelIDLength     = 100
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
	MaxLogLines          = 10000
	MaxMessageLength     = 10000
	MaxSessionIDLength   = 128
)

// ForbiddenModelChars are shell metacharacters rejected in model identifiers
const ForbiddenModelChars = ";&|>$`"

// Statuses accepted by the task board
var Statuses = []string{"todo", "inProgress", "done"}

var sessionIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var v = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("sessionid", func(fl validator.FieldLevel) bool {
		return sessionIDRe.MatchString(fl.Field().String())
	})
	return v
}

// Result is the outcome of a single validator
type Result struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func pass() Result { return Result{Valid: true} }

func fail(format string, args ...any) Result {
	return Result{Valid: false, Error: fmt.Sprintf(format, args...)}
}

// IsBlank reports whether a required value is missing
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ModelID validates a model identifier passed to the CLI
func ModelID(model string) Result {
	if IsBlank(model) {
		return fail("model is required")
	}
	if err := v.Var(model, "max=100"); err != nil {
		return fail("model must be at most %d characters", MaxModelIDLength)
	}
	// 0x7C is validator's escape for the pipe character
	if err := v.Var(model, "excludesall=;&0x7C>$`"); err != nil {
		return fail("model contains forbidden characters (%s)", ForbiddenModelChars)
	}
	if err := v.Var(model, "startsnotwith=-"); err != nil {
		return fail("model must not start with '-'")
	}
	return pass()
}

// TaskTitle validates a task title
func TaskTitle(title string) Result {
	if IsBlank(title) {
		return fail("title is required")
	}
	if err := v.Var(title, "max=200"); err != nil {
		return fail("title must be at most %d characters", MaxTitleLength)
	}
	return pass()
}

// TaskDescription validates an optional task description
func TaskDescription(description string) Result {
	if err := v.Var(description, "omitempty,max=2000"); err != nil {
		return fail("description must be at most %d characters", MaxDescriptionLength)
	}
	return pass()
}

// TaskID validates a task id; ids are decimal digit strings
func TaskID(id string) Result {
	if id == "" {
		return fail("taskId is required")
	}
	if err := v.Var(id, "number"); err != nil {
		return fail("taskId must contain only digits")
	}
	return pass()
}

// Status validates a task board status
func Status(status string) Result {
	if status == "" {
		return fail("status is required")
	}
	if err := v.Var(status, "oneof=todo inProgress done"); err != nil {
		return fail("status must be one of: %s", strings.Join(Statuses, ", "))
	}
	return pass()
}

// LogLines parses and validates a log line count
func LogLines(raw string) (int, Result) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fail("lines must be a positive integer")
	}
	if err := v.Var(n, "min=1,max=10000"); err != nil {
		return 0, fail("lines must be between 1 and %d", MaxLogLines)
	}
	return n, pass()
}

// ChatMessage validates a chat message relayed to the agent
func ChatMessage(message string) Result {
	if IsBlank(message) {
		return fail("message is required")
	}
	if err := v.Var(message, "max=10000"); err != nil {
		return fail("message must be at most %d characters", MaxMessageLength)
	}
	return pass()
}

// SessionID validates an optional chat session id
func SessionID(id string) Result {
	if err := v.Var(id, "omitempty,max=128,sessionid"); err != nil {
		return fail("sessionId must be at most %d characters of letters, digits, '-' or '_'", MaxSessionIDLength)
	}
	return pass()
}
