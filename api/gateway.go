package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/thinmintdev/moltbot-dashboard-sub002/cliexec"
	"github.com/thinmintdev/moltbot-dashboard-sub002/log"
	"github.com/thinmintdev/moltbot-dashboard-sub002/validate"
	"golang.org/x/sync/errgroup"
)

var modelNotFoundRe = regexp.MustCompile(`(?i)(model.*not found|not found.*model|unknown model|no such model)`)

// toolError maps a CLI failure onto the envelope taxonomy. Liveness endpoints
// (status, health, chat) pass unavailable and report every failure as 503.
func toolError(err error, unavailable bool) *APIError {
	apiErr := execError(err)
	if unavailable && apiErr.Code != ErrCodeServiceUnavailable && apiErr.Code != ErrCodeToolNotRunning {
		apiErr.Code = ErrCodeToolNotRunning
		apiErr.Status = http.StatusServiceUnavailable
	}
	return apiErr
}

func execError(err error) *APIError {
	var execErr *cliexec.Error
	if !errors.As(err, &execErr) {
		return NewError(ErrCodeExecution, "%v", err)
	}

	details := gin.H{"command": execErr.Command, "kind": execErr.Kind}
	if execErr.ExitCode != 0 {
		details["exitCode"] = execErr.ExitCode
	}
	if execErr.Stderr != "" {
		details["stderr"] = execErr.Stderr
	}

	var apiErr *APIError
	switch execErr.Kind {
	case cliexec.KindNotInstalled:
		apiErr = NewError(ErrCodeServiceUnavailable, "moltbot CLI is not installed or not on PATH")
	case cliexec.KindTimeout:
		apiErr = NewError(ErrCodeExecution, "moltbot %s timed out", execErr.Command).
			WithRecovery("The agent may be busy or hung. Retry, or restart the moltbot gateway.")
	case cliexec.KindCanceled:
		apiErr = NewError(ErrCodeExecution, "moltbot %s was canceled", execErr.Command)
	case cliexec.KindNoOutput:
		apiErr = NewError(ErrCodeToolNotRunning, "moltbot %s returned no output", execErr.Command)
	case cliexec.KindParse:
		apiErr = NewError(ErrCodeParse, "Could not parse output of moltbot %s", execErr.Command).
			WithRecovery("The CLI printed no JSON object. Check that the installed moltbot supports --json.")
	default:
		apiErr = NewError(ErrCodeExecution, "moltbot %s failed", execErr.Command)
	}
	return apiErr.WithDetails(details)
}

func (h *Handlers) runCheck(c *gin.Context, subcommand string) {
	data, err := h.server.Runner().Run(c.Request.Context(), subcommand)
	if err != nil {
		RespondError(c, toolError(err, true))
		return
	}
	RespondData(c, data)
}

// GetStatus handles GET /status
func (h *Handlers) GetStatus(c *gin.Context) {
	h.runCheck(c, "status")
}

// GetHealth handles GET /health
func (h *Handlers) GetHealth(c *gin.Context) {
	h.runCheck(c, "health")
}

// CombinedResponse holds status and health; a failed half is null and
// explained in Errors
type CombinedResponse struct {
	Status json.RawMessage      `json:"status"`
	Health json.RawMessage      `json:"health"`
	Errors map[string]ErrorBody `json:"errors"`
}

// GetCombined handles GET /combined
func (h *Handlers) GetCombined(c *gin.Context) {
	ctx := c.Request.Context()
	runner := h.server.Runner()

	var status, health json.RawMessage
	var statusErr, healthErr error

	// Plain group, not WithContext: a failing status must not cancel health
	var g errgroup.Group
	g.Go(func() error {
		status, statusErr = runner.Run(ctx, "status")
		if statusErr != nil {
			return fmt.Errorf("status: %w", statusErr)
		}
		return nil
	})
	g.Go(func() error {
		health, healthErr = runner.Run(ctx, "health")
		if healthErr != nil {
			return fmt.Errorf("health: %w", healthErr)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Warn().Err(err).
			Bool("statusOk", statusErr == nil).
			Bool("healthOk", healthErr == nil).
			Msg("combined check degraded")
	}

	resp := CombinedResponse{
		Status: json.RawMessage("null"),
		Health: json.RawMessage("null"),
		Errors: map[string]ErrorBody{},
	}
	if statusErr != nil {
		resp.Errors["status"] = errorBody(toolError(statusErr, true))
	} else {
		resp.Status = status
	}
	if healthErr != nil {
		resp.Errors["health"] = errorBody(toolError(healthErr, true))
	} else {
		resp.Health = health
	}

	RespondData(c, resp)
}

func errorBody(err *APIError) ErrorBody {
	return ErrorBody{
		Code:      err.Code,
		Message:   err.Message,
		Details:   err.Details,
		Recovery:  err.Recovery,
		Timestamp: timestamp(),
	}
}

// ModelsResponse is the payload of GET /models
type ModelsResponse struct {
	Models    json.RawMessage `json:"models"`
	Available bool            `json:"available"`
	Error     string          `json:"error,omitempty"`
}

// GetModels handles GET /models. A missing or failing CLI is not an error
// here: the dashboard shows an empty picker instead.
func (h *Handlers) GetModels(c *gin.Context) {
	data, err := h.server.Runner().Run(c.Request.Context(), "models", "list")
	if err != nil {
		log.Warn().Err(err).Msg("models list unavailable")
		RespondData(c, ModelsResponse{
			Models:    json.RawMessage("[]"),
			Available: false,
			Error:     err.Error(),
		})
		return
	}

	RespondData(c, ModelsResponse{Models: modelList(data), Available: true})
}

// modelList unwraps {"models": [...]} when the CLI nests the list
func modelList(data json.RawMessage) json.RawMessage {
	var wrapper struct {
		Models json.RawMessage `json:"models"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil && len(wrapper.Models) > 0 {
		return wrapper.Models
	}
	return data
}

// SetModel handles POST /model/set?model=
func (h *Handlers) SetModel(c *gin.Context) {
	model := c.Query("model")
	if validate.IsBlank(model) {
		RespondMissingParameter(c, "model")
		return
	}
	if res := validate.ModelID(model); !res.Valid {
		RespondInvalidParameter(c, "model", res.Error)
		return
	}

	data, err := h.server.Runner().Run(c.Request.Context(), "models", "set", model)
	if err != nil {
		var execErr *cliexec.Error
		if errors.As(err, &execErr) && modelNotFoundRe.MatchString(execErr.Stderr) {
			RespondError(c, NewError(ErrCodeModelNotFound, "Model not found: %s", model).
				WithDetails(gin.H{"model": model, "stderr": execErr.Stderr}))
			return
		}
		RespondError(c, toolError(err, false))
		return
	}

	log.Info().Str("model", model).Msg("model switched")
	h.server.Notifications().NotifyModelChanged(model)

	RespondData(c, gin.H{
		"model":  model,
		"result": data,
	})
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// Chat handles POST /chat
func (h *Handlers) Chat(c *gin.Context) {
	var req chatRequest
	if !bindJSON(c, &req) {
		return
	}
	if validate.IsBlank(req.Message) {
		RespondMissingParameter(c, "message")
		return
	}
	if res := validate.ChatMessage(req.Message); !res.Valid {
		RespondValidationError(c, res.Error)
		return
	}
	if res := validate.SessionID(req.SessionID); !res.Valid {
		RespondInvalidParameter(c, "sessionId", res.Error)
		return
	}

	// Flag and value in one argument so a message like "-h" is never parsed
	// as an option
	args := []string{"agent", "--message=" + req.Message}
	if req.SessionID != "" {
		args = append(args, "--session-id", req.SessionID)
	}

	data, err := h.server.ChatRunner().Run(c.Request.Context(), args...)
	if err != nil {
		RespondError(c, toolError(err, true))
		return
	}

	resp := gin.H{"response": data}
	if req.SessionID != "" {
		resp["sessionId"] = req.SessionID
	}
	RespondData(c, resp)
}

// bindJSON decodes the request body, answering 400 PARSE_ERROR when it is
// not valid JSON for dst
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		RespondError(c, NewError(ErrCodeParse, "Invalid JSON body: %v", err).
			WithStatus(http.StatusBadRequest).
			WithRecovery("Send a valid JSON object with Content-Type: application/json."))
		return false
	}
	return true
}
