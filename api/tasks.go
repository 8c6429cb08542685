package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/thinmintdev/moltbot-dashboard-sub002/log"
	"github.com/thinmintdev/moltbot-dashboard-sub002/tasks"
	"github.com/thinmintdev/moltbot-dashboard-sub002/validate"
)

// storeError maps task service failures onto the envelope taxonomy
func storeError(err error) *APIError {
	var opErr *tasks.OpError
	switch {
	case errors.Is(err, tasks.ErrTaskNotFound):
		return NewError(ErrCodeTaskNotFound, "Task not found")
	case errors.Is(err, tasks.ErrInvalidStatus):
		return NewError(ErrCodeInvalidParameter, "%v", err)
	case errors.Is(err, tasks.ErrClosed):
		return NewError(ErrCodeServiceUnavailable, "Task service is shutting down").
			WithRecovery("Retry once the gateway has restarted.")
	case errors.As(err, &opErr) && opErr.Op == tasks.OpRead:
		apiErr := NewError(ErrCodeFileRead, "Failed to read tasks")
		if errors.Is(err, tasks.ErrCorrupt) {
			apiErr.WithDetails(gin.H{"reason": err.Error()}).
				WithRecovery("The task file is not valid JSON. Fix or remove it, then reload.")
		}
		return apiErr
	case errors.As(err, &opErr) && opErr.Op == tasks.OpWrite:
		return NewError(ErrCodeFileWrite, "Failed to save tasks")
	default:
		return NewError(ErrCodeExecution, "Task operation failed")
	}
}

// GetTasks handles GET /tasks
func (h *Handlers) GetTasks(c *gin.Context) {
	board, err := h.server.Tasks().List(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list tasks")
		RespondError(c, storeError(err))
		return
	}
	RespondData(c, board)
}

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CreateTask handles POST /tasks
func (h *Handlers) CreateTask(c *gin.Context) {
	var req createTaskRequest
	if !bindJSON(c, &req) {
		return
	}
	if validate.IsBlank(req.Title) {
		RespondMissingParameter(c, "title")
		return
	}
	if res := validate.TaskTitle(req.Title); !res.Valid {
		RespondValidationError(c, res.Error)
		return
	}
	if res := validate.TaskDescription(req.Description); !res.Valid {
		RespondValidationError(c, res.Error)
		return
	}

	task, err := h.server.Tasks().Create(c.Request.Context(), req.Title, req.Description)
	if err != nil {
		log.Error().Err(err).Msg("failed to create task")
		RespondError(c, storeError(err))
		return
	}

	RespondData(c, gin.H{"task": task})
}

// taskID accepts ids sent as JSON strings or as bare numbers
type taskID string

func (id *taskID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = taskID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseUint(n.String(), 10, 64); err != nil {
		return errors.New("taskId must be a string or a non-negative integer")
	}
	*id = taskID(n.String())
	return nil
}

type updateTaskRequest struct {
	TaskID taskID `json:"taskId"`
	Status string `json:"status"`
}

// UpdateTaskStatus handles POST /task/update
func (h *Handlers) UpdateTaskStatus(c *gin.Context) {
	var req updateTaskRequest
	if !bindJSON(c, &req) {
		return
	}
	id := string(req.TaskID)
	if id == "" {
		RespondMissingParameter(c, "taskId")
		return
	}
	if req.Status == "" {
		RespondMissingParameter(c, "status")
		return
	}
	if res := validate.TaskID(id); !res.Valid {
		RespondInvalidParameter(c, "taskId", res.Error)
		return
	}
	if res := validate.Status(req.Status); !res.Valid {
		RespondInvalidParameter(c, "status", res.Error)
		return
	}

	task, board, err := h.server.Tasks().UpdateStatus(c.Request.Context(), id, tasks.Status(req.Status))
	if err != nil {
		if !errors.Is(err, tasks.ErrTaskNotFound) {
			log.Error().Err(err).Str("taskId", id).Msg("failed to update task")
		}
		apiErr := storeError(err)
		if apiErr.Code == ErrCodeTaskNotFound {
			apiErr.Message = "Task not found: " + id
			apiErr.WithDetails(gin.H{"taskId": id})
		}
		RespondError(c, apiErr)
		return
	}

	RespondData(c, gin.H{
		"task":  task,
		"board": board,
	})
}
