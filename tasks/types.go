// Package tasks implements the gateway's task board: a three-column board
// persisted through a Store and mutated only by the single-writer Service.
package tasks

import (
	"encoding/json"
	"errors"
	"time"
)

// Status is the board column a task lives in
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "inProgress"
	StatusDone       Status = "done"
)

// Statuses lists the columns in board order
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone}

// Valid reports whether s is a known column
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

var (
	// ErrTaskNotFound is returned when no column holds the requested id
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidStatus is returned for an unknown target column
	ErrInvalidStatus = errors.New("invalid task status")

	// ErrCorrupt is returned when the persisted board cannot be decoded
	ErrCorrupt = errors.New("task board is not valid JSON")

	// ErrClosed is returned after the service has been stopped
	ErrClosed = errors.New("task service stopped")
)

// Task is a single board card
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Created     time.Time  `json:"created"`
	Updated     *time.Time `json:"updated,omitempty"`

	// Extra keeps fields the gateway does not model, such as a priority
	// added by hand, so rewriting the board does not drop them
	Extra map[string]json.RawMessage `json:"-"`
}

// taskFields has Task's layout without its JSON methods
type taskFields Task

var knownTaskKeys = []string{"id", "title", "description", "status", "created", "updated"}

// MarshalJSON writes the modelled fields followed by Extra. Modelled fields
// win over an Extra entry of the same name.
func (t Task) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(taskFields(t))
	if err != nil || len(t.Extra) == 0 {
		return base, err
	}

	merged := make(map[string]json.RawMessage, len(t.Extra)+len(knownTaskKeys))
	for k, v := range t.Extra {
		merged[k] = v
	}
	for _, k := range knownTaskKeys {
		delete(merged, k)
	}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the modelled fields and stashes the rest in Extra
func (t *Task) UnmarshalJSON(data []byte) error {
	var fields taskFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range knownTaskKeys {
		delete(raw, k)
	}
	fields.Extra = nil
	if len(raw) > 0 {
		fields.Extra = raw
	}

	*t = Task(fields)
	return nil
}

// Board holds every task, each in exactly one column
type Board struct {
	Todo       []Task `json:"todo"`
	InProgress []Task `json:"inProgress"`
	Done       []Task `json:"done"`
}

// NewBoard returns an empty board whose columns encode as [] rather than null
func NewBoard() Board {
	return Board{Todo: []Task{}, InProgress: []Task{}, Done: []Task{}}
}

func (b *Board) normalize() {
	if b.Todo == nil {
		b.Todo = []Task{}
	}
	if b.InProgress == nil {
		b.InProgress = []Task{}
	}
	if b.Done == nil {
		b.Done = []Task{}
	}
}

// Column returns a pointer to the slice backing a status column
func (b *Board) Column(status Status) *[]Task {
	switch status {
	case StatusTodo:
		return &b.Todo
	case StatusInProgress:
		return &b.InProgress
	case StatusDone:
		return &b.Done
	}
	return nil
}

// Find locates a task and the column holding it
func (b *Board) Find(id string) (Task, Status, bool) {
	for _, status := range Statuses {
		for _, t := range *b.Column(status) {
			if t.ID == id {
				return t, status, true
			}
		}
	}
	return Task{}, "", false
}

// remove deletes the first task with id from whichever column holds it
func (b *Board) remove(id string) (Task, bool) {
	for _, status := range Statuses {
		col := b.Column(status)
		for i, t := range *col {
			if t.ID == id {
				*col = append((*col)[:i:i], (*col)[i+1:]...)
				return t, true
			}
		}
	}
	return Task{}, false
}

// Len returns the number of tasks on the board
func (b *Board) Len() int {
	return len(b.Todo) + len(b.InProgress) + len(b.Done)
}

// Clone returns a copy that shares no column storage with b
func (b Board) Clone() Board {
	return Board{
		Todo:       append([]Task{}, b.Todo...),
		InProgress: append([]Task{}, b.InProgress...),
		Done:       append([]Task{}, b.Done...),
	}
}
