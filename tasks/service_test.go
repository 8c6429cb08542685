package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/thinmintdev/moltbot-dashboard-sub002/log"
)

func init() {
	log.SetOutput(io.Discard)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) NotifyTasksChanged(source, taskID, operation string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, source+":"+operation+":"+taskID)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func newTestService(t *testing.T) (*Service, *FileStore, afero.Fs, *recordingNotifier) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	store := NewFileStore(fsys, "/data/tasks.json")
	notifier := &recordingNotifier{}
	svc := NewService(store, notifier)
	t.Cleanup(svc.Stop)
	return svc, store, fsys, notifier
}

var digits = regexp.MustCompile(`^\d+$`)

func TestListOnMissingFile(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	board, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if board.Todo == nil || board.InProgress == nil || board.Done == nil {
		t.Error("expected non-nil empty columns")
	}
	if board.Len() != 0 {
		t.Errorf("expected empty board, got %d tasks", board.Len())
	}
}

func TestCreateLandsInTodo(t *testing.T) {
	svc, _, _, notifier := newTestService(t)
	ctx := context.Background()

	task, err := svc.Create(ctx, "Fix bug", "crash on start")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Status != StatusTodo {
		t.Errorf("expected status todo, got %s", task.Status)
	}
	if !digits.MatchString(task.ID) {
		t.Errorf("expected numeric id, got %q", task.ID)
	}
	if task.Created.IsZero() {
		t.Error("expected created timestamp")
	}
	if task.Updated != nil {
		t.Error("new task should not have updated timestamp")
	}

	board, _ := svc.List(ctx)
	if len(board.Todo) != 1 || board.Todo[0].ID != task.ID {
		t.Errorf("expected task in todo, got %+v", board)
	}
	if notifier.count() != 1 {
		t.Errorf("expected 1 notification, got %d", notifier.count())
	}
}

func TestCreateIDsAreUnique(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	fixed := time.UnixMilli(1_700_000_000_000)
	svc.now = func() time.Time { return fixed }

	ctx := context.Background()
	var wg sync.WaitGroup
	ids := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, err := svc.Create(ctx, "t", "")
			if err != nil {
				t.Errorf("create failed: %v", err)
				return
			}
			ids <- task.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		if seen[id] {
			t.Errorf("duplicate id %s", id)
		}
		seen[id] = true
	}

	board, _ := svc.List(ctx)
	if len(board.Todo) != 20 {
		t.Errorf("expected 20 tasks after concurrent creates, got %d", len(board.Todo))
	}
}

func TestCreateSkipsExistingIDs(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	seed := NewBoard()
	seed.Done = []Task{{ID: "5000000000000", Title: "future", Status: StatusDone}}
	if err := store.Save(ctx, seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	svc.now = func() time.Time { return time.UnixMilli(1000) }
	task, err := svc.Create(ctx, "next", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.ID != "5000000000001" {
		t.Errorf("expected id past existing max, got %s", task.ID)
	}
}

func TestUpdateStatusMovesOnlyTarget(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	a, _ := svc.Create(ctx, "a", "")
	b, _ := svc.Create(ctx, "b", "")
	c, _ := svc.Create(ctx, "c", "")

	updated, board, err := svc.UpdateStatus(ctx, b.ID, StatusInProgress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != StatusInProgress || updated.Updated == nil {
		t.Errorf("expected updated task in progress with timestamp, got %+v", updated)
	}

	if len(board.Todo) != 2 || len(board.InProgress) != 1 || len(board.Done) != 0 {
		t.Fatalf("unexpected column sizes: %d/%d/%d", len(board.Todo), len(board.InProgress), len(board.Done))
	}
	if board.InProgress[0].ID != b.ID {
		t.Errorf("expected %s in progress, got %s", b.ID, board.InProgress[0].ID)
	}
	for _, task := range board.Todo {
		if task.ID != a.ID && task.ID != c.ID {
			t.Errorf("unexpected task %s in todo", task.ID)
		}
		if task.Updated != nil || task.Status != StatusTodo {
			t.Errorf("untouched task %s was modified", task.ID)
		}
	}
}

func TestUpdateStatusIsIdempotentAtTarget(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	task, _ := svc.Create(ctx, "Fix bug", "")

	for i := 0; i < 2; i++ {
		_, board, err := svc.UpdateStatus(ctx, task.ID, StatusDone)
		if err != nil {
			t.Fatalf("update %d failed: %v", i, err)
		}
		if len(board.Done) != 1 || board.Done[0].ID != task.ID {
			t.Fatalf("update %d: expected task in done, got %+v", i, board)
		}
		if len(board.Todo) != 0 || len(board.InProgress) != 0 {
			t.Fatalf("update %d: task present in another column", i)
		}
	}
}

func TestHandEditedFieldsSurviveRewrite(t *testing.T) {
	svc, store, fsys, _ := newTestService(t)
	ctx := context.Background()

	edited := `{"todo":[],"inProgress":[{"id":"7","title":"Ship","description":"","status":"todo","created":"2026-03-01T09:30:00Z","priority":"high","labels":["ops"]}],"done":[]}`
	afero.WriteFile(fsys, store.Path(), []byte(edited), 0644)

	if _, err := svc.Create(ctx, "Another", ""); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	moved, board, err := svc.UpdateStatus(ctx, "7", StatusDone)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if string(moved.Extra["priority"]) != `"high"` {
		t.Errorf("expected priority kept on the returned task, got %v", moved.Extra)
	}
	if len(board.Done) != 1 || board.Done[0].Status != StatusDone {
		t.Fatalf("expected task moved to done, got %+v", board)
	}

	data, _ := afero.ReadFile(fsys, store.Path())
	var raw struct {
		Done []map[string]any `json:"done"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("rewritten file is not JSON: %v", err)
	}
	if len(raw.Done) != 1 {
		t.Fatalf("expected one done task in file, got %s", data)
	}
	task := raw.Done[0]
	if task["priority"] != "high" {
		t.Errorf("priority dropped from file: %s", data)
	}
	if labels, ok := task["labels"].([]any); !ok || len(labels) != 1 || labels[0] != "ops" {
		t.Errorf("labels dropped from file: %s", data)
	}
	if task["status"] != "done" || task["updated"] == nil {
		t.Errorf("modelled fields not written: %s", data)
	}
}

func TestTaskExtraCannotShadowModelledFields(t *testing.T) {
	task := Task{
		ID:     "1",
		Title:  "Real",
		Status: StatusTodo,
		Extra:  map[string]json.RawMessage{"title": json.RawMessage(`"Fake"`), "owner": json.RawMessage(`"sam"`)},
	}
	data, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var back Task
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if back.Title != "Real" {
		t.Errorf("expected modelled title to win, got %q", back.Title)
	}
	if len(back.Extra) != 1 || string(back.Extra["owner"]) != `"sam"` {
		t.Errorf("expected only owner in extra, got %v", back.Extra)
	}
}

func TestUpdateStatusNotFoundLeavesFileUnchanged(t *testing.T) {
	svc, store, fsys, notifier := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "keep", ""); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	before, _ := afero.ReadFile(fsys, store.Path())

	_, _, err := svc.UpdateStatus(ctx, "123", StatusDone)
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}

	after, _ := afero.ReadFile(fsys, store.Path())
	if string(before) != string(after) {
		t.Error("task file changed on failed update")
	}
	if notifier.count() != 1 {
		t.Errorf("failed update should not notify, got %d events", notifier.count())
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, _, err := svc.UpdateStatus(context.Background(), "1", Status("archived"))
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestCorruptFileIsReadError(t *testing.T) {
	svc, store, fsys, _ := newTestService(t)
	if err := afero.WriteFile(fsys, store.Path(), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := svc.List(context.Background())
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Op != OpRead {
		t.Fatalf("expected read OpError, got %v", err)
	}
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt in chain, got %v", err)
	}
}

func TestWriteFailureIsWriteError(t *testing.T) {
	fsys := afero.NewReadOnlyFs(afero.NewMemMapFs())
	svc := NewService(NewFileStore(fsys, "/data/tasks.json"), nil)
	defer svc.Stop()

	_, err := svc.Create(context.Background(), "t", "")
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Op != OpWrite {
		t.Fatalf("expected write OpError, got %v", err)
	}
}

func TestStoppedServiceReturnsErrClosed(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	svc.Stop()

	if _, err := svc.List(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestCanceledContextBeforeSubmit(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Either outcome is valid when both channels are ready; the call must not hang
	done := make(chan struct{})
	go func() {
		svc.List(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("List hung with cancelled context")
	}
}
