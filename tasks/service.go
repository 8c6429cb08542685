package tasks

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/thinmintdev/moltbot-dashboard-sub002/log"
	"github.com/thinmintdev/moltbot-dashboard-sub002/notifications"
)

// Notifier receives board change events
type Notifier interface {
	NotifyTasksChanged(source, taskID, operation string)
}

// request is one unit of work for the writer goroutine
type request struct {
	ctx   context.Context
	fn    func(ctx context.Context) error
	reply chan error
}

// Service owns the board. Every read and mutation runs on a single goroutine,
// so a load-modify-save cycle can never interleave with another one.
type Service struct {
	store    Store
	notifier Notifier
	now      func() time.Time

	requests chan request
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	// lastID is only touched by the writer goroutine
	lastID int64
}

// NewService starts the writer goroutine. notifier may be nil.
func NewService(store Store, notifier Notifier) *Service {
	s := &Service{
		store:    store,
		notifier: notifier,
		now:      time.Now,
		requests: make(chan request),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Service) loop() {
	defer close(s.stopped)
	for {
		select {
		case req := <-s.requests:
			req.reply <- req.fn(req.ctx)
		case <-s.quit:
			return
		}
	}
}

// submit queues fn and waits for its result. Once fn has been accepted it
// runs to completion even if ctx is cancelled while it runs.
func (s *Service) submit(ctx context.Context, fn func(ctx context.Context) error) error {
	reply := make(chan error, 1)
	select {
	case s.requests <- request{ctx: ctx, fn: fn, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return ErrClosed
	}
	return <-reply
}

// Stop terminates the writer goroutine; queued callers receive ErrClosed
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
	})
	<-s.stopped
}

func (s *Service) load(ctx context.Context) (Board, error) {
	board, err := s.store.Load(ctx)
	if err != nil {
		return Board{}, &OpError{Op: OpRead, Err: err}
	}
	return board, nil
}

func (s *Service) save(ctx context.Context, board Board) error {
	if err := s.store.Save(ctx, board); err != nil {
		return &OpError{Op: OpWrite, Err: err}
	}
	return nil
}

func (s *Service) notify(taskID, operation string) {
	if s.notifier != nil {
		s.notifier.NotifyTasksChanged(notifications.SourceAPI, taskID, operation)
	}
}

// List returns the current board
func (s *Service) List(ctx context.Context) (Board, error) {
	var out Board
	err := s.submit(ctx, func(ctx context.Context) error {
		board, err := s.load(ctx)
		if err != nil {
			return err
		}
		out = board.Clone()
		return nil
	})
	return out, err
}

// Create appends a new task to the todo column
func (s *Service) Create(ctx context.Context, title, description string) (Task, error) {
	var created Task
	err := s.submit(ctx, func(ctx context.Context) error {
		board, err := s.load(ctx)
		if err != nil {
			return err
		}

		created = Task{
			ID:          s.nextID(&board),
			Title:       title,
			Description: description,
			Status:      StatusTodo,
			Created:     s.timestamp(),
		}
		board.Todo = append(board.Todo, created)

		if err := s.save(ctx, board); err != nil {
			return err
		}
		log.Info().Str("taskId", created.ID).Msg("task created")
		s.notify(created.ID, "create")
		return nil
	})
	return created, err
}

// UpdateStatus moves a task to the target column and stamps it as updated.
// Unknown ids return ErrTaskNotFound without writing anything.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (Task, Board, error) {
	if !status.Valid() {
		return Task{}, Board{}, ErrInvalidStatus
	}

	var (
		updated Task
		out     Board
	)
	err := s.submit(ctx, func(ctx context.Context) error {
		board, err := s.load(ctx)
		if err != nil {
			return err
		}

		// The column is authoritative; a hand-edited file may carry a stale status
		_, from, ok := board.Find(id)
		if !ok {
			return ErrTaskNotFound
		}
		task, _ := board.remove(id)

		now := s.timestamp()
		task.Status = status
		task.Updated = &now

		col := board.Column(status)
		*col = append(*col, task)

		if err := s.save(ctx, board); err != nil {
			return err
		}

		log.Info().
			Str("taskId", id).
			Str("from", string(from)).
			Str("to", string(status)).
			Msg("task status updated")
		s.notify(id, "update")

		updated = task
		out = board.Clone()
		return nil
	})
	return updated, out, err
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// nextID returns a decimal id derived from the clock in milliseconds, bumped
// past every id already on the board and every id handed out before.
func (s *Service) nextID(board *Board) string {
	id := s.now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	for _, status := range Statuses {
		for _, t := range *board.Column(status) {
			if n, err := strconv.ParseInt(t.ID, 10, 64); err == nil && n >= id {
				id = n + 1
			}
		}
	}
	s.lastID = id
	return strconv.FormatInt(id, 10)
}
