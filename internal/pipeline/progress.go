package pipeline

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/choco-forest-watch/forest-watch-api/internal/store"
	"github.com/rs/zerolog/log"
)

// ErrCancelled is returned by a job that observed its cancellation flag at
// a stage boundary.
var ErrCancelled = errors.New("job cancelled")

// CancelToken is a cooperative cancellation flag. Jobs poll it between
// stages; a running stage is never interrupted mid flight.
type CancelToken struct {
	cancelled atomic.Bool
}

func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
}

func (t *CancelToken) Cancelled() bool {
	return t.cancelled.Load()
}

// TokenRegistry tracks the cancel tokens of running jobs by task id.
type TokenRegistry struct {
	mu     sync.Mutex
	tokens map[string]*CancelToken
}

func NewTokenRegistry() *TokenRegistry {
	return &TokenRegistry{tokens: map[string]*CancelToken{}}
}

// Register creates and tracks a token for a task.
func (r *TokenRegistry) Register(taskID string) *CancelToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	token := &CancelToken{}
	r.tokens[taskID] = token
	return token
}

// Cancel flags a running task. Unknown ids are a no-op.
func (r *TokenRegistry) Cancel(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[taskID]
	if ok {
		token.Cancel()
	}
	return ok
}

// Release drops a finished task's token.
func (r *TokenRegistry) Release(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, taskID)
}

// Reporter persists job progress so clients can poll it.
type Reporter struct {
	store  *store.Store
	taskID string
	kind   string
}

func NewReporter(s *store.Store, taskID, kind string) *Reporter {
	return &Reporter{store: s, taskID: taskID, kind: kind}
}

// Update writes a progress snapshot. Progress is a fraction in [0,1].
func (r *Reporter) Update(progress float64, message, status string) {
	r.write(progress, message, status, "")
}

// Fail marks the task failed with its error message.
func (r *Reporter) Fail(progress float64, err error) {
	r.write(progress, "job failed", store.TaskFailed, err.Error())
}

// Complete marks the task done.
func (r *Reporter) Complete(message string) {
	r.write(1, message, store.TaskCompleted, "")
}

// Cancelled marks the task as stopped on user request.
func (r *Reporter) Cancelled(progress float64) {
	r.write(progress, "cancelled by user", store.TaskCancelled, "")
}

func (r *Reporter) write(progress float64, message, status, errMsg string) {
	if r == nil || r.store == nil {
		return
	}
	log.Debug().
		Str("task", r.taskID).
		Str("status", status).
		Float64("progress", progress).
		Msg(message)
	r.store.UpsertTask(&store.Task{
		TaskID:   r.taskID,
		Kind:     r.kind,
		Status:   status,
		Progress: progress,
		Message:  message,
		Error:    errMsg,
	})
}
