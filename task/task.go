// Package task implements the Task Store: an in-memory mapping from task id
// to task record, its status-transition log, and optional pause info. It
// also implements a2asrv.TaskStore so it can be handed directly to the A2A
// server plumbing.
//
// Persistence across process restarts is explicitly out of scope; this
// store never touches disk.
package task

import (
	"context"
	"sync"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/google/uuid"

	"github.com/agentcore/agentcore/agenterr"
	"github.com/agentcore/agentcore/taskstate"
)

// PauseReason distinguishes why a task is parked in a paused state.
type PauseReason string

const (
	PauseInputRequired PauseReason = "input-required"
	PauseAuthRequired  PauseReason = "auth-required"
)

// PauseInfo describes what a paused task is waiting for.
type PauseInfo struct {
	Reason      PauseReason
	Prompt      *a2a.Message
	InputSchema map[string]any
}

// TaskError carries {message, code} for a failed task, per §3.
type TaskError struct {
	Message string
	Code    string
}

// Record is the full state this store keeps for one task.
type Record struct {
	ID        string
	ContextID string
	State     taskstate.State
	CreatedAt time.Time
	UpdatedAt time.Time
	Result    any
	Err       *TaskError
	Pause     *PauseInfo
	History   []*a2a.Message
	Artifacts []a2a.Artifact
	Metadata  map[string]any

	// Transitions is the append-only transition log, oldest first.
	Transitions []taskstate.Transition

	mu sync.RWMutex
}

// Status returns the current state under the record's own lock.
func (r *Record) Status() taskstate.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.State
}

// Transition validates and applies from -> to, appending to the log and
// returning an InvalidTransition error (without mutating state) if the edge
// is not allowed.
func (r *Record) Transition(to taskstate.State, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tr, err := taskstate.Record(r.State, to, now)
	if err != nil {
		return err
	}
	r.State = to
	r.UpdatedAt = now
	r.Transitions = append(r.Transitions, tr)
	return nil
}

func (r *Record) AppendHistory(msg *a2a.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.History = append(r.History, msg)
	r.UpdatedAt = time.Now()
}

func (r *Record) AddArtifact(a a2a.Artifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Artifacts = append(r.Artifacts, a)
	r.UpdatedAt = time.Now()
}

func (r *Record) SetPause(p *PauseInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Pause = p
}

func (r *Record) ClearPause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Pause = nil
}

func (r *Record) GetPause() *PauseInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Pause
}

func (r *Record) SetResult(v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Result = v
}

func (r *Record) SetError(e *TaskError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Err = e
}

// Store is the in-memory Task Store. It is safe for concurrent use; each
// Record has its own lock so a slow caller on one task never blocks access
// to another.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func New() *Store {
	return &Store{records: make(map[string]*Record)}
}

// Create allocates a new Record in state Submitted, generating a task id if
// taskID is empty.
func (s *Store) Create(taskID, contextID string) *Record {
	if taskID == "" {
		taskID = uuid.NewString()
	}
	now := time.Now()
	r := &Record{
		ID:        taskID,
		ContextID: contextID,
		State:     taskstate.Submitted,
		CreatedAt: now,
		UpdatedAt: now,
		History:   make([]*a2a.Message, 0),
		Artifacts: make([]a2a.Artifact, 0),
		Metadata:  make(map[string]any),
	}
	s.mu.Lock()
	s.records[taskID] = r
	s.mu.Unlock()
	return r
}

// Get returns the record for taskID, or nil if no such task is known. A
// caller that needs an error for an unknown task should treat a nil return
// as taskstate.Unknown.
func (s *Store) Get(taskID string) *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[taskID]
}

// State returns the task's current state, or Unknown if the task does not
// exist in this store.
func (s *Store) State(taskID string) taskstate.State {
	r := s.Get(taskID)
	if r == nil {
		return taskstate.Unknown
	}
	return r.Status()
}

func (s *Store) List(contextID string) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, r := range s.records {
		if r.ContextID == contextID {
			out = append(out, r)
		}
	}
	return out
}

// A2AStore adapts a Store to a2asrv.TaskStore's Save/Get/Close shape,
// exactly the interface hector's SQLTaskStore implements — kept as a
// separate type because the Store's own Get(taskID string) *Record has a
// different signature than a2asrv.TaskStore's Get(ctx, a2a.TaskID).
type A2AStore struct {
	*Store
}

func NewA2AStore(s *Store) *A2AStore { return &A2AStore{Store: s} }

// Save upserts the wire-level a2a.Task representation. Used when the A2A
// server layer needs to persist a task snapshot it built itself (e.g. from
// an inbound request before the core has a Record yet).
func (a *A2AStore) Save(_ context.Context, t *a2a.Task) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := string(t.ID)
	r, ok := a.records[id]
	if !ok {
		r = &Record{ID: id, ContextID: t.ContextID, CreatedAt: time.Now()}
		a.records[id] = r
	}
	r.mu.Lock()
	r.State = taskstate.FromWire(t.Status.State)
	r.History = t.History
	r.Artifacts = t.Artifacts
	r.Metadata = t.Metadata
	r.UpdatedAt = time.Now()
	r.mu.Unlock()
	return nil
}

// Get returns the wire-level a2a.Task for taskID, or a2a.ErrTaskNotFound.
func (a *A2AStore) Get(_ context.Context, taskID a2a.TaskID) (*a2a.Task, error) {
	r := a.Store.Get(string(taskID))
	if r == nil {
		return nil, a2a.ErrTaskNotFound
	}
	return ToA2ATask(r), nil
}

// Close satisfies a2asrv.TaskStore; this store holds no external resources.
func (a *A2AStore) Close() error { return nil }

var _ a2asrv.TaskStore = (*A2AStore)(nil)

// ToA2ATask projects a Record into the wire-level a2a.Task shape.
func ToA2ATask(r *Record) *a2a.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &a2a.Task{
		ID:        a2a.TaskID(r.ID),
		ContextID: r.ContextID,
		Status: a2a.TaskStatus{
			State:     taskstate.ToWire(r.State),
			Timestamp: r.UpdatedAt,
		},
		History:   r.History,
		Artifacts: r.Artifacts,
		Metadata:  r.Metadata,
	}
}

// NotFound constructs the InvalidRequest error raised when a message
// targets a task id the store has never seen.
func NotFound(taskID string) error {
	return agenterr.InvalidRequest("TaskStore", "Get", "task not found: "+taskID, nil)
}
