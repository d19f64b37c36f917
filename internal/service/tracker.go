package service

import (
	"sort"
	"sync"
	"time"

	"github.com/mcpeeps/coordinator/internal/domain"
)

// tracker owns the in-memory conversation states and the recent-task index.
// Every read returns a copy; every mutation happens under mu.
type tracker struct {
	mu            sync.Mutex
	conversations map[string]*domain.ConversationState
	recent        *recentTasks
}

func newTracker(recentLimit int) *tracker {
	return &tracker{
		conversations: make(map[string]*domain.ConversationState),
		recent:        newRecentTasks(recentLimit),
	}
}

// begin installs a fresh pending state for contextID. It fails when a pass
// for the same context has not finished yet.
func (t *tracker) begin(contextID string, maxRounds int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.conversations[contextID]; ok && !st.Status.IsFinal() {
		return false
	}
	t.conversations[contextID] = &domain.ConversationState{
		ContextID: contextID,
		Status:    domain.ConversationStatusPending,
		MaxRounds: maxRounds,
		Responses: []string{},
		Tasks:     make(map[string]*domain.TaskRecord),
	}
	return true
}

// update runs fn on the live state of contextID.
func (t *tracker) update(contextID string, fn func(st *domain.ConversationState)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.conversations[contextID]
	if !ok {
		return false
	}
	fn(st)
	return true
}

func (t *tracker) snapshot(contextID string) (domain.ConversationState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.conversations[contextID]
	if !ok {
		return domain.ConversationState{}, false
	}
	return copyState(st), true
}

func (t *tracker) cancelRequested(contextID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.conversations[contextID]
	return ok && st.CancelRequested
}

// trackTask registers rec with its conversation and the recent index.
func (t *tracker) trackTask(rec *domain.TaskRecord) domain.TaskRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.conversations[rec.ContextID]; ok {
		st.Tasks[rec.TaskID] = rec
	}
	t.recent.put(rec)
	return *rec
}

func (t *tracker) lookupLocked(contextID, taskID string) *domain.TaskRecord {
	if st, ok := t.conversations[contextID]; ok {
		if rec, ok := st.Tasks[taskID]; ok {
			return rec
		}
	}
	if rec, ok := t.recent.get(taskID); ok {
		return rec
	}
	return nil
}

// setTaskStatus moves a task to state unless it is already terminal.
func (t *tracker) setTaskStatus(contextID, taskID string, state domain.TaskState) (domain.TaskRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec := t.lookupLocked(contextID, taskID)
	if rec == nil || rec.Status.IsTerminal() {
		return domain.TaskRecord{}, false
	}
	now := time.Now().UTC()
	rec.Status = state
	rec.UpdatedAt = now
	if state.IsTerminal() {
		rec.CompletedAt = &now
	}
	return *rec, true
}

// mutateTask runs fn on a known task record and returns a copy of the result.
func (t *tracker) mutateTask(contextID, taskID string, fn func(rec *domain.TaskRecord)) (domain.TaskRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec := t.lookupLocked(contextID, taskID)
	if rec == nil {
		return domain.TaskRecord{}, false
	}
	fn(rec)
	rec.UpdatedAt = time.Now().UTC()
	return *rec, true
}

func (t *tracker) recentTask(taskID string) (domain.TaskRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.recent.get(taskID)
	if !ok {
		return domain.TaskRecord{}, false
	}
	return *rec, true
}

// cancelCandidates lists the open tasks of contextID: the conversation's own
// tasks in submission order, then recent-index entries newest first.
func (t *tracker) cancelCandidates(contextID string) []domain.TaskRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	open := func(rec *domain.TaskRecord) bool {
		return !rec.Status.IsTerminal() && !rec.CancelSent
	}

	seen := make(map[string]bool)
	var out []domain.TaskRecord
	if st, ok := t.conversations[contextID]; ok {
		own := make([]*domain.TaskRecord, 0, len(st.Tasks))
		for _, rec := range st.Tasks {
			own = append(own, rec)
		}
		sort.Slice(own, func(i, j int) bool { return own[i].CreatedAt.Before(own[j].CreatedAt) })
		for _, rec := range own {
			seen[rec.TaskID] = true
			if open(rec) {
				out = append(out, *rec)
			}
		}
	}
	for _, rec := range t.recent.newestFirst() {
		if rec.ContextID != contextID || seen[rec.TaskID] {
			continue
		}
		seen[rec.TaskID] = true
		if open(rec) {
			out = append(out, *rec)
		}
	}
	return out
}

func copyState(st *domain.ConversationState) domain.ConversationState {
	out := *st
	out.Responses = append([]string{}, st.Responses...)
	out.LastCancelResults = append([]domain.CancelResult(nil), st.LastCancelResults...)
	out.Tasks = make(map[string]*domain.TaskRecord, len(st.Tasks))
	for id, rec := range st.Tasks {
		cp := *rec
		out.Tasks[id] = &cp
	}
	if st.LastCancelledAt != nil {
		ts := *st.LastCancelledAt
		out.LastCancelledAt = &ts
	}
	return out
}
