// Package domain defines the core domain models for the coordinator.
package domain

// TaskState is the lifecycle state of a task on a remote agent.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateFailed        TaskState = "failed"
	TaskStateRejected      TaskState = "rejected"
	TaskStateAuthRequired  TaskState = "auth-required"
	TaskStateUnknown       TaskState = "unknown"
)

var knownTaskStates = map[TaskState]struct{}{
	TaskStateSubmitted:     {},
	TaskStateWorking:       {},
	TaskStateInputRequired: {},
	TaskStateCompleted:     {},
	TaskStateCanceled:      {},
	TaskStateFailed:        {},
	TaskStateRejected:      {},
	TaskStateAuthRequired:  {},
	TaskStateUnknown:       {},
}

// IsKnown reports whether s belongs to the closed set of task states.
func (s TaskState) IsKnown() bool {
	_, ok := knownTaskStates[s]
	return ok
}

// IsTerminal reports whether no further progress is expected for a task in state s.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled, TaskStateRejected,
		TaskStateInputRequired, TaskStateAuthRequired:
		return true
	}
	return false
}

// IsFailure reports whether a reply in state s must not be relayed further.
func (s TaskState) IsFailure() bool {
	switch s {
	case TaskStateFailed, TaskStateCanceled, TaskStateRejected:
		return true
	}
	return false
}

// NormalizedState is a task state parsed from the wire. Raw keeps the original
// value when it fell outside the known set and State is TaskStateUnknown.
type NormalizedState struct {
	State TaskState
	Raw   string
}

// ConversationStatus is the status of one conversation pass.
type ConversationStatus string

const (
	ConversationStatusPending         ConversationStatus = "pending"
	ConversationStatusRunning         ConversationStatus = "running"
	ConversationStatusCancelRequested ConversationStatus = "cancel_requested"
	ConversationStatusCanceled        ConversationStatus = "canceled"
	ConversationStatusCompleted       ConversationStatus = "completed"
	ConversationStatusFailed          ConversationStatus = "failed"
)

// IsFinal reports whether the conversation pass has ended.
func (s ConversationStatus) IsFinal() bool {
	switch s {
	case ConversationStatusCompleted, ConversationStatusFailed, ConversationStatusCanceled:
		return true
	}
	return false
}

// CancelOutcome is the per-task result of a cancellation attempt.
type CancelOutcome string

const (
	CancelOutcomeRequested CancelOutcome = "cancel_requested"
	CancelOutcomeSkipped   CancelOutcome = "skipped"
	CancelOutcomeError     CancelOutcome = "error"
)

// EventType is the type of a live conversation event pushed to viewers.
type EventType string

const (
	EventTypeMessage EventType = "message"
	EventTypeStatus  EventType = "status"
)
