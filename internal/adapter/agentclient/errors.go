package agentclient

import (
	"fmt"

	"github.com/mcpeeps/coordinator/internal/domain"
)

// ProtocolError is returned when an agent answers with a malformed or
// error-bearing payload.
type ProtocolError struct {
	Method  string
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("agent error %d on %s: %s", e.Code, e.Method, e.Message)
	}
	return fmt.Sprintf("agent protocol error on %s: %s", e.Method, e.Message)
}

// TimeoutError is returned when a task does not reach a terminal state before
// the poll deadline.
type TimeoutError struct {
	TaskID    string
	LastState domain.TaskState
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for task %s to complete (last state: %s)", e.TaskID, e.LastState)
}
