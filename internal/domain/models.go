package domain

import (
	"encoding/json"
	"time"
)

// Agent is a static directory entry for a remote agent service.
type Agent struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Emoji string `json:"emoji,omitempty"`
}

// MessageMetadata carries coordinator bookkeeping for a stored message.
type MessageMetadata struct {
	AgentName string `json:"agent_name"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	TaskID    string `json:"task_id,omitempty"`
	RawText   string `json:"raw_text,omitempty"`
}

// Message is one entry of a conversation transcript. Messages are values;
// a stored message is never mutated, only replaced by index.
type Message struct {
	Role      string          `json:"role"` // user or agent
	Text      string          `json:"text"`
	Kind      string          `json:"kind"`
	MessageID string          `json:"message_id"`
	Metadata  MessageMetadata `json:"metadata"`
}

// IsPlaceholderFor reports whether m is the submitted placeholder for taskID.
func (m Message) IsPlaceholderFor(taskID string) bool {
	return taskID != "" && m.Metadata.TaskID == taskID && m.Metadata.Status == string(TaskStateSubmitted)
}

// Context is the ordered transcript of a conversation.
type Context []Message

// Append returns a copy of c with msgs appended.
func (c Context) Append(msgs ...Message) Context {
	out := make(Context, 0, len(c)+len(msgs))
	out = append(out, c...)
	return append(out, msgs...)
}

// PlaceholderIndex returns the index of the submitted placeholder for taskID, or -1.
func (c Context) PlaceholderIndex(taskID string) int {
	for i, m := range c {
		if m.IsPlaceholderFor(taskID) {
			return i
		}
	}
	return -1
}

// Replace returns a copy of c with the message at index i swapped for msg.
func (c Context) Replace(i int, msg Message) Context {
	out := make(Context, len(c))
	copy(out, c)
	out[i] = msg
	return out
}

// TaskRecord tracks one task submitted to an agent on behalf of a context.
type TaskRecord struct {
	TaskID          string     `json:"task_id"`
	ContextID       string     `json:"context_id"`
	AgentName       string     `json:"agent_name"`
	Agent           Agent      `json:"agent"`
	Status          TaskState  `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CancelSent      bool       `json:"cancel_sent"`
	CancelRequested bool       `json:"cancel_requested"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
	CancelError     string     `json:"cancel_error,omitempty"`
}

// CancelResult is the outcome of cancelling a single task.
type CancelResult struct {
	TaskID string        `json:"task_id"`
	Agent  string        `json:"agent"`
	Status CancelOutcome `json:"status"`
	Reason string        `json:"reason,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// ConversationState is the in-memory status of a conversation.
type ConversationState struct {
	ContextID         string                 `json:"context_id"`
	Status            ConversationStatus     `json:"status"`
	Round             int                    `json:"round"`
	MaxRounds         int                    `json:"max_rounds"`
	AgentsContacted   int                    `json:"agents_contacted"`
	Responses         []string               `json:"responses"`
	TotalMessages     int                    `json:"total_messages"`
	CancelRequested   bool                   `json:"cancel_requested"`
	CancelReason      string                 `json:"cancel_reason,omitempty"`
	Error             string                 `json:"error,omitempty"`
	Tasks             map[string]*TaskRecord `json:"tasks"`
	LastCancelResults []CancelResult         `json:"last_cancel_results"`
	LastCancelledAt   *time.Time             `json:"last_cancelled_at,omitempty"`
}

// AgentReply is the normalized result of one exchange with an agent.
type AgentReply struct {
	AgentName      string            `json:"agent_name"`
	Texts          []string          `json:"texts"`
	Messages       []Message         `json:"messages"`
	Artifacts      []json.RawMessage `json:"artifacts,omitempty"`
	Status         TaskState         `json:"status"`
	RawStatus      string            `json:"raw_status,omitempty"`
	TaskID         string            `json:"task_id,omitempty"`
	OriginalSender string            `json:"original_sender,omitempty"`
	Chain          []string          `json:"chain,omitempty"`
}

// Event is a live conversation update pushed to websocket viewers.
type Event struct {
	Type      EventType          `json:"type"`
	ContextID string             `json:"context_id"`
	Ts        int64              `json:"ts"` // Unix milliseconds
	Message   *Message           `json:"message,omitempty"`
	Status    ConversationStatus `json:"status,omitempty"`
	Round     int                `json:"round,omitempty"`
	Replaced  bool               `json:"replaced,omitempty"`
}
