package domain

// TriggerRequest starts a conversation. Fields bind from form or JSON bodies.
type TriggerRequest struct {
	Message   string `json:"message" form:"message"`
	ContextID string `json:"context_id,omitempty" form:"context_id"`
}

// TriggerResponse is returned as soon as the background pass is scheduled.
type TriggerResponse struct {
	Status    string `json:"status"`
	ContextID string `json:"context_id"`
	Agents    int    `json:"agents"`
	Message   string `json:"message"`
}

// CancelRequest asks for a conversation to be cancelled.
type CancelRequest struct {
	ContextID string `json:"context_id" form:"context_id"`
	Reason    string `json:"reason,omitempty" form:"reason"`
}

// CancelResponse reports the conversation status after a cancel request.
type CancelResponse struct {
	ContextID         string         `json:"context_id"`
	Status            string         `json:"status"`
	Message           string         `json:"message"`
	Round             int            `json:"round"`
	MaxRounds         int            `json:"max_rounds"`
	CancelRequested   bool           `json:"cancel_requested"`
	CancelReason      string         `json:"cancel_reason,omitempty"`
	TaskCancellations []CancelResult `json:"task_cancellations,omitempty"`
}

// MessageView is the flattened form of a stored message served to viewers.
type MessageView struct {
	ContextID string `json:"context_id"`
	MessageID string `json:"message_id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	Kind      string `json:"kind"`
	AgentName string `json:"agent_name"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
	TaskID    string `json:"task_id,omitempty"`
}

// AgentView is a directory entry with an optional health probe result.
type AgentView struct {
	Agent
	Healthy *bool `json:"healthy,omitempty"`
}
