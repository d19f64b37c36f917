package agentclient

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mcpeeps/coordinator/internal/domain"
)

// JSON-RPC methods spoken by agents.
const (
	MethodMessageSend = "message/send"
	MethodTasksGet    = "tasks/get"
	MethodTasksCancel = "tasks/cancel"
)

const (
	noVisibleText    = "(no visible text)"
	noVisibleContent = "(no visible content)"
)

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Part is one content part of a wire message.
type Part struct {
	Kind     string                 `json:"kind"`
	Text     string                 `json:"text,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// WireMessage is a message as exchanged with agents.
type WireMessage struct {
	Role      string                 `json:"role"`
	Parts     []Part                 `json:"parts"`
	Kind      string                 `json:"kind"`
	MessageID string                 `json:"messageId"`
	ContextID string                 `json:"contextId,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// SendConfiguration asks the agent for a blocking, text-only answer.
type SendConfiguration struct {
	Blocking            bool     `json:"blocking"`
	AcceptedOutputModes []string `json:"acceptedOutputModes"`
}

// SendParams are the params of message/send.
type SendParams struct {
	Message       WireMessage       `json:"message"`
	Configuration SendConfiguration `json:"configuration"`
}

// TaskIDParams are the params of tasks/get and tasks/cancel.
type TaskIDParams struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// TaskStatus is the status block of a task snapshot. State is kept untyped so
// that non-string values can be diagnosed.
type TaskStatus struct {
	State   interface{}     `json:"state"`
	Message json.RawMessage `json:"message,omitempty"`
}

// Task is a snapshot of a remote task as returned by tasks/get.
type Task struct {
	ID        string            `json:"id"`
	ContextID string            `json:"contextId,omitempty"`
	Kind      string            `json:"kind,omitempty"`
	Status    TaskStatus        `json:"status"`
	History   []WireMessage     `json:"history,omitempty"`
	Artifacts []json.RawMessage `json:"artifacts,omitempty"`
}

type sendResult struct {
	Kind  string `json:"kind"`
	ID    string `json:"id"`
	Parts []Part `json:"parts"`
}

// ParseTaskState maps a wire state onto the closed set. Values outside the
// set become TaskStateUnknown with Raw holding the original value.
func ParseTaskState(v interface{}) domain.NormalizedState {
	switch s := v.(type) {
	case nil:
		return domain.NormalizedState{State: domain.TaskStateUnknown}
	case string:
		if st := domain.TaskState(s); st.IsKnown() {
			return domain.NormalizedState{State: st}
		}
		return domain.NormalizedState{State: domain.TaskStateUnknown, Raw: s}
	default:
		return domain.NormalizedState{State: domain.TaskStateUnknown, Raw: fmt.Sprint(s)}
	}
}

// PartsToText joins the visible text parts, skipping thinking content.
func PartsToText(parts []Part) string {
	var chunks []string
	for _, p := range parts {
		if p.Kind != "text" {
			continue
		}
		if t, _ := p.Metadata["type"].(string); t == "thinking" {
			continue
		}
		if text := strings.TrimSpace(p.Text); text != "" {
			chunks = append(chunks, text)
		}
	}
	return strings.TrimSpace(strings.Join(chunks, "\n"))
}

// ExtractAgentTexts returns the visible text of each agent message in the task history.
func ExtractAgentTexts(task *Task) []string {
	var texts []string
	for _, m := range task.History {
		if m.Role != "agent" {
			continue
		}
		if text := PartsToText(m.Parts); text != "" {
			texts = append(texts, text)
		}
	}
	return texts
}

// ExtractStatusText returns visible text embedded in the task status message.
func ExtractStatusText(task *Task) string {
	if len(task.Status.Message) == 0 {
		return ""
	}
	var m WireMessage
	if err := json.Unmarshal(task.Status.Message, &m); err != nil {
		return ""
	}
	return PartsToText(m.Parts)
}

// BuildAgentMessage creates the transcript entry for an agent's text.
func BuildAgentMessage(agentName, text string, status domain.TaskState, taskID string) domain.Message {
	display := agentName + ": " + text
	if text == "" {
		display = agentName + ": " + noVisibleContent
	}
	return domain.Message{
		Role:      "agent",
		Text:      display,
		Kind:      "message",
		MessageID: uuid.New().String(),
		Metadata: domain.MessageMetadata{
			AgentName: agentName,
			Status:    string(status),
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			TaskID:    taskID,
			RawText:   text,
		},
	}
}

// BuildUserMessage creates a user-role transcript entry.
func BuildUserMessage(text string) domain.Message {
	return domain.Message{
		Role:      "user",
		Text:      text,
		Kind:      "message",
		MessageID: uuid.New().String(),
		Metadata: domain.MessageMetadata{
			AgentName: "user",
			Status:    string(domain.TaskStateCompleted),
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			RawText:   text,
		},
	}
}

// FailedReply builds the synthetic reply recorded when talking to an agent failed.
func FailedReply(agentName, text, taskID string) *domain.AgentReply {
	return &domain.AgentReply{
		AgentName: agentName,
		Texts:     []string{text},
		Messages:  []domain.Message{BuildAgentMessage(agentName, text, domain.TaskStateFailed, taskID)},
		Status:    domain.TaskStateFailed,
		TaskID:    taskID,
	}
}

// BuildMessagePayload converts a transcript message to the outbound wire form.
func BuildMessagePayload(msg domain.Message, contextID string) WireMessage {
	role := msg.Role
	if role == "" {
		role = "user"
	}
	kind := msg.Kind
	if kind == "" {
		kind = "message"
	}
	id := msg.MessageID
	if id == "" {
		id = uuid.New().String()
	}
	payload := WireMessage{
		Role:      role,
		Parts:     []Part{{Kind: "text", Text: msg.Text}},
		Kind:      kind,
		MessageID: id,
		ContextID: contextID,
	}
	if md := msg.Metadata; md.AgentName != "" {
		payload.Metadata = map[string]interface{}{
			"agent_name": md.AgentName,
			"status":     md.Status,
			"timestamp":  md.Timestamp,
		}
		if md.RawText != "" {
			payload.Metadata["raw_text"] = md.RawText
		}
		if md.TaskID != "" {
			payload.Metadata["task_id"] = md.TaskID
		}
	}
	return payload
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
