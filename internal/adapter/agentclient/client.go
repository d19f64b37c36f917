// Package agentclient provides a JSON-RPC client for talking to remote agents.
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mcpeeps/coordinator/internal/domain"
)

const defaultCallTimeout = 30 * time.Second

// Client sends messages to agents and inspects or cancels their tasks.
type Client struct {
	http        *resty.Client
	callTimeout time.Duration
	logger      *slog.Logger

	qps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient makes the client use hc for transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = resty.NewWithClient(hc) }
}

// WithCallTimeout caps every single RPC call.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithRateLimit throttles calls per agent URL. qps <= 0 disables throttling.
func WithRateLimit(qps float64, burst int) Option {
	return func(c *Client) {
		if qps <= 0 {
			c.qps = 0
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.qps = rate.Limit(qps)
		c.burst = burst
	}
}

// WithLogger sets the logger used for protocol diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a new agent client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:        resty.New(),
		callTimeout: defaultCallTimeout,
		logger:      slog.Default(),
		limiters:    make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.SetHeader("Content-Type", "application/json")
	return c
}

// CallTimeout returns the per-call cap.
func (c *Client) CallTimeout() time.Duration {
	return c.callTimeout
}

// Submit sends msg to agent via message/send. A direct message result yields a
// completed reply; a task result yields a submitted reply carrying the task id.
func (c *Client) Submit(ctx context.Context, agent domain.Agent, msg domain.Message, contextID string) (*domain.AgentReply, error) {
	params := SendParams{
		Message: BuildMessagePayload(msg, contextID),
		Configuration: SendConfiguration{
			Blocking:            true,
			AcceptedOutputModes: []string{"text"},
		},
	}
	result, err := c.call(ctx, agent.URL, MethodMessageSend, params, c.callTimeout)
	if err != nil {
		return nil, err
	}
	if isNull(result) {
		return nil, &ProtocolError{Method: MethodMessageSend, Message: "agent response missing result payload"}
	}
	if !isObject(result) {
		return nil, &ProtocolError{Method: MethodMessageSend, Message: "agent result is not an object"}
	}

	var res sendResult
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, &ProtocolError{Method: MethodMessageSend, Message: fmt.Sprintf("malformed result: %v", err)}
	}

	switch res.Kind {
	case "message":
		text := PartsToText(res.Parts)
		reply := &domain.AgentReply{
			AgentName: agent.Name,
			Status:    domain.TaskStateCompleted,
		}
		if text != "" {
			reply.Texts = []string{text}
			reply.Messages = []domain.Message{BuildAgentMessage(agent.Name, text, domain.TaskStateCompleted, "")}
		} else {
			reply.Messages = []domain.Message{BuildAgentMessage(agent.Name, noVisibleText, domain.TaskStateCompleted, "")}
		}
		return reply, nil
	case "task":
		if res.ID == "" {
			return nil, &ProtocolError{Method: MethodMessageSend, Message: "task result without id"}
		}
		placeholder := fmt.Sprintf("Task %s... submitted", shortID(res.ID))
		return &domain.AgentReply{
			AgentName: agent.Name,
			Texts:     []string{placeholder},
			Messages:  []domain.Message{BuildAgentMessage(agent.Name, placeholder, domain.TaskStateSubmitted, res.ID)},
			Status:    domain.TaskStateSubmitted,
			TaskID:    res.ID,
		}, nil
	default:
		return nil, &ProtocolError{Method: MethodMessageSend, Message: fmt.Sprintf("unsupported result kind %q", res.Kind)}
	}
}

// GetTask fetches the current snapshot of a task.
func (c *Client) GetTask(ctx context.Context, agentURL, taskID string, timeout time.Duration) (*Task, error) {
	if timeout <= 0 || timeout > c.callTimeout {
		timeout = c.callTimeout
	}
	result, err := c.call(ctx, agentURL, MethodTasksGet, TaskIDParams{ID: taskID}, timeout)
	if err != nil {
		return nil, err
	}
	if isNull(result) {
		return nil, &ProtocolError{Method: MethodTasksGet, Message: "agent response missing task payload"}
	}
	var task Task
	if err := json.Unmarshal(result, &task); err != nil {
		return nil, &ProtocolError{Method: MethodTasksGet, Message: fmt.Sprintf("malformed task: %v", err)}
	}
	return &task, nil
}

// Cancel asks the agent to cancel a task. The agent's result object is
// returned as-is, or an empty map when it returned something else.
func (c *Client) Cancel(ctx context.Context, agentURL, taskID, reason string) (map[string]interface{}, error) {
	params := TaskIDParams{ID: taskID}
	if reason != "" {
		params.Metadata = map[string]string{"reason": reason}
	}
	result, err := c.call(ctx, agentURL, MethodTasksCancel, params, c.callTimeout)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	if isObject(result) {
		if err := json.Unmarshal(result, &out); err != nil {
			return map[string]interface{}{}, nil
		}
	}
	return out, nil
}

// NormalizeState parses a wire state and logs values outside the known set.
func (c *Client) NormalizeState(v interface{}, taskID string) domain.NormalizedState {
	st := ParseTaskState(v)
	if st.Raw != "" {
		c.logger.Warn("unexpected task state", "task_id", taskID, "state", st.Raw)
	} else if v == nil {
		c.logger.Debug("task status without state", "task_id", taskID)
	}
	return st
}

func (c *Client) call(ctx context.Context, agentURL, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	if err := c.wait(ctx, agentURL); err != nil {
		return nil, fmt.Errorf("rate limit wait for %s: %w", agentURL, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.New().String(),
		Method:  method,
		Params:  params,
	}
	resp, err := c.http.R().
		SetContext(callCtx).
		SetBody(req).
		Post(endpoint(agentURL))
	if err != nil {
		return nil, fmt.Errorf("failed to call %s on %s: %w", method, agentURL, err)
	}
	if resp.IsError() {
		return nil, &ProtocolError{
			Method:  method,
			Message: fmt.Sprintf("agent returned status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String())),
		}
	}

	var env rpcResponse
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, &ProtocolError{Method: method, Message: fmt.Sprintf("malformed response: %v", err)}
	}
	if env.Error != nil {
		return nil, &ProtocolError{Method: method, Code: env.Error.Code, Message: env.Error.Message}
	}
	return env.Result, nil
}

func (c *Client) wait(ctx context.Context, agentURL string) error {
	if c.qps <= 0 {
		return nil
	}
	c.mu.Lock()
	l, ok := c.limiters[agentURL]
	if !ok {
		l = rate.NewLimiter(c.qps, c.burst)
		c.limiters[agentURL] = l
	}
	c.mu.Unlock()
	return l.Wait(ctx)
}

func endpoint(agentURL string) string {
	return strings.TrimSuffix(agentURL, "/") + "/"
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
