package agentclient

import (
	"context"
	"fmt"
	"time"

	"github.com/mcpeeps/coordinator/internal/domain"
)

// PollOptions controls how a task is polled until it settles.
type PollOptions struct {
	Timeout  time.Duration
	Interval time.Duration
	// BeforePoll runs before every tasks/get; a non-nil error stops polling
	// and is returned to the caller.
	BeforePoll func() error
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Timeout <= 0 {
		o.Timeout = 300 * time.Second
	}
	if o.Interval <= 0 {
		o.Interval = 500 * time.Millisecond
	}
	return o
}

// WaitForCompletion polls tasks/get until the task reaches a terminal state.
// It returns a *TimeoutError when opts.Timeout elapses first.
func (c *Client) WaitForCompletion(ctx context.Context, agentURL, taskID string, opts PollOptions) (*Task, error) {
	opts = opts.withDefaults()
	deadline := time.Now().Add(opts.Timeout)
	last := domain.TaskStateUnknown

	for {
		if opts.BeforePoll != nil {
			if err := opts.BeforePoll(); err != nil {
				return nil, err
			}
		}

		task, err := c.GetTask(ctx, agentURL, taskID, opts.Timeout)
		if err != nil {
			return nil, err
		}
		st := c.NormalizeState(task.Status.State, taskID)
		last = st.State
		if st.State.IsTerminal() {
			return task, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, &TimeoutError{TaskID: taskID, LastState: last}
		}
		wait := opts.Interval
		if wait > remaining {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// PollTaskUpdate waits for a submitted task and converts its final snapshot
// into a reply.
func (c *Client) PollTaskUpdate(ctx context.Context, agent domain.Agent, taskID string, opts PollOptions) (*domain.AgentReply, error) {
	task, err := c.WaitForCompletion(ctx, agent.URL, taskID, opts)
	if err != nil {
		return nil, err
	}
	return ReplyFromTask(agent.Name, taskID, task), nil
}

// SendAndCollect submits msg and, when the agent answers with a task, polls it
// to completion. onSubmitted is called with the submitted reply before polling.
func (c *Client) SendAndCollect(ctx context.Context, agent domain.Agent, msg domain.Message, contextID string, opts PollOptions, onSubmitted func(*domain.AgentReply)) (*domain.AgentReply, error) {
	reply, err := c.Submit(ctx, agent, msg, contextID)
	if err != nil {
		return nil, err
	}
	if reply.Status != domain.TaskStateSubmitted || reply.TaskID == "" {
		return reply, nil
	}
	if onSubmitted != nil {
		onSubmitted(reply)
	}
	return c.PollTaskUpdate(ctx, agent, reply.TaskID, opts)
}

// ReplyFromTask builds a reply out of a settled task snapshot. Texts holds only
// visible agent content; the transcript always gets at least one message.
func ReplyFromTask(agentName, taskID string, task *Task) *domain.AgentReply {
	st := ParseTaskState(task.Status.State)

	texts := ExtractAgentTexts(task)
	if len(texts) == 0 {
		if s := ExtractStatusText(task); s != "" {
			texts = []string{s}
		}
	}

	reply := &domain.AgentReply{
		AgentName: agentName,
		Texts:     texts,
		Artifacts: task.Artifacts,
		Status:    st.State,
		RawStatus: st.Raw,
		TaskID:    taskID,
	}
	for _, t := range texts {
		reply.Messages = append(reply.Messages, BuildAgentMessage(agentName, t, st.State, taskID))
	}
	if len(reply.Messages) == 0 {
		label := string(st.State)
		if st.Raw != "" {
			label = st.Raw
		}
		fallback := fmt.Sprintf("(no visible text; final state: %s)", label)
		reply.Messages = []domain.Message{BuildAgentMessage(agentName, fallback, st.State, taskID)}
	}
	return reply
}
