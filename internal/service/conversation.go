package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mcpeeps/coordinator/internal/adapter/agentclient"
	"github.com/mcpeeps/coordinator/internal/domain"
)

// Trigger schedules a conversation pass for req and returns immediately.
func (s *Service) Trigger(_ context.Context, req domain.TriggerRequest) (*domain.TriggerResponse, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	contextID := strings.TrimSpace(req.ContextID)
	if contextID == "" {
		contextID = "trigger-" + uuid.New().String()
	}

	agents := s.directory.All()
	if !s.tracker.begin(contextID, s.config.MaxRounds) {
		return nil, ErrConversationActive
	}
	s.publishStatus(contextID)

	s.wg.Add(1)
	go s.runConversation(contextID, text, agents)

	return &domain.TriggerResponse{
		Status:    "started",
		ContextID: contextID,
		Agents:    len(agents),
		Message:   "Conversation processing started in background",
	}, nil
}

// runConversation is the background pass owning contextID until it finishes.
func (s *Service) runConversation(contextID, text string, agents []domain.Agent) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(s.baseCtx)
	defer cancel()

	s.metrics.ActiveConversations.Inc()
	defer s.metrics.ActiveConversations.Dec()

	logger := s.logger.With("context_id", contextID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("conversation pass panicked", "panic", r)
			s.finish(contextID, domain.ConversationStatusFailed, fmt.Sprintf("unexpected error: %v", r))
		}
	}()

	if s.tracker.cancelRequested(contextID) {
		s.finish(contextID, domain.ConversationStatusCanceled, "")
		return
	}
	s.tracker.update(contextID, func(st *domain.ConversationState) {
		st.Status = domain.ConversationStatusRunning
	})
	s.publishStatus(contextID)
	logger.Info("conversation started", "agents", len(agents))

	err := s.conversationPass(ctx, contextID, text, agents)
	switch {
	case errors.Is(err, errCanceled):
		logger.Info("conversation canceled")
		s.finish(contextID, domain.ConversationStatusCanceled, "")
	case err != nil:
		logger.Error("conversation failed", "error", err)
		s.finish(contextID, domain.ConversationStatusFailed, err.Error())
	default:
		s.finish(contextID, domain.ConversationStatusCompleted, "")
	}
}

func (s *Service) finish(contextID string, status domain.ConversationStatus, errText string) {
	var round, total int
	s.tracker.update(contextID, func(st *domain.ConversationState) {
		st.Status = status
		if errText != "" {
			st.Error = errText
		}
		round, total = st.Round, st.TotalMessages
	})
	s.metrics.ConversationsTotal.WithLabelValues(string(status)).Inc()
	s.publishStatus(contextID)
	s.logger.Info("conversation finished", "context_id", contextID, "status", status, "round", round, "total_messages", total)
}

// checkpoint reports errCanceled once a cancel was requested for contextID.
func (s *Service) checkpoint(ctx context.Context, contextID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.tracker.cancelRequested(contextID) {
		return errCanceled
	}
	return nil
}

type pendingReply struct {
	agent domain.Agent
	reply *domain.AgentReply
	start time.Time
}

func (s *Service) conversationPass(ctx context.Context, contextID, text string, agents []domain.Agent) error {
	userMsg := agentclient.BuildUserMessage(text)
	if err := s.appendMessages(ctx, contextID, userMsg); err != nil {
		return err
	}

	// Fan-out.
	exchanges := make([]pendingReply, 0, len(agents))
	for _, agent := range agents {
		if err := s.checkpoint(ctx, contextID); err != nil {
			return err
		}
		start := time.Now()
		reply, err := s.submit(ctx, contextID, agent, userMsg)
		if err != nil {
			return err
		}
		if err := s.recordReply(ctx, contextID, reply); err != nil {
			return err
		}
		if reply.Status != domain.TaskStateSubmitted {
			s.observeCall(agent.Name, reply.Status, start)
		}
		exchanges = append(exchanges, pendingReply{agent: agent, reply: reply, start: start})
		s.tracker.update(contextID, func(st *domain.ConversationState) {
			st.AgentsContacted++
		})
	}

	// Poll whatever was accepted as an asynchronous task.
	for i, ex := range exchanges {
		if ex.reply.Status != domain.TaskStateSubmitted || ex.reply.TaskID == "" {
			continue
		}
		if err := s.checkpoint(ctx, contextID); err != nil {
			return err
		}
		final, err := s.poll(ctx, contextID, ex.agent, ex.reply.TaskID)
		if err != nil {
			return err
		}
		if err := s.recordReply(ctx, contextID, final); err != nil {
			return err
		}
		s.observeCall(ex.agent.Name, final.Status, ex.start)
		exchanges[i].reply = final
	}

	replies := make([]*domain.AgentReply, 0, len(exchanges))
	for _, ex := range exchanges {
		replies = append(replies, ex.reply)
	}
	if err := s.relayRounds(ctx, contextID, replies, agents); err != nil {
		return err
	}
	return s.checkpoint(ctx, contextID)
}

// relayRounds walks every collected reply in FIFO order, broadcasting each one.
// A sweep covers the replies present when it started; the round counter
// advances at the end of a sweep that produced at least one new reply.
func (s *Service) relayRounds(ctx context.Context, contextID string, replies []*domain.AgentReply, agents []domain.Agent) error {
	queue := append([]*domain.AgentReply(nil), replies...)
	boundary := len(queue)
	produced := 0
	round := 0

	for idx := 0; idx < len(queue) && round < s.config.MaxRounds; idx++ {
		if err := s.checkpoint(ctx, contextID); err != nil {
			return err
		}
		out, err := s.relay(ctx, contextID, queue[idx], agents)
		if err != nil {
			return err
		}
		queue = append(queue, out...)
		produced += len(out)

		if idx+1 == boundary {
			if produced > 0 {
				round++
				s.tracker.update(contextID, func(st *domain.ConversationState) {
					st.Round = round
				})
				s.publishStatus(contextID)
			}
			produced = 0
			boundary = len(queue)
		}
	}
	return nil
}

// submit sends msg to agent and registers the task when one is created.
// Agent failures become a failed reply; only store errors are returned.
func (s *Service) submit(ctx context.Context, contextID string, agent domain.Agent, msg domain.Message) (*domain.AgentReply, error) {
	reply, err := s.client.Submit(ctx, agent, msg, contextID)
	if err != nil {
		s.logger.Warn("agent submit failed", "context_id", contextID, "agent", agent.Name, "error", err)
		s.metrics.AgentErrorsTotal.WithLabelValues(agent.Name, "submit").Inc()
		return agentclient.FailedReply(agent.Name, fmt.Sprintf("Error contacting agent: %v", err), ""), nil
	}
	if reply.Status == domain.TaskStateSubmitted && reply.TaskID != "" {
		if err := s.trackTask(ctx, contextID, agent, reply.TaskID); err != nil {
			return nil, err
		}
	}
	return reply, nil
}

func (s *Service) pollOptions(ctx context.Context, contextID string) agentclient.PollOptions {
	return agentclient.PollOptions{
		Timeout:  s.config.PollTimeout,
		Interval: s.config.PollInterval,
		BeforePoll: func() error {
			return s.checkpoint(ctx, contextID)
		},
	}
}

// poll waits for a submitted task. Cancellation and shutdown are returned as
// errors; any other failure becomes a failed reply.
func (s *Service) poll(ctx context.Context, contextID string, agent domain.Agent, taskID string) (*domain.AgentReply, error) {
	reply, err := s.client.PollTaskUpdate(ctx, agent, taskID, s.pollOptions(ctx, contextID))
	if err != nil {
		if errors.Is(err, errCanceled) || ctx.Err() != nil {
			return nil, err
		}
		s.logger.Warn("task poll failed", "context_id", contextID, "agent", agent.Name, "task_id", taskID, "error", err)
		s.metrics.AgentErrorsTotal.WithLabelValues(agent.Name, "poll").Inc()
		reply = agentclient.FailedReply(agent.Name, fmt.Sprintf("Error polling task %s: %v", taskID, err), taskID)
	}
	if err := s.updateTaskStatus(ctx, contextID, taskID, reply.Status); err != nil {
		return nil, err
	}
	return reply, nil
}

func (s *Service) trackTask(ctx context.Context, contextID string, agent domain.Agent, taskID string) error {
	now := time.Now().UTC()
	rec := s.tracker.trackTask(&domain.TaskRecord{
		TaskID:    taskID,
		ContextID: contextID,
		AgentName: agent.Name,
		Agent:     agent,
		Status:    domain.TaskStateSubmitted,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err := s.store.UpdateTask(ctx, &rec); err != nil {
		return fmt.Errorf("failed to persist task %s: %w", taskID, err)
	}
	return nil
}

func (s *Service) updateTaskStatus(ctx context.Context, contextID, taskID string, state domain.TaskState) error {
	rec, changed := s.tracker.setTaskStatus(contextID, taskID, state)
	if !changed {
		return nil
	}
	if err := s.store.UpdateTask(ctx, &rec); err != nil {
		return fmt.Errorf("failed to persist task %s: %w", taskID, err)
	}
	return nil
}

func (s *Service) observeCall(agent string, status domain.TaskState, start time.Time) {
	s.metrics.AgentCallDuration.WithLabelValues(agent, string(status)).Observe(time.Since(start).Seconds())
}

// appendMessages adds user-side messages to the transcript.
func (s *Service) appendMessages(ctx context.Context, contextID string, msgs ...domain.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.store.LoadContext(ctx, contextID)
	if err != nil {
		return fmt.Errorf("failed to load context %s: %w", contextID, err)
	}
	if err := s.store.UpdateContext(ctx, contextID, current.Append(msgs...)); err != nil {
		return fmt.Errorf("failed to store context %s: %w", contextID, err)
	}
	s.tracker.update(contextID, func(st *domain.ConversationState) {
		st.TotalMessages += len(msgs)
	})
	for _, m := range msgs {
		s.publishMessage(contextID, m, false)
	}
	return nil
}

// recordReply writes reply's messages to the transcript. A settled task reply
// takes the place of that task's submitted placeholder; everything else is appended.
func (s *Service) recordReply(ctx context.Context, contextID string, reply *domain.AgentReply) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.store.LoadContext(ctx, contextID)
	if err != nil {
		return fmt.Errorf("failed to load context %s: %w", contextID, err)
	}

	type written struct {
		msg      domain.Message
		replaced bool
	}
	var out []written
	appended := 0
	canReplace := reply.TaskID != "" && reply.Status != domain.TaskStateSubmitted
	for _, m := range reply.Messages {
		if canReplace {
			if i := current.PlaceholderIndex(reply.TaskID); i >= 0 {
				current = current.Replace(i, m)
				out = append(out, written{msg: m, replaced: true})
				canReplace = false
				continue
			}
		}
		current = current.Append(m)
		appended++
		out = append(out, written{msg: m})
	}

	if err := s.store.UpdateContext(ctx, contextID, current); err != nil {
		return fmt.Errorf("failed to store context %s: %w", contextID, err)
	}

	s.tracker.update(contextID, func(st *domain.ConversationState) {
		st.TotalMessages += appended
		if reply.Status == domain.TaskStateSubmitted {
			return
		}
		for _, m := range reply.Messages {
			st.Responses = append(st.Responses, m.Text)
		}
	})
	for _, w := range out {
		s.publishMessage(contextID, w.msg, w.replaced)
	}
	return nil
}
