package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mcpeeps/coordinator/internal/adapter/agentclient"
	"github.com/mcpeeps/coordinator/internal/domain"
	"github.com/mcpeeps/coordinator/internal/policy"
)

// relayable reports whether reply carries settled, successful, visible text.
func relayable(reply *domain.AgentReply) bool {
	return reply.Status.IsTerminal() && !reply.Status.IsFailure() && len(reply.Texts) > 0
}

// relay forwards each visible text of reply to every eligible agent and
// returns the replies they produced, in recipient order.
func (s *Service) relay(ctx context.Context, contextID string, reply *domain.AgentReply, agents []domain.Agent) ([]*domain.AgentReply, error) {
	if !relayable(reply) {
		return nil, nil
	}

	origin := reply.OriginalSender
	if origin == "" {
		origin = reply.AgentName
	}
	chain := append(append([]string(nil), reply.Chain...), reply.AgentName)

	texts := make([]string, 0, len(reply.Texts))
	prefix := reply.AgentName + ": "
	for _, t := range reply.Texts {
		if !strings.HasPrefix(t, prefix) {
			t = prefix + t
		}
		texts = append(texts, t)
	}

	var out []*domain.AgentReply
	for _, agent := range agents {
		if !s.allowRelay(ctx, policy.RelayInput{
			Recipient:      agent.Name,
			Sender:         reply.AgentName,
			OriginalSender: origin,
			Chain:          chain,
			StrictAcyclic:  s.config.StrictAcyclic,
		}) {
			continue
		}

		for _, text := range texts {
			if err := s.checkpoint(ctx, contextID); err != nil {
				return out, err
			}
			msg := domain.Message{
				Role:      "user",
				Text:      text,
				Kind:      "message",
				MessageID: uuid.New().String(),
			}
			produced, err := s.exchange(ctx, contextID, agent, msg)
			if err != nil {
				return out, err
			}
			produced.OriginalSender = origin
			produced.Chain = chain
			if err := s.recordReply(ctx, contextID, produced); err != nil {
				return out, err
			}
			s.metrics.RelayMessagesTotal.WithLabelValues(agent.Name).Inc()
			out = append(out, produced)

			if err := s.checkpoint(ctx, contextID); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}

func (s *Service) allowRelay(ctx context.Context, in policy.RelayInput) bool {
	if s.policy == nil {
		return in.Allowed()
	}
	allow, err := s.policy.AllowRelay(ctx, in)
	if err != nil {
		s.logger.Warn("relay policy evaluation failed, using built-in rule", "recipient", in.Recipient, "error", err)
		return in.Allowed()
	}
	return allow
}

// exchange sends one relay message to agent and waits for its final reply.
// A task the agent creates is tracked, and its placeholder recorded, before polling.
func (s *Service) exchange(ctx context.Context, contextID string, agent domain.Agent, msg domain.Message) (*domain.AgentReply, error) {
	var (
		taskID   string
		trackErr error
	)
	opts := s.pollOptions(ctx, contextID)
	checkpoint := opts.BeforePoll
	opts.BeforePoll = func() error {
		if trackErr != nil {
			return trackErr
		}
		return checkpoint()
	}

	reply, err := s.client.SendAndCollect(ctx, agent, msg, contextID, opts, func(sub *domain.AgentReply) {
		taskID = sub.TaskID
		if trackErr = s.trackTask(ctx, contextID, agent, sub.TaskID); trackErr != nil {
			return
		}
		trackErr = s.recordReply(ctx, contextID, sub)
	})
	if trackErr != nil {
		return nil, trackErr
	}
	if err != nil {
		if errors.Is(err, errCanceled) || ctx.Err() != nil {
			return nil, err
		}
		if taskID == "" {
			s.logger.Warn("relay submit failed", "context_id", contextID, "agent", agent.Name, "error", err)
			s.metrics.AgentErrorsTotal.WithLabelValues(agent.Name, "submit").Inc()
			return agentclient.FailedReply(agent.Name, fmt.Sprintf("Error contacting agent: %v", err), ""), nil
		}
		s.logger.Warn("relay poll failed", "context_id", contextID, "agent", agent.Name, "task_id", taskID, "error", err)
		s.metrics.AgentErrorsTotal.WithLabelValues(agent.Name, "poll").Inc()
		reply = agentclient.FailedReply(agent.Name, fmt.Sprintf("Error polling task %s: %v", taskID, err), taskID)
	}
	if taskID != "" {
		if err := s.updateTaskStatus(ctx, contextID, taskID, reply.Status); err != nil {
			return nil, err
		}
	}
	return reply, nil
}
