package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mcpeeps/coordinator/internal/domain"
)

const (
	defaultCancelReason = "Cancellation requested by user."
	agentMissingMessage = "Agent information missing; unable to send cancel request."
)

// RequestCancel flags a conversation for cancellation and asks every agent
// holding one of its open tasks to stop.
func (s *Service) RequestCancel(ctx context.Context, req domain.CancelRequest) (*domain.CancelResponse, error) {
	contextID := strings.TrimSpace(req.ContextID)
	if contextID == "" {
		return nil, ErrContextRequired
	}
	st, ok := s.tracker.snapshot(contextID)
	if !ok {
		return nil, ErrNotFound
	}
	if st.Status.IsFinal() {
		return &domain.CancelResponse{
			ContextID:       contextID,
			Status:          string(st.Status),
			Message:         fmt.Sprintf("Conversation already %s.", st.Status),
			Round:           st.Round,
			MaxRounds:       st.MaxRounds,
			CancelRequested: st.CancelRequested,
			CancelReason:    st.CancelReason,
		}, nil
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = defaultCancelReason
	}
	s.tracker.update(contextID, func(st *domain.ConversationState) {
		st.CancelRequested = true
		st.CancelReason = reason
		if !st.Status.IsFinal() {
			st.Status = domain.ConversationStatusCancelRequested
		}
	})
	s.publishStatus(contextID)

	results := s.CancelContext(ctx, contextID, reason)

	now := time.Now().UTC()
	s.tracker.update(contextID, func(st *domain.ConversationState) {
		st.LastCancelResults = results
		st.LastCancelledAt = &now
	})

	requested := 0
	for _, r := range results {
		if r.Status == domain.CancelOutcomeRequested {
			requested++
		}
	}
	message := "Cancellation requested."
	if requested > 0 {
		message = fmt.Sprintf("Cancellation requested for %d task(s).", requested)
	}
	s.logger.Info("cancel requested", "context_id", contextID, "tasks", len(results), "accepted", requested)

	st, _ = s.tracker.snapshot(contextID)
	return &domain.CancelResponse{
		ContextID:         contextID,
		Status:            string(st.Status),
		Message:           message,
		Round:             st.Round,
		MaxRounds:         st.MaxRounds,
		CancelRequested:   st.CancelRequested,
		CancelReason:      st.CancelReason,
		TaskCancellations: results,
	}, nil
}

// CancelContext sends tasks/cancel for every open task of contextID. Failures
// are reported per task and never returned as an error.
func (s *Service) CancelContext(ctx context.Context, contextID, reason string) []domain.CancelResult {
	if reason == "" {
		reason = defaultCancelReason
	}
	candidates := s.tracker.cancelCandidates(contextID)
	results := make([]domain.CancelResult, 0, len(candidates))

	for _, task := range candidates {
		res := domain.CancelResult{TaskID: task.TaskID, Agent: task.AgentName, Reason: reason}

		agent := task.Agent
		if agent.URL == "" {
			if known, ok := s.directory.Lookup(task.AgentName); ok {
				agent = known
			}
		}

		var mutate func(rec *domain.TaskRecord)
		if agent.URL == "" {
			res.Status = domain.CancelOutcomeSkipped
			res.Error = agentMissingMessage
			mutate = func(rec *domain.TaskRecord) {
				rec.CancelReason = reason
				rec.CancelError = agentMissingMessage
			}
		} else if _, err := s.client.Cancel(ctx, agent.URL, task.TaskID, reason); err != nil {
			res.Status = domain.CancelOutcomeError
			res.Error = err.Error()
			mutate = func(rec *domain.TaskRecord) {
				rec.CancelReason = reason
				rec.CancelError = err.Error()
			}
		} else {
			res.Status = domain.CancelOutcomeRequested
			mutate = func(rec *domain.TaskRecord) {
				rec.CancelSent = true
				rec.CancelRequested = true
				rec.CancelReason = reason
				rec.CancelError = ""
			}
		}

		if rec, ok := s.tracker.mutateTask(contextID, task.TaskID, mutate); ok {
			if err := s.store.UpdateTask(ctx, &rec); err != nil {
				s.logger.Warn("failed to persist cancel outcome", "task_id", task.TaskID, "error", err)
			}
		}
		s.metrics.CancelResultsTotal.WithLabelValues(string(res.Status)).Inc()
		results = append(results, res)
	}
	return results
}
