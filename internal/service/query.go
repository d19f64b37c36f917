package service

import (
	"context"
	"fmt"

	"github.com/mcpeeps/coordinator/internal/domain"
)

// GetStatus returns a snapshot of the conversation state of contextID.
func (s *Service) GetStatus(contextID string) (*domain.ConversationState, error) {
	if contextID == "" {
		return nil, ErrContextRequired
	}
	st, ok := s.tracker.snapshot(contextID)
	if !ok {
		return nil, ErrNotFound
	}
	return &st, nil
}

// GetTask looks a task up in the recent index first, then in the store.
func (s *Service) GetTask(ctx context.Context, taskID string) (*domain.TaskRecord, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task_id is required")
	}
	if rec, ok := s.tracker.recentTask(taskID); ok {
		return &rec, nil
	}
	rec, err := s.store.LoadTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", taskID, err)
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// GetMessages returns the transcript of contextID. Agent messages carry
// their unprefixed text.
func (s *Service) GetMessages(ctx context.Context, contextID string) ([]domain.MessageView, error) {
	if contextID == "" {
		return nil, ErrContextRequired
	}
	msgs, err := s.store.LoadContext(ctx, contextID)
	if err != nil {
		return nil, fmt.Errorf("failed to load context %s: %w", contextID, err)
	}

	views := make([]domain.MessageView, 0, len(msgs))
	for _, m := range msgs {
		text := m.Text
		if m.Role == "agent" && m.Metadata.RawText != "" {
			text = m.Metadata.RawText
		}
		views = append(views, domain.MessageView{
			ContextID: contextID,
			MessageID: m.MessageID,
			Role:      m.Role,
			Text:      text,
			Kind:      m.Kind,
			AgentName: m.Metadata.AgentName,
			Status:    m.Metadata.Status,
			Timestamp: m.Metadata.Timestamp,
			TaskID:    m.Metadata.TaskID,
		})
	}
	return views, nil
}

// ListAgents returns the directory, probing agent health when probe is set.
func (s *Service) ListAgents(ctx context.Context, probe bool) []domain.AgentView {
	return s.directory.Views(ctx, probe)
}
