// Package service runs conversations between the user and the agent directory.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpeeps/coordinator/internal/adapter/agentclient"
	"github.com/mcpeeps/coordinator/internal/config"
	"github.com/mcpeeps/coordinator/internal/directory"
	"github.com/mcpeeps/coordinator/internal/domain"
	"github.com/mcpeeps/coordinator/internal/hub"
	"github.com/mcpeeps/coordinator/internal/metrics"
	"github.com/mcpeeps/coordinator/internal/policy"
	"github.com/mcpeeps/coordinator/internal/repository"
)

var (
	// ErrEmptyMessage is returned by Trigger for a blank message.
	ErrEmptyMessage = errors.New("message is required")
	// ErrContextRequired is returned when a context id is needed but missing.
	ErrContextRequired = errors.New("context_id is required")
	// ErrNotFound is returned for unknown contexts and tasks.
	ErrNotFound = errors.New("not found")
	// ErrConversationActive is returned when a context already has a running pass.
	ErrConversationActive = errors.New("conversation already in progress")

	errCanceled = errors.New("conversation canceled")
)

// Service owns conversation state and drives the background passes.
type Service struct {
	store     store.Store
	client    *agentclient.Client
	directory *directory.Directory
	policy    *policy.Engine
	hub       *hub.Hub
	metrics   *metrics.Metrics
	config    config.ConversationConfig
	logger    *slog.Logger

	tracker *tracker
	writeMu sync.Mutex

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// New wires a service. engine may be nil, in which case the built-in relay
// rule is used.
func New(st store.Store, client *agentclient.Client, dir *directory.Directory, engine *policy.Engine, h *hub.Hub, m *metrics.Metrics, cfg config.ConversationConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	if h == nil {
		h = hub.New(logger)
	}
	baseCtx, stop := context.WithCancel(context.Background())
	return &Service{
		store:     st,
		client:    client,
		directory: dir,
		policy:    engine,
		hub:       h,
		metrics:   m,
		config:    cfg,
		logger:    logger.With("component", "conversation"),
		tracker:   newTracker(cfg.RecentTaskLimit),
		baseCtx:   baseCtx,
		stop:      stop,
	}
}

// Shutdown stops every running pass and waits for them until ctx is done.
func (s *Service) Shutdown(ctx context.Context) error {
	s.stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until no pass is running.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) publishStatus(contextID string) {
	st, ok := s.tracker.snapshot(contextID)
	if !ok {
		return
	}
	s.hub.Publish(domain.Event{
		Type:      domain.EventTypeStatus,
		ContextID: contextID,
		Ts:        time.Now().UnixMilli(),
		Status:    st.Status,
		Round:     st.Round,
	})
}

func (s *Service) publishMessage(contextID string, msg domain.Message, replaced bool) {
	s.hub.Publish(domain.Event{
		Type:      domain.EventTypeMessage,
		ContextID: contextID,
		Ts:        time.Now().UnixMilli(),
		Message:   &msg,
		Replaced:  replaced,
	})
}
