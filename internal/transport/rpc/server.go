// Package rpc exposes the coordinator over net/rpc with a JSON codec.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"

	"github.com/mcpeeps/coordinator/internal/domain"
	"github.com/mcpeeps/coordinator/internal/service"
)

// Server exposes internal RPC endpoints for scripts and other internal clients.
type Server struct {
	listener  net.Listener
	rpcServer *rpc.Server
	logger    *slog.Logger
	done      chan struct{}
}

// NewServer creates a new RPC server bound to the coordinator service.
func NewServer(svc *service.Service, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rpcServer := rpc.NewServer()
	handler := &Handler{service: svc}
	if err := rpcServer.RegisterName("Coordinator", handler); err != nil {
		return nil, fmt.Errorf("register rpc handler: %w", err)
	}

	return &Server{
		rpcServer: rpcServer,
		logger:    logger.With("component", "rpc"),
		done:      make(chan struct{}),
	}, nil
}

// Listen binds the server to addr without accepting connections yet.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("rpc server is not listening")
	}
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				close(s.done)
				return nil
			}
			s.logger.Warn("rpc accept error", "error", err)
			continue
		}

		go s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// Start begins accepting RPC connections on the given address.
func (s *Server) Start(addr string) error {
	if err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown stops accepting new RPC connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}

	if err := s.listener.Close(); err != nil {
		return err
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler implements coordinator RPC methods.
type Handler struct {
	service *service.Service
}

// StatusRequest identifies a conversation.
type StatusRequest struct {
	ContextID string `json:"context_id"`
}

// Trigger starts a conversation pass.
func (h *Handler) Trigger(req *domain.TriggerRequest, resp *domain.TriggerResponse) error {
	if req == nil {
		return errors.New("trigger request is required")
	}

	result, err := h.service.Trigger(context.Background(), *req)
	if err != nil {
		return err
	}
	if resp != nil && result != nil {
		*resp = *result
	}
	return nil
}

// Cancel requests cancellation of a conversation.
func (h *Handler) Cancel(req *domain.CancelRequest, resp *domain.CancelResponse) error {
	if req == nil {
		return errors.New("cancel request is required")
	}

	result, err := h.service.RequestCancel(context.Background(), *req)
	if err != nil {
		return err
	}
	if resp != nil && result != nil {
		*resp = *result
	}
	return nil
}

// Status returns the in-memory state of a conversation.
func (h *Handler) Status(req *StatusRequest, resp *domain.ConversationState) error {
	if req == nil {
		return errors.New("status request is required")
	}

	st, err := h.service.GetStatus(req.ContextID)
	if err != nil {
		return err
	}
	if resp != nil {
		*resp = *st
	}
	return nil
}
