package rpc

import (
	"context"
	"net/rpc/jsonrpc"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpeeps/coordinator/internal/adapter/agentclient"
	"github.com/mcpeeps/coordinator/internal/config"
	"github.com/mcpeeps/coordinator/internal/directory"
	"github.com/mcpeeps/coordinator/internal/domain"
	"github.com/mcpeeps/coordinator/internal/policy"
	"github.com/mcpeeps/coordinator/internal/repository"
	"github.com/mcpeeps/coordinator/internal/service"
)

func startServer(t *testing.T) (*Server, *service.Service) {
	t.Helper()
	dir, err := directory.New(nil)
	require.NoError(t, err)
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)

	cfg := config.ConversationConfig{
		MaxRounds:       3,
		PollInterval:    5 * time.Millisecond,
		PollTimeout:     time.Second,
		CallTimeout:     time.Second,
		RecentTaskLimit: 10,
	}
	svc := service.New(store.NewMemoryStore(), agentclient.NewClient(), dir, engine, nil, nil, cfg, nil)

	srv, err := NewServer(svc, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	go func() { _ = srv.Serve() }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		_ = svc.Shutdown(ctx)
	})
	return srv, svc
}

func TestCoordinatorRPC(t *testing.T) {
	srv, svc := startServer(t)

	client, err := jsonrpc.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	var started domain.TriggerResponse
	err = client.Call("Coordinator.Trigger", &domain.TriggerRequest{Message: "ping", ContextID: "rpc-ctx"}, &started)
	require.NoError(t, err)
	assert.Equal(t, "started", started.Status)
	assert.Equal(t, "rpc-ctx", started.ContextID)
	svc.Wait()

	var state domain.ConversationState
	require.NoError(t, client.Call("Coordinator.Status", &StatusRequest{ContextID: "rpc-ctx"}, &state))
	assert.Equal(t, domain.ConversationStatusCompleted, state.Status)
	assert.Equal(t, 1, state.TotalMessages)

	var cancelled domain.CancelResponse
	require.NoError(t, client.Call("Coordinator.Cancel", &domain.CancelRequest{ContextID: "rpc-ctx"}, &cancelled))
	assert.Equal(t, "Conversation already completed.", cancelled.Message)
}

func TestCoordinatorRPCErrors(t *testing.T) {
	srv, _ := startServer(t)

	client, err := jsonrpc.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	var started domain.TriggerResponse
	err = client.Call("Coordinator.Trigger", &domain.TriggerRequest{Message: " "}, &started)
	require.Error(t, err)
	assert.Contains(t, err.Error(), service.ErrEmptyMessage.Error())

	var state domain.ConversationState
	err = client.Call("Coordinator.Status", &StatusRequest{ContextID: "missing"}, &state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), service.ErrNotFound.Error())
}
