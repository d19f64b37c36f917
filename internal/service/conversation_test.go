package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpeeps/coordinator/internal/domain"
)

func trigger(t *testing.T, svc *Service, message string) string {
	t.Helper()
	resp, err := svc.Trigger(context.Background(), domain.TriggerRequest{Message: message})
	require.NoError(t, err)
	assert.Equal(t, "started", resp.Status)
	return resp.ContextID
}

func TestTwoSyncAgentsWithoutText(t *testing.T) {
	alpha := newFakeAgent(t, "alpha", nil)
	beta := newFakeAgent(t, "beta", nil)
	svc, _ := newTestService(t, testConfig(), alpha, beta)

	contextID := trigger(t, svc, "hello")
	svc.Wait()

	st, err := svc.GetStatus(contextID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationStatusCompleted, st.Status)
	assert.Equal(t, 0, st.Round)
	assert.Equal(t, 3, st.TotalMessages)
	assert.Equal(t, 2, st.AgentsContacted)

	assert.Equal(t, []string{"hello"}, alpha.Received())
	assert.Equal(t, []string{"hello"}, beta.Received())

	msgs, err := svc.GetMessages(context.Background(), contextID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "(no visible text)", msgs[1].Text)
}

func TestTwoSyncAgentsWithText(t *testing.T) {
	alpha := newFakeAgent(t, "alpha", func(a *fakeAgent) { a.reply = echoReply("alpha") })
	beta := newFakeAgent(t, "beta", func(a *fakeAgent) { a.reply = echoReply("beta") })
	svc, _ := newTestService(t, testConfig(), alpha, beta)

	contextID := trigger(t, svc, "plan the release")
	svc.Wait()

	st, err := svc.GetStatus(contextID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationStatusCompleted, st.Status)
	assert.Equal(t, 1, st.Round)
	assert.Equal(t, 5, st.TotalMessages)

	assert.Equal(t, []string{"plan the release", "beta: reply from beta"}, alpha.Received())
	assert.Equal(t, []string{"plan the release", "alpha: reply from alpha"}, beta.Received())

	msgs, err := svc.GetMessages(context.Background(), contextID)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	assert.Equal(t, "reply from alpha", msgs[1].Text, "agent text is served unprefixed")
	assert.Contains(t, st.Responses, "alpha: reply from alpha")
}

func TestRelayNeverEchoesAndRespectsMaxRounds(t *testing.T) {
	names := []string{"alpha", "beta", "gamma"}
	agents := make([]*fakeAgent, 0, len(names))
	for _, name := range names {
		name := name
		agents = append(agents, newFakeAgent(t, name, func(a *fakeAgent) { a.reply = echoReply(name) }))
	}
	svc, _ := newTestService(t, testConfig(), agents...)

	contextID := trigger(t, svc, "kickoff")
	svc.Wait()

	st, err := svc.GetStatus(contextID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationStatusCompleted, st.Status)
	assert.Equal(t, 3, st.Round)
	assert.LessOrEqual(t, st.Round, st.MaxRounds)
	// 1 user message, 3 fan-out replies, then 6 relayed replies per round.
	assert.Equal(t, 22, st.TotalMessages)

	for _, a := range agents {
		assert.False(t, hasPrefixAny(a.Received(), a.name+": "), "%s received its own text", a.name)
	}
}

func TestStrictAcyclicStopsAtChain(t *testing.T) {
	names := []string{"alpha", "beta", "gamma"}
	agents := make([]*fakeAgent, 0, len(names))
	for _, name := range names {
		name := name
		agents = append(agents, newFakeAgent(t, name, func(a *fakeAgent) { a.reply = echoReply(name) }))
	}
	cfg := testConfig()
	cfg.StrictAcyclic = true
	svc, _ := newTestService(t, cfg, agents...)

	contextID := trigger(t, svc, "kickoff")
	svc.Wait()

	st, err := svc.GetStatus(contextID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationStatusCompleted, st.Status)
	assert.Equal(t, 2, st.Round)
	assert.Equal(t, 16, st.TotalMessages)
}

func TestMaxRoundsZeroSkipsRelay(t *testing.T) {
	alpha := newFakeAgent(t, "alpha", func(a *fakeAgent) { a.reply = echoReply("alpha") })
	beta := newFakeAgent(t, "beta", func(a *fakeAgent) { a.reply = echoReply("beta") })
	cfg := testConfig()
	cfg.MaxRounds = 0
	svc, _ := newTestService(t, cfg, alpha, beta)

	contextID := trigger(t, svc, "hi")
	svc.Wait()

	st, _ := svc.GetStatus(contextID)
	assert.Equal(t, domain.ConversationStatusCompleted, st.Status)
	assert.Equal(t, 3, st.TotalMessages)
	assert.Len(t, alpha.Received(), 1)
}

func TestAsyncTaskReplacesPlaceholder(t *testing.T) {
	worker := newFakeAgent(t, "worker", func(a *fakeAgent) {
		a.async = true
		a.reply = func(string) string { return "all done" }
	})
	svc, st := newTestService(t, testConfig(), worker)

	contextID := trigger(t, svc, "build it")
	svc.Wait()

	state, err := svc.GetStatus(contextID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationStatusCompleted, state.Status)
	assert.Equal(t, 2, state.TotalMessages)
	require.Len(t, state.Tasks, 1)

	msgs, err := svc.GetMessages(context.Background(), contextID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "all done", msgs[1].Text)
	assert.Equal(t, "completed", msgs[1].Status)
	assert.Equal(t, "worker-task-1", msgs[1].TaskID)

	raw, err := st.LoadContext(context.Background(), contextID)
	require.NoError(t, err)
	assert.Equal(t, -1, raw.PlaceholderIndex("worker-task-1"))

	task, err := svc.GetTask(context.Background(), "worker-task-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateCompleted, task.Status)
	assert.NotNil(t, task.CompletedAt)
	assert.Equal(t, contextID, task.ContextID)
}

func TestPollTimeoutBecomesFailedReply(t *testing.T) {
	slow := newFakeAgent(t, "slow", func(a *fakeAgent) {
		a.async = true
		a.neverFinish = true
	})
	cfg := testConfig()
	cfg.PollTimeout = 50 * time.Millisecond
	svc, _ := newTestService(t, cfg, slow)

	contextID := trigger(t, svc, "take your time")
	svc.Wait()

	state, err := svc.GetStatus(contextID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationStatusCompleted, state.Status)

	msgs, err := svc.GetMessages(context.Background(), contextID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.True(t, strings.HasPrefix(msgs[1].Text, "Error polling task slow-task-1:"), msgs[1].Text)
	assert.Contains(t, msgs[1].Text, "last state: working")
	assert.Equal(t, "failed", msgs[1].Status)

	task, err := svc.GetTask(context.Background(), "slow-task-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateFailed, task.Status)
}

func TestSubmitFailureIsIsolated(t *testing.T) {
	broken := newFakeAgent(t, "broken", func(a *fakeAgent) { a.submitErr = true })
	healthy := newFakeAgent(t, "healthy", func(a *fakeAgent) { a.reply = echoReply("healthy") })
	svc, _ := newTestService(t, testConfig(), broken, healthy)

	contextID := trigger(t, svc, "status?")
	svc.Wait()

	state, err := svc.GetStatus(contextID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationStatusCompleted, state.Status)
	assert.Equal(t, 4, state.TotalMessages)
	assert.Equal(t, 1, state.Round)

	msgs, err := svc.GetMessages(context.Background(), contextID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(msgs[1].Text, "Error contacting agent:"), msgs[1].Text)
	assert.Equal(t, "failed", msgs[1].Status)

	assert.Equal(t, []string{"status?"}, healthy.Received(), "failed replies are never relayed")
	assert.Equal(t, []string{"status?", "healthy: reply from healthy"}, broken.Received())
}

func TestTriggerValidation(t *testing.T) {
	gated := newFakeAgent(t, "gated", func(a *fakeAgent) { a.submitGate = make(chan struct{}) })
	svc, _ := newTestService(t, testConfig(), gated)

	_, err := svc.Trigger(context.Background(), domain.TriggerRequest{Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	resp, err := svc.Trigger(context.Background(), domain.TriggerRequest{Message: "go"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.ContextID, "trigger-"))
	assert.Equal(t, 1, resp.Agents)

	_, err = svc.Trigger(context.Background(), domain.TriggerRequest{Message: "again", ContextID: resp.ContextID})
	assert.ErrorIs(t, err, ErrConversationActive)

	gated.release()
	waitForStatus(t, svc, resp.ContextID, domain.ConversationStatusCompleted)

	again, err := svc.Trigger(context.Background(), domain.TriggerRequest{Message: "again", ContextID: resp.ContextID})
	require.NoError(t, err)
	assert.Equal(t, resp.ContextID, again.ContextID)
	svc.Wait()

	msgs, err := svc.GetMessages(context.Background(), resp.ContextID)
	require.NoError(t, err)
	assert.Len(t, msgs, 4, "a second pass appends to the same transcript")
}

func TestGetTaskFallsBackToStore(t *testing.T) {
	svc, st := newTestService(t, testConfig())

	require.NoError(t, st.UpdateTask(context.Background(), &domain.TaskRecord{
		TaskID: "old-task", ContextID: "ctx", AgentName: "alpha", Status: domain.TaskStateCompleted,
	}))

	task, err := svc.GetTask(context.Background(), "old-task")
	require.NoError(t, err)
	assert.Equal(t, "alpha", task.AgentName)

	_, err = svc.GetTask(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetStatus("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
