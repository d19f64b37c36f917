package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcpeeps/coordinator/internal/adapter/agentclient"
	"github.com/mcpeeps/coordinator/internal/config"
	"github.com/mcpeeps/coordinator/internal/directory"
	"github.com/mcpeeps/coordinator/internal/domain"
	"github.com/mcpeeps/coordinator/internal/metrics"
	"github.com/mcpeeps/coordinator/internal/policy"
	"github.com/mcpeeps/coordinator/internal/repository"
)

// fakeAgent speaks just enough of the agent JSON-RPC protocol for tests.
type fakeAgent struct {
	name string

	// reply builds the visible answer to an incoming text; nil answers with no text.
	reply       func(text string) string
	async       bool
	neverFinish bool
	submitErr   bool
	submitGate  chan struct{}

	mu       sync.Mutex
	received []string
	cancels  []string
	tasks    map[string]string
	seq      int

	server *httptest.Server
}

func newFakeAgent(t *testing.T, name string, configure func(a *fakeAgent)) *fakeAgent {
	t.Helper()
	a := &fakeAgent{name: name, tasks: make(map[string]string)}
	if configure != nil {
		configure(a)
	}
	a.server = httptest.NewServer(http.HandlerFunc(a.serve))
	t.Cleanup(func() {
		if a.submitGate != nil {
			a.release()
		}
		a.server.Close()
	})
	return a
}

func echoReply(name string) func(string) string {
	return func(string) string { return "reply from " + name }
}

func (a *fakeAgent) agent() domain.Agent {
	return domain.Agent{Name: a.name, URL: a.server.URL}
}

func (a *fakeAgent) release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	select {
	case <-a.submitGate:
	default:
		close(a.submitGate)
	}
}

func (a *fakeAgent) Received() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.received...)
}

func (a *fakeAgent) Cancels() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.cancels...)
}

func (a *fakeAgent) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     string          `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var result interface{}
	var rpcErr map[string]interface{}

	switch req.Method {
	case agentclient.MethodMessageSend:
		var params agentclient.SendParams
		_ = json.Unmarshal(req.Params, &params)
		text := agentclient.PartsToText(params.Message.Parts)

		a.mu.Lock()
		a.received = append(a.received, text)
		gate := a.submitGate
		a.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}

		switch {
		case a.submitErr:
			rpcErr = map[string]interface{}{"code": -32000, "message": "agent exploded"}
		case a.async:
			a.mu.Lock()
			a.seq++
			id := fmt.Sprintf("%s-task-%d", a.name, a.seq)
			a.tasks[id] = text
			a.mu.Unlock()
			result = map[string]interface{}{"kind": "task", "id": id}
		default:
			result = map[string]interface{}{"kind": "message", "parts": a.parts(text)}
		}

	case agentclient.MethodTasksGet:
		var params agentclient.TaskIDParams
		_ = json.Unmarshal(req.Params, &params)
		a.mu.Lock()
		text := a.tasks[params.ID]
		a.mu.Unlock()
		if a.neverFinish {
			result = map[string]interface{}{"id": params.ID, "status": map[string]string{"state": "working"}}
			break
		}
		result = map[string]interface{}{
			"id":     params.ID,
			"status": map[string]string{"state": "completed"},
			"history": []map[string]interface{}{
				{"role": "user", "parts": []map[string]string{{"kind": "text", "text": text}}},
				{"role": "agent", "parts": a.parts(text)},
			},
		}

	case agentclient.MethodTasksCancel:
		var params agentclient.TaskIDParams
		_ = json.Unmarshal(req.Params, &params)
		a.mu.Lock()
		a.cancels = append(a.cancels, params.ID)
		a.mu.Unlock()
		result = map[string]interface{}{"id": params.ID, "status": map[string]string{"state": "canceled"}}

	default:
		rpcErr = map[string]interface{}{"code": -32601, "message": "method not found"}
	}

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (a *fakeAgent) parts(text string) []map[string]string {
	if a.reply == nil {
		return []map[string]string{}
	}
	return []map[string]string{{"kind": "text", "text": a.reply(text)}}
}

func testConfig() config.ConversationConfig {
	return config.ConversationConfig{
		MaxRounds:       3,
		PollInterval:    5 * time.Millisecond,
		PollTimeout:     2 * time.Second,
		CallTimeout:     2 * time.Second,
		RecentTaskLimit: 200,
	}
}

func newTestService(t *testing.T, cfg config.ConversationConfig, agents ...*fakeAgent) (*Service, store.Store) {
	t.Helper()

	entries := make([]domain.Agent, 0, len(agents))
	for _, a := range agents {
		entries = append(entries, a.agent())
	}
	dir, err := directory.New(entries)
	require.NoError(t, err)

	engine, err := policy.NewEngine(t.Context(), policy.DefaultPolicy)
	require.NoError(t, err)

	st := store.NewMemoryStore()
	client := agentclient.NewClient(agentclient.WithCallTimeout(cfg.CallTimeout))
	svc := New(st, client, dir, engine, nil, metrics.New(), cfg, nil)
	t.Cleanup(func() {
		for _, a := range agents {
			if a.submitGate != nil {
				a.release()
			}
		}
		svc.stop()
		svc.Wait()
	})
	return svc, st
}

func waitForStatus(t *testing.T, svc *Service, contextID string, want domain.ConversationStatus) *domain.ConversationState {
	t.Helper()
	var last *domain.ConversationState
	require.Eventually(t, func() bool {
		st, err := svc.GetStatus(contextID)
		if err != nil {
			return false
		}
		last = st
		return st.Status == want
	}, 5*time.Second, 5*time.Millisecond, "conversation never reached %s", want)
	return last
}

func hasPrefixAny(texts []string, prefix string) bool {
	for _, t := range texts {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}
