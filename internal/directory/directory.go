// Package directory holds the static set of agents a conversation fans out to.
package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mcpeeps/coordinator/internal/domain"
)

const healthTimeout = 2 * time.Second

// Directory maps agent names to their endpoints, in registration order.
type Directory struct {
	mu     sync.RWMutex
	order  []string
	agents map[string]domain.Agent
	http   *resty.Client
}

// New creates a directory from agents. Duplicate or unnamed entries are rejected.
func New(agents []domain.Agent) (*Directory, error) {
	d := &Directory{
		agents: make(map[string]domain.Agent, len(agents)),
		http:   resty.New().SetTimeout(healthTimeout),
	}
	for _, a := range agents {
		if err := d.Register(a); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Register adds an agent.
func (d *Directory) Register(a domain.Agent) error {
	if a.Name == "" {
		return fmt.Errorf("agent name is required")
	}
	if a.URL == "" {
		return fmt.Errorf("agent %s has no url", a.Name)
	}
	a.URL = strings.TrimSuffix(a.URL, "/")

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.agents[a.Name]; exists {
		return fmt.Errorf("agent already registered: %s", a.Name)
	}
	d.agents[a.Name] = a
	d.order = append(d.order, a.Name)
	return nil
}

// All returns a snapshot of every agent in registration order.
func (d *Directory) All() []domain.Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Agent, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.agents[name])
	}
	return out
}

// Lookup returns the agent registered under name.
func (d *Directory) Lookup(name string) (domain.Agent, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.agents[name]
	return a, ok
}

// Len returns the number of agents.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.order)
}

// CheckHealth probes <url>/health. Any 2xx answer counts as healthy.
func (d *Directory) CheckHealth(ctx context.Context, a domain.Agent) bool {
	resp, err := d.http.R().SetContext(ctx).Get(a.URL + "/health")
	if err != nil {
		return false
	}
	return resp.IsSuccess()
}

// Views lists the agents, probing each one concurrently when probe is set.
func (d *Directory) Views(ctx context.Context, probe bool) []domain.AgentView {
	agents := d.All()
	views := make([]domain.AgentView, len(agents))
	for i, a := range agents {
		views[i] = domain.AgentView{Agent: a}
	}
	if !probe {
		return views
	}

	var wg sync.WaitGroup
	for i := range views {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok := d.CheckHealth(ctx, views[i].Agent)
			views[i].Healthy = &ok
		}(i)
	}
	wg.Wait()
	return views
}
