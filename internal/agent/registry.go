package agent

import (
	"fmt"
	"sync"

	"github.com/chatkit-ai/chatkit/pkg/types"
)

// Registry manages agents and contributed slash commands.
type Registry struct {
	mu       sync.RWMutex
	agents   map[string]*Agent
	commands map[string]*ContributedCommand
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		agents:   make(map[string]*Agent),
		commands: make(map[string]*ContributedCommand),
	}
}

// Get retrieves an agent by id.
func (r *Registry) Get(id string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent not found: %s", id)
	}
	return a, nil
}

// Register adds or updates an agent.
func (r *Registry) Register(a *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.ID] = a
}

// Unregister removes an agent by id.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, id)
}

// List returns all registered agents.
func (r *Registry) List() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	return agents
}

// Names returns all agent ids.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for id := range r.agents {
		names = append(names, id)
	}
	return names
}

// Exists checks if an agent exists.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[id]
	return ok
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Default returns the catch-all agent for a location, or an error when
// none is registered for it.
func (r *Registry) Default(loc types.Location) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.agents {
		if a.IsDefault && a.SupportsLocation(loc) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("no default agent for location %s", loc)
}

// RegisterCommand adds or updates a contributed slash command.
func (r *Registry) RegisterCommand(c *ContributedCommand) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[c.Name] = c
}

// GetCommand retrieves a contributed slash command by name.
func (r *Registry) GetCommand(name string) (*ContributedCommand, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commands[name]
	return c, ok
}

// CommandNames returns all contributed command names.
func (r *Registry) CommandNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	return names
}
