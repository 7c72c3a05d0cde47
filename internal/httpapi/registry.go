package httpapi

import (
	"sync"

	"github.com/aidcare/copilot/internal/conversation"
)

// EngineFactory builds the conversation engine for a new session id.
type EngineFactory func(sessionID string) (*conversation.Engine, error)

// Registry maps session ids to their live conversation engines.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*conversation.Engine
}

func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]*conversation.Engine)}
}

func (r *Registry) Put(id string, e *conversation.Engine) {
	r.mu.Lock()
	prev := r.engines[id]
	r.engines[id] = e
	r.mu.Unlock()
	if prev != nil && prev != e {
		prev.Close()
	}
}

func (r *Registry) Get(id string) (*conversation.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[id]
	return e, ok
}

// Close removes and closes the engine for id, reporting whether one existed.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	e, ok := r.engines[id]
	delete(r.engines, id)
	r.mu.Unlock()
	if ok {
		e.Close()
	}
	return ok
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	engines := r.engines
	r.engines = make(map[string]*conversation.Engine)
	r.mu.Unlock()
	for _, e := range engines {
		e.Close()
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}
