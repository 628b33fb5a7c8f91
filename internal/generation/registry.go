package generation

import (
	"fmt"
	"sync"
)

type Registry struct {
	mu    sync.RWMutex
	tasks map[Kind]Task
}

func NewRegistry() *Registry {
	return &Registry{tasks: map[Kind]Task{}}
}

func (r *Registry) Register(t Task) error {
	if t == nil {
		return fmt.Errorf("nil task")
	}
	k := t.Spec().Kind
	if k == "" {
		return fmt.Errorf("task missing kind")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[k]; exists {
		return fmt.Errorf("task already registered for kind=%s", k)
	}
	r.tasks[k] = t
	return nil
}

// Get resolves a kind or one of its aliases.
func (r *Registry) Get(raw string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[ParseKind(raw)]
	return t, ok
}
