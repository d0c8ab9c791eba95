// Package registry maps task names to handler functions. The registry is
// built explicitly at process start and passed into the worker; there is no
// global mutable task table.
package registry

import (
	"context"
	"fmt"
	"sync"

	"flowforge/item"
)

// Handler executes one task invocation. It receives the item produced by the
// upstream stage and the node configuration from the workflow definition, and
// returns the item for the downstream stage. Handlers must treat the input as
// read-only and return a new item; omitting attachments or metadata on the
// returned item clears them.
type Handler func(ctx context.Context, input *item.Item, config map[string]any) (*item.Item, error)

// Registry holds the registered task handlers.
type Registry struct {
	sync.Mutex

	taskMap map[string]Handler
}

// New creates a new registry instance.
func New() *Registry {
	return &Registry{
		taskMap: make(map[string]Handler),
	}
}

// RegisterTask registers a handler under the given task name.
func (r *Registry) RegisterTask(name string, handler Handler) error {
	if name == "" {
		return &ErrInvalidTask{"task name must not be empty"}
	}

	if handler == nil {
		return &ErrInvalidTask{fmt.Sprintf("handler for task %q is nil", name)}
	}

	r.Lock()
	defer r.Unlock()

	if _, ok := r.taskMap[name]; ok {
		return &ErrTaskAlreadyRegistered{fmt.Sprintf("task with name %q already registered", name)}
	}
	r.taskMap[name] = handler

	return nil
}

// GetTask returns the handler registered under name.
func (r *Registry) GetTask(name string) (Handler, error) {
	r.Lock()
	defer r.Unlock()

	if handler, ok := r.taskMap[name]; ok {
		return handler, nil
	}

	return nil, &ErrTaskNotFound{fmt.Sprintf("task %q not found", name)}
}

// TaskNames returns the registered task names, in no particular order.
func (r *Registry) TaskNames() []string {
	r.Lock()
	defer r.Unlock()

	names := make([]string, 0, len(r.taskMap))
	for name := range r.taskMap {
		names = append(names, name)
	}
	return names
}
