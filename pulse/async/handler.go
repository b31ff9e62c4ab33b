package async

import (
	"context"
	"slices"
	"sync"

	"github.com/teranos/topclients/errors"
)

// JobHandler runs one kind of job. It owns the layout of job.Payload and
// job.Result; the queue and workers only route by Name.
type JobHandler interface {
	Execute(ctx context.Context, job *Job) error
	Name() string // e.g. "topn.analyze"
}

// HandlerRegistry routes jobs to handlers by HandlerName.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]JobHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: map[string]JobHandler{}}
}

// Register panics on a duplicate name; registration happens at startup
// and a clash is a programming error.
func (r *HandlerRegistry) Register(h JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[h.Name()]; dup {
		panic(errors.AssertionFailedf("async: handler %q registered twice", h.Name()))
	}
	r.handlers[h.Name()] = h
}

// Lookup reports the handler for name, if any.
func (r *HandlerRegistry) Lookup(name string) (JobHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names lists registered handlers in sorted order.
func (r *HandlerRegistry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Execute runs job on its handler. A job nobody can route is an invalid
// request and is never retried.
func (r *HandlerRegistry) Execute(ctx context.Context, job *Job) error {
	if job.HandlerName == "" {
		return errors.NewInvalidRequestError("job %s has no handler name", job.ID)
	}
	h, ok := r.Lookup(job.HandlerName)
	if !ok {
		return errors.NewInvalidRequestError("no handler registered for %s", job.HandlerName)
	}
	return h.Execute(ctx, job)
}
