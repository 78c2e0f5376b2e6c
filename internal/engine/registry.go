package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/bindform/internal/form"
	"github.com/roach88/bindform/internal/ir"
)

// Registry tracks bound forms. A form has at most one session at a time.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	sessions map[form.Form]*Session
	logger   *slog.Logger
}

// NewRegistry creates an empty registry. A nil logger uses slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[form.Form]*Session),
		logger:   logger,
	}
}

// Bind binds f to a copy of initial (nil starts from an empty object),
// attaches listeners, and pushes the object into the fields.
//
// Binding a form that is already bound logs a warning and returns
// ALREADY_BOUND without touching the existing session.
func (r *Registry) Bind(ctx context.Context, f form.Form, initial ir.Object, cfg Config) (*Session, error) {
	if f == nil {
		return nil, &Error{Code: CodeInvalidArgument, Op: "bind", Err: errors.New("nil form")}
	}
	if cfg.Logger == nil {
		cfg.Logger = r.logger
	}

	r.mu.Lock()
	if _, ok := r.sessions[f]; ok {
		r.mu.Unlock()
		r.logger.Warn("form is already bound; unbind it before binding again", "form", f.ID())
		return nil, &Error{Code: CodeAlreadyBound, Op: "bind", Err: fmt.Errorf("form %q", f.ID())}
	}
	s, err := newSession(ctx, r, f, initial, cfg)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.sessions[f] = s
	r.mu.Unlock()

	// Effects of the initial refresh (validation hooks, select events).
	s.effects.Drain()
	return s, nil
}

// Unbind destroys the session of f. Unbinding a form that is not bound
// logs a warning and returns NOT_BOUND; nothing else happens.
func (r *Registry) Unbind(f form.Form) error {
	r.mu.Lock()
	s, ok := r.sessions[f]
	delete(r.sessions, f)
	r.mu.Unlock()

	if !ok {
		id := ""
		if f != nil {
			id = f.ID()
		}
		r.logger.Warn("form was not bound", "form", id)
		return &Error{Code: CodeNotBound, Op: "unbind", Err: fmt.Errorf("form %q", id)}
	}
	s.destroy()
	return nil
}

// Lookup returns the session of f.
func (r *Registry) Lookup(f form.Form) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[f]
	return s, ok
}

// Len returns the number of bound forms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// forget drops s if it is still the session of its form.
func (r *Registry) forget(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.form] == s {
		delete(r.sessions, s.form)
	}
}
