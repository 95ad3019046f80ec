package app

import (
	"context"
	"sync"

	"github.com/dkeye/Jam/internal/domain"
	"github.com/rs/zerolog/log"
)

// ClientID identifies a browser/client by its token cookie.
type ClientID string

// ViewKey addresses the scheduler view a client has open for a room.
type ViewKey struct {
	Client ClientID
	Room   domain.RoomID
}

type viewEntry struct {
	View   *SchedulerView
	Cancel context.CancelFunc
}

// Registry tracks mounted scheduler views and the cancel funcs of their poll loops.
type Registry struct {
	mu    sync.RWMutex
	views map[ViewKey]*viewEntry
}

func NewRegistry() *Registry {
	return &Registry{views: make(map[ViewKey]*viewEntry)}
}

// Bind stores the view under key and returns the entry it replaced, if any.
func (r *Registry) Bind(key ViewKey, view *SchedulerView, cancel context.CancelFunc) (*SchedulerView, context.CancelFunc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.views[key]
	r.views[key] = &viewEntry{View: view, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("client", string(key.Client)).Str("room", string(key.Room)).Str("view", view.ID).Msg("bound view")
	if !ok {
		return nil, nil, false
	}
	return prev.View, prev.Cancel, true
}

func (r *Registry) Get(key ViewKey) (*SchedulerView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.views[key]; ok {
		return e.View, true
	}
	return nil, false
}

// Unbind removes the view, stops its poll loop and closes it.
func (r *Registry) Unbind(key ViewKey) bool {
	r.mu.Lock()
	e, ok := r.views[key]
	delete(r.views, key)
	r.mu.Unlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	e.View.Close()
	log.Info().Str("module", "app.registry").Str("client", string(key.Client)).Str("room", string(key.Room)).Msg("unbind view")
	return true
}

// UnbindClient closes every view the client has mounted and reports how many.
func (r *Registry) UnbindClient(client ClientID) int {
	r.mu.RLock()
	var keys []ViewKey
	for k := range r.views {
		if k.Client == client {
			keys = append(keys, k)
		}
	}
	r.mu.RUnlock()
	n := 0
	for _, k := range keys {
		if r.Unbind(k) {
			n++
		}
	}
	return n
}

// UnbindAll closes every view; used on shutdown.
func (r *Registry) UnbindAll() {
	r.mu.RLock()
	keys := make([]ViewKey, 0, len(r.views))
	for k := range r.views {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	for _, k := range keys {
		r.Unbind(k)
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.views)
}
