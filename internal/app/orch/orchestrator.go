package orch

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Jam/internal/app"
	"github.com/dkeye/Jam/internal/core"
	"github.com/dkeye/Jam/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrViewNotMounted = errors.New("scheduler view is not mounted")
	ErrViewerChanged  = errors.New("view was mounted under another nickname")
)

const DefaultPollInterval = 5 * time.Second

// Orchestrator mounts scheduler views, drives their poll loops and routes
// viewer actions to the right view.
type Orchestrator struct {
	// Ctx bounds every poll loop; cancel it to stop them all.
	Ctx          context.Context
	Registry     *app.Registry
	Backend      core.Backend
	Policy       app.Policy
	Location     *time.Location
	PollInterval time.Duration
}

// Mount opens a scheduler view for the client and room, replacing one that is
// already mounted under the same key, and starts polling it.
func (o *Orchestrator) Mount(ctx context.Context, key app.ViewKey, viewer domain.Nickname) (*app.SchedulerView, error) {
	if o.Registry.Unbind(key) {
		log.Info().Str("module", "app.orch").Str("client", string(key.Client)).Str("room", string(key.Room)).Msg("replaced mounted view")
	}

	view := app.NewSchedulerView(o.Backend, key.Room, viewer, o.Location, o.Policy)
	if err := view.Open(ctx); err != nil {
		log.Warn().Err(err).Str("module", "app.orch").Str("room", string(key.Room)).Str("viewer", string(viewer)).Msg("mount failed")
		return nil, err
	}

	parent := o.Ctx
	if parent == nil {
		parent = context.Background()
	}
	pollCtx, cancel := context.WithCancel(parent)
	if prev, prevCancel, ok := o.Registry.Bind(key, view, cancel); ok {
		// a concurrent mount won the race for this key
		prevCancel()
		prev.Close()
	}

	every := o.PollInterval
	if every <= 0 {
		every = DefaultPollInterval
	}
	go view.Run(pollCtx, every)
	return view, nil
}

func (o *Orchestrator) Unmount(key app.ViewKey) bool {
	return o.Registry.Unbind(key)
}

// UnmountClient drops every view the client has open, e.g. after the viewer
// switches nickname.
func (o *Orchestrator) UnmountClient(client app.ClientID) int {
	n := o.Registry.UnbindClient(client)
	if n > 0 {
		log.Info().Str("module", "app.orch").Str("client", string(client)).Int("views", n).Msg("unmounted client views")
	}
	return n
}

func (o *Orchestrator) View(key app.ViewKey) (*app.SchedulerView, error) {
	view, ok := o.Registry.Get(key)
	if !ok {
		return nil, ErrViewNotMounted
	}
	return view, nil
}

// ViewFor returns the mounted view only if it belongs to viewer.
func (o *Orchestrator) ViewFor(key app.ViewKey, viewer domain.Nickname) (*app.SchedulerView, error) {
	view, err := o.View(key)
	if err != nil {
		return nil, err
	}
	if view.Viewer != viewer {
		return nil, ErrViewerChanged
	}
	return view, nil
}

// Toggle parses raw with the view's slot normalization and flips it.
func (o *Orchestrator) Toggle(key app.ViewKey, viewer domain.Nickname, raw string) (core.Selection, error) {
	view, err := o.ViewFor(key, viewer)
	if err != nil {
		return core.Selection{}, err
	}
	slot, err := domain.ParseSlot(raw, view.Location())
	if err != nil {
		return core.Selection{}, err
	}
	return view.Toggle(slot)
}

func (o *Orchestrator) Save(ctx context.Context, key app.ViewKey, viewer domain.Nickname) error {
	view, err := o.ViewFor(key, viewer)
	if err != nil {
		return err
	}
	return view.Save(ctx)
}

func (o *Orchestrator) Refresh(ctx context.Context, key app.ViewKey, viewer domain.Nickname) error {
	view, err := o.ViewFor(key, viewer)
	if err != nil {
		return err
	}
	return view.Refresh(ctx)
}

func (o *Orchestrator) State(key app.ViewKey, viewer domain.Nickname, day time.Time) (app.ViewState, error) {
	view, err := o.ViewFor(key, viewer)
	if err != nil {
		return app.ViewState{}, err
	}
	return view.State(day), nil
}

// Shutdown closes every mounted view.
func (o *Orchestrator) Shutdown() {
	o.Registry.UnbindAll()
}
