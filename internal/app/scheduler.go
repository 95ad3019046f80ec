package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Jam/internal/core"
	"github.com/dkeye/Jam/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSaveInProgress = errors.New("a save is already in progress")
	ErrViewClosed     = errors.New("scheduler view is closed")
)

// SchedulerView is one viewer's scheduling screen for one room: the room
// descriptor, the availability store and the viewer's pending selection.
type SchedulerView struct {
	ID      string
	RoomID  domain.RoomID
	Viewer  domain.Nickname
	backend core.Backend
	store   *AvailabilityStore

	mu        sync.Mutex
	room      *domain.Room
	gate      error
	selection core.Selection
	dirty     bool
	saving    bool
	closed    bool
}

// ViewState is a consistent read of everything the scheduler screen shows.
type ViewState struct {
	ViewID    string            `json:"view_id"`
	Room      *domain.Room      `json:"room"`
	Viewer    domain.Nickname   `json:"viewer"`
	Roster    domain.Roster     `json:"roster"`
	Selection []domain.Slot     `json:"selection"`
	Perfect   []domain.Slot     `json:"perfect_slots"`
	Pending   []domain.Nickname `json:"pending_participants"`
	Blocked   string            `json:"blocked,omitempty"`
	Dirty     bool              `json:"dirty"`
	Saving    bool              `json:"saving"`
	FetchedAt time.Time         `json:"fetched_at"`
	Heatmap   []core.HeatCell   `json:"heatmap,omitempty"`
}

func NewSchedulerView(backend core.Backend, roomID domain.RoomID, viewer domain.Nickname, loc *time.Location, policy Policy) *SchedulerView {
	return &SchedulerView{
		ID:      uuid.NewString(),
		RoomID:  roomID,
		Viewer:  viewer,
		backend: backend,
		store:   NewAvailabilityStore(backend, roomID, loc, policy),
	}
}

// Open loads the room, checks the viewer may schedule in it and seeds the
// snapshot and selection.
func (v *SchedulerView) Open(ctx context.Context) error {
	room, err := v.backend.FetchRoom(ctx, v.RoomID)
	if err != nil {
		return err
	}
	if err := room.CanSchedule(v.Viewer); err != nil {
		return err
	}
	snap, err := v.store.Refresh(ctx)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrViewClosed
	}
	v.room = room
	v.gate = nil
	v.selection = core.InitializeFrom(snap, v.Viewer)
	v.dirty = false
	log.Info().Str("module", "app.view").Str("view", v.ID).Str("room", string(v.RoomID)).Str("viewer", string(v.Viewer)).Msg("view opened")
	return nil
}

// Poll refreshes the room descriptor and the availability concurrently. Unsaved
// toggles survive; a clean selection follows the new snapshot. A room that no
// longer lets the viewer schedule blocks further toggles and saves.
func (v *SchedulerView) Poll(ctx context.Context) error {
	var (
		room *domain.Room
		g    errgroup.Group
	)
	g.Go(func() error {
		r, err := v.backend.FetchRoom(ctx, v.RoomID)
		room = r
		return err
	})
	g.Go(func() error {
		_, err := v.store.Refresh(ctx)
		return err
	})
	err := g.Wait()

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrViewClosed
	}
	if room != nil {
		v.room = room
		v.setGate(room.CanSchedule(v.Viewer))
	}
	if !v.dirty && !v.saving {
		v.selection = core.InitializeFrom(v.store.Snapshot(), v.Viewer)
	}
	return err
}

// Toggle flips one slot of the pending selection.
func (v *SchedulerView) Toggle(slot domain.Slot) (core.Selection, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return core.Selection{}, ErrViewClosed
	}
	if v.gate != nil {
		return v.selection, v.gate
	}
	v.selection = v.selection.Toggle(slot)
	v.dirty = true
	return v.selection, nil
}

// Save commits the pending selection. Only one save runs at a time. When the
// write fails the selection is kept for a retry; otherwise it is replaced by
// what the refreshed snapshot says, or by what was written if that refresh failed.
func (v *SchedulerView) Save(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrViewClosed
	}
	if v.gate != nil {
		v.mu.Unlock()
		return v.gate
	}
	if v.saving {
		v.mu.Unlock()
		return ErrSaveInProgress
	}
	v.saving = true
	pending := v.selection
	v.mu.Unlock()

	snap, err := v.store.Commit(ctx, v.Viewer, pending)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.saving = false
	if v.closed {
		return ErrViewClosed
	}
	switch {
	case err == nil:
		v.selection = core.InitializeFrom(snap, v.Viewer)
		v.dirty = false
	case errors.Is(err, ErrStaleAfterSave):
		v.selection = pending
		v.dirty = false
	}
	return err
}

// Refresh re-fetches availability on demand and reports failures to the caller.
func (v *SchedulerView) Refresh(ctx context.Context) error {
	snap, err := v.store.Refresh(ctx)
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrViewClosed
	}
	if err == nil && !v.dirty && !v.saving {
		v.selection = core.InitializeFrom(snap, v.Viewer)
	}
	return err
}

// State derives the overlap results from the current snapshot and roster.
// When day is non-zero the hourly heatmap of that date is included.
func (v *SchedulerView) State(day time.Time) ViewState {
	v.mu.Lock()
	room, gate, sel, dirty, saving := v.room, v.gate, v.selection, v.dirty, v.saving
	v.mu.Unlock()

	snap := v.store.Snapshot()
	var roster domain.Roster
	if room != nil {
		roster = room.Roster()
	}
	st := ViewState{
		ViewID:    v.ID,
		Room:      room,
		Viewer:    v.Viewer,
		Roster:    roster,
		Selection: sel.Slots(),
		Perfect:   core.PerfectSlots(snap, roster),
		Pending:   core.PendingParticipants(snap, roster),
		Dirty:     dirty,
		Saving:    saving,
		FetchedAt: v.store.FetchedAt(),
	}
	if gate != nil {
		st.Blocked = gate.Error()
	}
	if !day.IsZero() {
		st.Heatmap = core.DayHeatmap(snap, sel, roster, day, v.store.Location())
	}
	return st
}

// setGate records whether the latest room still admits the viewer. Callers
// hold v.mu.
func (v *SchedulerView) setGate(err error) {
	if err == v.gate {
		return
	}
	v.gate = err
	ev := log.Info()
	if err != nil {
		ev = log.Warn().Err(err)
	}
	ev.Str("module", "app.view").Str("view", v.ID).Str("room", string(v.RoomID)).Str("viewer", string(v.Viewer)).Msg("scheduling gate changed")
}

func (v *SchedulerView) Location() *time.Location { return v.store.Location() }

// Close marks the view dead; in-flight results are dropped afterwards.
func (v *SchedulerView) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	log.Info().Str("module", "app.view").Str("view", v.ID).Str("room", string(v.RoomID)).Msg("view closed")
}

func (v *SchedulerView) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}
