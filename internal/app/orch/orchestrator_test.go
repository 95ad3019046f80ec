package orch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Jam/internal/app"
	"github.com/dkeye/Jam/internal/core"
	"github.com/dkeye/Jam/internal/core/coretest"
	"github.com/dkeye/Jam/internal/domain"
)

func newOrch(t *testing.T, b core.Backend, every time.Duration) *Orchestrator {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	o := &Orchestrator{
		Ctx:          ctx,
		Registry:     app.NewRegistry(),
		Backend:      b,
		Location:     time.UTC,
		PollInterval: every,
	}
	t.Cleanup(o.Shutdown)
	return o
}

func TestMountToggleSave(t *testing.T) {
	b := &coretest.Backend{
		Room:  coretest.BandRoom(),
		Votes: []core.SlotVotes{coretest.Vote("2025-08-10T19:00:00", "kim", "dana")},
	}
	o := newOrch(t, b, time.Hour)
	key := app.ViewKey{Client: "c1", Room: "1"}

	_, err := o.Mount(context.Background(), key, "ari")
	require.NoError(t, err)

	sel, err := o.Toggle(key, "ari", "2025-08-10T19:00:00")
	require.NoError(t, err)
	assert.Equal(t, 1, sel.Len())

	require.NoError(t, o.Save(context.Background(), key, "ari"))
	st, err := o.State(key, "ari", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []domain.Slot{{Year: 2025, Month: time.August, Day: 10, Hour: 19}}, st.Perfect)
	assert.Empty(t, st.Pending)

	require.NoError(t, o.Refresh(context.Background(), key, "ari"))
	assert.True(t, o.Unmount(key))
	_, err = o.State(key, "ari", time.Time{})
	assert.ErrorIs(t, err, ErrViewNotMounted)
}

func TestMountReplacesPreviousView(t *testing.T) {
	b := &coretest.Backend{Room: coretest.BandRoom()}
	o := newOrch(t, b, time.Hour)
	key := app.ViewKey{Client: "c1", Room: "1"}

	first, err := o.Mount(context.Background(), key, "ari")
	require.NoError(t, err)
	second, err := o.Mount(context.Background(), key, "kim")
	require.NoError(t, err)

	assert.True(t, first.Closed())
	assert.False(t, second.Closed())
	assert.Equal(t, 1, o.Registry.Len())

	other := app.ViewKey{Client: "c2", Room: "1"}
	_, err = o.Mount(context.Background(), other, "dana")
	require.NoError(t, err)
	assert.Equal(t, 2, o.Registry.Len())
}

func TestMountFailureLeavesNothingBound(t *testing.T) {
	b := &coretest.Backend{Room: coretest.BandRoom(), FetchErr: coretest.ErrUnavailable}
	o := newOrch(t, b, time.Hour)
	key := app.ViewKey{Client: "c1", Room: "1"}

	_, err := o.Mount(context.Background(), key, "ari")
	assert.ErrorIs(t, err, coretest.ErrUnavailable)
	assert.Equal(t, 0, o.Registry.Len())
}

func TestUnmountedKey(t *testing.T) {
	o := newOrch(t, &coretest.Backend{}, time.Hour)
	key := app.ViewKey{Client: "c1", Room: "1"}

	_, err := o.Toggle(key, "ari", "2025-08-10T19:00:00")
	assert.ErrorIs(t, err, ErrViewNotMounted)
	assert.ErrorIs(t, o.Save(context.Background(), key, "ari"), ErrViewNotMounted)
	assert.ErrorIs(t, o.Refresh(context.Background(), key, "ari"), ErrViewNotMounted)
	assert.False(t, o.Unmount(key))
}

func TestMountedViewIsPolled(t *testing.T) {
	b := &coretest.Backend{Room: coretest.BandRoom()}
	o := newOrch(t, b, 5*time.Millisecond)
	key := app.ViewKey{Client: "c1", Room: "1"}

	_, err := o.Mount(context.Background(), key, "ari")
	require.NoError(t, err)
	b.Set(func(b *coretest.Backend) {
		b.Votes = []core.SlotVotes{coretest.Vote("2025-08-10T19:00:00", "ari")}
	})

	require.Eventually(t, func() bool {
		st, err := o.State(key, "ari", time.Time{})
		return err == nil && len(st.Selection) == 1
	}, 2*time.Second, 5*time.Millisecond)

	o.Shutdown()
	assert.Equal(t, 0, o.Registry.Len())
}

func TestViewerMismatchIsRejected(t *testing.T) {
	b := &coretest.Backend{Room: coretest.BandRoom()}
	o := newOrch(t, b, time.Hour)
	key := app.ViewKey{Client: "c1", Room: "1"}

	_, err := o.Mount(context.Background(), key, "ari")
	require.NoError(t, err)

	_, err = o.Toggle(key, "kim", "2025-08-10T19:00:00")
	assert.ErrorIs(t, err, ErrViewerChanged)
	assert.ErrorIs(t, o.Save(context.Background(), key, "kim"), ErrViewerChanged)
	_, err = o.State(key, "kim", time.Time{})
	assert.ErrorIs(t, err, ErrViewerChanged)
	assert.Equal(t, 0, b.SaveCalls)
}

func TestUnmountClient(t *testing.T) {
	b := &coretest.Backend{Room: coretest.BandRoom()}
	o := newOrch(t, b, time.Hour)

	first, err := o.Mount(context.Background(), app.ViewKey{Client: "c1", Room: "1"}, "ari")
	require.NoError(t, err)
	_, err = o.Mount(context.Background(), app.ViewKey{Client: "c1", Room: "2"}, "ari")
	require.NoError(t, err)
	_, err = o.Mount(context.Background(), app.ViewKey{Client: "c2", Room: "1"}, "kim")
	require.NoError(t, err)

	assert.Equal(t, 2, o.UnmountClient("c1"))
	assert.True(t, first.Closed())
	assert.Equal(t, 1, o.Registry.Len())
	assert.Equal(t, 0, o.UnmountClient("c1"))
}
