package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Jam/internal/core"
	"github.com/dkeye/Jam/internal/core/coretest"
	"github.com/dkeye/Jam/internal/domain"
)

func openView(t *testing.T, b *coretest.Backend, viewer domain.Nickname) *SchedulerView {
	t.Helper()
	v := NewSchedulerView(b, "1", viewer, time.UTC, StrictOrder{})
	require.NoError(t, v.Open(context.Background()))
	return v
}

func bandBackend(votes ...core.SlotVotes) *coretest.Backend {
	return &coretest.Backend{Room: coretest.BandRoom(), Votes: votes}
}

func TestViewOpenSeedsSelection(t *testing.T) {
	b := bandBackend(
		coretest.Vote("2025-08-10T10:00:00", "ari", "kim"),
		coretest.Vote("2025-08-10T11:00:00", "kim"),
	)
	v := openView(t, b, "ari")

	st := v.State(time.Time{})
	assert.Equal(t, []domain.Slot{mustSlot(t, "2025-08-10T10:00:00")}, st.Selection)
	assert.Equal(t, domain.Roster{"ari", "kim", "dana"}, st.Roster)
	assert.Equal(t, []domain.Nickname{"dana"}, st.Pending)
	assert.Empty(t, st.Perfect)
	assert.Nil(t, st.Heatmap)
	assert.False(t, st.Dirty)
}

func TestViewOpenRejectsOutsiders(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *domain.Room)
		viewer  domain.Nickname
		wantErr error
	}{
		{name: "stranger", viewer: "zoe", wantErr: domain.ErrNotParticipant},
		{name: "unconfirmed", viewer: "ari", mutate: func(r *domain.Room) { r.Confirmed = false }, wantErr: domain.ErrRoomNotConfirmed},
		{name: "ended", viewer: "dana", mutate: func(r *domain.Room) { r.Ended = true }, wantErr: domain.ErrRoomEnded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bandBackend()
			if tt.mutate != nil {
				tt.mutate(&b.Room)
			}
			v := NewSchedulerView(b, "1", tt.viewer, time.UTC, nil)
			assert.ErrorIs(t, v.Open(context.Background()), tt.wantErr)
			assert.Equal(t, 0, b.FetchCalls)
		})
	}
}

func TestViewFailedSaveKeepsSelectionAndSnapshot(t *testing.T) {
	b := bandBackend(coretest.Vote("2025-08-10T10:00:00", "ari"))
	v := openView(t, b, "ari")

	_, err := v.Toggle(mustSlot(t, "2025-08-10T12:00:00"))
	require.NoError(t, err)
	before := v.State(time.Time{})

	b.Set(func(b *coretest.Backend) { b.SaveErr = coretest.ErrUnavailable })
	require.ErrorIs(t, v.Save(context.Background()), ErrSaveFailed)

	after := v.State(time.Time{})
	assert.Equal(t, before.Selection, after.Selection)
	assert.True(t, after.Dirty)
	assert.False(t, after.Saving)
	assert.Equal(t, before.FetchedAt, after.FetchedAt)
	assert.Equal(t, before.Pending, after.Pending)

	b.Set(func(b *coretest.Backend) { b.SaveErr = nil })
	require.NoError(t, v.Save(context.Background()))
	assert.Equal(t, before.Selection, b.LastSaved)
}

func TestViewSaveReplacesSelectionFromSnapshot(t *testing.T) {
	b := bandBackend(
		coretest.Vote("2025-08-10T10:00:00", "kim", "dana"),
	)
	v := openView(t, b, "ari")

	_, err := v.Toggle(mustSlot(t, "2025-08-10T10:00:00"))
	require.NoError(t, err)
	require.NoError(t, v.Save(context.Background()))

	st := v.State(time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC))
	assert.False(t, st.Dirty)
	assert.Equal(t, []domain.Slot{mustSlot(t, "2025-08-10T10:00:00")}, st.Selection)
	assert.Equal(t, []domain.Slot{mustSlot(t, "2025-08-10T10:00:00")}, st.Perfect)
	assert.Empty(t, st.Pending)
	require.Len(t, st.Heatmap, 24)
	assert.True(t, st.Heatmap[10].Perfect)
	assert.True(t, st.Heatmap[10].Selected)
}

func TestViewSaveStaleAfterSaveKeepsCommittedSelection(t *testing.T) {
	b := bandBackend()
	v := openView(t, b, "ari")
	_, err := v.Toggle(mustSlot(t, "2025-08-10T10:00:00"))
	require.NoError(t, err)

	b.Set(func(b *coretest.Backend) { b.FetchErr = coretest.ErrUnavailable })
	require.ErrorIs(t, v.Save(context.Background()), ErrStaleAfterSave)

	st := v.State(time.Time{})
	assert.False(t, st.Dirty)
	assert.Equal(t, []domain.Slot{mustSlot(t, "2025-08-10T10:00:00")}, st.Selection)
}

func TestViewRejectsConcurrentSave(t *testing.T) {
	b := bandBackend()
	v := openView(t, b, "ari")

	started := make(chan struct{})
	release := make(chan struct{})
	b.Set(func(b *coretest.Backend) {
		b.Fetch = func(ctx context.Context, call int) ([]core.SlotVotes, error) {
			close(started)
			<-release
			return nil, nil
		}
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, v.Save(context.Background()))
	}()
	<-started
	assert.True(t, v.State(time.Time{}).Saving)
	assert.ErrorIs(t, v.Save(context.Background()), ErrSaveInProgress)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, b.SaveCalls)
	assert.False(t, v.State(time.Time{}).Saving)
}

func TestViewPollKeepsUnsavedToggles(t *testing.T) {
	b := bandBackend(coretest.Vote("2025-08-10T10:00:00", "ari"))
	v := openView(t, b, "ari")

	_, err := v.Toggle(mustSlot(t, "2025-08-10T10:00:00"))
	require.NoError(t, err)
	b.Set(func(b *coretest.Backend) {
		b.Votes = append(b.Votes, coretest.Vote("2025-08-10T11:00:00", "ari", "kim"))
	})
	require.NoError(t, v.Poll(context.Background()))

	st := v.State(time.Time{})
	assert.Empty(t, st.Selection)
	assert.True(t, st.Dirty)
	assert.Equal(t, []domain.Nickname{"dana"}, st.Pending)
}

func TestViewPollFollowsSnapshotWhenClean(t *testing.T) {
	b := bandBackend(coretest.Vote("2025-08-10T10:00:00", "ari"))
	v := openView(t, b, "ari")

	b.Set(func(b *coretest.Backend) {
		b.Votes = []core.SlotVotes{coretest.Vote("2025-08-10T11:00:00", "ari")}
		b.Room.Sessions[1].Participant = "lee"
	})
	require.NoError(t, v.Poll(context.Background()))

	st := v.State(time.Time{})
	assert.Equal(t, []domain.Slot{mustSlot(t, "2025-08-10T11:00:00")}, st.Selection)
	assert.Equal(t, domain.Roster{"ari", "lee", "kim", "dana"}, st.Roster)
}

func TestViewPollBlocksSchedulingWhenRoomShutsViewerOut(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *domain.Room)
		wantErr error
	}{
		{name: "room ended", mutate: func(r *domain.Room) { r.Ended = true }, wantErr: domain.ErrRoomEnded},
		{name: "seat vacated", mutate: func(r *domain.Room) { r.Sessions[0].Participant = "" }, wantErr: domain.ErrNotParticipant},
		{name: "unconfirmed", mutate: func(r *domain.Room) { r.Confirmed = false }, wantErr: domain.ErrRoomNotConfirmed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bandBackend(coretest.Vote("2025-08-10T10:00:00", "ari"))
			v := openView(t, b, "ari")
			_, err := v.Toggle(mustSlot(t, "2025-08-10T11:00:00"))
			require.NoError(t, err)

			b.Set(func(b *coretest.Backend) { tt.mutate(&b.Room) })
			require.NoError(t, v.Poll(context.Background()))

			sel, err := v.Toggle(mustSlot(t, "2025-08-10T12:00:00"))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, sel.Contains(mustSlot(t, "2025-08-10T12:00:00")))
			assert.ErrorIs(t, v.Save(context.Background()), tt.wantErr)
			assert.Equal(t, 0, b.SaveCalls)
			assert.Equal(t, tt.wantErr.Error(), v.State(time.Time{}).Blocked)
		})
	}
}

func TestViewPollLiftsBlockWhenViewerIsBack(t *testing.T) {
	b := bandBackend()
	v := openView(t, b, "ari")

	b.Set(func(b *coretest.Backend) { b.Room.Sessions[0].Participant = "" })
	require.NoError(t, v.Poll(context.Background()))
	_, err := v.Toggle(mustSlot(t, "2025-08-10T10:00:00"))
	require.ErrorIs(t, err, domain.ErrNotParticipant)

	b.Set(func(b *coretest.Backend) { b.Room.Sessions[1].Participant = "ari" })
	require.NoError(t, v.Poll(context.Background()))
	_, err = v.Toggle(mustSlot(t, "2025-08-10T10:00:00"))
	require.NoError(t, err)
	require.NoError(t, v.Save(context.Background()))
	assert.Equal(t, 1, b.SaveCalls)
	assert.Empty(t, v.State(time.Time{}).Blocked)
}

func TestViewPollFailureKeepsState(t *testing.T) {
	b := bandBackend(coretest.Vote("2025-08-10T10:00:00", "ari"))
	v := openView(t, b, "ari")

	b.Set(func(b *coretest.Backend) {
		b.FetchErr = coretest.ErrUnavailable
		b.RoomErr = coretest.ErrUnavailable
	})
	assert.ErrorIs(t, v.Poll(context.Background()), coretest.ErrUnavailable)

	st := v.State(time.Time{})
	assert.NotNil(t, st.Room)
	assert.Equal(t, []domain.Slot{mustSlot(t, "2025-08-10T10:00:00")}, st.Selection)
}

func TestViewClosed(t *testing.T) {
	b := bandBackend()
	v := openView(t, b, "ari")
	v.Close()
	v.Close()

	assert.True(t, v.Closed())
	_, err := v.Toggle(mustSlot(t, "2025-08-10T10:00:00"))
	assert.ErrorIs(t, err, ErrViewClosed)
	assert.ErrorIs(t, v.Save(context.Background()), ErrViewClosed)
	assert.ErrorIs(t, v.Poll(context.Background()), ErrViewClosed)
	assert.ErrorIs(t, v.Refresh(context.Background()), ErrViewClosed)
	assert.Equal(t, 0, b.SaveCalls)
}

func TestViewRunStopsOnCancel(t *testing.T) {
	b := bandBackend()
	v := openView(t, b, "ari")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		v.Run(ctx, time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		var calls int
		b.Set(func(b *coretest.Backend) { calls = b.FetchCalls })
		return calls >= 3
	}, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poll loop did not stop")
	}
}

func TestRegistryUnbindCancelsAndCloses(t *testing.T) {
	r := NewRegistry()
	key := ViewKey{Client: "c1", Room: "1"}
	v := openView(t, bandBackend(), "ari")

	cancelled := false
	_, _, replaced := r.Bind(key, v, func() { cancelled = true })
	assert.False(t, replaced)
	assert.Equal(t, 1, r.Len())

	got, ok := r.Get(key)
	require.True(t, ok)
	assert.Same(t, v, got)

	assert.True(t, r.Unbind(key))
	assert.True(t, cancelled)
	assert.True(t, v.Closed())
	assert.False(t, r.Unbind(key))
	assert.Equal(t, 0, r.Len())
}
