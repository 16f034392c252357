package presentation

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nexo/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDispatcher_RunsTasksInOrderOnOneGoroutine(t *testing.T) {
	d := NewDispatcher(64, zap.NewNop().Sugar())
	defer d.Stop()

	var got []int
	for i := 0; i < 10; i++ {
		i := i
		require.True(t, d.Post(func() { got = append(got, i) }))
	}
	require.True(t, d.Flush())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestDispatcher_FullQueueDrops(t *testing.T) {
	d := NewDispatcher(1, zap.NewNop().Sugar())
	defer d.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	require.True(t, d.Post(func() {
		close(started)
		<-release
	}))
	<-started

	assert.True(t, d.Post(func() {}))
	assert.False(t, d.Post(func() {}))
	close(release)
	assert.True(t, d.Flush())
}

func TestDispatcher_UrgentTasksSurviveFullQueue(t *testing.T) {
	d := NewDispatcher(1, zap.NewNop().Sugar())
	defer d.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	require.True(t, d.Post(func() {
		close(started)
		<-release
	}))
	<-started

	var order []string
	require.True(t, d.Post(func() { order = append(order, "regular") }))
	require.False(t, d.Post(func() {}))
	for _, name := range []string{"urgent-1", "urgent-2"} {
		name := name
		assert.True(t, d.PostUrgent(func() { order = append(order, name) }))
	}

	close(release)
	require.True(t, d.Flush())
	assert.Equal(t, []string{"urgent-1", "urgent-2", "regular"}, order)
}

func TestDispatcher_UrgentTaskRunsWhileIdle(t *testing.T) {
	d := NewDispatcher(4, zap.NewNop().Sugar())
	defer d.Stop()

	ran := make(chan struct{})
	require.True(t, d.PostUrgent(func() { close(ran) }))
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("urgent task did not run")
	}
}

func TestDispatcher_StopRejectsPosts(t *testing.T) {
	d := NewDispatcher(4, zap.NewNop().Sugar())
	d.Stop()
	d.Stop()

	assert.False(t, d.Post(func() {}))
	assert.False(t, d.PostUrgent(func() {}))
	assert.False(t, d.Flush())
}

func TestDispatcher_SurvivesPanics(t *testing.T) {
	d := NewDispatcher(4, zap.NewNop().Sugar())
	defer d.Stop()

	var ran atomic.Bool
	d.Post(func() { panic("boom") })
	d.Post(func() { ran.Store(true) })
	require.True(t, d.Flush())
	assert.True(t, ran.Load())
}

func TestDispatcher_ConcurrentPosters(t *testing.T) {
	d := NewDispatcher(1024, zap.NewNop().Sugar())
	defer d.Stop()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				for !d.Post(func() { counter++ }) {
					time.Sleep(time.Millisecond)
				}
			}
		}()
	}
	wg.Wait()
	require.True(t, d.Flush())
	assert.Equal(t, 400, counter)
}

func TestHeadlessPresenter_Tiles(t *testing.T) {
	p := NewHeadlessPresenter(zap.NewNop().Sugar())

	s := p.AddTile(2)
	assert.Same(t, s, p.AddTile(2))
	p.AddTile(1)
	assert.Equal(t, []domain.ParticipantID{1, 2}, p.TileIDs())

	_, ok := p.Tile(2)
	assert.False(t, ok)

	pic := &domain.Picture{JPEG: []byte{0xff, 0xd8}, Width: 320, Height: 240}
	s.Render(pic)
	got, ok := p.Tile(2)
	require.True(t, ok)
	assert.Equal(t, pic, got)

	p.RemoveTile(2)
	assert.Equal(t, []domain.ParticipantID{1}, p.TileIDs())
	ts := s.(*TileSurface)
	assert.True(t, ts.Released())

	// rendering a released surface is ignored
	s.Render(pic)
	_, ok = ts.Picture()
	assert.False(t, ok)
	assert.Equal(t, uint64(1), ts.Renders())
}

func TestHeadlessPresenter_StatusAndPreview(t *testing.T) {
	p := NewHeadlessPresenter(zap.NewNop().Sugar())

	p.SetStatus("Connecting to localhost:5000")
	assert.Equal(t, "Connecting to localhost:5000", p.Status())

	_, ok := p.Preview()
	assert.False(t, ok)
	p.ShowLocalPreview(&domain.Picture{JPEG: []byte{1}})
	pic, ok := p.Preview()
	require.True(t, ok)
	assert.Equal(t, []byte{1}, pic.JPEG)
}
