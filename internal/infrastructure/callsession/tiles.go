package callsession

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"nexo/internal/core/domain"
	"nexo/internal/core/ports"
	"nexo/internal/infrastructure/streaming"

	"go.uber.org/zap"
)

// tile is the receive-side state of one remote sender. surface and removed
// belong to the dispatcher goroutine.
type tile struct {
	id        domain.ParticipantID
	pending   streaming.LatestSlot[*domain.Picture]
	scheduled atomic.Bool
	lastSeen  atomic.Int64

	surface ports.Surface
	removed bool
}

// TileSet tracks remote video tiles. Updates come from the receive loop;
// every presentation change is posted to the dispatcher. At most one render
// task per tile is in flight: newer pictures replace the pending one.
type TileSet struct {
	mu    sync.Mutex
	tiles map[domain.ParticipantID]*tile
	// removed from tiles but not yet handed to the dispatcher
	unreleased []*tile

	dispatcher ports.Dispatcher
	presenter  ports.Presenter
	timeout    time.Duration
	now        func() time.Time

	logger *zap.SugaredLogger
}

func NewTileSet(dispatcher ports.Dispatcher, presenter ports.Presenter, timeout time.Duration, logger *zap.SugaredLogger) *TileSet {
	return &TileSet{
		tiles:      make(map[domain.ParticipantID]*tile),
		dispatcher: dispatcher,
		presenter:  presenter,
		timeout:    timeout,
		now:        time.Now,
		logger:     logger,
	}
}

// Update records a picture from sender id, creating its tile on first use.
func (ts *TileSet) Update(id domain.ParticipantID, pic *domain.Picture) {
	seen := ts.now().UnixNano()

	ts.mu.Lock()
	t, ok := ts.tiles[id]
	if !ok {
		t = &tile{id: id}
		t.lastSeen.Store(seen)
		ts.tiles[id] = t
	}
	ts.mu.Unlock()

	if !ok {
		ts.logger.Debugw("Remote tile created", "participant_id", id)
		ts.dispatcher.Post(func() { ts.ensureSurface(t) })
	}

	t.lastSeen.Store(seen)
	t.pending.Store(pic)
	if !t.scheduled.CompareAndSwap(false, true) {
		return
	}
	if !ts.dispatcher.Post(func() { ts.render(t) }) {
		t.scheduled.Store(false)
	}
}

func (ts *TileSet) ensureSurface(t *tile) {
	if t.surface == nil && !t.removed {
		t.surface = ts.presenter.AddTile(t.id)
	}
}

func (ts *TileSet) render(t *tile) {
	t.scheduled.Store(false)
	pic, ok := t.pending.Take()
	if !ok || t.removed {
		return
	}
	ts.ensureSurface(t)
	t.surface.Render(pic)
}

func (ts *TileSet) release(t *tile) {
	t.removed = true
	if t.surface != nil {
		ts.presenter.RemoveTile(t.id)
		t.surface = nil
	}
}

// Sweep removes tiles not updated within the timeout and returns their ids.
// Releases the dispatcher refused earlier are retried first.
func (ts *TileSet) Sweep(now time.Time) []domain.ParticipantID {
	cutoff := now.Add(-ts.timeout).UnixNano()

	ts.mu.Lock()
	retry := ts.unreleased
	ts.unreleased = nil
	var expired []*tile
	for id, t := range ts.tiles {
		if t.lastSeen.Load() < cutoff {
			delete(ts.tiles, id)
			expired = append(expired, t)
		}
	}
	ts.mu.Unlock()

	ts.releaseAll(retry)

	ids := make([]domain.ParticipantID, 0, len(expired))
	for _, t := range expired {
		ids = append(ids, t.id)
		ts.logger.Infow("Remote tile expired", "participant_id", t.id)
	}
	ts.releaseAll(expired)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// releaseAll hands surface releases to the dispatcher, keeping any it
// refuses for the next sweep.
func (ts *TileSet) releaseAll(tiles []*tile) {
	var refused []*tile
	for _, t := range tiles {
		if !ts.dispatcher.PostUrgent(func() { ts.release(t) }) {
			refused = append(refused, t)
		}
	}
	if len(refused) == 0 {
		return
	}
	ts.logger.Warnw("Tile release deferred", "count", len(refused))
	ts.mu.Lock()
	ts.unreleased = append(ts.unreleased, refused...)
	ts.mu.Unlock()
}

// Unreleased reports how many removed tiles still await surface release.
func (ts *TileSet) Unreleased() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.unreleased)
}

// Run sweeps every interval until ctx is done.
func (ts *TileSet) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ts.Sweep(ts.now())
		}
	}
}

// Clear drops every tile.
func (ts *TileSet) Clear() {
	ts.mu.Lock()
	all := ts.unreleased
	ts.unreleased = nil
	for id, t := range ts.tiles {
		delete(ts.tiles, id)
		all = append(all, t)
	}
	ts.mu.Unlock()

	ts.releaseAll(all)
}

// IDs lists the tracked senders in ascending order.
func (ts *TileSet) IDs() []domain.ParticipantID {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ids := make([]domain.ParticipantID, 0, len(ts.tiles))
	for id := range ts.tiles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (ts *TileSet) Len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.tiles)
}
