package presentation

import (
	"sort"
	"sync"

	"nexo/internal/core/domain"
	"nexo/internal/core/ports"

	"go.uber.org/zap"
)

// HeadlessPresenter keeps the call window state in memory: a status line,
// the local preview and one surface per remote tile. Mutations arrive on the
// dispatcher goroutine; the read accessors may be called from anywhere.
type HeadlessPresenter struct {
	mu      sync.RWMutex
	status  string
	preview *domain.Picture
	tiles   map[domain.ParticipantID]*TileSurface

	logger *zap.SugaredLogger
}

func NewHeadlessPresenter(logger *zap.SugaredLogger) *HeadlessPresenter {
	return &HeadlessPresenter{
		tiles:  make(map[domain.ParticipantID]*TileSurface),
		logger: logger,
	}
}

func (p *HeadlessPresenter) SetStatus(status string) {
	p.mu.Lock()
	changed := p.status != status
	p.status = status
	p.mu.Unlock()
	if changed {
		p.logger.Infow("Call status", "status", status)
	}
}

func (p *HeadlessPresenter) ShowLocalPreview(pic *domain.Picture) {
	p.mu.Lock()
	p.preview = pic
	p.mu.Unlock()
}

// AddTile returns the surface for id, creating it on first use.
func (p *HeadlessPresenter) AddTile(id domain.ParticipantID) ports.Surface {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.tiles[id]; ok {
		return t
	}
	t := &TileSurface{id: id}
	p.tiles[id] = t
	p.logger.Debugw("Tile added", "participant_id", id)
	return t
}

func (p *HeadlessPresenter) RemoveTile(id domain.ParticipantID) {
	p.mu.Lock()
	t, ok := p.tiles[id]
	delete(p.tiles, id)
	p.mu.Unlock()
	if ok {
		t.Release()
		p.logger.Debugw("Tile removed", "participant_id", id)
	}
}

func (p *HeadlessPresenter) Status() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Preview returns the last local preview, if any.
func (p *HeadlessPresenter) Preview() (*domain.Picture, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.preview, p.preview != nil
}

// Tile returns the last picture rendered on id's surface.
func (p *HeadlessPresenter) Tile(id domain.ParticipantID) (*domain.Picture, bool) {
	p.mu.RLock()
	t, ok := p.tiles[id]
	p.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return t.Picture()
}

// TileIDs lists the visible tiles in ascending order.
func (p *HeadlessPresenter) TileIDs() []domain.ParticipantID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]domain.ParticipantID, 0, len(p.tiles))
	for id := range p.tiles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// TileSurface is the render target of one remote participant.
type TileSurface struct {
	id domain.ParticipantID

	mu       sync.RWMutex
	pic      *domain.Picture
	renders  uint64
	released bool
}

func (t *TileSurface) Render(pic *domain.Picture) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return
	}
	t.pic = pic
	t.renders++
}

func (t *TileSurface) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.released = true
	t.pic = nil
}

func (t *TileSurface) Picture() (*domain.Picture, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pic, t.pic != nil
}

// Renders counts pictures drawn on the surface.
func (t *TileSurface) Renders() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.renders
}

func (t *TileSurface) Released() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.released
}
