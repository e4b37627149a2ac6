package httpapi

import (
	"context"
	"sync"
	"time"

	"outletops/internal/core"
)

// DefaultPreviewTTL bounds how long an uncommitted preview is kept.
const DefaultPreviewTTL = 30 * time.Minute

type heldPreview struct {
	preview core.ImportPreview
	expires time.Time
}

// PreviewStore holds uncommitted import previews by batch id until they are
// committed, discarded or expire.
type PreviewStore struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.RWMutex
	held  map[string]*heldPreview
	sweep time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPreviewStore constructs a store. A non-positive ttl uses
// DefaultPreviewTTL; a nil now uses time.Now.
func NewPreviewStore(ttl time.Duration, now func() time.Time) *PreviewStore {
	if ttl <= 0 {
		ttl = DefaultPreviewTTL
	}
	if now == nil {
		now = time.Now
	}
	sweep := ttl / 2
	if sweep < time.Second {
		sweep = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PreviewStore{
		ttl:    ttl,
		now:    now,
		held:   make(map[string]*heldPreview),
		sweep:  sweep,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins evicting expired previews in the background.
func (p *PreviewStore) Start() {
	p.wg.Add(1)
	go p.loop()
}

// Stop halts the eviction loop and waits for it to exit.
func (p *PreviewStore) Stop(ctx context.Context) error {
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PreviewStore) loop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.Sweep()
		}
	}
}

// Put stores preview and returns its expiry.
func (p *PreviewStore) Put(preview core.ImportPreview) time.Time {
	expires := p.now().Add(p.ttl)
	p.mu.Lock()
	p.held[preview.BatchID] = &heldPreview{preview: preview, expires: expires}
	p.mu.Unlock()
	return expires
}

// Get returns a live preview.
func (p *PreviewStore) Get(batchID string) (core.ImportPreview, time.Time, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.held[batchID]
	if !ok || !p.now().Before(h.expires) {
		return core.ImportPreview{}, time.Time{}, false
	}
	return h.preview, h.expires, true
}

// Take removes and returns a live preview, so that only one caller can
// commit it.
func (p *PreviewStore) Take(batchID string) (core.ImportPreview, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.held[batchID]
	if !ok {
		return core.ImportPreview{}, false
	}
	delete(p.held, batchID)
	if !p.now().Before(h.expires) {
		return core.ImportPreview{}, false
	}
	return h.preview, true
}

// Discard drops a preview and reports whether it was held.
func (p *PreviewStore) Discard(batchID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.held[batchID]
	if !ok {
		return false
	}
	delete(p.held, batchID)
	return p.now().Before(h.expires)
}

// Sweep evicts expired previews and returns how many were dropped.
func (p *PreviewStore) Sweep() int {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	dropped := 0
	for id, h := range p.held {
		if !now.Before(h.expires) {
			delete(p.held, id)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of held previews, expired ones included until swept.
func (p *PreviewStore) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.held)
}
