package bufpool

import "bptree/internal/base"

// ReadGuard holds a pin and the read latch on one page. Drop is
// idempotent so guards can be released early and again via defer.
type ReadGuard struct {
	pool     *BufferPool
	f        *frame
	id       base.PageID
	released bool
}

// PageID returns the guarded page's id.
func (g *ReadGuard) PageID() base.PageID {
	return g.id
}

// Page returns the guarded page. Valid until Drop.
func (g *ReadGuard) Page() *base.Page {
	return &g.f.page
}

// Drop releases the read latch and the pin.
func (g *ReadGuard) Drop() {
	if g.released {
		return
	}
	g.released = true
	g.f.latch.RUnlock()
	g.pool.unpin(g.f)
}

// WriteGuard holds a pin and the exclusive latch on one page.
type WriteGuard struct {
	pool     *BufferPool
	f        *frame
	id       base.PageID
	released bool
}

// PageID returns the guarded page's id.
func (g *WriteGuard) PageID() base.PageID {
	return g.id
}

// Page returns the guarded page for mutation. Valid until Drop.
func (g *WriteGuard) Page() *base.Page {
	return &g.f.page
}

// Drop releases the write latch and the pin.
func (g *WriteGuard) Drop() {
	if g.released {
		return
	}
	g.released = true
	g.f.latch.Unlock()
	g.pool.unpin(g.f)
}

// PageGuard holds only a pin, as returned by NewPage. The page is not
// reachable by other operations until its id is linked into the tree,
// which must happen after UpgradeWrite.
type PageGuard struct {
	pool     *BufferPool
	f        *frame
	id       base.PageID
	released bool
}

// PageID returns the guarded page's id.
func (g *PageGuard) PageID() base.PageID {
	return g.id
}

// UpgradeWrite takes the write latch, transferring the pin to the
// returned guard. The PageGuard is spent afterwards.
func (g *PageGuard) UpgradeWrite() *WriteGuard {
	g.released = true
	g.f.latch.Lock()
	g.f.dirty.Store(true)
	return &WriteGuard{pool: g.pool, f: g.f, id: g.id}
}

// Drop releases the pin without the page ever having been latched.
func (g *PageGuard) Drop() {
	if g.released {
		return
	}
	g.released = true
	g.pool.unpin(g.f)
}
