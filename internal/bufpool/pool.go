package bufpool

import (
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"

	"bptree/internal/base"
	"bptree/internal/disk"
)

var (
	ErrNoFreeFrames = errors.New("buffer pool exhausted: all frames pinned")
	ErrPagePinned   = errors.New("page is pinned")
)

type frameID int

// frame holds one resident page. The latch is the page latch handed out
// through guards; id and pins are guarded by the pool mutex.
type frame struct {
	latch sync.RWMutex
	page  base.Page
	idx   frameID
	id    base.PageID
	pins  int
	dirty atomic.Bool
}

// BufferPool caches a fixed number of pages in memory and hands out
// pinned, latched guards. Victim selection over the unpinned resident
// pages is delegated to a freelru LRU: pages are added when their pin
// count drops to zero, removed when re-pinned, and RemoveOldest picks
// the eviction victim.
type BufferPool struct {
	mu       sync.Mutex
	frames   []frame
	table    map[base.PageID]frameID
	free     []frameID
	replacer *freelru.LRU[base.PageID, frameID]
	disk     *disk.Manager
}

func hashPageID(id base.PageID) uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(id))
	return uint32(xxhash.Sum64(buf[:]))
}

// New creates a pool with the given number of frames backed by dm.
func New(frames int, dm *disk.Manager) (*BufferPool, error) {
	if frames <= 0 {
		return nil, errors.New("buffer pool needs at least one frame")
	}

	lru, err := freelru.New[base.PageID, frameID](uint32(frames), hashPageID)
	if err != nil {
		return nil, err
	}

	p := &BufferPool{
		frames:   make([]frame, frames),
		table:    make(map[base.PageID]frameID, frames),
		free:     make([]frameID, 0, frames),
		replacer: lru,
		disk:     dm,
	}
	for i := range p.frames {
		p.frames[i].idx = frameID(i)
		p.frames[i].id = base.InvalidPageID
		p.free = append(p.free, frameID(i))
	}
	return p, nil
}

// FetchPageRead pins the page and takes its read latch.
func (p *BufferPool) FetchPageRead(id base.PageID) (*ReadGuard, error) {
	f, err := p.fetchFrame(id, false)
	if err != nil {
		return nil, err
	}
	f.latch.RLock()
	return &ReadGuard{pool: p, f: f, id: id}, nil
}

// FetchPageWrite pins the page and takes its write latch. The frame is
// marked dirty up front; an untouched page flushes its unchanged bytes.
func (p *BufferPool) FetchPageWrite(id base.PageID) (*WriteGuard, error) {
	f, err := p.fetchFrame(id, false)
	if err != nil {
		return nil, err
	}
	f.latch.Lock()
	f.dirty.Store(true)
	return &WriteGuard{pool: p, f: f, id: id}, nil
}

// NewPage allocates a fresh page and returns a pinned, unlatched guard.
// Upgrade it to a write guard before publishing the page id anywhere.
func (p *BufferPool) NewPage() (*PageGuard, error) {
	id, err := p.disk.AllocatePage()
	if err != nil {
		return nil, err
	}
	f, err := p.fetchFrame(id, true)
	if err != nil {
		p.disk.FreePage(id)
		return nil, err
	}
	return &PageGuard{pool: p, f: f, id: id}, nil
}

// DeletePage evicts an unpinned page from the pool and returns its id to
// the disk freelist. The caller must have unlinked the page from the
// tree and dropped its guard first.
func (p *BufferPool) DeletePage(id base.PageID) error {
	p.mu.Lock()
	if fid, ok := p.table[id]; ok {
		f := &p.frames[fid]
		if f.pins > 0 {
			p.mu.Unlock()
			return ErrPagePinned
		}
		p.replacer.Remove(id)
		delete(p.table, id)
		f.id = base.InvalidPageID
		f.dirty.Store(false)
		p.free = append(p.free, fid)
	}
	p.mu.Unlock()

	p.disk.FreePage(id)
	return nil
}

// FlushAll writes every dirty resident page back to disk. Callers must
// quiesce writers first; this runs on Close and Sync.
func (p *BufferPool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.frames {
		f := &p.frames[i]
		if f.id == base.InvalidPageID || !f.dirty.Load() {
			continue
		}
		if err := p.disk.WritePage(f.id, &f.page); err != nil {
			return err
		}
		f.dirty.Store(false)
	}
	return nil
}

// fetchFrame pins the frame holding id, loading it from disk on a miss.
// forNew skips the disk read and hands back a zeroed page.
func (p *BufferPool) fetchFrame(id base.PageID, forNew bool) (*frame, error) {
	p.mu.Lock()

	if fid, ok := p.table[id]; ok {
		f := &p.frames[fid]
		f.pins++
		if f.pins == 1 {
			p.replacer.Remove(id)
		}
		p.mu.Unlock()
		return f, nil
	}

	fid, err := p.claimFrameLocked()
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}

	f := &p.frames[fid]
	f.id = id
	f.pins = 1
	f.dirty.Store(false)
	p.table[id] = fid

	if forNew {
		f.page = base.Page{}
	} else if err := p.disk.ReadPage(id, &f.page); err != nil {
		delete(p.table, id)
		f.id = base.InvalidPageID
		f.pins = 0
		p.free = append(p.free, fid)
		p.mu.Unlock()
		return nil, err
	}

	p.mu.Unlock()
	return f, nil
}

// claimFrameLocked returns a usable frame index, evicting the least
// recently unpinned page when the free list is empty.
func (p *BufferPool) claimFrameLocked() (frameID, error) {
	if n := len(p.free); n > 0 {
		fid := p.free[n-1]
		p.free = p.free[:n-1]
		return fid, nil
	}

	victim, fid, ok := p.replacer.RemoveOldest()
	if !ok {
		return 0, ErrNoFreeFrames
	}

	f := &p.frames[fid]
	if f.dirty.Load() {
		if err := p.disk.WritePage(victim, &f.page); err != nil {
			p.replacer.Add(victim, fid)
			return 0, err
		}
		f.dirty.Store(false)
	}
	delete(p.table, victim)
	f.id = base.InvalidPageID
	return fid, nil
}

// unpin decrements the pin count, making the page evictable at zero.
func (p *BufferPool) unpin(f *frame) {
	p.mu.Lock()
	f.pins--
	if f.pins == 0 {
		p.replacer.Add(f.id, f.idx)
	}
	p.mu.Unlock()
}
