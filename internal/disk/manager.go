package disk

import (
	"fmt"
	"os"
	"sync"

	"bptree/internal/base"
)

// Geometry fixes the on-page entry layout for a new file. Loaded files
// carry their own geometry in the meta page; Open validates it against
// the instantiated types before any tree page is interpreted.
type Geometry struct {
	KeySize         uint32
	ValueSize       uint32
	LeafMaxSize     uint32
	InternalMaxSize uint32
}

// Manager owns the database file: the meta page, the freelist, and raw
// page I/O. The buffer pool is its only caller during normal operation.
type Manager struct {
	mu       sync.Mutex // protects meta and freelist access
	file     *os.File
	meta     base.Meta
	freelist *FreeList
	noSync   bool
}

// NewManager opens or creates a database file. geo is used only when the
// file is empty; existing files keep their recorded geometry.
func NewManager(path string, geo Geometry, noSync bool) (*Manager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		file:     file,
		freelist: NewFreeList(),
		noSync:   noSync,
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	m.mu.Lock()
	if info.Size() == 0 {
		err = m.initialize(geo)
	} else {
		err = m.load(geo)
	}
	m.mu.Unlock()
	if err != nil {
		file.Close()
		return nil, err
	}

	return m, nil
}

// Meta returns a copy of the current metadata.
func (m *Manager) Meta() base.Meta {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta
}

// AllocatePage allocates a page, reusing a freed id before growing the file.
func (m *Manager) AllocatePage() (base.PageID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id := m.freelist.Allocate(); id != 0 {
		return id, nil
	}

	id := base.PageID(m.meta.NumPages)
	m.meta.NumPages++

	// Extend the file so later reads of this id succeed
	empty := &base.Page{}
	if err := m.writePageLocked(id, empty); err != nil {
		return 0, err
	}

	return id, nil
}

// FreePage returns a page id to the freelist for reuse.
func (m *Manager) FreePage(id base.PageID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.freelist.Free(id)
}

// FreeCount returns the number of reusable freed pages.
func (m *Manager) FreeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freelist.Size()
}

// ReadPage reads the page with the given id into page.
func (m *Manager) ReadPage(id base.PageID, page *base.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readPageLocked(id, page)
}

func (m *Manager) readPageLocked(id base.PageID, page *base.Page) error {
	offset := int64(id) * base.PageSize
	n, err := m.file.ReadAt(page.Data[:], offset)
	if err != nil {
		return err
	}
	if n != base.PageSize {
		return fmt.Errorf("short read: got %d bytes, expected %d", n, base.PageSize)
	}
	return nil
}

// WritePage writes page at the given id.
func (m *Manager) WritePage(id base.PageID, page *base.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writePageLocked(id, page)
}

func (m *Manager) writePageLocked(id base.PageID, page *base.Page) error {
	offset := int64(id) * base.PageSize
	n, err := m.file.WriteAt(page.Data[:], offset)
	if err != nil {
		return err
	}
	if n != base.PageSize {
		return fmt.Errorf("short write: wrote %d bytes, expected %d", n, base.PageSize)
	}
	return nil
}

// Sync flushes file contents to stable storage unless noSync is set.
func (m *Manager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncLocked()
}

func (m *Manager) syncLocked() error {
	if m.noSync {
		return nil
	}
	return fdatasync(m.file)
}

// Close serializes the freelist, writes the meta page, syncs, and closes
// the file. The buffer pool must have flushed its dirty pages first.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pagesNeeded := m.freelist.PagesNeeded()

	// If the freelist outgrew its reserved pages, relocate it to the end
	// of the file so it cannot overwrite data pages.
	if uint64(pagesNeeded) > m.meta.FreelistPages {
		for i := uint64(0); i < m.meta.FreelistPages; i++ {
			m.freelist.Free(m.meta.FreelistID + base.PageID(i))
		}
		pagesNeeded = m.freelist.PagesNeeded()

		m.meta.FreelistID = base.PageID(m.meta.NumPages)
		m.meta.FreelistPages = uint64(pagesNeeded)
		m.meta.NumPages += uint64(pagesNeeded)
	}

	freelistPages := make([]*base.Page, pagesNeeded)
	for i := range freelistPages {
		freelistPages[i] = &base.Page{}
	}
	m.freelist.Serialize(freelistPages)

	for i := 0; i < pagesNeeded; i++ {
		if err := m.writePageLocked(m.meta.FreelistID+base.PageID(i), freelistPages[i]); err != nil {
			return err
		}
	}

	if err := m.writeMetaLocked(); err != nil {
		return err
	}

	if err := m.syncLocked(); err != nil {
		return err
	}

	return m.file.Close()
}

func (m *Manager) writeMetaLocked() error {
	m.meta.Checksum = m.meta.CalculateChecksum()
	metaPage := &base.Page{}
	metaPage.WriteMeta(&m.meta)
	return m.writePageLocked(0, metaPage)
}

// initialize lays out a fresh file: meta at page 0, the tree header page
// at page 1, and an empty freelist at page 2.
func (m *Manager) initialize(geo Geometry) error {
	m.meta = base.Meta{
		Magic:           base.MagicNumber,
		Version:         base.FormatVersion,
		PageSize:        base.PageSize,
		KeySize:         geo.KeySize,
		ValueSize:       geo.ValueSize,
		LeafMaxSize:     geo.LeafMaxSize,
		InternalMaxSize: geo.InternalMaxSize,
		HeaderPageID:    1,
		FreelistID:      2,
		FreelistPages:   1,
		NumPages:        3,
	}

	headerPage := &base.Page{}
	headerPage.Reset(m.meta.HeaderPageID, base.HeaderPageFlag, 0)
	headerPage.SetRootPageID(base.InvalidPageID)
	if err := m.writePageLocked(m.meta.HeaderPageID, headerPage); err != nil {
		return err
	}

	freelistPage := &base.Page{}
	m.freelist.Serialize([]*base.Page{freelistPage})
	if err := m.writePageLocked(m.meta.FreelistID, freelistPage); err != nil {
		return err
	}

	if err := m.writeMetaLocked(); err != nil {
		return err
	}

	return m.syncLocked()
}

// load reads and validates the meta page, then restores the freelist.
// Key and value sizes must match the instantiated types exactly; max
// sizes are carried by the file and the caller adopts them.
func (m *Manager) load(geo Geometry) error {
	metaPage := &base.Page{}
	if err := m.readPageLocked(0, metaPage); err != nil {
		return err
	}

	meta := metaPage.ReadMeta()
	if err := meta.Validate(); err != nil {
		return err
	}
	if meta.KeySize != geo.KeySize {
		return base.ErrInvalidKeySize
	}
	if meta.ValueSize != geo.ValueSize {
		return base.ErrInvalidValueSize
	}
	m.meta = *meta

	freelistPages := make([]*base.Page, m.meta.FreelistPages)
	for i := uint64(0); i < m.meta.FreelistPages; i++ {
		freelistPages[i] = &base.Page{}
		if err := m.readPageLocked(m.meta.FreelistID+base.PageID(i), freelistPages[i]); err != nil {
			return err
		}
	}
	m.freelist.Deserialize(freelistPages)

	return nil
}
