package bptree

import (
	"reflect"
	"sync"
	"sync/atomic"
	"unsafe"

	"bptree/internal/base"
	"bptree/internal/bufpool"
	"bptree/internal/disk"
)

// PageID identifies a page in the index file.
type PageID = base.PageID

// InvalidPageID marks the absence of a page; an empty tree's root.
const InvalidPageID = base.InvalidPageID

// Tree is a disk-backed B+ tree index over fixed-size keys and values.
// Pages live in a buffer pool and every operation latches its way down
// from a header page that anchors the root pointer, so lookups, scans,
// inserts, and removes can run concurrently from multiple goroutines.
//
// Keys are unique. Mutating a tree does not invalidate cursors; cursors
// simply observe the tree as it is when they advance.
type Tree[K any, V any] struct {
	disk *disk.Manager
	pool *bufpool.BufferPool
	cmp  Compare[K]
	log  Logger

	headerPageID    base.PageID
	leafMaxSize     int
	internalMaxSize int

	// Unlinked pages whose reclaim hit a transient cursor pin.
	pendingMu   sync.Mutex
	pendingFree []base.PageID

	closed atomic.Bool
}

// Open opens or creates the index file at path. cmp fixes the key order
// and must be consistent across sessions. Key and value types must be
// fixed-size and pointer-free; their sizes are recorded in the file and
// verified on reopen.
func Open[K any, V any](path string, cmp Compare[K], options ...Option) (*Tree[K, V], error) {
	opts := defaultOptions()
	for _, opt := range options {
		opt(&opts)
	}

	var k K
	var v V
	if !fixedSizeType(reflect.TypeOf(&k).Elem()) || !fixedSizeType(reflect.TypeOf(&v).Elem()) {
		return nil, ErrInvalidKeyType
	}

	leafMax := opts.leafMaxSize
	if leafMax == 0 {
		leafMax = leafCapacity[K, V]() - 1
	}
	internalMax := opts.internalMaxSize
	if internalMax == 0 {
		internalMax = internalCapacity[K]() - 1
	}
	if leafMax < 3 || internalMax < 3 {
		return nil, ErrMaxSizeTooSmall
	}
	if leafMax >= leafCapacity[K, V]() || internalMax >= internalCapacity[K]() {
		return nil, ErrMaxSizeTooLarge
	}

	geo := disk.Geometry{
		KeySize:         uint32(unsafe.Sizeof(k)),
		ValueSize:       uint32(unsafe.Sizeof(v)),
		LeafMaxSize:     uint32(leafMax),
		InternalMaxSize: uint32(internalMax),
	}

	dm, err := disk.NewManager(path, geo, opts.noSync)
	if err != nil {
		return nil, err
	}

	pool, err := bufpool.New(opts.poolSize, dm)
	if err != nil {
		dm.Close()
		return nil, err
	}

	// An existing file keeps its recorded geometry; options only shape
	// fresh files.
	meta := dm.Meta()

	t := &Tree[K, V]{
		disk:            dm,
		pool:            pool,
		cmp:             cmp,
		log:             opts.logger,
		headerPageID:    meta.HeaderPageID,
		leafMaxSize:     int(meta.LeafMaxSize),
		internalMaxSize: int(meta.InternalMaxSize),
	}
	t.log.Info("index opened", "path", path,
		"leaf_max", t.leafMaxSize, "internal_max", t.internalMaxSize)
	return t, nil
}

// Close flushes dirty pages and closes the file. The tree is unusable
// afterwards.
func (t *Tree[K, V]) Close() error {
	if t.closed.Swap(true) {
		return ErrTreeClosed
	}
	t.drainPendingFree()
	if err := t.pool.FlushAll(); err != nil {
		t.log.Error("flush on close failed", "error", err)
		return err
	}
	if err := t.disk.Close(); err != nil {
		return err
	}
	t.log.Info("index closed")
	return nil
}

// Sync flushes dirty pages and fsyncs the file.
func (t *Tree[K, V]) Sync() error {
	if t.closed.Load() {
		return ErrTreeClosed
	}
	if err := t.pool.FlushAll(); err != nil {
		return err
	}
	return t.disk.Sync()
}

// IsEmpty reports whether the tree holds no entries.
func (t *Tree[K, V]) IsEmpty() (bool, error) {
	root, err := t.RootPageID()
	if err != nil {
		return false, err
	}
	return root == InvalidPageID, nil
}

// RootPageID returns the current root page id, InvalidPageID when the
// tree is empty. The root changes whenever it splits or collapses.
func (t *Tree[K, V]) RootPageID() (PageID, error) {
	if t.closed.Load() {
		return InvalidPageID, ErrTreeClosed
	}
	header, err := t.pool.FetchPageRead(t.headerPageID)
	if err != nil {
		return InvalidPageID, err
	}
	defer header.Drop()
	return header.Page().RootPageID(), nil
}

// fixedSizeType reports whether values of t have an arch-independent
// layout safe to persist raw: fixed-width scalars, arrays and structs of
// them. int, uint, and uintptr vary by platform and are rejected along
// with every pointer-shaped kind.
func fixedSizeType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return fixedSizeType(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !fixedSizeType(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
