package base

import "unsafe"

const (
	PageSize = 4096

	LeafPageFlag     uint32 = 0x01
	InternalPageFlag uint32 = 0x02
	HeaderPageFlag   uint32 = 0x04

	PageHeaderSize = 24 // PageID(8) + Flags(4) + Size(4) + MaxSize(4) + pad(4)

	// LeafEntriesOffset is where a leaf's entry array begins: the common
	// header followed by the 8-byte next-leaf pointer.
	LeafEntriesOffset = PageHeaderSize + 8

	// InternalEntriesOffset is where an internal page's entry array begins.
	InternalEntriesOffset = PageHeaderSize

	// MagicNumber for file format identification ("bptr" in hex)
	MagicNumber uint32 = 0x62707472

	FormatVersion uint16 = 1
)

type PageID uint64

// InvalidPageID marks the absence of a page. Page 0 is always the meta
// page, so 0 is never a valid tree page id.
const InvalidPageID PageID = 0

// Page is a raw disk page (4096 bytes).
//
// LEAF PAGE LAYOUT (fixed-size entries):
// ┌──────────────────────────────────────────────────────┐
// │ Header (24 bytes): PageID, Flags, Size, MaxSize      │
// ├──────────────────────────────────────────────────────┤
// │ NextPageID (8 bytes): right sibling, 0 = none        │
// ├──────────────────────────────────────────────────────┤
// │ Entry[0..Size-1]: {Key, Value} pairs, sorted by key  │
// └──────────────────────────────────────────────────────┘
//
// INTERNAL PAGE LAYOUT:
// ┌──────────────────────────────────────────────────────┐
// │ Header (24 bytes): PageID, Flags, Size, MaxSize      │
// ├──────────────────────────────────────────────────────┤
// │ Entry[0..Size-1]: {Key, ChildID} pairs               │
// │ Entry[0].Key is a sentinel and is never consulted;   │
// │ child i covers keys in [Key[i], Key[i+1])            │
// └──────────────────────────────────────────────────────┘
//
// HEADER PAGE LAYOUT:
// ┌──────────────────────────────────────────────────────┐
// │ Header (24 bytes): PageID, Flags, Size=0, MaxSize=0  │
// ├──────────────────────────────────────────────────────┤
// │ RootPageID (8 bytes): 0 = empty tree                 │
// └──────────────────────────────────────────────────────┘
//
// Entry layouts are instantiated generically by the index package; this
// package only fixes the offsets and the untyped header fields.
type Page struct {
	Data [PageSize]byte
}

// PageHeader is the fixed-size header at the start of every page.
// Layout: [PageID: 8][Flags: 4][Size: 4][MaxSize: 4][pad: 4]
type PageHeader struct {
	PageID  PageID // 8 bytes
	Flags   uint32 // 4 bytes: leaf/internal/header
	Size    uint32 // 4 bytes: occupied entry slots
	MaxSize uint32 // 4 bytes: occupancy at which a split is due
	_       uint32 // 4 bytes: padding, keeps entry offsets 8-aligned
}

// Header returns the page header decoded from page data.
func (p *Page) Header() *PageHeader {
	return (*PageHeader)(unsafe.Pointer(&p.Data[0]))
}

// IsLeaf reports whether the page is a leaf page.
func (p *Page) IsLeaf() bool {
	return p.Header().Flags&LeafPageFlag != 0
}

// IsInternal reports whether the page is an internal page.
func (p *Page) IsInternal() bool {
	return p.Header().Flags&InternalPageFlag != 0
}

// IsHeader reports whether the page is the tree header page.
func (p *Page) IsHeader() bool {
	return p.Header().Flags&HeaderPageFlag != 0
}

// NextPageID reads a leaf's right-sibling pointer.
func (p *Page) NextPageID() PageID {
	return *(*PageID)(unsafe.Pointer(&p.Data[PageHeaderSize]))
}

// SetNextPageID writes a leaf's right-sibling pointer.
func (p *Page) SetNextPageID(id PageID) {
	*(*PageID)(unsafe.Pointer(&p.Data[PageHeaderSize])) = id
}

// RootPageID reads the root pointer from a header page.
func (p *Page) RootPageID() PageID {
	return *(*PageID)(unsafe.Pointer(&p.Data[PageHeaderSize]))
}

// SetRootPageID writes the root pointer on a header page.
func (p *Page) SetRootPageID(id PageID) {
	*(*PageID)(unsafe.Pointer(&p.Data[PageHeaderSize])) = id
}

// Reset zeroes the page body and stamps a fresh header.
func (p *Page) Reset(id PageID, flags uint32, maxSize int) {
	p.Data = [PageSize]byte{}
	h := p.Header()
	h.PageID = id
	h.Flags = flags
	h.Size = 0
	h.MaxSize = uint32(maxSize)
}
