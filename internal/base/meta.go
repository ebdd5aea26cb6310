package base

import (
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

// Meta is the database metadata stored in page 0.
// Layout: [Magic: 4][Version: 2][PageSize: 2][KeySize: 4][ValueSize: 4]
// [LeafMaxSize: 4][InternalMaxSize: 4][HeaderPageID: 8][FreelistID: 8]
// [FreelistPages: 8][NumPages: 8][Checksum: 8]
// Total: 64 bytes.
//
// Key/value sizes and the max-size geometry are fixed at create time; Open
// validates them against the instantiated types so a file is never
// reinterpreted under a different entry layout.
type Meta struct {
	Magic           uint32 // 4 bytes: 0x62707472 ("bptr")
	Version         uint16 // 2 bytes: format version (1)
	PageSize        uint16 // 2 bytes: page size (4096)
	KeySize         uint32 // 4 bytes: unsafe.Sizeof the key type
	ValueSize       uint32 // 4 bytes: unsafe.Sizeof the value type
	LeafMaxSize     uint32 // 4 bytes: leaf split threshold
	InternalMaxSize uint32 // 4 bytes: internal split threshold
	HeaderPageID    PageID // 8 bytes: page holding the root pointer
	FreelistID      PageID // 8 bytes: start of serialized freelist, 0 = none
	FreelistPages   uint64 // 8 bytes: contiguous freelist page count
	NumPages        uint64 // 8 bytes: total pages allocated
	Checksum        uint64 // 8 bytes: xxhash of the fields above
}

const metaChecksumOffset = 56 // checksum covers the first 56 bytes

// WriteMeta writes metadata into the page body after the header.
func (p *Page) WriteMeta(m *Meta) {
	ptr := unsafe.Pointer(&p.Data[PageHeaderSize])
	*(*Meta)(ptr) = *m
}

// ReadMeta reads metadata from the page body after the header.
func (p *Page) ReadMeta() *Meta {
	ptr := unsafe.Pointer(&p.Data[PageHeaderSize])
	return (*Meta)(ptr)
}

// CalculateChecksum computes the xxhash of all fields except Checksum itself.
func (m *Meta) CalculateChecksum() uint64 {
	data := unsafe.Slice((*byte)(unsafe.Pointer(m)), metaChecksumOffset)
	return xxhash.Sum64(data)
}

// Validate checks the file-format fields. Geometry fields (key/value sizes,
// max sizes) are checked by the caller against the instantiated types.
func (m *Meta) Validate() error {
	if m.Magic != MagicNumber {
		return ErrInvalidMagicNumber
	}
	if m.Version != FormatVersion {
		return ErrInvalidVersion
	}
	if m.PageSize != PageSize {
		return ErrInvalidPageSize
	}
	if m.Checksum != m.CalculateChecksum() {
		return ErrInvalidChecksum
	}
	return nil
}
