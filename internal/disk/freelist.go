package disk

import (
	"unsafe"

	"bptree/internal/base"
)

// FreeList tracks freed pages for reuse. Freed ids are handed back to
// Allocate before the file grows.
type FreeList struct {
	ids []base.PageID // sorted ascending
}

// NewFreeList creates an empty freelist.
func NewFreeList() *FreeList {
	return &FreeList{ids: make([]base.PageID, 0)}
}

// Allocate returns a free page id, or 0 if none are available.
func (f *FreeList) Allocate() base.PageID {
	if len(f.ids) == 0 {
		return 0
	}
	id := f.ids[len(f.ids)-1]
	f.ids = f.ids[:len(f.ids)-1]
	return id
}

// Free returns a page id to the list. Duplicate frees are ignored.
func (f *FreeList) Free(id base.PageID) {
	for _, existing := range f.ids {
		if existing == id {
			return
		}
	}

	f.ids = append(f.ids, id)
	// Keep sorted for deterministic allocation order
	for i := len(f.ids) - 1; i > 0; i-- {
		if f.ids[i] < f.ids[i-1] {
			f.ids[i], f.ids[i-1] = f.ids[i-1], f.ids[i]
		} else {
			break
		}
	}
}

// Size returns the number of free pages.
func (f *FreeList) Size() int {
	return len(f.ids)
}

// PagesNeeded returns how many pages the serialized freelist occupies.
func (f *FreeList) PagesNeeded() int {
	words := 1 + len(f.ids) // count + ids
	pages := (words*8 + base.PageSize - 1) / base.PageSize
	if pages == 0 {
		pages = 1
	}
	return pages
}

// Serialize writes the freelist into the given pages as a flat array of
// little-endian words: [count][id0][id1]... spilling across pages.
func (f *FreeList) Serialize(pages []*base.Page) {
	words := make([]uint64, 0, 1+len(f.ids))
	words = append(words, uint64(len(f.ids)))
	for _, id := range f.ids {
		words = append(words, uint64(id))
	}

	for i, p := range pages {
		dst := unsafe.Slice((*uint64)(unsafe.Pointer(&p.Data[0])), base.PageSize/8)
		start := i * (base.PageSize / 8)
		if start >= len(words) {
			break
		}
		copy(dst, words[start:])
	}
}

// Deserialize reads a freelist serialized by Serialize.
func (f *FreeList) Deserialize(pages []*base.Page) {
	if len(pages) == 0 {
		f.ids = f.ids[:0]
		return
	}

	read := func(word int) uint64 {
		p := pages[word/(base.PageSize/8)]
		src := unsafe.Slice((*uint64)(unsafe.Pointer(&p.Data[0])), base.PageSize/8)
		return src[word%(base.PageSize/8)]
	}

	count := int(read(0))
	max := len(pages)*(base.PageSize/8) - 1
	if count > max {
		count = max
	}

	f.ids = make([]base.PageID, 0, count)
	for i := 0; i < count; i++ {
		f.ids = append(f.ids, base.PageID(read(1+i)))
	}
}
