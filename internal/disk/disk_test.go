package disk

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bptree/internal/base"
)

var testGeo = Geometry{
	KeySize:         8,
	ValueSize:       16,
	LeafMaxSize:     64,
	InternalMaxSize: 64,
}

func setup(t *testing.T) (*Manager, string) {
	t.Helper()

	tmpfile := fmt.Sprintf("/tmp/test_disk_%s.db", t.Name())
	_ = os.Remove(tmpfile)

	m, err := NewManager(tmpfile, testGeo, true)
	require.NoError(t, err, "Failed to create disk manager")

	t.Cleanup(func() {
		_ = m.Close()
		_ = os.Remove(tmpfile)
	})

	return m, tmpfile
}

func TestInitializeNewFile(t *testing.T) {
	t.Parallel()

	m, tmpfile := setup(t)

	meta := m.Meta()
	assert.Equal(t, uint32(base.MagicNumber), meta.Magic)
	assert.Equal(t, uint16(base.FormatVersion), meta.Version)
	assert.Equal(t, uint16(base.PageSize), meta.PageSize)
	assert.Equal(t, testGeo.KeySize, meta.KeySize)
	assert.Equal(t, testGeo.ValueSize, meta.ValueSize)
	assert.Equal(t, testGeo.LeafMaxSize, meta.LeafMaxSize)
	assert.Equal(t, testGeo.InternalMaxSize, meta.InternalMaxSize)
	assert.Equal(t, base.PageID(1), meta.HeaderPageID)
	assert.Equal(t, base.PageID(2), meta.FreelistID)
	assert.Equal(t, uint64(3), meta.NumPages)

	// The header page anchors an empty tree
	var header base.Page
	require.NoError(t, m.ReadPage(meta.HeaderPageID, &header))
	assert.True(t, header.IsHeader())
	assert.Equal(t, base.InvalidPageID, header.RootPageID())

	info, err := os.Stat(tmpfile)
	require.NoError(t, err)
	assert.Equal(t, int64(3*base.PageSize), info.Size())
}

func TestPageRoundTrip(t *testing.T) {
	t.Parallel()

	m, _ := setup(t)

	id, err := m.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, base.PageID(3), id, "first allocation grows past the reserved pages")

	var page base.Page
	page.Reset(id, base.LeafPageFlag, 64)
	page.SetNextPageID(17)
	page.Data[4095] = 0xFE
	require.NoError(t, m.WritePage(id, &page))

	var got base.Page
	require.NoError(t, m.ReadPage(id, &got))
	assert.True(t, got.IsLeaf())
	assert.Equal(t, base.PageID(17), got.NextPageID())
	assert.Equal(t, byte(0xFE), got.Data[4095])
}

func TestAllocateReusesFreedPages(t *testing.T) {
	t.Parallel()

	m, _ := setup(t)

	a, err := m.AllocatePage()
	require.NoError(t, err)
	b, err := m.AllocatePage()
	require.NoError(t, err)
	c, err := m.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, []base.PageID{3, 4, 5}, []base.PageID{a, b, c})

	m.FreePage(b)
	assert.Equal(t, 1, m.FreeCount())

	reused, err := m.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, b, reused)
	assert.Equal(t, 0, m.FreeCount())

	// With the freelist drained the file grows again
	next, err := m.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, base.PageID(6), next)
}

func TestFreelistSurvivesReopen(t *testing.T) {
	t.Parallel()

	tmpfile := "/tmp/test_disk_freelist_reopen.db"
	os.Remove(tmpfile)
	defer os.Remove(tmpfile)

	m1, err := NewManager(tmpfile, testGeo, true)
	require.NoError(t, err)

	var ids []base.PageID
	for i := 0; i < 5; i++ {
		id, err := m1.AllocatePage()
		require.NoError(t, err)
		ids = append(ids, id)
	}
	m1.FreePage(ids[1])
	m1.FreePage(ids[3])
	require.NoError(t, m1.Close())

	m2, err := NewManager(tmpfile, testGeo, true)
	require.NoError(t, err)
	defer m2.Close()

	assert.Equal(t, 2, m2.FreeCount())

	// Freed ids come back before the file grows: highest first
	got, err := m2.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, ids[3], got)
	got, err = m2.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, ids[1], got)
}

func TestFreelistRelocatesWhenOutgrown(t *testing.T) {
	t.Parallel()

	tmpfile := "/tmp/test_disk_freelist_relocate.db"
	os.Remove(tmpfile)
	defer os.Remove(tmpfile)

	m1, err := NewManager(tmpfile, testGeo, true)
	require.NoError(t, err)

	// 600 freed ids need two freelist pages, outgrowing the single
	// reserved page
	const count = 600
	ids := make([]base.PageID, 0, count)
	for i := 0; i < count; i++ {
		id, err := m1.AllocatePage()
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids {
		m1.FreePage(id)
	}
	require.NoError(t, m1.Close())

	m2, err := NewManager(tmpfile, testGeo, true)
	require.NoError(t, err)
	defer m2.Close()

	// The original freelist page was freed during relocation
	assert.Equal(t, count+1, m2.FreeCount())
	meta := m2.Meta()
	assert.Greater(t, meta.FreelistPages, uint64(1))
	assert.NotEqual(t, base.PageID(2), meta.FreelistID)

	got, err := m2.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, ids[count-1], got, "highest freed id allocates first")
}

func TestLoadRejectsKeySizeMismatch(t *testing.T) {
	t.Parallel()

	tmpfile := "/tmp/test_disk_key_mismatch.db"
	os.Remove(tmpfile)
	defer os.Remove(tmpfile)

	m, err := NewManager(tmpfile, testGeo, true)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	bad := testGeo
	bad.KeySize = 16
	_, err = NewManager(tmpfile, bad, true)
	assert.ErrorIs(t, err, base.ErrInvalidKeySize)

	bad = testGeo
	bad.ValueSize = 8
	_, err = NewManager(tmpfile, bad, true)
	assert.ErrorIs(t, err, base.ErrInvalidValueSize)

	// Max sizes are carried by the file, not validated
	differentMax := testGeo
	differentMax.LeafMaxSize = 7
	m2, err := NewManager(tmpfile, differentMax, true)
	require.NoError(t, err)
	assert.Equal(t, testGeo.LeafMaxSize, m2.Meta().LeafMaxSize)
	require.NoError(t, m2.Close())
}

func TestLoadRejectsCorruptMeta(t *testing.T) {
	t.Parallel()

	tmpfile := "/tmp/test_disk_corrupt_meta.db"
	os.Remove(tmpfile)
	defer os.Remove(tmpfile)

	m, err := NewManager(tmpfile, testGeo, true)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	// Flip a geometry byte inside the checksummed region
	f, err := os.OpenFile(tmpfile, os.O_RDWR, 0600)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xFF}, int64(base.PageHeaderSize)+8)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = NewManager(tmpfile, testGeo, true)
	assert.ErrorIs(t, err, base.ErrInvalidChecksum)
}

func TestLoadRejectsForeignFile(t *testing.T) {
	t.Parallel()

	tmpfile := "/tmp/test_disk_foreign_file.db"
	os.Remove(tmpfile)
	defer os.Remove(tmpfile)

	// A page-sized file of zeros has no magic number
	require.NoError(t, os.WriteFile(tmpfile, make([]byte, base.PageSize), 0600))

	_, err := NewManager(tmpfile, testGeo, true)
	assert.ErrorIs(t, err, base.ErrInvalidMagicNumber)
}

func TestSyncAfterWrites(t *testing.T) {
	t.Parallel()

	tmpfile := "/tmp/test_disk_sync.db"
	os.Remove(tmpfile)
	defer os.Remove(tmpfile)

	// noSync off: Sync must reach the disk without error
	m, err := NewManager(tmpfile, testGeo, false)
	require.NoError(t, err)
	defer os.Remove(tmpfile)

	id, err := m.AllocatePage()
	require.NoError(t, err)
	var page base.Page
	page.Reset(id, base.LeafPageFlag, 64)
	require.NoError(t, m.WritePage(id, &page))
	require.NoError(t, m.Sync())
	require.NoError(t, m.Close())
}
