package hashindex

import (
	"testing"

	"storemy-core/pkg/buffer"
	"storemy-core/pkg/disk"
	"storemy-core/pkg/errs"
	"storemy-core/pkg/page"
	"storemy-core/pkg/types"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, minBuckets int) *Index {
	t.Helper()
	dm, err := disk.NewFileManager(afero.NewMemMapFs(), "/data.db", "/wal.log")
	require.NoError(t, err)
	bpm := buffer.New(32, dm, nil, nil)
	idx, err := Create(bpm, minBuckets)
	require.NoError(t, err)
	return idx
}

func ridFor(i int64) types.RID {
	return types.RID{PageID: types.PageID(i%1000 + 1), Slot: uint32(i % 251)}
}

// TestInsertGetRemoveScenario fills a single-block-page table (exactly
// page.BlockCapacity slots) completely, confirms every insert past
// that point reports the table full, then removes half the entries
// and confirms only the removed half disappears while the rest still
// round-trips through Get.
func TestInsertGetRemoveScenario(t *testing.T) {
	capacity := int64(page.BlockCapacity)
	idx := newTestIndex(t, int(capacity))

	for i := int64(0); i < capacity; i++ {
		require.NoError(t, idx.Insert(i, ridFor(2*i)))
	}

	for i := capacity + 1; i < capacity+10; i++ {
		err := idx.Insert(i, ridFor(i))
		require.ErrorIs(t, err, errs.ErrHashTableFull)
	}

	half := capacity / 2
	for i := int64(0); i < half; i++ {
		ok, err := idx.Remove(i, ridFor(2*i))
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i := int64(0); i < half; i++ {
		results, err := idx.Get(i)
		require.NoError(t, err)
		require.Empty(t, results)
	}

	for i := half; i < capacity; i++ {
		results, err := idx.Get(i)
		require.NoError(t, err)
		require.Equal(t, []types.RID{ridFor(2 * i)}, results)
	}
}

// TestResizeDoublesAndRehashes fills one block page, removes half,
// doubles the table via Resize, inserts a second block page's worth of
// fresh entries, and confirms every live pair across both halves
// survives the rehash.
func TestResizeDoublesAndRehashes(t *testing.T) {
	capacity := int64(page.BlockCapacity)
	idx := newTestIndex(t, int(capacity))

	for i := int64(0); i < capacity; i++ {
		require.NoError(t, idx.Insert(i, ridFor(2*i)))
	}
	half := capacity / 2
	for i := int64(0); i < half; i++ {
		_, err := idx.Remove(i, ridFor(2*i))
		require.NoError(t, err)
	}

	require.NoError(t, idx.Resize())

	for i := capacity; i < 2*capacity; i++ {
		require.NoError(t, idx.Insert(i, ridFor(2*i)))
	}

	size, err := idx.Size()
	require.NoError(t, err)
	require.Equal(t, int(2*capacity-half), size)

	for i := half; i < 2*capacity; i++ {
		results, err := idx.Get(i)
		require.NoError(t, err)
		require.Equal(t, []types.RID{ridFor(2 * i)}, results)
	}
	for i := int64(0); i < half; i++ {
		results, err := idx.Get(i)
		require.NoError(t, err)
		require.Empty(t, results)
	}
}

func TestInsertDuplicateRejected(t *testing.T) {
	idx := newTestIndex(t, 16)
	rid := types.RID{PageID: 1, Slot: 1}
	require.NoError(t, idx.Insert(42, rid))
	err := idx.Insert(42, rid)
	require.ErrorIs(t, err, errs.ErrDuplicateEntry)
}

func TestRemoveMissingReturnsFalse(t *testing.T) {
	idx := newTestIndex(t, 16)
	ok, err := idx.Remove(7, types.RID{PageID: 1, Slot: 1})
	require.NoError(t, err)
	require.False(t, ok)
}
