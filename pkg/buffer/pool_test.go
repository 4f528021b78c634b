package buffer

import (
	"testing"

	"storemy-core/pkg/disk"
	"storemy-core/pkg/errs"
	"storemy-core/pkg/types"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, poolSize int) *Manager {
	t.Helper()
	dm, err := disk.NewFileManager(afero.NewMemMapFs(), "/data.db", "/wal.log")
	require.NoError(t, err)
	return New(poolSize, dm, nil, nil)
}

// TestFillAndSpill walks the buffer pool scenario: pool size 10, ten
// NewPage calls succeed pinned, an 11th fails; unpinning five dirty
// pages frees exactly that many eviction-eligible frames; four more
// NewPage calls succeed; a fetch of an evicted page succeeds by
// reading from disk; unpinning it and allocating once more evicts it
// again, so a second fetch for the same page fails (every frame
// pinned).
func TestFillAndSpill(t *testing.T) {
	bpm := newTestPool(t, 10)

	var ids []types.PageID
	for i := 0; i < 10; i++ {
		id, frame, err := bpm.NewPage()
		require.NoError(t, err)
		require.NotNil(t, frame)
		ids = append(ids, id)
	}

	_, _, err := bpm.NewPage()
	require.ErrorIs(t, err, errs.ErrBufferPoolExhausted)

	for i := 0; i < 5; i++ {
		ok := bpm.UnpinPage(ids[i], true)
		require.True(t, ok)
	}
	require.Equal(t, 5, bpm.replacer.Size())

	for i := 0; i < 4; i++ {
		_, _, err := bpm.NewPage()
		require.NoError(t, err)
	}
	require.Equal(t, 1, bpm.replacer.Size())

	frame, err := bpm.FetchPage(ids[0])
	require.NoError(t, err)
	require.NotNil(t, frame)
	require.Equal(t, 0, bpm.replacer.Size())

	require.True(t, bpm.UnpinPage(ids[0], false))

	_, _, err = bpm.NewPage()
	require.NoError(t, err)

	_, err = bpm.FetchPage(ids[0])
	require.ErrorIs(t, err, errs.ErrBufferPoolExhausted)
}

func TestUnpinUnknownPageFails(t *testing.T) {
	bpm := newTestPool(t, 2)
	require.False(t, bpm.UnpinPage(types.PageID(99), false))
}

func TestDeletePageRefusesPinned(t *testing.T) {
	bpm := newTestPool(t, 2)
	id, _, err := bpm.NewPage()
	require.NoError(t, err)
	require.False(t, bpm.DeletePage(id))

	require.True(t, bpm.UnpinPage(id, false))
	require.True(t, bpm.DeletePage(id))
}

func TestFlushAllPagesClearsDirtyBits(t *testing.T) {
	bpm := newTestPool(t, 4)
	id, frame, err := bpm.NewPage()
	require.NoError(t, err)
	copy(frame.Data(), []byte("hello"))
	require.True(t, bpm.UnpinPage(id, true))

	bpm.FlushAllPages()

	s := bpm.Stats()
	require.Equal(t, 0, s.DirtyFrames)
}
