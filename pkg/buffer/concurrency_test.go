package buffer

import (
	"errors"
	"testing"

	"storemy-core/pkg/types"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var errUnpinFailed = errors.New("unpin failed")

// TestConcurrentFetchUnpinPreservesPinCounts fires one goroutine per
// resident page, each doing its own Fetch/mutate-under-latch/Unpin
// cycle many times over, and checks the pool comes out with every page
// unpinned and none evicted out from under a live pin. It exercises the
// same latch discipline FetchPage/UnpinPage document (Data() callers
// must hold the frame's RWMutex) under real goroutine concurrency
// rather than a single-threaded scenario trace.
func TestConcurrentFetchUnpinPreservesPinCounts(t *testing.T) {
	const poolSize = 16
	const rounds = 200

	bpm := newTestPool(t, poolSize)

	ids := make([]types.PageID, poolSize)
	for i := range ids {
		id, _, err := bpm.NewPage()
		require.NoError(t, err)
		ids[i] = id
		require.True(t, bpm.UnpinPage(id, false))
	}

	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			for r := 0; r < rounds; r++ {
				frame, err := bpm.FetchPage(id)
				if err != nil {
					return err
				}
				frame.Lock()
				frame.Data()[8] = byte(r)
				frame.Unlock()
				if !bpm.UnpinPage(id, true) {
					return errUnpinFailed
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	s := bpm.Stats()
	require.Equal(t, 0, s.PinnedFrames)
}
