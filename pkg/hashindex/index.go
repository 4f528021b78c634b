// Package hashindex implements a disk-backed linear-probing hash
// index over the buffer pool: one header page tracks the bucket count
// and the ordered list of block pages that make up the bucket array,
// each block page holding a fixed run of (key, value) slots (spec §4.3).
package hashindex

import (
	"encoding/binary"
	"fmt"
	"sync"

	"storemy-core/pkg/buffer"
	"storemy-core/pkg/errs"
	"storemy-core/pkg/page"
	"storemy-core/pkg/types"

	"github.com/cespare/xxhash/v2"
)

// Index is a linear-probing hash table keyed by int64, mapping each
// key to zero or more RID values (duplicates are permitted, as long as
// the (key, value) pair itself is unique).
type Index struct {
	mu           sync.RWMutex
	bpm          *buffer.Manager
	headerPageID types.PageID
}

// Create allocates a fresh header page and enough block pages to hold
// at least minBuckets slots, rounding up to a whole number of block
// pages (spec §9: bucket count is sized in block-page units).
func Create(bpm *buffer.Manager, minBuckets int) (*Index, error) {
	numBlocks := ceilDiv(minBuckets, page.BlockCapacity)
	if numBlocks < 1 {
		numBlocks = 1
	}

	headerID, headerFrame, err := bpm.NewPage()
	if err != nil {
		return nil, fmt.Errorf("hashindex: allocate header page: %w", err)
	}
	hp := page.NewHeaderPage(headerFrame.Data())
	hp.Init(headerID)

	blockIDs, err := allocateBlocks(bpm, numBlocks)
	if err != nil {
		bpm.UnpinPage(headerID, false)
		return nil, err
	}
	for _, id := range blockIDs {
		if err := hp.AppendBlockPageID(id); err != nil {
			bpm.UnpinPage(headerID, false)
			return nil, err
		}
	}
	hp.SetBucketCount(numBlocks * page.BlockCapacity)
	bpm.UnpinPage(headerID, true)

	return &Index{bpm: bpm, headerPageID: headerID}, nil
}

// Open wraps an already-initialized header page, used when reopening
// an index that recovery has just replayed.
func Open(bpm *buffer.Manager, headerPageID types.PageID) *Index {
	return &Index{bpm: bpm, headerPageID: headerPageID}
}

// HeaderPageID returns the index's root page, for persisting elsewhere
// (e.g. a catalog entry) so the index can be reopened.
func (idx *Index) HeaderPageID() types.PageID {
	return idx.headerPageID
}

func allocateBlocks(bpm *buffer.Manager, n int) ([]types.PageID, error) {
	ids := make([]types.PageID, 0, n)
	for i := 0; i < n; i++ {
		id, frame, err := bpm.NewPage()
		if err != nil {
			return nil, fmt.Errorf("hashindex: allocate block page: %w", err)
		}
		bp := page.NewBlockPage(frame.Data())
		bp.Init(id)
		bpm.UnpinPage(id, true)
		ids = append(ids, id)
	}
	return ids, nil
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func hashKey(key int64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(key))
	return xxhash.Sum64(buf[:])
}

func bucketFor(key int64, n int) int {
	return int(hashKey(key) % uint64(n))
}

func locateSlot(globalSlot int, blockIDs []types.PageID) (types.PageID, int) {
	idx := globalSlot / page.BlockCapacity
	local := globalSlot % page.BlockCapacity
	return blockIDs[idx], local
}

func (idx *Index) loadHeader() (int, []types.PageID, error) {
	frame, err := idx.bpm.FetchPage(idx.headerPageID)
	if err != nil {
		return 0, nil, fmt.Errorf("hashindex: fetch header page: %w", err)
	}
	hp := page.NewHeaderPage(frame.Data())
	n := hp.BucketCount()
	blockIDs := hp.BlockPageIDs()
	idx.bpm.UnpinPage(idx.headerPageID, false)
	return n, blockIDs, nil
}

// Get returns every value stored under key.
func (idx *Index) Get(key int64) ([]types.RID, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n, blockIDs, err := idx.loadHeader()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	var results []types.RID
	start := bucketFor(key, n)
	cur := start
	for i := 0; i < n; i++ {
		blockID, local := locateSlot(cur, blockIDs)
		frame, err := idx.bpm.FetchPage(blockID)
		if err != nil {
			return nil, err
		}
		bp := page.NewBlockPage(frame.Data())
		if !bp.IsOccupied(local) {
			idx.bpm.UnpinPage(blockID, false)
			break
		}
		if bp.IsReadable(local) && bp.KeyAt(local) == key {
			results = append(results, bp.ValueAt(local))
		}
		idx.bpm.UnpinPage(blockID, false)
		cur = (cur + 1) % n
	}
	return results, nil
}

// Insert adds (key, value). Returns errs.ErrDuplicateEntry if the pair
// is already present, or errs.ErrHashTableFull if the probe chain
// wraps all the way around without finding a free or tombstoned slot.
func (idx *Index) Insert(key int64, value types.RID) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	n, blockIDs, err := idx.loadHeader()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrHashTableFull
	}

	target, err := idx.probeForInsert(key, value, n, blockIDs)
	if err != nil {
		return err
	}

	blockID, local := locateSlot(target, blockIDs)
	frame, err := idx.bpm.FetchPage(blockID)
	if err != nil {
		return err
	}
	bp := page.NewBlockPage(frame.Data())
	bp.PutSlot(local, key, value)
	idx.bpm.UnpinPage(blockID, true)
	return nil
}

// probeForInsert walks the probe chain for key starting at its home
// bucket, returning the first reusable slot: a never-written slot
// (chain end), or the earliest tombstoned slot seen along the way, as
// long as the exact (key, value) pair doesn't already appear later in
// the chain (tombstones don't break the chain, so the whole run must
// be checked before committing to a tombstoned slot).
func (idx *Index) probeForInsert(key int64, value types.RID, n int, blockIDs []types.PageID) (int, error) {
	start := bucketFor(key, n)
	cur := start
	firstFree := -1
	chainEnded := false

	for i := 0; i < n; i++ {
		blockID, local := locateSlot(cur, blockIDs)
		frame, err := idx.bpm.FetchPage(blockID)
		if err != nil {
			return 0, err
		}
		bp := page.NewBlockPage(frame.Data())

		if !bp.IsOccupied(local) {
			idx.bpm.UnpinPage(blockID, false)
			chainEnded = true
			break
		}
		if bp.IsReadable(local) {
			if bp.KeyAt(local) == key && bp.ValueAt(local) == value {
				idx.bpm.UnpinPage(blockID, false)
				return 0, errs.ErrDuplicateEntry
			}
		} else if firstFree == -1 {
			firstFree = cur
		}
		idx.bpm.UnpinPage(blockID, false)
		cur = (cur + 1) % n
	}

	if firstFree != -1 {
		return firstFree, nil
	}
	if chainEnded {
		return cur, nil
	}
	return 0, errs.ErrHashTableFull
}

// Remove deletes the (key, value) pair if present, reporting whether
// it was found.
func (idx *Index) Remove(key int64, value types.RID) (bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	n, blockIDs, err := idx.loadHeader()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	start := bucketFor(key, n)
	cur := start
	for i := 0; i < n; i++ {
		blockID, local := locateSlot(cur, blockIDs)
		frame, err := idx.bpm.FetchPage(blockID)
		if err != nil {
			return false, err
		}
		bp := page.NewBlockPage(frame.Data())

		if !bp.IsOccupied(local) {
			idx.bpm.UnpinPage(blockID, false)
			return false, nil
		}
		if bp.IsReadable(local) && bp.KeyAt(local) == key && bp.ValueAt(local) == value {
			bp.RemoveSlot(local)
			idx.bpm.UnpinPage(blockID, true)
			return true, nil
		}
		idx.bpm.UnpinPage(blockID, false)
		cur = (cur + 1) % n
	}
	return false, nil
}

// Size scans every block page and counts readable slots. O(N); meant
// for tests and diagnostics, not the hot insert/lookup path.
func (idx *Index) Size() (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	_, blockIDs, err := idx.loadHeader()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, blockID := range blockIDs {
		frame, err := idx.bpm.FetchPage(blockID)
		if err != nil {
			return 0, err
		}
		bp := page.NewBlockPage(frame.Data())
		for i := 0; i < bp.Capacity(); i++ {
			if bp.IsOccupied(i) && bp.IsReadable(i) {
				count++
			}
		}
		idx.bpm.UnpinPage(blockID, false)
	}
	return count, nil
}

// Resize doubles the table's bucket count (spec §9: resize grows by
// doubling rather than taking a caller-supplied target), rebuilding
// the bucket array from scratch and rehashing every live entry into
// it. The old header and block pages are deallocated once the new
// ones hold every entry.
func (idx *Index) Resize() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	oldN, oldBlockIDs, err := idx.loadHeader()
	if err != nil {
		return err
	}

	type kv struct {
		key   int64
		value types.RID
	}
	var entries []kv
	for _, blockID := range oldBlockIDs {
		frame, err := idx.bpm.FetchPage(blockID)
		if err != nil {
			return err
		}
		bp := page.NewBlockPage(frame.Data())
		for i := 0; i < bp.Capacity(); i++ {
			if bp.IsOccupied(i) && bp.IsReadable(i) {
				entries = append(entries, kv{bp.KeyAt(i), bp.ValueAt(i)})
			}
		}
		idx.bpm.UnpinPage(blockID, false)
	}

	newN := oldN * 2
	if newN == 0 {
		newN = page.BlockCapacity
	}
	numNewBlocks := ceilDiv(newN, page.BlockCapacity)
	newTotal := numNewBlocks * page.BlockCapacity

	newHeaderID, newHeaderFrame, err := idx.bpm.NewPage()
	if err != nil {
		return fmt.Errorf("hashindex: allocate new header page: %w", err)
	}
	newHeader := page.NewHeaderPage(newHeaderFrame.Data())
	newHeader.Init(newHeaderID)

	newBlockIDs, err := allocateBlocks(idx.bpm, numNewBlocks)
	if err != nil {
		idx.bpm.UnpinPage(newHeaderID, false)
		return err
	}
	for _, id := range newBlockIDs {
		if err := newHeader.AppendBlockPageID(id); err != nil {
			idx.bpm.UnpinPage(newHeaderID, false)
			return err
		}
	}
	newHeader.SetBucketCount(newTotal)
	idx.bpm.UnpinPage(newHeaderID, true)

	oldHeaderID := idx.headerPageID
	idx.headerPageID = newHeaderID

	for _, e := range entries {
		target, err := idx.probeForInsert(e.key, e.value, newTotal, newBlockIDs)
		if err != nil {
			return fmt.Errorf("hashindex: rehash entry: %w", err)
		}
		blockID, local := locateSlot(target, newBlockIDs)
		frame, err := idx.bpm.FetchPage(blockID)
		if err != nil {
			return err
		}
		bp := page.NewBlockPage(frame.Data())
		bp.PutSlot(local, e.key, e.value)
		idx.bpm.UnpinPage(blockID, true)
	}

	for _, id := range oldBlockIDs {
		idx.bpm.DeletePage(id)
	}
	idx.bpm.DeletePage(oldHeaderID)

	return nil
}
