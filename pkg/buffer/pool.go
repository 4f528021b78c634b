// Package buffer implements the fixed-size buffer pool: the cache that
// maps page IDs to in-memory frames under a Clock eviction policy,
// honouring the write-ahead-log-before-data rule on every eviction.
package buffer

import (
	"fmt"
	"sync"

	"storemy-core/pkg/disk"
	"storemy-core/pkg/errs"
	"storemy-core/pkg/page"
	"storemy-core/pkg/replacer"
	"storemy-core/pkg/types"

	"go.uber.org/zap"
)

// LogForcer is the buffer pool's sole dependency on the log manager:
// the WAL-before-data rule (spec §4.2) needs to know the highest
// durable LSN and to force a flush when a page being evicted is newer
// than that. A *wal.Manager satisfies this; tests can supply a stub.
type LogForcer interface {
	PersistentLSN() types.LSN
	Force() error
}

type nopForcer struct{}

func (nopForcer) PersistentLSN() types.LSN { return types.LSN(1<<31 - 1) }
func (nopForcer) Force() error             { return nil }

// Manager is the buffer pool manager (spec §4.2).
type Manager struct {
	mu sync.Mutex

	poolSize  int
	frames    []*page.Frame
	pageTable map[types.PageID]int
	freeList  []int

	replacer replacer.Replacer
	disk     disk.Manager
	log      LogForcer
	logger   *zap.SugaredLogger
}

// New builds a buffer pool of poolSize frames backed by diskManager.
// If logForcer is nil, WAL-before-data becomes a no-op (used by
// callers that run the buffer pool without a log manager, e.g. the
// recovery pass reading pages directly). If logger is nil, a no-op
// logger is used.
func New(poolSize int, diskManager disk.Manager, logForcer LogForcer, logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if logForcer == nil {
		logForcer = nopForcer{}
	}

	frames := make([]*page.Frame, poolSize)
	freeList := make([]int, poolSize)
	for i := 0; i < poolSize; i++ {
		frames[i] = page.NewFrame()
		freeList[i] = i
	}

	return &Manager{
		poolSize:  poolSize,
		frames:    frames,
		pageTable: make(map[types.PageID]int),
		freeList:  freeList,
		replacer:  replacer.NewClockReplacer(poolSize),
		disk:      diskManager,
		log:       logForcer,
		logger:    logger,
	}
}

// reserveFrame pops a free frame index, or (-1, false) if none is free.
// Caller must hold mu.
func (m *Manager) reserveFrame() (int, bool) {
	if len(m.freeList) == 0 {
		return -1, false
	}
	idx := m.freeList[0]
	m.freeList = m.freeList[1:]
	return idx, true
}

// selectVictimFrame picks a target frame for a new/fetched page: the
// free list first, falling back to a Clock victim. On a Clock victim,
// the old mapping is removed and, if dirty, the frame is flushed
// (honouring WAL-before-data) before being reused. Caller must hold mu.
func (m *Manager) selectVictimFrame() (int, error) {
	if idx, ok := m.reserveFrame(); ok {
		return idx, nil
	}

	victimFrameID, ok := m.replacer.Victim()
	if !ok {
		return -1, errs.ErrBufferPoolExhausted
	}

	idx := int(victimFrameID)
	frame := m.frames[idx]

	frame.Lock()
	victimPageID := frame.PageID()
	if frame.IsDirty() {
		if err := m.writeBackLocked(frame, victimPageID); err != nil {
			frame.Unlock()
			return -1, fmt.Errorf("buffer pool: flush victim page %d: %w", victimPageID, err)
		}
	}
	frame.Unlock()

	delete(m.pageTable, victimPageID)
	return idx, nil
}

// writeBackLocked writes frame's buffer to disk, forcing the log
// first if the page's LSN outruns what's durable. Caller must hold
// the frame's write latch.
func (m *Manager) writeBackLocked(frame *page.Frame, id types.PageID) error {
	if frame.PageLSN().IsValid() && frame.PageLSN() > m.log.PersistentLSN() {
		if err := m.log.Force(); err != nil {
			return fmt.Errorf("force log flush: %w", err)
		}
	}
	if err := m.disk.WritePage(id, frame.Data()); err != nil {
		return err
	}
	frame.MarkDirty(false)
	return nil
}

// NewPage allocates a fresh disk page, installs it in a frame pinned
// once, and returns its ID and frame. Returns errs.ErrBufferPoolExhausted
// if every frame is pinned.
func (m *Manager) NewPage() (types.PageID, *page.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.selectVictimFrame()
	if err != nil {
		return types.InvalidPageID, nil, err
	}

	id := m.disk.AllocatePage()
	frame := m.frames[idx]

	frame.Lock()
	frame.Reset()
	frame.Install(id)
	frame.Pin()
	frame.MarkDirty(true)
	frame.Unlock()

	m.pageTable[id] = idx
	m.replacer.Pin(replacer.FrameID(idx))

	m.logger.Debugw("new page", "page_id", id, "frame", idx)
	return id, frame, nil
}

// FetchPage returns the frame holding id, reading it from disk on a
// cache miss. Returns errs.ErrBufferPoolExhausted if every frame is
// pinned and id is not already resident.
func (m *Manager) FetchPage(id types.PageID) (*page.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idx, ok := m.pageTable[id]; ok {
		frame := m.frames[idx]
		frame.Pin()
		m.replacer.Pin(replacer.FrameID(idx))
		return frame, nil
	}

	idx, err := m.selectVictimFrame()
	if err != nil {
		return nil, err
	}

	frame := m.frames[idx]
	frame.Lock()
	frame.Install(id)
	if err := m.disk.ReadPage(id, frame.Data()); err != nil {
		frame.Unlock()
		m.freeList = append(m.freeList, idx)
		return nil, fmt.Errorf("buffer pool: read page %d: %w", id, err)
	}
	frame.Pin()
	frame.Unlock()

	m.pageTable[id] = idx
	m.replacer.Pin(replacer.FrameID(idx))

	return frame, nil
}

// UnpinPage decrements id's pin count, OR-ing dirty into the frame's
// dirty flag (a clean unpin must never clear a previously dirty
// frame). Returns false if id is not resident or already unpinned.
func (m *Manager) UnpinPage(id types.PageID, dirty bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.pageTable[id]
	if !ok {
		return false
	}
	frame := m.frames[idx]
	if frame.PinCount() <= 0 {
		return false
	}

	frame.Lock()
	if dirty {
		frame.MarkDirty(true)
	}
	frame.Unpin()
	pinCount := frame.PinCount()
	frame.Unlock()

	if pinCount == 0 {
		m.replacer.Unpin(replacer.FrameID(idx))
	}
	return true
}

// FlushPage writes id to disk if dirty. Returns false if id is not
// resident.
func (m *Manager) FlushPage(id types.PageID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked(id)
}

func (m *Manager) flushLocked(id types.PageID) bool {
	idx, ok := m.pageTable[id]
	if !ok {
		return false
	}
	frame := m.frames[idx]

	frame.Lock()
	defer frame.Unlock()
	if frame.IsDirty() {
		if err := m.writeBackLocked(frame, id); err != nil {
			m.logger.Errorw("flush page failed", "page_id", id, "error", err)
			return false
		}
	}
	return true
}

// DeletePage removes id from the pool and deallocates it on disk. If
// id is resident and pinned, returns false and leaves it untouched.
func (m *Manager) DeletePage(id types.PageID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.pageTable[id]
	if !ok {
		if err := m.disk.DeallocatePage(id); err != nil {
			m.logger.Errorw("deallocate page failed", "page_id", id, "error", err)
		}
		return true
	}

	frame := m.frames[idx]
	if frame.PinCount() > 0 {
		return false
	}

	delete(m.pageTable, id)
	m.replacer.Pin(replacer.FrameID(idx))

	frame.Lock()
	frame.Reset()
	frame.Unlock()

	m.freeList = append(m.freeList, idx)

	if err := m.disk.DeallocatePage(id); err != nil {
		m.logger.Errorw("deallocate page failed", "page_id", id, "error", err)
	}
	return true
}

// FlushAllPages flushes every dirty resident page.
func (m *Manager) FlushAllPages() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range m.pageTable {
		m.flushLocked(id)
	}
}

// BufferPoolStats is a read-only introspection snapshot, grounded on
// GraphDB's DebugBufferPool wrapper and the teacher's
// TableManager.ValidateIntegrity self-check idiom (SPEC_FULL §5).
type BufferPoolStats struct {
	PoolSize     int
	FramesInUse  int
	FreeFrames   int
	DirtyFrames  int
	PinnedFrames int
}

// Stats returns a point-in-time snapshot of pool occupancy.
func (m *Manager) Stats() BufferPoolStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := BufferPoolStats{
		PoolSize:   m.poolSize,
		FreeFrames: len(m.freeList),
	}
	for id := range m.pageTable {
		idx := m.pageTable[id]
		frame := m.frames[idx]
		stats.FramesInUse++
		if frame.IsDirty() {
			stats.DirtyFrames++
		}
		if frame.PinCount() > 0 {
			stats.PinnedFrames++
		}
	}
	return stats
}
