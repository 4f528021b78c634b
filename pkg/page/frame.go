// Package page defines the on-disk layouts the buffer pool caches:
// the generic frame, the slotted data page, the temp-tuple page, and
// the hash index's header and block pages.
package page

import (
	"encoding/binary"
	"sync"

	"storemy-core/pkg/disk"
	"storemy-core/pkg/types"
)

// Size is the number of bytes in a page (and a frame's backing buffer).
const Size = disk.PageSize

// Frame is one slot in the buffer pool: a fixed-size byte buffer, the
// page ID currently resident (or invalid), a pin count, and a dirty
// flag. Frame owns the page-level reader/writer latch consumers take
// while examining or mutating the buffer (spec §5, §9).
type Frame struct {
	sync.RWMutex

	data     [Size]byte
	pageID   types.PageID
	pinCount int
	dirty    bool
}

// NewFrame returns a frame holding no page, ready for the free list.
func NewFrame() *Frame {
	return &Frame{pageID: types.InvalidPageID}
}

// Data returns the frame's backing buffer. Callers must hold the
// frame's latch (Lock for writers, RLock for readers) while using it.
func (f *Frame) Data() []byte { return f.data[:] }

func (f *Frame) PageID() types.PageID { return f.pageID }

func (f *Frame) PinCount() int { return f.pinCount }

func (f *Frame) IsDirty() bool { return f.dirty }

func (f *Frame) MarkDirty(dirty bool) { f.dirty = dirty }

// Pin increments the pin count.
func (f *Frame) Pin() { f.pinCount++ }

// Unpin decrements the pin count. The caller must not call Unpin on an
// already-zero frame; BufferPoolManager enforces that invariant.
func (f *Frame) Unpin() { f.pinCount-- }

// Reset clears the frame back to the free-list state: invalid page ID,
// clean, pin count zero, buffer zeroed. The page-LSN field is stamped
// to InvalidLSN rather than left at the zero value it'd otherwise carry,
// so a frame inspected between Reset and its layout's Init call (a
// window every caller should avoid, but Reset shouldn't rely on that)
// never reads as a page durably stamped with LSN 0.
func (f *Frame) Reset() {
	f.pageID = types.InvalidPageID
	f.pinCount = 0
	f.dirty = false
	for i := range f.data {
		f.data[i] = 0
	}
	invalidLSN := types.InvalidLSN
	binary.LittleEndian.PutUint32(f.data[0:4], uint32(int32(invalidLSN)))
}

// Install assigns pageID to this frame without touching its contents;
// the caller fills the buffer immediately after (by reading from disk
// or by zeroing it for a new page).
func (f *Frame) Install(pageID types.PageID) {
	f.pageID = pageID
	f.pinCount = 0
	f.dirty = false
}

// PageLSN reads the page-LSN field every page layout in this package
// stores as the first 4 bytes of its header (little-endian int32).
// This lets the buffer pool enforce the WAL-before-data rule without
// knowing which concrete layout a frame holds.
func (f *Frame) PageLSN() types.LSN {
	return types.LSN(int32(binary.LittleEndian.Uint32(f.data[0:4])))
}

// SetPageLSN writes the page-LSN field shared by every layout.
func (f *Frame) SetPageLSN(lsn types.LSN) {
	binary.LittleEndian.PutUint32(f.data[0:4], uint32(int32(lsn)))
}
