package page

import (
	"encoding/binary"
	"fmt"

	"storemy-core/pkg/types"
)

// Slotted-page header layout (little-endian, offsets into the raw
// page buffer):
//
//	0  : int32  page LSN        (shared with Frame.PageLSN/SetPageLSN)
//	4  : int32  page ID
//	8  : int32  prev page ID    (InvalidPageID if none)
//	12 : int32  next page ID    (InvalidPageID if none)
//	16 : int32  tuple count     (slots ever allocated, including tombstones)
//	20 : int32  free space ptr  (byte offset where tuple bodies currently start)
//
// The slot table begins at offset slottedHeaderSize and grows toward
// higher offsets; each slot is 8 bytes: a 4-byte body offset and a
// 4-byte body length (0 marks a hard-deleted slot, a negative length a
// soft-deleted one; deleted slots are never reused). Tuple bodies are appended from
// the high end of the page downward, so the free space pointer only
// ever decreases.
const (
	slottedHeaderSize = 24
	slotEntrySize     = 8
)

// SlottedPage is a view over a raw page buffer laid out as a classic
// slotted page: a growing slot directory at the front, tuple bodies
// packed from the back.
type SlottedPage struct {
	buf []byte
}

// NewSlottedPage wraps buf (must be exactly page.Size bytes) without
// interpreting its contents.
func NewSlottedPage(buf []byte) *SlottedPage {
	return &SlottedPage{buf: buf}
}

// Init resets buf to an empty slotted page for pageID.
func (p *SlottedPage) Init(pageID, prev, next types.PageID) {
	for i := range p.buf {
		p.buf[i] = 0
	}
	p.setInt32(0, int32(types.InvalidLSN))
	p.setInt32(4, int32(pageID))
	p.setInt32(8, int32(prev))
	p.setInt32(12, int32(next))
	p.setInt32(16, 0)
	p.setInt32(20, int32(Size))
}

func (p *SlottedPage) int32At(off int) int32 {
	return int32(binary.LittleEndian.Uint32(p.buf[off : off+4]))
}

func (p *SlottedPage) setInt32(off int, v int32) {
	binary.LittleEndian.PutUint32(p.buf[off:off+4], uint32(v))
}

func (p *SlottedPage) PageID() types.PageID     { return types.PageID(p.int32At(4)) }
func (p *SlottedPage) PrevPageID() types.PageID { return types.PageID(p.int32At(8)) }
func (p *SlottedPage) NextPageID() types.PageID { return types.PageID(p.int32At(12)) }
func (p *SlottedPage) TupleCount() int          { return int(p.int32At(16)) }
func (p *SlottedPage) freeSpacePtr() int        { return int(p.int32At(20)) }

func (p *SlottedPage) SetPrevPageID(id types.PageID) { p.setInt32(8, int32(id)) }
func (p *SlottedPage) SetNextPageID(id types.PageID) { p.setInt32(12, int32(id)) }

// FreeSpace returns the number of unallocated bytes between the end of
// the slot directory and the start of the tuple-body region.
func (p *SlottedPage) FreeSpace() int {
	dirEnd := slottedHeaderSize + p.TupleCount()*slotEntrySize
	return p.freeSpacePtr() - dirEnd
}

func (p *SlottedPage) slotOffset(slot int) int { return slottedHeaderSize + slot*slotEntrySize }

// slotEntry returns (body offset, body length) for slot. A body length
// of 0 marks a hard-deleted slot and a negative one a soft-deleted slot.
func (p *SlottedPage) slotEntry(slot int) (int, int) {
	o := p.slotOffset(slot)
	return int(p.int32At(o)), int(p.int32At(o + 4))
}

func (p *SlottedPage) setSlotEntry(slot, bodyOffset, bodyLen int) {
	o := p.slotOffset(slot)
	p.setInt32(o, int32(bodyOffset))
	p.setInt32(o+4, int32(bodyLen))
}

// InsertTuple appends data as a new tuple, allocating the next slot
// (either a fresh slot at the end of the directory or — in a future
// extension — a freed one). Returns the slot number and false if the
// page has no room.
func (p *SlottedPage) InsertTuple(data []byte) (int, bool) {
	needed := len(data)
	newDirEnd := slottedHeaderSize + (p.TupleCount()+1)*slotEntrySize
	if newDirEnd > p.freeSpacePtr()-needed {
		return 0, false
	}

	bodyOffset := p.freeSpacePtr() - needed
	copy(p.buf[bodyOffset:bodyOffset+needed], data)

	slot := p.TupleCount()
	p.setSlotEntry(slot, bodyOffset, needed)
	p.setInt32(16, int32(slot+1))
	p.setInt32(20, int32(bodyOffset))
	return slot, true
}

// GetTuple returns the bytes stored at slot, or false if the slot is
// out of range or tombstoned.
func (p *SlottedPage) GetTuple(slot int) ([]byte, bool) {
	if slot < 0 || slot >= p.TupleCount() {
		return nil, false
	}
	off, length := p.slotEntry(slot)
	if length <= 0 {
		return nil, false
	}
	out := make([]byte, length)
	copy(out, p.buf[off:off+length])
	return out, true
}

// DeleteTuple hard-deletes slot by zeroing its length, abandoning the
// body bytes (they are overwritten only by a future compaction, which
// this layout does not implement). Used directly for an unlogged
// delete and as the APPLYDELETE action during recovery.
func (p *SlottedPage) DeleteTuple(slot int) error {
	if slot < 0 || slot >= p.TupleCount() {
		return fmt.Errorf("slotted page: slot %d out of range", slot)
	}
	off, _ := p.slotEntry(slot)
	p.setSlotEntry(slot, off, 0)
	return nil
}

// MarkDeleted soft-deletes slot: the body stays in place (negating the
// stored length marks it invisible) so a later RollbackMarkDelete can
// restore it without consulting the log.
func (p *SlottedPage) MarkDeleted(slot int) error {
	if slot < 0 || slot >= p.TupleCount() {
		return fmt.Errorf("slotted page: slot %d out of range", slot)
	}
	off, length := p.slotEntry(slot)
	if length <= 0 {
		return fmt.Errorf("slotted page: slot %d not present", slot)
	}
	p.setSlotEntry(slot, off, -length)
	return nil
}

// RollbackMarkDelete undoes MarkDeleted, restoring slot to visible.
func (p *SlottedPage) RollbackMarkDelete(slot int) error {
	if slot < 0 || slot >= p.TupleCount() {
		return fmt.Errorf("slotted page: slot %d out of range", slot)
	}
	off, length := p.slotEntry(slot)
	if length >= 0 {
		return fmt.Errorf("slotted page: slot %d not marked deleted", slot)
	}
	p.setSlotEntry(slot, off, -length)
	return nil
}

// IsMarkedDeleted reports whether slot holds a soft-deleted tuple.
func (p *SlottedPage) IsMarkedDeleted(slot int) bool {
	if slot < 0 || slot >= p.TupleCount() {
		return false
	}
	_, length := p.slotEntry(slot)
	return length < 0
}

// RestoreTupleAt re-materializes data at slot specifically (growing
// the slot directory up to slot if needed). Recovery uses it to redo
// INSERT and UPDATE records and to undo UPDATE and APPLYDELETE records,
// where the log record carries the tuple bytes. Returns false if there
// is no room.
func (p *SlottedPage) RestoreTupleAt(slot int, data []byte) bool {
	needed := len(data)
	newCount := p.TupleCount()
	if slot >= newCount {
		newCount = slot + 1
	}
	newDirEnd := slottedHeaderSize + newCount*slotEntrySize
	if newDirEnd > p.freeSpacePtr()-needed {
		return false
	}

	bodyOffset := p.freeSpacePtr() - needed
	copy(p.buf[bodyOffset:bodyOffset+needed], data)
	p.setSlotEntry(slot, bodyOffset, needed)
	if newCount > p.TupleCount() {
		p.setInt32(16, int32(newCount))
	}
	p.setInt32(20, int32(bodyOffset))
	return true
}

// RID builds the record ID for slot on this page.
func (p *SlottedPage) RID(slot int) types.RID {
	return types.RID{PageID: p.PageID(), Slot: uint32(slot)}
}
