package page

import (
	"encoding/binary"
	"fmt"

	"storemy-core/pkg/types"
)

// HeaderPage holds the hash index's metadata: the total bucket count
// and the ordered list of block-page IDs that compose the bucket
// array. The list is append-only. The hash index fills it once, when
// the header page is created; Resize does not append to an existing
// header page but builds a new header page with its own block list,
// and the index moves to that new header page ID.
//
// Layout (little-endian):
//
//	0  : int32  page LSN
//	4  : int32  page ID
//	8  : int32  bucket count (N)
//	12 : int32  block-page-ID list length
//	16.. : int32[] block-page IDs
const headerFixedSize = 16

type HeaderPage struct {
	buf []byte
}

func NewHeaderPage(buf []byte) *HeaderPage {
	return &HeaderPage{buf: buf}
}

// MaxBlockIDs is how many block-page IDs a single header page can
// hold; the hash index never needs more than this before it would
// also need a second-level directory, which is out of scope (§1).
var MaxBlockIDs = (Size - headerFixedSize) / 4

func (p *HeaderPage) int32At(off int) int32 {
	return int32(binary.LittleEndian.Uint32(p.buf[off : off+4]))
}

func (p *HeaderPage) setInt32(off int, v int32) {
	binary.LittleEndian.PutUint32(p.buf[off:off+4], uint32(v))
}

func (p *HeaderPage) Init(pageID types.PageID) {
	for i := range p.buf {
		p.buf[i] = 0
	}
	p.setInt32(0, int32(types.InvalidLSN))
	p.setInt32(4, int32(pageID))
	p.setInt32(8, 0)
	p.setInt32(12, 0)
}

func (p *HeaderPage) PageID() types.PageID { return types.PageID(p.int32At(4)) }
func (p *HeaderPage) BucketCount() int     { return int(p.int32At(8)) }
func (p *HeaderPage) numBlockIDs() int     { return int(p.int32At(12)) }

func (p *HeaderPage) SetBucketCount(n int) { p.setInt32(8, int32(n)) }

// BlockPageIDs returns the ordered list of block-page IDs composing
// the bucket array.
func (p *HeaderPage) BlockPageIDs() []types.PageID {
	n := p.numBlockIDs()
	out := make([]types.PageID, n)
	for i := 0; i < n; i++ {
		out[i] = types.PageID(p.int32At(headerFixedSize + i*4))
	}
	return out
}

// AppendBlockPageID adds id to the end of the block-page list.
func (p *HeaderPage) AppendBlockPageID(id types.PageID) error {
	n := p.numBlockIDs()
	if n >= MaxBlockIDs {
		return fmt.Errorf("hash header page: block-page list full (%d entries)", n)
	}
	p.setInt32(headerFixedSize+n*4, int32(id))
	p.setInt32(12, int32(n+1))
	return nil
}

// --- Block page -----------------------------------------------------

// slotSize is the serialized size of one (key, value) slot: an int64
// key and a types.RID value (int32 page ID + uint32 slot).
const slotSize = 16
const blockHeaderSize = 12

// BlockCapacity is the number of (key, value) slots a block page can
// hold once its two occupied/readable bitmaps are accounted for.
var BlockCapacity = computeBlockCapacity()

func computeBlockCapacity() int {
	for b := (Size - blockHeaderSize) / slotSize; b > 0; b-- {
		bitmapBytes := 2 * ((b + 7) / 8)
		if blockHeaderSize+b*slotSize+bitmapBytes <= Size {
			return b
		}
	}
	return 0
}

// BlockPage is one bucket-array block: an array of (key, value) slots
// plus the occupied/readable bitmaps (spec §3, §6).
//
// Layout (little-endian):
//
//	0  : int32  page LSN
//	4  : int32  page ID
//	8  : int32  number of slots actually usable on this page (<= BlockCapacity)
//	12.. : slots[BlockCapacity] (16 bytes each: int64 key, int32 RID.PageID, uint32 RID.Slot)
//	.. : occupied bitmap, ceil(BlockCapacity/8) bytes
//	.. : readable bitmap, ceil(BlockCapacity/8) bytes
type BlockPage struct {
	buf        []byte
	bitmapOff  int
	readOff    int
	slotsStart int
}

func NewBlockPage(buf []byte) *BlockPage {
	bp := &BlockPage{buf: buf, slotsStart: blockHeaderSize}
	bitmapBytes := (BlockCapacity + 7) / 8
	bp.bitmapOff = bp.slotsStart + BlockCapacity*slotSize
	bp.readOff = bp.bitmapOff + bitmapBytes
	return bp
}

func (p *BlockPage) int32At(off int) int32 {
	return int32(binary.LittleEndian.Uint32(p.buf[off : off+4]))
}

func (p *BlockPage) setInt32(off int, v int32) {
	binary.LittleEndian.PutUint32(p.buf[off:off+4], uint32(v))
}

func (p *BlockPage) Init(pageID types.PageID) {
	for i := range p.buf {
		p.buf[i] = 0
	}
	p.setInt32(0, int32(types.InvalidLSN))
	p.setInt32(4, int32(pageID))
	p.setInt32(8, int32(BlockCapacity))
}

func (p *BlockPage) PageID() types.PageID { return types.PageID(p.int32At(4)) }

func (p *BlockPage) numSlots() int { return int(p.int32At(8)) }

func (p *BlockPage) slotOffset(i int) int { return p.slotsStart + i*slotSize }

func bitMask(i int) byte { return 0b10000000 >> uint(i%8) }

func (p *BlockPage) bitSet(off, i int) bool {
	return p.buf[off+i/8]&bitMask(i) != 0
}

func (p *BlockPage) setBit(off, i int, v bool) {
	byteOff := off + i/8
	if v {
		p.buf[byteOff] |= bitMask(i)
	} else {
		p.buf[byteOff] &^= bitMask(i)
	}
}

func (p *BlockPage) IsOccupied(i int) bool { return p.bitSet(p.bitmapOff, i) }
func (p *BlockPage) IsReadable(i int) bool { return p.bitSet(p.readOff, i) }

func (p *BlockPage) setOccupied(i int, v bool) { p.setBit(p.bitmapOff, i, v) }
func (p *BlockPage) setReadable(i int, v bool) { p.setBit(p.readOff, i, v) }

// KeyAt returns the raw key stored at slot i, valid only when
// IsOccupied(i) is true.
func (p *BlockPage) KeyAt(i int) int64 {
	off := p.slotOffset(i)
	return int64(binary.LittleEndian.Uint64(p.buf[off : off+8]))
}

// ValueAt returns the RID stored at slot i.
func (p *BlockPage) ValueAt(i int) types.RID {
	off := p.slotOffset(i) + 8
	pid := int32(binary.LittleEndian.Uint32(p.buf[off : off+4]))
	slot := binary.LittleEndian.Uint32(p.buf[off+4 : off+8])
	return types.RID{PageID: types.PageID(pid), Slot: slot}
}

// PutSlot writes (key, value) into slot i and marks it occupied and
// readable.
func (p *BlockPage) PutSlot(i int, key int64, value types.RID) {
	off := p.slotOffset(i)
	binary.LittleEndian.PutUint64(p.buf[off:off+8], uint64(key))
	binary.LittleEndian.PutUint32(p.buf[off+8:off+12], uint32(value.PageID))
	binary.LittleEndian.PutUint32(p.buf[off+12:off+16], value.Slot)
	p.setOccupied(i, true)
	p.setReadable(i, true)
}

// RemoveSlot tombstones slot i: readable is cleared but occupied stays
// set, preserving the probe chain through this slot (spec §3, §4.3).
func (p *BlockPage) RemoveSlot(i int) {
	p.setReadable(i, false)
}

// Capacity is how many slots this page actually exposes, which may be
// smaller than BlockCapacity for the (currently unused) case of a
// partially sized final block page.
func (p *BlockPage) Capacity() int {
	n := p.numSlots()
	if n <= 0 || n > BlockCapacity {
		return BlockCapacity
	}
	return n
}
