package page

import (
	"encoding/binary"
	"fmt"

	"storemy-core/pkg/types"
)

// Temp-tuple page header (little-endian):
//
//	0  : int32  page LSN
//	4  : int32  page ID
//	8  : int32  free space pointer (byte offset of the first used byte
//	            at the tail of the page; starts at page.Size and only
//	            decreases)
//
// Tuples are appended from the end of the page downward as
// [..data..][int32 size] (listed from the page end toward the header:
// the data at the higher addresses, its int32 size just below it), so a
// forward scan starting at a tuple's offset reads size-then-data. This page exists
// for the join executor's spill/temp storage path (out of scope here
// beyond providing the layout the buffer pool can cache).
const tempTupleHeaderSize = 12

type TempTuplePage struct {
	buf []byte
}

func NewTempTuplePage(buf []byte) *TempTuplePage {
	return &TempTuplePage{buf: buf}
}

func (p *TempTuplePage) Init(pageID types.PageID) {
	for i := range p.buf {
		p.buf[i] = 0
	}
	p.setInt32(0, int32(types.InvalidLSN))
	p.setInt32(4, int32(pageID))
	p.setInt32(8, int32(Size))
}

func (p *TempTuplePage) int32At(off int) int32 {
	return int32(binary.LittleEndian.Uint32(p.buf[off : off+4]))
}

func (p *TempTuplePage) setInt32(off int, v int32) {
	binary.LittleEndian.PutUint32(p.buf[off:off+4], uint32(v))
}

func (p *TempTuplePage) PageID() types.PageID { return types.PageID(p.int32At(4)) }
func (p *TempTuplePage) freeSpacePtr() int     { return int(p.int32At(8)) }

// Append stores data as a new tuple at the tail of the free region and
// returns the byte offset a reader must start from to recover it.
// Returns ok=false if there is no room.
func (p *TempTuplePage) Append(data []byte) (offset int, ok bool) {
	needed := len(data) + 4
	newFree := p.freeSpacePtr() - needed
	if newFree < tempTupleHeaderSize {
		return 0, false
	}
	binary.LittleEndian.PutUint32(p.buf[newFree:newFree+4], uint32(len(data)))
	copy(p.buf[newFree+4:newFree+needed], data)
	p.setInt32(8, int32(newFree))
	return newFree, true
}

// ReadAt reads the tuple stored at offset (as returned by Append): the
// int32 size stored at offset must equal length, and the data follows
// it.
func (p *TempTuplePage) ReadAt(offset, length int) ([]byte, error) {
	if offset < tempTupleHeaderSize || offset+4+length > Size {
		return nil, fmt.Errorf("temp tuple page: offset/length out of range")
	}
	storedLen := binary.LittleEndian.Uint32(p.buf[offset : offset+4])
	if int(storedLen) != length {
		return nil, fmt.Errorf("temp tuple page: size mismatch at offset %d", offset)
	}
	out := make([]byte, length)
	copy(out, p.buf[offset+4:offset+4+length])
	return out, nil
}
