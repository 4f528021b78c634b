// Package logrecord defines the write-ahead log's wire format: the
// fixed 20-byte header every record starts with, the per-type payload
// layouts, and binary (de)serialization between records and the bytes
// the log manager appends to the log file.
package logrecord

import (
	"encoding/binary"
	"fmt"

	"storemy-core/pkg/types"
)

// Type identifies a log record's kind.
type Type int32

const (
	Invalid Type = iota
	Begin
	Commit
	Abort
	NewPage
	Insert
	MarkDelete
	ApplyDelete
	RollbackDelete
	Update
)

func (t Type) String() string {
	switch t {
	case Begin:
		return "BEGIN"
	case Commit:
		return "COMMIT"
	case Abort:
		return "ABORT"
	case NewPage:
		return "NEWPAGE"
	case Insert:
		return "INSERT"
	case MarkDelete:
		return "MARKDELETE"
	case ApplyDelete:
		return "APPLYDELETE"
	case RollbackDelete:
		return "ROLLBACKDELETE"
	case Update:
		return "UPDATE"
	default:
		return "INVALID"
	}
}

// headerSize is the fixed prefix every record carries:
//
//	0  : int32  total record size in bytes
//	4  : int32  LSN
//	8  : int32  transaction ID
//	12 : int32  previous LSN for this transaction (InvalidLSN if none)
//	16 : int32  record type
const headerSize = 20

// Record is one write-ahead log entry. Tuple/OldTuple/NewTuple hold
// raw tuple bytes as produced by the slotted page layout; which fields
// are meaningful depends on Type.
type Record struct {
	Size     int32
	LSN      types.LSN
	TxnID    types.TxnID
	PrevLSN  types.LSN
	Type     Type
	RID      types.RID
	PrevPage types.PageID
	PageID   types.PageID
	Tuple    []byte
	OldTuple []byte
	NewTuple []byte
}

// NewBegin builds a BEGIN record (header only).
func NewBegin(txnID types.TxnID, prevLSN types.LSN) *Record {
	return &Record{Size: headerSize, TxnID: txnID, PrevLSN: prevLSN, Type: Begin}
}

// NewCommit builds a COMMIT record (header only).
func NewCommit(txnID types.TxnID, prevLSN types.LSN) *Record {
	return &Record{Size: headerSize, TxnID: txnID, PrevLSN: prevLSN, Type: Commit}
}

// NewAbort builds an ABORT record (header only).
func NewAbort(txnID types.TxnID, prevLSN types.LSN) *Record {
	return &Record{Size: headerSize, TxnID: txnID, PrevLSN: prevLSN, Type: Abort}
}

// NewNewPage builds a NEWPAGE record recording that pageID was
// allocated, linked after prevPage (InvalidPageID if it is the first
// page of a file).
func NewNewPage(txnID types.TxnID, prevLSN types.LSN, prevPage, pageID types.PageID) *Record {
	return &Record{
		Size: headerSize + 8, TxnID: txnID, PrevLSN: prevLSN, Type: NewPage,
		PrevPage: prevPage, PageID: pageID,
	}
}

// NewInsert builds an INSERT record for tuple landing at rid.
func NewInsert(txnID types.TxnID, prevLSN types.LSN, rid types.RID, tuple []byte) *Record {
	return &Record{
		Size: headerSize + 8 + 4 + int32(len(tuple)), TxnID: txnID, PrevLSN: prevLSN,
		Type: Insert, RID: rid, Tuple: tuple,
	}
}

// NewMarkDelete builds a MARKDELETE record: rid's tuple bytes are
// recorded alongside it. Undoing a MARKDELETE does not read them; the
// soft-deleted body is still on the page and RollbackMarkDelete
// restores it in place.
func NewMarkDelete(txnID types.TxnID, prevLSN types.LSN, rid types.RID, tuple []byte) *Record {
	return &Record{
		Size: headerSize + 8 + 4 + int32(len(tuple)), TxnID: txnID, PrevLSN: prevLSN,
		Type: MarkDelete, RID: rid, Tuple: tuple,
	}
}

// NewApplyDelete builds an APPLYDELETE record: the tuple is physically
// removed from the page.
func NewApplyDelete(txnID types.TxnID, prevLSN types.LSN, rid types.RID, tuple []byte) *Record {
	return &Record{
		Size: headerSize + 8 + 4 + int32(len(tuple)), TxnID: txnID, PrevLSN: prevLSN,
		Type: ApplyDelete, RID: rid, Tuple: tuple,
	}
}

// NewRollbackDelete builds a ROLLBACKDELETE record, emitted when
// undoing a MARKDELETE: it reinstates the tuple as readable.
func NewRollbackDelete(txnID types.TxnID, prevLSN types.LSN, rid types.RID, tuple []byte) *Record {
	return &Record{
		Size: headerSize + 8 + 4 + int32(len(tuple)), TxnID: txnID, PrevLSN: prevLSN,
		Type: RollbackDelete, RID: rid, Tuple: tuple,
	}
}

// NewUpdate builds an UPDATE record carrying both the before and after
// tuple images for rid.
func NewUpdate(txnID types.TxnID, prevLSN types.LSN, rid types.RID, oldTuple, newTuple []byte) *Record {
	return &Record{
		Size:     headerSize + 8 + 4 + int32(len(oldTuple)) + 4 + int32(len(newTuple)),
		TxnID:    txnID, PrevLSN: prevLSN, Type: Update, RID: rid,
		OldTuple: oldTuple, NewTuple: newTuple,
	}
}

// Encode serializes r into its wire bytes. r.LSN must already be set
// by the log manager before calling Encode.
func (r *Record) Encode() []byte {
	buf := make([]byte, r.Size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.Size))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(r.LSN))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(r.TxnID))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(r.PrevLSN))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(r.Type))

	switch r.Type {
	case Begin, Commit, Abort:
		// header only

	case NewPage:
		binary.LittleEndian.PutUint32(buf[20:24], uint32(r.PrevPage))
		binary.LittleEndian.PutUint32(buf[24:28], uint32(r.PageID))

	case Insert, MarkDelete, ApplyDelete, RollbackDelete:
		binary.LittleEndian.PutUint32(buf[20:24], uint32(r.RID.PageID))
		binary.LittleEndian.PutUint32(buf[24:28], r.RID.Slot)
		binary.LittleEndian.PutUint32(buf[28:32], uint32(len(r.Tuple)))
		copy(buf[32:], r.Tuple)

	case Update:
		binary.LittleEndian.PutUint32(buf[20:24], uint32(r.RID.PageID))
		binary.LittleEndian.PutUint32(buf[24:28], r.RID.Slot)
		binary.LittleEndian.PutUint32(buf[28:32], uint32(len(r.OldTuple)))
		off := 32
		copy(buf[off:off+len(r.OldTuple)], r.OldTuple)
		off += len(r.OldTuple)
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(r.NewTuple)))
		off += 4
		copy(buf[off:off+len(r.NewTuple)], r.NewTuple)
	}
	return buf
}

// Decode parses one record out of buf, which must hold at least the
// declared size. Returns the record and its total byte length.
func Decode(buf []byte) (*Record, int, error) {
	if len(buf) < headerSize {
		return nil, 0, fmt.Errorf("logrecord: buffer shorter than header (%d bytes)", len(buf))
	}
	size := int32(binary.LittleEndian.Uint32(buf[0:4]))
	if size < headerSize || int(size) > len(buf) {
		return nil, 0, fmt.Errorf("logrecord: declared size %d out of range", size)
	}

	r := &Record{
		Size:    size,
		LSN:     types.LSN(binary.LittleEndian.Uint32(buf[4:8])),
		TxnID:   types.TxnID(binary.LittleEndian.Uint32(buf[8:12])),
		PrevLSN: types.LSN(binary.LittleEndian.Uint32(buf[12:16])),
		Type:    Type(binary.LittleEndian.Uint32(buf[16:20])),
	}
	if r.LSN < 0 {
		return nil, 0, fmt.Errorf("logrecord: invalid LSN %d", r.LSN)
	}

	switch r.Type {
	case Begin, Commit, Abort:
		// nothing further

	case NewPage:
		if size != headerSize+8 {
			return nil, 0, fmt.Errorf("logrecord: NEWPAGE size mismatch: %d", size)
		}
		r.PrevPage = types.PageID(int32(binary.LittleEndian.Uint32(buf[20:24])))
		r.PageID = types.PageID(int32(binary.LittleEndian.Uint32(buf[24:28])))

	case Insert, MarkDelete, ApplyDelete, RollbackDelete:
		r.RID = types.RID{
			PageID: types.PageID(int32(binary.LittleEndian.Uint32(buf[20:24]))),
			Slot:   binary.LittleEndian.Uint32(buf[24:28]),
		}
		tupleLen := int(binary.LittleEndian.Uint32(buf[28:32]))
		if int32(32+tupleLen) != size {
			return nil, 0, fmt.Errorf("logrecord: tuple length mismatch for %s", r.Type)
		}
		r.Tuple = append([]byte(nil), buf[32:32+tupleLen]...)

	case Update:
		r.RID = types.RID{
			PageID: types.PageID(int32(binary.LittleEndian.Uint32(buf[20:24]))),
			Slot:   binary.LittleEndian.Uint32(buf[24:28]),
		}
		oldLen := int(binary.LittleEndian.Uint32(buf[28:32]))
		off := 32
		if off+oldLen+4 > len(buf) {
			return nil, 0, fmt.Errorf("logrecord: UPDATE old-tuple length out of range")
		}
		r.OldTuple = append([]byte(nil), buf[off:off+oldLen]...)
		off += oldLen
		newLen := int(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
		if int32(off+newLen) != size {
			return nil, 0, fmt.Errorf("logrecord: UPDATE new-tuple length mismatch")
		}
		r.NewTuple = append([]byte(nil), buf[off:off+newLen]...)

	default:
		return nil, 0, fmt.Errorf("logrecord: unknown record type %d", r.Type)
	}

	return r, int(size), nil
}
