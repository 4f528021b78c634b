// Package recovery implements ARIES-style crash recovery: a single
// forward redo pass over the write-ahead log followed by a backward
// undo pass over whatever transactions never reached COMMIT or ABORT
// (spec §4.5).
package recovery

import (
	"encoding/binary"
	"errors"
	"fmt"

	"storemy-core/pkg/buffer"
	"storemy-core/pkg/disk"
	"storemy-core/pkg/errs"
	"storemy-core/pkg/logrecord"
	"storemy-core/pkg/page"
	"storemy-core/pkg/types"

	"go.uber.org/zap"
)

// Manager drives a recovery pass over a disk manager's log file,
// applying mutations through a buffer pool so ordinary page-dirtying
// and eviction rules keep working during recovery.
type Manager struct {
	disk   disk.Manager
	bpm    *buffer.Manager
	logger *zap.SugaredLogger
}

func New(diskManager disk.Manager, bpm *buffer.Manager, logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{disk: diskManager, bpm: bpm, logger: logger}
}

// Recover runs the full redo-then-undo pass and leaves every touched
// page flushed to disk. It is meant to run once, before any new
// transaction starts.
func (m *Manager) Recover() error {
	lsnOffsets := make(map[types.LSN]int64)
	activeTxn := make(map[types.TxnID]types.LSN)

	var offset int64
	for {
		rec, size, err := m.readRecordAt(offset)
		if errors.Is(err, errs.ErrLogRecordCorrupt) {
			m.logger.Warnw("redo pass stopped at unreadable log record", "offset", offset, "error", err)
			break
		}
		if err != nil {
			return err
		}
		if rec == nil {
			break
		}

		lsnOffsets[rec.LSN] = offset
		if err := m.redo(rec); err != nil {
			return fmt.Errorf("recovery: redo LSN %d: %w", rec.LSN, err)
		}

		switch rec.Type {
		case logrecord.Commit, logrecord.Abort:
			delete(activeTxn, rec.TxnID)
		default:
			activeTxn[rec.TxnID] = rec.LSN
		}

		offset += int64(size)
	}

	m.logger.Infow("redo pass complete", "records_replayed", len(lsnOffsets), "active_txns", len(activeTxn))

	for txnID, lastLSN := range activeTxn {
		if err := m.undo(lastLSN, lsnOffsets); err != nil {
			return fmt.Errorf("recovery: undo txn %d: %w", txnID, err)
		}
	}

	m.bpm.FlushAllPages()
	return nil
}

// readRecordAt reads and decodes one record starting at offset,
// returning (nil, 0, nil) once the log is exhausted.
func (m *Manager) readRecordAt(offset int64) (*logrecord.Record, int, error) {
	var sizeBuf [4]byte
	n, err := m.disk.ReadLogAt(offset, sizeBuf[:])
	if err != nil || n < 4 {
		return nil, 0, nil
	}
	size := int32(binary.LittleEndian.Uint32(sizeBuf[:]))
	if size <= 0 {
		return nil, 0, nil
	}

	buf := make([]byte, size)
	n, err = m.disk.ReadLogAt(offset, buf)
	if err != nil || n < int(size) {
		return nil, 0, nil
	}

	rec, total, err := logrecord.Decode(buf)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: offset %d: %v", errs.ErrLogRecordCorrupt, offset, err)
	}
	return rec, total, nil
}

func (m *Manager) redo(rec *logrecord.Record) error {
	switch rec.Type {
	case logrecord.Begin, logrecord.Commit, logrecord.Abort:
		return nil
	case logrecord.NewPage:
		return m.redoNewPage(rec)
	case logrecord.Insert:
		return m.mutatePage(rec.RID.PageID, rec.LSN, func(sp *page.SlottedPage) error {
			sp.RestoreTupleAt(int(rec.RID.Slot), rec.Tuple)
			return nil
		})
	case logrecord.Update:
		return m.mutatePage(rec.RID.PageID, rec.LSN, func(sp *page.SlottedPage) error {
			sp.RestoreTupleAt(int(rec.RID.Slot), rec.NewTuple)
			return nil
		})
	case logrecord.MarkDelete:
		return m.mutatePage(rec.RID.PageID, rec.LSN, func(sp *page.SlottedPage) error {
			return sp.MarkDeleted(int(rec.RID.Slot))
		})
	case logrecord.ApplyDelete:
		return m.mutatePage(rec.RID.PageID, rec.LSN, func(sp *page.SlottedPage) error {
			return sp.DeleteTuple(int(rec.RID.Slot))
		})
	case logrecord.RollbackDelete:
		return m.mutatePage(rec.RID.PageID, rec.LSN, func(sp *page.SlottedPage) error {
			return sp.RollbackMarkDelete(int(rec.RID.Slot))
		})
	}
	return nil
}

func (m *Manager) redoNewPage(rec *logrecord.Record) error {
	frame, err := m.bpm.FetchPage(rec.PageID)
	if err != nil {
		return err
	}
	if frame.PageLSN().IsValid() && frame.PageLSN() >= rec.LSN {
		m.bpm.UnpinPage(rec.PageID, false)
		return nil
	}
	sp := page.NewSlottedPage(frame.Data())
	sp.Init(rec.PageID, rec.PrevPage, types.InvalidPageID)
	frame.SetPageLSN(rec.LSN)
	m.bpm.UnpinPage(rec.PageID, true)
	return nil
}

// mutatePage fetches pageID, applies apply to its slotted-page view
// only if the page isn't already durably ahead of lsn, stamps the new
// page LSN, and unpins dirty.
func (m *Manager) mutatePage(pageID types.PageID, lsn types.LSN, apply func(*page.SlottedPage) error) error {
	frame, err := m.bpm.FetchPage(pageID)
	if err != nil {
		return err
	}
	if frame.PageLSN().IsValid() && frame.PageLSN() >= lsn {
		m.bpm.UnpinPage(pageID, false)
		return nil
	}
	sp := page.NewSlottedPage(frame.Data())
	if err := apply(sp); err != nil {
		m.bpm.UnpinPage(pageID, false)
		return err
	}
	frame.SetPageLSN(lsn)
	m.bpm.UnpinPage(pageID, true)
	return nil
}

// undo walks a single transaction's log chain backward from lastLSN,
// applying the compensating action for each record until it reaches
// that transaction's BEGIN record or runs out of chain.
func (m *Manager) undo(lastLSN types.LSN, lsnOffsets map[types.LSN]int64) error {
	lsn := lastLSN
	for lsn.IsValid() {
		offset, ok := lsnOffsets[lsn]
		if !ok {
			break
		}
		rec, _, err := m.readRecordAt(offset)
		if err != nil {
			return err
		}
		if rec == nil {
			break
		}
		if rec.Type == logrecord.Begin {
			break
		}
		if err := m.compensate(rec); err != nil {
			return fmt.Errorf("compensate LSN %d: %w", rec.LSN, err)
		}
		lsn = rec.PrevLSN
	}
	return nil
}

// compensate applies the inverse action for one forward log record, per
// the spec's compensation table: INSERT undoes via apply-delete, UPDATE
// via restoring the old image, MARKDELETE via rollback-delete,
// APPLYDELETE via re-inserting the logged tuple bytes, and
// ROLLBACKDELETE via re-marking the tuple deleted. NEWPAGE has nothing
// to undo: the page itself is simply left allocated.
func (m *Manager) compensate(rec *logrecord.Record) error {
	switch rec.Type {
	case logrecord.Insert:
		return m.mutateUnconditionally(rec.RID.PageID, func(sp *page.SlottedPage) error {
			return sp.DeleteTuple(int(rec.RID.Slot))
		})
	case logrecord.Update:
		return m.mutateUnconditionally(rec.RID.PageID, func(sp *page.SlottedPage) error {
			sp.RestoreTupleAt(int(rec.RID.Slot), rec.OldTuple)
			return nil
		})
	case logrecord.MarkDelete:
		return m.mutateUnconditionally(rec.RID.PageID, func(sp *page.SlottedPage) error {
			return sp.RollbackMarkDelete(int(rec.RID.Slot))
		})
	case logrecord.ApplyDelete:
		return m.mutateUnconditionally(rec.RID.PageID, func(sp *page.SlottedPage) error {
			sp.RestoreTupleAt(int(rec.RID.Slot), rec.Tuple)
			return nil
		})
	case logrecord.RollbackDelete:
		return m.mutateUnconditionally(rec.RID.PageID, func(sp *page.SlottedPage) error {
			return sp.MarkDeleted(int(rec.RID.Slot))
		})
	case logrecord.NewPage, logrecord.Begin, logrecord.Commit, logrecord.Abort:
		return nil
	}
	return nil
}

func (m *Manager) mutateUnconditionally(pageID types.PageID, apply func(*page.SlottedPage) error) error {
	frame, err := m.bpm.FetchPage(pageID)
	if err != nil {
		return err
	}
	sp := page.NewSlottedPage(frame.Data())
	if err := apply(sp); err != nil {
		m.bpm.UnpinPage(pageID, false)
		return err
	}
	m.bpm.UnpinPage(pageID, true)
	return nil
}
