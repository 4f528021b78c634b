// Package wal implements the write-ahead log manager: a double
// buffered append log with a background flush thread and group commit,
// so a burst of concurrent committers pays for one fsync instead of
// one each (spec §4.4).
package wal

import (
	"sync"
	"time"

	"storemy-core/pkg/disk"
	"storemy-core/pkg/errs"
	"storemy-core/pkg/logrecord"
	"storemy-core/pkg/types"

	"go.uber.org/zap"
)

// Manager batches appended records into one of two byte buffers,
// swapping and flushing the full one to disk while the other keeps
// accepting new records. A transaction that wants durability before
// acknowledging commit calls CommitWait, which blocks until the log
// manager's persistent LSN has caught up to the record it cares about.
type Manager struct {
	mu   sync.Mutex
	cond *sync.Cond

	active, flushing               []byte
	activeLen, flushingLen         int
	activeLastLSN, flushingLastLSN types.LSN

	nextLSN       types.LSN
	persistentLSN types.LSN

	enableLogging bool
	flushSignal   chan struct{}
	stopCh        chan struct{}
	doneCh        chan struct{}

	disk   disk.Manager
	logger *zap.SugaredLogger
}

// New starts a log manager with two bufferSize-byte buffers, flushing
// at least once every flushTimeout even if neither buffer fills.
func New(diskManager disk.Manager, bufferSize int, flushTimeout time.Duration, logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	m := &Manager{
		active:        make([]byte, bufferSize),
		flushing:      make([]byte, bufferSize),
		persistentLSN: types.InvalidLSN,
		enableLogging: true,
		flushSignal:   make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		disk:          diskManager,
		logger:        logger,
	}
	m.cond = sync.NewCond(&m.mu)
	go m.flushLoop(flushTimeout)
	return m
}

// Append assigns the next LSN to rec, encodes it, and copies it into
// the active buffer, blocking and triggering a flush if the active
// buffer has no room. Returns the assigned LSN.
func (m *Manager) Append(rec *logrecord.Record) (types.LSN, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enableLogging {
		return types.InvalidLSN, errs.ErrLoggingStopped
	}

	for m.activeLen+int(rec.Size) > len(m.active) {
		m.requestFlushLocked()
		m.cond.Wait()
		if !m.enableLogging {
			return types.InvalidLSN, errs.ErrLoggingStopped
		}
	}

	lsn := m.nextLSN
	m.nextLSN++
	rec.LSN = lsn
	encoded := rec.Encode()

	copy(m.active[m.activeLen:], encoded)
	m.activeLen += len(encoded)
	m.activeLastLSN = lsn
	return lsn, nil
}

func (m *Manager) requestFlushLocked() {
	select {
	case m.flushSignal <- struct{}{}:
	default:
	}
}

// PersistentLSN returns the highest LSN known to be durable on disk.
func (m *Manager) PersistentLSN() types.LSN {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persistentLSN
}

// Force triggers an immediate flush of whatever is currently buffered
// and waits for it to land, satisfying buffer.LogForcer.
func (m *Manager) Force() error {
	m.mu.Lock()
	target := m.nextLSN - 1
	if target < 0 || m.persistentLSN >= target {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	return m.waitFor(target)
}

// CommitWait blocks until lsn (typically the LSN of a COMMIT record)
// is durable, implementing group commit: the caller pays for at most
// one flush regardless of how many other transactions are waiting on
// later LSNs in the same buffer.
func (m *Manager) CommitWait(lsn types.LSN) error {
	return m.waitFor(lsn)
}

func (m *Manager) waitFor(lsn types.LSN) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.persistentLSN < lsn {
		if !m.enableLogging {
			return errs.ErrLoggingStopped
		}
		m.requestFlushLocked()
		m.cond.Wait()
	}
	return nil
}

func (m *Manager) flushLoop(flushTimeout time.Duration) {
	ticker := time.NewTicker(flushTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			m.doFlush()
			close(m.doneCh)
			return
		case <-ticker.C:
			m.doFlush()
		case <-m.flushSignal:
			m.doFlush()
		}
	}
}

func (m *Manager) doFlush() {
	m.mu.Lock()
	if m.activeLen == 0 {
		m.cond.Broadcast()
		m.mu.Unlock()
		return
	}

	m.active, m.flushing = m.flushing, m.active
	m.flushingLen, m.activeLen = m.activeLen, 0
	m.flushingLastLSN = m.activeLastLSN
	data := m.flushing[:m.flushingLen]
	lastLSN := m.flushingLastLSN
	m.mu.Unlock()

	_, err := m.disk.AppendLog(data)
	if err == nil {
		err = m.disk.SyncLog()
	}

	m.mu.Lock()
	if err != nil {
		m.logger.Errorw("log flush failed", "error", err)
	} else {
		m.persistentLSN = lastLSN
	}
	m.flushingLen = 0
	m.cond.Broadcast()
	m.mu.Unlock()
}

// StopFlushThread forces a final flush, disables further Append calls,
// and waits for the background goroutine to exit. Both buffers are
// empty once this returns.
func (m *Manager) StopFlushThread() {
	m.mu.Lock()
	m.enableLogging = false
	m.requestFlushLocked()
	m.mu.Unlock()

	close(m.stopCh)
	<-m.doneCh

	m.mu.Lock()
	if m.activeLen != 0 || m.flushingLen != 0 {
		m.logger.Warnw("log manager stopped with unflushed bytes",
			"active_len", m.activeLen, "flushing_len", m.flushingLen)
	}
	m.cond.Broadcast()
	m.mu.Unlock()
}
