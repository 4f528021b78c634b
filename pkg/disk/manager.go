// Package disk provides the lowest layer of the storage engine: reading
// and writing fixed-size pages and appending to the write-ahead log
// file by byte offset, plus monotonic page-ID allocation.
package disk

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"storemy-core/pkg/types"

	"github.com/spf13/afero"
)

// PageSize is the size in bytes of every page on disk (P in spec terms).
const PageSize = 4096

// Manager is the disk manager contract consumed by the buffer pool and
// the log manager. Implementations are responsible only for byte-level
// I/O; they know nothing about frames, pins, or LSNs.
type Manager interface {
	// ReadPage fills buf (len(buf) must equal PageSize) with the
	// on-disk image of pageID. Reading a page beyond the current file
	// extent returns a zero-filled buffer whose first four bytes (the
	// page-LSN field) hold InvalidLSN, matching NewPage's contract of
	// handing back an as-yet-unwritten page.
	ReadPage(pageID types.PageID, buf []byte) error

	// WritePage persists buf (len(buf) must equal PageSize) as the
	// image of pageID.
	WritePage(pageID types.PageID, buf []byte) error

	// AllocatePage reserves and returns the next page ID. Allocation
	// is monotonically increasing and persists across restarts.
	AllocatePage() types.PageID

	// DeallocatePage marks pageID as free. This implementation does
	// not reclaim or zero the slot; it exists so BufferPoolManager has
	// somewhere to route DeletePage's disk-side effect.
	DeallocatePage(pageID types.PageID) error

	// AppendLog appends data to the end of the log file and returns
	// the byte offset at which it was written.
	AppendLog(data []byte) (int64, error)

	// ReadLogAt reads len(buf) bytes from the log file starting at
	// offset. A short read returns io.EOF (via afero/os semantics),
	// which recovery treats as "end of log".
	ReadLogAt(offset int64, buf []byte) (int, error)

	// SyncLog forces buffered log writes to stable storage.
	SyncLog() error

	// Close releases the underlying file handles.
	Close() error
}

// FileManager is the production Manager backed by an afero filesystem.
// It is used with afero.NewOsFs() in the running database and with
// afero.NewMemMapFs() in unit tests that want the exact ReadPage/
// WritePage/AppendLog contract without touching the real filesystem.
type FileManager struct {
	fs afero.Fs

	mu         sync.Mutex
	dataFile   afero.File
	logFile    afero.File
	nextPageID types.PageID
}

// NewFileManager opens (creating if necessary) the page file at
// dataPath and the log file at logPath using fs.
func NewFileManager(fs afero.Fs, dataPath, logPath string) (*FileManager, error) {
	dataFile, err := fs.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("disk manager: open data file: %w", err)
	}

	logFile, err := fs.OpenFile(logPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		dataFile.Close()
		return nil, fmt.Errorf("disk manager: open log file: %w", err)
	}

	info, err := dataFile.Stat()
	if err != nil {
		dataFile.Close()
		logFile.Close()
		return nil, fmt.Errorf("disk manager: stat data file: %w", err)
	}

	numPages := info.Size() / PageSize
	if info.Size()%PageSize != 0 {
		numPages++
	}

	return &FileManager{
		fs:         fs,
		dataFile:   dataFile,
		logFile:    logFile,
		nextPageID: types.PageID(numPages),
	}, nil
}

// NewOSFileManager is a convenience constructor wiring the real OS
// filesystem, the common case outside of tests.
func NewOSFileManager(dataPath, logPath string) (*FileManager, error) {
	return NewFileManager(afero.NewOsFs(), dataPath, logPath)
}

func (m *FileManager) ReadPage(pageID types.PageID, buf []byte) error {
	if len(buf) != PageSize {
		return fmt.Errorf("disk manager: buffer must be %d bytes, got %d", PageSize, len(buf))
	}
	if !pageID.IsValid() {
		return fmt.Errorf("disk manager: invalid page id")
	}

	offset := int64(pageID) * PageSize
	n, err := m.dataFile.ReadAt(buf, offset)
	if err != nil && n == 0 {
		zeroUnwrittenPage(buf)
		return nil
	}
	if n < len(buf) {
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
	}
	return nil
}

// zeroUnwrittenPage fills buf as an as-yet-unwritten page. The first
// four bytes double as every page layout's page-LSN field (the shared
// convention every concrete page type relies on); stamping them with
// InvalidLSN rather than leaving them at the zero value keeps a
// never-written page from being mistaken for one durably stamped with
// LSN 0 during recovery's page-LSN check.
func zeroUnwrittenPage(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	invalidLSN := types.InvalidLSN
	binary.LittleEndian.PutUint32(buf[0:4], uint32(int32(invalidLSN)))
}

func (m *FileManager) WritePage(pageID types.PageID, buf []byte) error {
	if len(buf) != PageSize {
		return fmt.Errorf("disk manager: buffer must be %d bytes, got %d", PageSize, len(buf))
	}
	if !pageID.IsValid() {
		return fmt.Errorf("disk manager: invalid page id")
	}

	offset := int64(pageID) * PageSize
	if _, err := m.dataFile.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("disk manager: write page %d: %w", pageID, err)
	}
	return nil
}

func (m *FileManager) AllocatePage() types.PageID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextPageID
	m.nextPageID++
	return id
}

func (m *FileManager) DeallocatePage(pageID types.PageID) error {
	// A free-list for reclaimed page IDs is deliberately not kept: the
	// spec requires allocation to be monotonically increasing, and
	// nothing in this module reuses a deallocated ID.
	return nil
}

func (m *FileManager) AppendLog(data []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := m.logFile.Stat()
	if err != nil {
		return 0, fmt.Errorf("disk manager: stat log file: %w", err)
	}
	offset := info.Size()

	if _, err := m.logFile.WriteAt(data, offset); err != nil {
		return 0, fmt.Errorf("disk manager: append log: %w", err)
	}
	return offset, nil
}

func (m *FileManager) ReadLogAt(offset int64, buf []byte) (int, error) {
	return m.logFile.ReadAt(buf, offset)
}

func (m *FileManager) SyncLog() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if syncer, ok := m.logFile.(interface{ Sync() error }); ok {
		return syncer.Sync()
	}
	return nil
}

func (m *FileManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err1 := m.dataFile.Close()
	err2 := m.logFile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
