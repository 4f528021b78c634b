// Package errs collects the distinguished error values that storage and
// recovery callers branch on. Some expected, recoverable conditions are
// reported as a false return instead of an error (missing or pinned
// pages in UnpinPage, FlushPage and DeletePage); the sentinels here
// cover the conditions a caller is expected to recognize by identity
// and act on (buffer pool exhausted, duplicate hash entry, hash table
// full -> resize and retry, corrupt log record -> stop replaying,
// logging stopped).
package errs

import "errors"

var (
	// ErrBufferPoolExhausted is returned when every frame in the pool
	// is pinned and no victim can be chosen.
	ErrBufferPoolExhausted = errors.New("buffer pool: every frame is pinned")

	// ErrPageNotResident names the condition of a page not being in the
	// buffer pool. UnpinPage and FlushPage report it by returning false;
	// no function in this module returns this value.
	ErrPageNotResident = errors.New("buffer pool: page not resident")

	// ErrPagePinned names the condition of DeletePage being called on a
	// page that still has outstanding pins. DeletePage reports it by
	// returning false; no function in this module returns this value.
	ErrPagePinned = errors.New("buffer pool: page is pinned")

	// ErrHashTableFull is returned when a linear probe wraps back to
	// its origin slot without finding room for an insert.
	ErrHashTableFull = errors.New("hash index: table is full")

	// ErrLogRecordCorrupt is returned when a log record fails a basic
	// sanity check during deserialization (bad size, type, or LSN).
	ErrLogRecordCorrupt = errors.New("log: record failed sanity check")

	// ErrDuplicateEntry is returned by Insert when the exact (key,
	// value) pair is already present and readable.
	ErrDuplicateEntry = errors.New("hash index: duplicate key/value pair")

	// ErrLoggingStopped is returned by Append once the log manager's
	// flush thread has been shut down.
	ErrLoggingStopped = errors.New("log: logging has been stopped")
)
