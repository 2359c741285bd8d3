package wal

// Appender is the interface for appending entries to a journal.
type Appender interface {
	// Append appends a new entry and returns its LSN once it is durable.
	Append(opType OpType, data []byte) (uint64, error)
}

// Reader is the interface for reading entries back for recovery.
type Reader interface {
	// Replay calls handler for every intact entry in LSN order.
	Replay(handler func(*Entry) error) error
}

// Manager is the interface for journal lifecycle management.
type Manager interface {
	Truncate() error
	Close() error
	GetCurrentLSN() uint64
}

// WriteAheadLog is the complete journal interface.
type WriteAheadLog interface {
	Appender
	Reader
	Manager
}

var _ WriteAheadLog = (*CompressedWAL)(nil)
