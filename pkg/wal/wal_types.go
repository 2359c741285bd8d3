package wal

// OpType represents the type of record in the journal
type OpType uint8

const (
	// OpCommit carries one committed change set.
	OpCommit OpType = iota + 1
	// OpTokenCreate records a relationship type token allocation.
	OpTokenCreate
)

// Entry represents a single journal entry
type Entry struct {
	LSN       uint64 // Log Sequence Number
	OpType    OpType
	Data      []byte // uncompressed payload
	Checksum  uint32 // CRC32 of the compressed payload
	Timestamp int64
}

// Stats holds compression and recovery statistics
type Stats struct {
	TotalWrites       uint64
	BytesUncompressed uint64
	BytesCompressed   uint64
	CompressionRatio  float64 // e.g., 0.75 = 75% compression
	TornTailEntries   int     // entries dropped at the tail during recovery
}
