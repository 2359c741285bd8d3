package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"
)

const walFileName = "journal.snappy.log"

// CompressedWAL is a write-ahead journal with snappy-compressed payloads.
//
// Record format: [LSN:8][OpType:1][DataLen:4][Data:N][Checksum:4][Timestamp:8]
type CompressedWAL struct {
	file       *os.File
	writer     *bufio.Writer
	currentLSN uint64
	dataDir    string
	syncWrites bool
	mu         sync.Mutex

	// Statistics
	totalWrites       uint64
	bytesUncompressed uint64
	bytesCompressed   uint64
	tornTail          int
}

// NewCompressedWAL opens (or creates) the journal in dataDir. When syncWrites
// is set every Append is fsynced before it returns.
func NewCompressedWAL(dataDir string, syncWrites bool) (*CompressedWAL, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	walPath := filepath.Join(dataDir, walFileName)

	file, err := os.OpenFile(walPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL file: %w", err)
	}

	w := &CompressedWAL{
		file:       file,
		writer:     bufio.NewWriter(file),
		dataDir:    dataDir,
		syncWrites: syncWrites,
	}

	if err := w.recoverLSN(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to recover LSN: %w", err)
	}

	return w, nil
}

// Append appends a new entry to the compressed journal
func (w *CompressedWAL) Append(opType OpType, data []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, errors.New("WAL is closed")
	}
	if w.currentLSN == ^uint64(0) {
		return 0, fmt.Errorf("WAL LSN space exhausted - require WAL rotation")
	}

	w.currentLSN++
	compressed := snappy.Encode(nil, data)

	entry := Entry{
		LSN:       w.currentLSN,
		OpType:    opType,
		Data:      compressed,
		Checksum:  crc32.ChecksumIEEE(compressed),
		Timestamp: time.Now().Unix(),
	}

	if err := w.writeEntry(&entry); err != nil {
		w.currentLSN--
		return 0, fmt.Errorf("failed to write WAL entry: %w", err)
	}

	if err := w.writer.Flush(); err != nil {
		w.currentLSN--
		return 0, fmt.Errorf("failed to flush WAL: %w", err)
	}

	if w.syncWrites {
		if err := w.file.Sync(); err != nil {
			return 0, fmt.Errorf("failed to sync WAL: %w", err)
		}
	}

	w.totalWrites++
	w.bytesUncompressed += uint64(len(data))
	w.bytesCompressed += uint64(len(compressed))

	return entry.LSN, nil
}

func (w *CompressedWAL) writeEntry(entry *Entry) error {
	var header [13]byte
	binary.BigEndian.PutUint64(header[0:8], entry.LSN)
	header[8] = byte(entry.OpType)
	binary.BigEndian.PutUint32(header[9:13], uint32(len(entry.Data)))
	if _, err := w.writer.Write(header[:]); err != nil {
		return err
	}

	if _, err := w.writer.Write(entry.Data); err != nil {
		return err
	}

	var trailer [12]byte
	binary.BigEndian.PutUint32(trailer[0:4], entry.Checksum)
	binary.BigEndian.PutUint64(trailer[4:12], uint64(entry.Timestamp))
	_, err := w.writer.Write(trailer[:])
	return err
}

// readAll reads every intact entry. A torn or corrupt tail (a crash in the
// middle of an append) ends recovery rather than failing it.
func (w *CompressedWAL) readAll() ([]*Entry, int64, int, error) {
	file, err := os.Open(filepath.Join(w.dataDir, walFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, 0, nil
		}
		return nil, 0, 0, err
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	entries := make([]*Entry, 0)
	var goodOffset int64
	torn := 0

	for {
		entry, size, err := readEntry(reader)
		if err == io.EOF {
			break
		}
		if err != nil {
			torn++
			break
		}
		entries = append(entries, entry)
		goodOffset += size
	}

	return entries, goodOffset, torn, nil
}

func readEntry(reader *bufio.Reader) (*Entry, int64, error) {
	var header [13]byte
	if _, err := io.ReadFull(reader, header[:]); err != nil {
		if err == io.EOF {
			return nil, 0, io.EOF
		}
		return nil, 0, fmt.Errorf("short header: %w", err)
	}

	entry := &Entry{
		LSN:    binary.BigEndian.Uint64(header[0:8]),
		OpType: OpType(header[8]),
	}

	compressed := make([]byte, binary.BigEndian.Uint32(header[9:13]))
	if _, err := io.ReadFull(reader, compressed); err != nil {
		return nil, 0, fmt.Errorf("short payload at LSN %d: %w", entry.LSN, err)
	}

	var trailer [12]byte
	if _, err := io.ReadFull(reader, trailer[:]); err != nil {
		return nil, 0, fmt.Errorf("short trailer at LSN %d: %w", entry.LSN, err)
	}
	entry.Checksum = binary.BigEndian.Uint32(trailer[0:4])
	entry.Timestamp = int64(binary.BigEndian.Uint64(trailer[4:12]))

	if crc32.ChecksumIEEE(compressed) != entry.Checksum {
		return nil, 0, fmt.Errorf("checksum mismatch for entry %d", entry.LSN)
	}

	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decompress WAL entry %d: %w", entry.LSN, err)
	}
	entry.Data = data

	return entry, int64(len(header) + len(compressed) + len(trailer)), nil
}

// Replay iterates through all journal entries and calls the handler for each.
func (w *CompressedWAL) Replay(handler func(*Entry) error) error {
	w.mu.Lock()
	if w.file == nil {
		w.mu.Unlock()
		return errors.New("WAL is closed")
	}
	if err := w.writer.Flush(); err != nil {
		w.mu.Unlock()
		return err
	}
	entries, _, _, err := w.readAll()
	w.mu.Unlock()
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := handler(entry); err != nil {
			return err
		}
	}

	return nil
}

// Truncate discards every entry, typically after a checkpoint.
func (w *CompressedWAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return errors.New("WAL is closed")
	}
	w.writer.Flush()
	w.file.Close()

	walPath := filepath.Join(w.dataDir, walFileName)
	if err := os.Remove(walPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	file, err := os.OpenFile(walPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	w.file = file
	w.writer = bufio.NewWriter(file)
	w.currentLSN = 0

	return nil
}

// Close flushes and closes the journal
func (w *CompressedWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// recoverLSN restores the LSN counter and cuts off a torn tail so that new
// appends land directly after the last intact entry.
func (w *CompressedWAL) recoverLSN() error {
	entries, goodOffset, torn, err := w.readAll()
	if err != nil {
		return err
	}

	w.tornTail = torn
	if torn > 0 {
		if err := w.file.Truncate(goodOffset); err != nil {
			return fmt.Errorf("failed to truncate torn WAL tail: %w", err)
		}
	}

	if len(entries) > 0 {
		w.currentLSN = entries[len(entries)-1].LSN
	}

	return nil
}

// GetStatistics returns compression statistics
func (w *CompressedWAL) GetStatistics() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	ratio := 0.0
	if w.bytesUncompressed > 0 {
		ratio = 1.0 - (float64(w.bytesCompressed) / float64(w.bytesUncompressed))
	}

	return Stats{
		TotalWrites:       w.totalWrites,
		BytesUncompressed: w.bytesUncompressed,
		BytesCompressed:   w.bytesCompressed,
		CompressionRatio:  ratio,
		TornTailEntries:   w.tornTail,
	}
}

// GetCurrentLSN returns the current LSN
func (w *CompressedWAL) GetCurrentLSN() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentLSN
}
