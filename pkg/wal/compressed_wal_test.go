package wal

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestCompressedWAL_AppendReplay(t *testing.T) {
	dir := t.TempDir()

	w, err := NewCompressedWAL(dir, true)
	if err != nil {
		t.Fatalf("NewCompressedWAL failed: %v", err)
	}
	defer w.Close()

	payloads := [][]byte{
		[]byte(`{"created_nodes":[1,2,3]}`),
		bytes.Repeat([]byte("relationship"), 100),
		[]byte("x"),
	}
	for i, p := range payloads {
		lsn, err := w.Append(OpCommit, p)
		if err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
		if lsn != uint64(i+1) {
			t.Errorf("Append %d returned LSN %d, want %d", i, lsn, i+1)
		}
	}

	var replayed [][]byte
	err = w.Replay(func(e *Entry) error {
		if e.OpType != OpCommit {
			t.Errorf("entry %d has op %d, want OpCommit", e.LSN, e.OpType)
		}
		replayed = append(replayed, e.Data)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	if len(replayed) != len(payloads) {
		t.Fatalf("replayed %d entries, want %d", len(replayed), len(payloads))
	}
	for i := range payloads {
		if !bytes.Equal(replayed[i], payloads[i]) {
			t.Errorf("entry %d payload mismatch", i)
		}
	}
}

func TestCompressedWAL_ReopenRecoversLSN(t *testing.T) {
	dir := t.TempDir()

	w, err := NewCompressedWAL(dir, false)
	if err != nil {
		t.Fatalf("NewCompressedWAL failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := w.Append(OpCommit, []byte("entry")); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	w2, err := NewCompressedWAL(dir, false)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer w2.Close()

	if got := w2.GetCurrentLSN(); got != 5 {
		t.Errorf("recovered LSN = %d, want 5", got)
	}
	lsn, err := w2.Append(OpTokenCreate, []byte("KNOWS"))
	if err != nil {
		t.Fatalf("Append after reopen failed: %v", err)
	}
	if lsn != 6 {
		t.Errorf("next LSN = %d, want 6", lsn)
	}
}

func TestCompressedWAL_TornTail(t *testing.T) {
	dir := t.TempDir()

	w, err := NewCompressedWAL(dir, true)
	if err != nil {
		t.Fatalf("NewCompressedWAL failed: %v", err)
	}
	w.Append(OpCommit, []byte("first"))
	w.Append(OpCommit, []byte("second"))
	w.Close()

	// Simulate a crash halfway through a third append.
	f, err := os.OpenFile(filepath.Join(dir, walFileName), os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	f.Write([]byte{0, 0, 0, 0, 0, 0, 0, 3, byte(OpCommit), 0, 0})
	f.Close()

	w2, err := NewCompressedWAL(dir, true)
	if err != nil {
		t.Fatalf("reopen with torn tail failed: %v", err)
	}
	defer w2.Close()

	if got := w2.GetStatistics().TornTailEntries; got != 1 {
		t.Errorf("TornTailEntries = %d, want 1", got)
	}
	if _, err := w2.Append(OpCommit, []byte("third")); err != nil {
		t.Fatalf("Append after torn tail failed: %v", err)
	}

	var got []string
	w2.Replay(func(e *Entry) error {
		got = append(got, string(e.Data))
		return nil
	})
	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("replayed %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCompressedWAL_Truncate(t *testing.T) {
	dir := t.TempDir()

	w, err := NewCompressedWAL(dir, false)
	if err != nil {
		t.Fatalf("NewCompressedWAL failed: %v", err)
	}
	defer w.Close()

	w.Append(OpCommit, []byte("a"))
	w.Append(OpCommit, []byte("b"))

	if err := w.Truncate(); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}
	if w.GetCurrentLSN() != 0 {
		t.Errorf("LSN after truncate = %d, want 0", w.GetCurrentLSN())
	}

	count := 0
	w.Replay(func(*Entry) error { count++; return nil })
	if count != 0 {
		t.Errorf("replayed %d entries after truncate, want 0", count)
	}
}

func TestCompressedWAL_Statistics(t *testing.T) {
	w, err := NewCompressedWAL(t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewCompressedWAL failed: %v", err)
	}
	defer w.Close()

	w.Append(OpCommit, bytes.Repeat([]byte("a"), 4096))

	stats := w.GetStatistics()
	if stats.TotalWrites != 1 {
		t.Errorf("TotalWrites = %d, want 1", stats.TotalWrites)
	}
	if stats.BytesCompressed >= stats.BytesUncompressed {
		t.Errorf("expected compression, got %d >= %d", stats.BytesCompressed, stats.BytesUncompressed)
	}
}

func TestCompressedWAL_AppendAfterClose(t *testing.T) {
	w, err := NewCompressedWAL(t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewCompressedWAL failed: %v", err)
	}
	w.Close()

	if _, err := w.Append(OpCommit, []byte("late")); err == nil {
		t.Error("Append after Close should fail")
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}
