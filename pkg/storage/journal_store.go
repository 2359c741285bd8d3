package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dd0wney/cluso-graphcore/pkg/logging"
	"github.com/dd0wney/cluso-graphcore/pkg/wal"
)

// JournalStore is a MemoryStore whose commits are journaled to a snappy
// compressed write-ahead log and replayed on open. It also persists the
// relationship type token table.
type JournalStore struct {
	*MemoryStore

	journal wal.WriteAheadLog
	logger  logging.Logger

	tokensMu sync.RWMutex
	tokens   map[string]int
}

type tokenRecord struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

// OpenJournalStore opens or creates the journal in dataDir and replays it.
func OpenJournalStore(dataDir string, syncWrites bool, logger logging.Logger) (*JournalStore, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	journal, err := wal.NewCompressedWAL(dataDir, syncWrites)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	s := &JournalStore{
		MemoryStore: NewMemoryStore(),
		journal:     journal,
		logger:      logger.With(logging.Component("journal_store")),
		tokens:      make(map[string]int),
	}
	if err := s.replay(dataDir); err != nil {
		journal.Close()
		return nil, err
	}
	return s, nil
}

func (s *JournalStore) replay(dataDir string) error {
	timer := logging.StartTimer(s.logger, "journal replay", logging.Path(dataDir))
	commits, tokens := 0, 0

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.journal.Replay(func(entry *wal.Entry) error {
		switch entry.OpType {
		case wal.OpCommit:
			var cs ChangeSet
			if err := json.Unmarshal(entry.Data, &cs); err != nil {
				return fmt.Errorf("failed to decode commit at LSN %d: %w", entry.LSN, err)
			}
			s.applyLocked(&cs)
			commits++
		case wal.OpTokenCreate:
			var rec tokenRecord
			if err := json.Unmarshal(entry.Data, &rec); err != nil {
				return fmt.Errorf("failed to decode token at LSN %d: %w", entry.LSN, err)
			}
			s.tokens[rec.Name] = rec.ID
			tokens++
		default:
			s.logger.Warn("skipping unknown journal entry",
				logging.Uint64("lsn", entry.LSN),
				logging.Int("op", int(entry.OpType)))
		}
		return nil
	})
	if err != nil {
		timer.EndError(err)
		return fmt.Errorf("failed to replay journal: %w", err)
	}
	timer.End()
	s.logger.Info("journal replayed",
		logging.Int("commits", commits),
		logging.Int("tokens", tokens))
	return nil
}

// AppendCommittedChanges journals the change set before applying it.
func (s *JournalStore) AppendCommittedChanges(ctx context.Context, changes *ChangeSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("failed to encode change set: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.journal.Append(wal.OpCommit, data); err != nil {
		return fmt.Errorf("failed to journal commit: %w", err)
	}
	s.applyLocked(changes)
	return nil
}

// LoadTokens returns the persisted token table.
func (s *JournalStore) LoadTokens() (map[string]int, error) {
	s.tokensMu.RLock()
	defer s.tokensMu.RUnlock()
	out := make(map[string]int, len(s.tokens))
	for k, v := range s.tokens {
		out[k] = v
	}
	return out, nil
}

// SaveToken journals a newly allocated token.
func (s *JournalStore) SaveToken(name string, id int) error {
	data, err := json.Marshal(tokenRecord{Name: name, ID: id})
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	s.tokensMu.Lock()
	defer s.tokensMu.Unlock()
	if _, err := s.journal.Append(wal.OpTokenCreate, data); err != nil {
		return fmt.Errorf("failed to journal token: %w", err)
	}
	s.tokens[name] = id
	return nil
}

// Close closes the journal. Closing twice is a no-op.
func (s *JournalStore) Close() error {
	if err := s.MemoryStore.Close(); err != nil {
		return err
	}
	return s.journal.Close()
}
