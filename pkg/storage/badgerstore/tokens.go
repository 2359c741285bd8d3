package badgerstore

import (
	"github.com/dgraph-io/badger/v4"
)

// LoadTokens returns the persisted relationship type table.
func (s *Store) LoadTokens() (map[string]int, error) {
	out := make(map[string]int)
	err := s.withView(func(txn *badger.Txn) error {
		prefix := []byte{prefixToken}
		it := txn.NewIterator(badgerIterOptsPrefetchValues(prefix))
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			name := string(item.Key()[1:])
			if err := item.Value(func(val []byte) error {
				out[name] = int(decodeUint64(val))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// SaveToken persists one allocated token.
func (s *Store) SaveToken(name string, id int) error {
	return s.withUpdate(func(txn *badger.Txn) error {
		return txn.Set(tokenKey(name), encodeUint64(uint64(id)))
	})
}
