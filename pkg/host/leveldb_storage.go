package host

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDBStorage backs Storage with an on-disk goleveldb instance, for
// callers (the CLI) that want persistence across process runs. Declared in
// the teacher's go.mod as a direct dependency; this is the one component
// spec.md explicitly treats as backed by a real store rather than the
// core's own in-memory, non-persistent model (spec.md's Non-goals exclude
// "cross-restart persistence of in-memory MMU state", never host storage).
type LevelDBStorage struct {
	db *leveldb.DB
}

// OpenLevelDBStorage opens (creating if absent) a goleveldb database at path.
func OpenLevelDBStorage(path string) (*LevelDBStorage, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
	}
	return &LevelDBStorage{db: db}, nil
}

func (s *LevelDBStorage) Get(key string) ([]byte, bool) {
	v, err := s.db.Get([]byte(key), nil)
	if err != nil {
		return nil, false
	}
	return v, true
}

func (s *LevelDBStorage) Set(key string, value []byte) {
	_ = s.db.Put([]byte(key), value, nil)
}

func (s *LevelDBStorage) Close() error {
	return s.db.Close()
}
