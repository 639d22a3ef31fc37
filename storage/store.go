/*
	Package storage persists projects between sessions: a local badger
	key-value store for project containers and metadata, bucket access
	for loading and exporting over blob storage, and an optional Kafka
	activity log.
*/
package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/blang/semver"
	"github.com/dgraph-io/badger/v3"

	"github.com/celllabel/celled/celled"
)

// storeVersion is the on-disk format version.  Opening a store written by
// a different major version fails rather than corrupting it.
var storeVersion = semver.MustParse("1.0.0")

const (
	versionKey = "format"
	metaPrefix = "p:meta:"
	blobPrefix = "p:blob:"
)

// ProjectMeta describes one stored project.
type ProjectMeta struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Kind     string    `json:"kind"` // "zstack" or "track"
	Tracking bool      `json:"tracking"`
	Frames   int       `json:"frames"`
	Height   int       `json:"height"`
	Width    int       `json:"width"`
	Features int       `json:"features"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
}

// Store keeps project containers and metadata in a badger database.
type Store struct {
	db   *badger.DB
	path string
}

// Open opens or creates a store at path, verifying format compatibility.
func Open(path string) (*Store, error) {
	t := celled.NewTimeLog()
	opts := badger.DefaultOptions(path)
	opts.Logger = badgerLogger{}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening project store at %s: %v", path, err)
	}
	s := &Store{db: db, path: path}
	if err := s.checkVersion(); err != nil {
		db.Close()
		return nil, err
	}
	t.Infof("opened project store at %s", path)
	return s, nil
}

func (s *Store) checkVersion() error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(versionKey))
		if err == badger.ErrKeyNotFound {
			return txn.Set([]byte(versionKey), []byte(storeVersion.String()))
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			onDisk, err := semver.Parse(string(val))
			if err != nil {
				return fmt.Errorf("bad store version %q: %v", val, err)
			}
			if onDisk.Major != storeVersion.Major {
				return fmt.Errorf("store at %s has format %s, incompatible with %s",
					s.path, onDisk, storeVersion)
			}
			return nil
		})
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveProject writes a project container and its metadata.  The blob is
// compressed and checksummed before it hits disk.
func (s *Store) SaveProject(meta ProjectMeta, blob []byte) error {
	if meta.ID == "" {
		return fmt.Errorf("project has no id")
	}
	meta.Updated = time.Now()
	if meta.Created.IsZero() {
		meta.Created = meta.Updated
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	framed, err := celled.SerializeData(blob, celled.Snappy, celled.CRC32)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(metaPrefix+meta.ID), metaJSON); err != nil {
			return err
		}
		return txn.Set([]byte(blobPrefix+meta.ID), framed)
	})
}

// LoadProject reads a project container and its metadata by id.
func (s *Store) LoadProject(id string) (ProjectMeta, []byte, error) {
	var meta ProjectMeta
	var blob []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaPrefix + id))
		if err != nil {
			return fmt.Errorf("no project %q: %v", id, err)
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		}); err != nil {
			return err
		}
		item, err = txn.Get([]byte(blobPrefix + id))
		if err != nil {
			return fmt.Errorf("project %q has no stored data: %v", id, err)
		}
		return item.Value(func(val []byte) error {
			blob, err = celled.DeserializeData(val)
			return err
		})
	})
	return meta, blob, err
}

// DeleteProject removes a project and its metadata.
func (s *Store) DeleteProject(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(metaPrefix + id)); err != nil {
			return err
		}
		return txn.Delete([]byte(blobPrefix + id))
	})
}

// ListProjects returns metadata for every stored project.
func (s *Store) ListProjects() ([]ProjectMeta, error) {
	var out []ProjectMeta
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(metaPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var meta ProjectMeta
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			}); err != nil {
				return err
			}
			out = append(out, meta)
		}
		return nil
	})
	return out, err
}

// badgerLogger routes badger's logging through ours.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{})   { celled.Errorf(format, args...) }
func (badgerLogger) Warningf(format string, args ...interface{}) { celled.Warningf(format, args...) }
func (badgerLogger) Infof(format string, args ...interface{})    { celled.Debugf(format, args...) }
func (badgerLogger) Debugf(format string, args ...interface{})   { celled.Debugf(format, args...) }
