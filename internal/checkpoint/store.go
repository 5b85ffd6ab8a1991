// Package checkpoint persists per-file decoder recovery state to disk so a
// long-running decode session can resume after a crash instead of
// rescanning a video from the first frame.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
)

var ErrNotFound = errors.New("checkpoint: entry not found")

var bucketDecoders = []byte("decoders")

// Snapshot is the state needed to resume a decoder: which packet ids it
// has already consumed (so duplicates are still rejected on resume), the
// chunks it has already peeled, and enough of its metadata to verify a
// checksum once the file completes. RecoveredIndices/RecoveredChunks are
// parallel slices rather than a map so the value round-trips through JSON
// without key-ordering noise.
type Snapshot struct {
	FileID           string    `json:"file_id"`
	ChunksCount      uint32    `json:"chunks_count"`
	ChunkSize        int       `json:"chunk_size"`
	Recovered        uint32    `json:"recovered"`
	SeenPacketIDs    []uint32  `json:"seen_packet_ids"`
	RecoveredIndices []uint32  `json:"recovered_indices"`
	RecoveredChunks  [][]byte  `json:"recovered_chunks"`
	HasMetadata      bool      `json:"has_metadata"`
	FileSize         uint64    `json:"file_size"`
	ChecksumHex      string    `json:"checksum_hex"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Store wraps a BoltDB file holding one snapshot per file_id.
type Store struct {
	db *bolt.DB
}

// Open creates or opens a checkpoint store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(filepath.Clean(path), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketDecoders)
		return e
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Save writes (or overwrites) a snapshot for one file.
func (s *Store) Save(snap Snapshot) error {
	snap.UpdatedAt = snap.UpdatedAt.UTC()
	buf, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketDecoders)
		if bk == nil {
			return bolt.ErrBucketNotFound
		}
		return bk.Put([]byte(snap.FileID), buf)
	})
}

// Load retrieves the snapshot for fileID, or ErrNotFound.
func (s *Store) Load(fileID string) (Snapshot, error) {
	var snap Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketDecoders)
		if bk == nil {
			return ErrNotFound
		}
		v := bk.Get([]byte(fileID))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &snap)
	})
	return snap, err
}

// All returns every stored snapshot, for a resume pass that reattaches
// every previously-seen file before new frames start arriving.
func (s *Store) All() ([]Snapshot, error) {
	var out []Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketDecoders)
		if bk == nil {
			return nil
		}
		return bk.ForEach(func(k, v []byte) error {
			var snap Snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return err
			}
			out = append(out, snap)
			return nil
		})
	})
	return out, err
}

// Delete removes a completed file's checkpoint; callers call this once a
// decoder reaches done so the store doesn't grow unbounded across runs.
func (s *Store) Delete(fileID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketDecoders)
		if bk == nil {
			return bolt.ErrBucketNotFound
		}
		return bk.Delete([]byte(fileID))
	})
}

// Ping is a cheap liveness probe for health checks: it opens a read
// transaction and returns whatever error BoltDB surfaces.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error { return nil })
}
