// Package store persists RRDP session state across runs using
// go.etcd.io/bbolt, the same local-KV library the teacher uses for its
// cluster state — here reduced to a single bucket.
package store

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

var sessionsBucket = []byte("rrdp_sessions")

// Session is the persisted {session_id, serial, last_mod} triple named
// in spec §6. last_mod is carried opaque, round-tripped verbatim between
// the HTTP Last-Modified response header and the next If-Modified-Since
// request header — never parsed as a timestamp.
type Session struct {
	SessionID string `json:"session_id"`
	Serial    int64  `json:"serial"`
	LastMod   string `json:"last_mod"`
}

// Store wraps a bbolt database file holding one RRDP session record per
// repository URI.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the bbolt file at path and ensures
// the sessions bucket exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error { return s.db.Close() }

// Get returns the persisted session for repoURI, or ok=false if none
// has been recorded yet.
func (s *Store) Get(repoURI string) (Session, bool, error) {
	var sess Session
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		v := b.Get([]byte(repoURI))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &sess)
	})
	if err != nil {
		return Session{}, false, fmt.Errorf("store: get %s: %w", repoURI, err)
	}
	return sess, found, nil
}

// Put persists sess for repoURI, replacing any prior value.
func (s *Store) Put(repoURI string, sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("store: marshal session for %s: %w", repoURI, err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put([]byte(repoURI), data)
	})
	if err != nil {
		return fmt.Errorf("store: put %s: %w", repoURI, err)
	}
	return nil
}
