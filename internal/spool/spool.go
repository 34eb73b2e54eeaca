// Package spool is a durable, bounded FIFO of unsent publishes backed by bbolt.
// It is only used when at-least-once delivery is enabled; by default failed
// publishes are dropped.
package spool

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"go.etcd.io/bbolt"
)

const pendingBucket = "pending"

// DefaultCapacity bounds the spool when no capacity is configured.
const DefaultCapacity = 1000

// Entry is a spooled publish.
type Entry struct {
	Seq     uint64 `json:"-"`
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
}

// Spool stores messages while the broker is unreachable.
// Oldest entries are dropped once capacity is reached.
type Spool struct {
	db       *bbolt.DB
	capacity int
	overflow bool // true if any entry was dropped since the spool was last empty
}

// Open opens or creates the spool database at path.
func Open(path string, capacity int) (*Spool, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open spool: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(pendingBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create spool bucket: %w", err)
	}

	return &Spool{db: db, capacity: capacity}, nil
}

// Push appends a message, evicting the oldest entries beyond capacity.
func (s *Spool) Push(topic string, payload []byte) error {
	value, err := json.Marshal(Entry{Topic: topic, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	dropped := 0
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(pendingBucket))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if err := b.Put(seqKey(seq), value); err != nil {
			return err
		}

		c := b.Cursor()
		for n := countKeys(b); n > s.capacity; n-- {
			k, _ := c.First()
			if k == nil {
				break
			}
			if err := c.Delete(); err != nil {
				return err
			}
			dropped++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("push entry: %w", err)
	}

	if dropped > 0 && !s.overflow {
		log.Printf("spool: full (%d messages), dropping oldest", s.capacity)
		s.overflow = true
	}
	return nil
}

// Peek returns up to n entries, oldest first, without removing them.
func (s *Spool) Peek(n int) ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(pendingBucket)).Cursor()
		for k, v := c.First(); k != nil && len(entries) < n; k, v = c.Next() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("unmarshal entry %d: %w", binary.BigEndian.Uint64(k), err)
			}
			e.Seq = binary.BigEndian.Uint64(k)
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

// Remove deletes the entry with the given sequence number.
func (s *Spool) Remove(seq uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(pendingBucket))
		if err := b.Delete(seqKey(seq)); err != nil {
			return err
		}
		if k, _ := b.Cursor().First(); k == nil {
			s.overflow = false
		}
		return nil
	})
}

// Len returns the number of spooled entries.
func (s *Spool) Len() (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = countKeys(tx.Bucket([]byte(pendingBucket)))
		return nil
	})
	return n, err
}

// Close closes the database.
func (s *Spool) Close() error {
	if s.db == nil {
		return errors.New("spool: not open")
	}
	return s.db.Close()
}

// countKeys walks the bucket with a cursor so uncommitted writes are included.
func countKeys(b *bbolt.Bucket) int {
	n := 0
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
