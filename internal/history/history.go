// Package history keeps a local log of detected obstacles and of feedback
// dictated by the user.
package history

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	log "log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"odin/internal/assist"
)

var (
	prefix         = []byte("obstacle/")
	feedbackPrefix = []byte("feedback/")
)

// Record is one announced obstacle.
type Record struct {
	ID        string          `msgpack:"id" json:"id"`
	Label     string          `msgpack:"label" json:"label"`
	Distance  float64         `msgpack:"distance" json:"distance"`
	Direction string          `msgpack:"direction" json:"direction"`
	Severity  assist.Severity `msgpack:"severity" json:"severity"`
	At        time.Time       `msgpack:"at" json:"at"`
}

// Feedback is one submitted feedback form.
type Feedback struct {
	ID           string    `msgpack:"id" json:"id"`
	Text         string    `msgpack:"text" json:"text"`
	Satisfaction int       `msgpack:"satisfaction" json:"satisfaction"`
	At           time.Time `msgpack:"at" json:"at"`
}

type Options struct {
	// Dir holds the badger files. Ignored when InMemory is set.
	Dir      string
	InMemory bool
	// TTL expires records after the given age. Zero keeps them forever.
	TTL time.Duration
}

type Store struct {
	db  *badger.DB
	ttl time.Duration
	now func() time.Time
}

func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("history: Dir is required for on-disk mode")
	}

	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	return &Store{db: db, ttl: opts.TTL, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func key(p []byte, at time.Time, id uuid.UUID) []byte {
	k := make([]byte, 0, len(p)+8+16)
	k = append(k, p...)
	k = binary.BigEndian.AppendUint64(k, uint64(at.UnixNano()))
	return append(k, id[:]...)
}

// Add stores o and returns its record.
func (s *Store) Add(_ context.Context, o assist.Obstacle) (Record, error) {
	id := uuid.New()
	rec := Record{
		ID:        id.String(),
		Label:     o.Label,
		Distance:  o.Distance,
		Direction: o.Direction,
		Severity:  o.Severity,
		At:        s.now(),
	}

	if err := s.put(key(prefix, rec.At, id), &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// AddFeedback stores a submitted feedback form. Feedback does not expire.
func (s *Store) AddFeedback(_ context.Context, text string, satisfaction int) (Feedback, error) {
	id := uuid.New()
	fb := Feedback{
		ID:           id.String(),
		Text:         text,
		Satisfaction: satisfaction,
		At:           s.now(),
	}

	data, err := msgpack.Marshal(&fb)
	if err != nil {
		return Feedback{}, fmt.Errorf("encode feedback: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(feedbackPrefix, fb.At, id), data)
	})
	if err != nil {
		return Feedback{}, fmt.Errorf("store feedback: %w", err)
	}

	return fb, nil
}

func (s *Store) put(k []byte, rec *Record) error {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(k, data)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("store record: %w", err)
	}
	return nil
}

// Recent returns up to n obstacle records, newest first. n <= 0 means all.
func (s *Store) Recent(_ context.Context, n int) ([]Record, error) {
	return recent[Record](s.db, prefix, n)
}

// RecentFeedback returns up to n feedback forms, newest first.
func (s *Store) RecentFeedback(_ context.Context, n int) ([]Feedback, error) {
	return recent[Feedback](s.db, feedbackPrefix, n)
}

// Count reports how many obstacle records are stored.
func (s *Store) Count(_ context.Context) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

func recent[T any](db *badger.DB, p []byte, n int) ([]T, error) {
	var out []T

	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = p
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks from just past the last possible key.
		seek := append(append([]byte(nil), p...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(p) && (n <= 0 || len(out) < n); it.Next() {
			var v T
			err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &v)
			})
			if err != nil {
				log.Warn("Skipping unreadable history entry", "prefix", string(p), "err", err)
				continue
			}
			out = append(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	return out, nil
}

type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...interface{})   { log.Error(fmt.Sprintf("badger: "+f, v...)) }
func (badgerLogger) Warningf(f string, v ...interface{}) { log.Warn(fmt.Sprintf("badger: "+f, v...)) }
func (badgerLogger) Infof(string, ...interface{})        {}
func (badgerLogger) Debugf(string, ...interface{})       {}
