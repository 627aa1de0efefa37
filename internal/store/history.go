// Package store persists signature history across cases so that groups seen
// before can be told apart from novel ones.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/crimson-sun/dumpsift/internal/model"
)

const keyPrefix = "sig/"

// Config controls where history lives.
type Config struct {
	Path     string
	InMemory bool
	// MemTableSize overrides badger's memtable size, which also bounds how
	// much one transaction can write. 0 keeps badger's default.
	MemTableSize int64
	Logger       *slog.Logger
}

// Entry is the stored history of one fingerprint.
type Entry struct {
	Fingerprint model.Fingerprint `json:"fingerprint"`
	Template    string            `json:"template"`
	FirstSeen   time.Time         `json:"first_seen"`
	LastSeen    time.Time         `json:"last_seen"`
	Cases       int               `json:"cases"`
	LastCase    string            `json:"last_case"`
	Total       int               `json:"total"`
}

// History is a badger-backed fingerprint history.
type History struct {
	db *badger.DB
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens or creates the history database.
func Open(cfg Config) (*History, error) {
	var opts badger.Options
	switch {
	case cfg.InMemory:
		opts = badger.DefaultOptions("").WithInMemory(true)
	case cfg.Path == "":
		return nil, errors.New("history path is required")
	default:
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("creating history directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.MemTableSize > 0 {
		opts = opts.WithMemTableSize(cfg.MemTableSize).WithValueThreshold(1 << 10)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	return &History{db: db}, nil
}

// Close closes the database.
func (h *History) Close() error {
	return h.db.Close()
}

func key(fp model.Fingerprint) []byte {
	return []byte(keyPrefix + fp.String())
}

// Mark records groups as seen in caseID and returns copies with Recurring
// set for fingerprints recorded by an earlier case, plus the number of novel
// groups. Marking the same case twice does not make its groups recurring.
// Entries are read in one view and written through a write batch, which
// commits in as many transactions as the group table needs.
func (h *History) Mark(caseID string, seenAt time.Time, groups []model.SignatureGroup) ([]model.SignatureGroup, int, error) {
	out := make([]model.SignatureGroup, len(groups))
	copy(out, groups)
	entries := make([]Entry, len(out))
	found := make([]bool, len(out))

	err := h.db.View(func(txn *badger.Txn) error {
		for i := range out {
			ok, err := get(txn, out[i].Fingerprint, &entries[i])
			if err != nil {
				return err
			}
			found[i] = ok
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("marking history: %w", err)
	}

	wb := h.db.NewWriteBatch()
	defer wb.Cancel()
	novel := 0
	for i := range out {
		g, e := &out[i], &entries[i]
		switch {
		case !found[i]:
			*e = Entry{Fingerprint: g.Fingerprint, Template: g.Template, FirstSeen: seenAt, Cases: 1, LastCase: caseID}
			novel++
		case e.LastCase != caseID:
			e.Cases++
			e.LastCase = caseID
			g.Recurring = true
		default:
			g.Recurring = e.Cases > 1
		}
		e.LastSeen = seenAt
		e.Total += g.Count

		b, err := json.Marshal(e)
		if err != nil {
			return nil, 0, fmt.Errorf("marking history: %w", err)
		}
		if err := wb.Set(key(g.Fingerprint), b); err != nil {
			return nil, 0, fmt.Errorf("marking history: storing %s: %w", g.Fingerprint, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return nil, 0, fmt.Errorf("marking history: %w", err)
	}
	return out, novel, nil
}

// Lookup returns the stored entry for fp.
func (h *History) Lookup(fp model.Fingerprint) (Entry, bool, error) {
	var e Entry
	var found bool
	err := h.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = get(txn, fp, &e)
		return err
	})
	return e, found, err
}

// Len returns the number of stored fingerprints.
func (h *History) Len() (int, error) {
	n := 0
	err := h.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func get(txn *badger.Txn, fp model.Fingerprint, e *Entry) (bool, error) {
	item, err := txn.Get(key(fp))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", fp, err)
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, e)
	})
	if err != nil {
		return false, fmt.Errorf("decoding %s: %w", fp, err)
	}
	return true, nil
}
