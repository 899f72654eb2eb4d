// Package badger stores the audit log in an embedded Badger database, for
// single-node deployments without PostgreSQL.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/vietddude/minter/internal/core/domain"
	"github.com/vietddude/minter/internal/infra/storage"
)

const auditPrefix = "AUDIT:"

// Config holds the Badger options exposed in the configuration file.
type Config struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// AuditLog keeps events under AUDIT:<network>:<seq>, seq being a big-endian
// uint64 so that key order is append order.
type AuditLog struct {
	db     *badger.DB
	prefix []byte

	mu   sync.Mutex
	next uint64
}

// Open opens (or creates) the database and positions the sequence after the
// last stored event of the network.
func Open(cfg Config, network domain.Network) (*AuditLog, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	l := &AuditLog{db: db, prefix: []byte(fmt.Sprintf("%s%s:", auditPrefix, network.Code()))}
	last, found, err := l.lastSeq()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if found {
		l.next = last + 1
	}
	return l, nil
}

func (l *AuditLog) key(seq uint64) []byte {
	k := make([]byte, len(l.prefix)+8)
	copy(k, l.prefix)
	binary.BigEndian.PutUint64(k[len(l.prefix):], seq)
	return k
}

func (l *AuditLog) lastSeq() (uint64, bool, error) {
	var (
		seq   uint64
		found bool
	)
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks to the largest key <= the seek key.
		seek := append(append([]byte{}, l.prefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		it.Seek(seek)
		if !it.ValidForPrefix(l.prefix) {
			return nil
		}
		key := it.Item().Key()
		if len(key) != len(l.prefix)+8 {
			return fmt.Errorf("unexpected audit key %q", key)
		}
		seq = binary.BigEndian.Uint64(key[len(l.prefix):])
		found = true
		return nil
	})
	return seq, found, err
}

// Append writes the batch in one transaction.
func (l *AuditLog) Append(ctx context.Context, events []domain.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.db.Update(func(txn *badger.Txn) error {
		for i, e := range events {
			b, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("failed to encode audit event %d: %w", i, err)
			}
			if err := txn.Set(l.key(l.next+uint64(i)), b); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrDBClosed) {
		return storage.ErrClosed
	}
	if err != nil {
		return fmt.Errorf("failed to commit %d audit events: %w", len(events), err)
	}
	l.next += uint64(len(events))
	return nil
}

// Load returns the network's events in append order.
func (l *AuditLog) Load(ctx context.Context) ([]domain.AuditEvent, error) {
	var events []domain.AuditEvent
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 100
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(l.prefix); it.ValidForPrefix(l.prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var e domain.AuditEvent
			if err := json.Unmarshal(val, &e); err != nil {
				return fmt.Errorf("failed to decode audit event %q: %w", it.Item().Key(), err)
			}
			events = append(events, e)
		}
		return nil
	})
	if errors.Is(err, badger.ErrDBClosed) {
		return nil, storage.ErrClosed
	}
	return events, err
}

func (l *AuditLog) Count(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int(l.next), nil
}

func (l *AuditLog) Close() error {
	return l.db.Close()
}

var _ storage.AuditLog = (*AuditLog)(nil)
