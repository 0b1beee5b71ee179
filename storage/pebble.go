package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

var _ Backend = (*PebbleBackend)(nil)

// PebbleBackend keeps every blob as one key in a pebble database. Writes are synced.
type PebbleBackend struct {
	db *pebble.DB
}

type PebbleOption func(*pebble.Options)

// WithInMemoryFS keeps the database in memory, for tests.
func WithInMemoryFS() PebbleOption {
	return func(o *pebble.Options) {
		o.FS = vfs.NewMem()
	}
}

func NewPebbleBackend(dir string, opts ...PebbleOption) (*PebbleBackend, error) {
	o := &pebble.Options{}
	for _, opt := range opts {
		opt(o)
	}

	db, err := pebble.Open(dir, o)
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", dir, err)
	}

	return &PebbleBackend{db: db}, nil
}

func (p *PebbleBackend) Load(name string) ([]byte, error) {
	value, closer, err := p.db.Get([]byte(name))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("pebble get %s: %w", name, err)
	}
	defer func() { _ = closer.Close() }()

	// value is only valid until closer is closed
	out := make([]byte, len(value))
	copy(out, value)

	return out, nil
}

func (p *PebbleBackend) Save(name string, data []byte) error {
	if err := p.db.Set([]byte(name), data, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set %s: %w", name, err)
	}
	return nil
}

func (p *PebbleBackend) Close() error {
	return p.db.Close()
}
