package offsetstore

import (
	"errors"
	"fmt"
	"maps"

	"github.com/hugolhafner/go-tasks/logger"
	"github.com/hugolhafner/go-tasks/serde"
	"github.com/hugolhafner/go-tasks/storage"
)

// Start is returned by Get for topics with no known offset. It resolves to the
// earliest retained offset when a reader starts.
const Start int64 = -2

// Store tracks the next offset to read for each source topic of one task instance.
//
// Positions advanced with Set are pending until ApplyNewOffsets makes them commit
// eligible. Non-windowed runtimes apply after every message, windowed runtimes only
// when the window fires. Store is not safe for concurrent use; it is owned by a
// single runtime loop.
type Store struct {
	backend storage.Backend
	name    string
	codec   serde.Codec
	logger  logger.Logger

	current  map[string]int64
	eligible map[string]int64
	modified bool
}

type persisted struct {
	Offsets map[string]int64 `json:"offsets"`
}

// Open loads the offsets stored under name, or starts empty when nothing was committed yet.
func Open(backend storage.Backend, name string, l logger.Logger) (*Store, error) {
	if l == nil {
		l = logger.NewNoopLogger()
	}

	s := &Store{
		backend:  backend,
		name:     name,
		codec:    serde.JSON(),
		logger:   l.With("component", "offset-store", "store", name),
		current:  make(map[string]int64),
		eligible: make(map[string]int64),
	}

	data, err := backend.Load(name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s, nil
		}
		return nil, fmt.Errorf("load offsets %s: %w", name, err)
	}

	var p persisted
	if err := s.codec.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode offsets %s: %w", name, err)
	}

	for topic, offset := range p.Offsets {
		s.current[topic] = offset
		s.eligible[topic] = offset
	}

	s.logger.Debug("Loaded offsets", "offsets", p.Offsets)

	return s, nil
}

// Get returns the in-memory offset for topic, or Start if none is known.
func (s *Store) Get(topic string) int64 {
	if offset, ok := s.current[topic]; ok {
		return offset
	}
	return Start
}

// Set advances topic to position. It refuses to move backwards and reports whether
// the store changed.
func (s *Store) Set(topic string, position int64) bool {
	if current, ok := s.current[topic]; ok && position < current {
		return false
	}

	s.current[topic] = position
	return true
}

// ForceSet overwrites the offset for topic regardless of ordering. The new value is
// commit eligible immediately.
func (s *Store) ForceSet(topic string, position int64) {
	s.logger.Warn("Force setting offset", "topic", topic, "from", s.Get(topic), "to", position)

	s.current[topic] = position
	s.eligible[topic] = position
	s.modified = true
}

// ApplyNewOffsets makes every pending position commit eligible.
func (s *Store) ApplyNewOffsets() {
	for topic, offset := range s.current {
		if prev, ok := s.eligible[topic]; ok && prev == offset {
			continue
		}
		s.eligible[topic] = offset
		s.modified = true
	}
}

func (s *Store) IsModified() bool {
	return s.modified
}

// Committable returns the offsets the next Commit would persist.
func (s *Store) Committable() map[string]int64 {
	return maps.Clone(s.eligible)
}

// Commit persists all commit eligible offsets in one write. The modified flag is only
// cleared when the write succeeded.
func (s *Store) Commit() error {
	data, err := s.codec.Marshal(persisted{Offsets: s.eligible})
	if err != nil {
		return fmt.Errorf("encode offsets: %w", err)
	}

	if err := s.backend.Save(s.name, data); err != nil {
		return fmt.Errorf("commit offsets %s: %w", s.name, err)
	}

	s.modified = false
	s.logger.Debug("Committed offsets", "offsets", s.eligible)

	return nil
}
