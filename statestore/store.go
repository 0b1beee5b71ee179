package statestore

import (
	"errors"
	"fmt"

	"github.com/hugolhafner/go-tasks/logger"
	"github.com/hugolhafner/go-tasks/serde"
	"github.com/hugolhafner/go-tasks/storage"
)

// Store owns the processing state of one task instance.
//
// The state value is handed to the task by reference and mutated in place, so the
// store cannot observe changes. Callers mark it modified after every process or
// window call. A nil state means the task is stateless and nothing is persisted.
type Store struct {
	backend storage.Backend
	name    string
	codec   serde.Codec
	logger  logger.Logger

	state    any
	modified bool
}

type Option func(*Store)

// WithCodec overrides the codec picked from the state type.
func WithCodec(c serde.Codec) Option {
	return func(s *Store) {
		s.codec = c
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Open loads the blob stored under name into initial, which must be a pointer (or a
// proto.Message). When nothing was committed yet initial is kept as is.
func Open(backend storage.Backend, name string, initial any, opts ...Option) (*Store, error) {
	s := &Store{
		backend: backend,
		name:    name,
		codec:   serde.For(initial),
		logger:  logger.NewNoopLogger(),
		state:   initial,
	}

	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "state-store", "store", name)

	if initial == nil {
		return s, nil
	}

	data, err := backend.Load(name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s, nil
		}
		return nil, fmt.Errorf("load state %s: %w", name, err)
	}

	if err := s.codec.Unmarshal(data, s.state); err != nil {
		return nil, fmt.Errorf("decode state %s with %s: %w", name, s.codec.Name(), err)
	}

	s.logger.Debug("Loaded state", "bytes", len(data))

	return s, nil
}

func (s *Store) State() any {
	return s.state
}

func (s *Store) MarkModified() {
	if s.state != nil {
		s.modified = true
	}
}

func (s *Store) IsModified() bool {
	return s.modified
}

// Commit serializes and persists the state, clearing the modified flag on success.
func (s *Store) Commit() error {
	if s.state == nil {
		s.modified = false
		return nil
	}

	data, err := s.codec.Marshal(s.state)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", s.name, err)
	}

	if err := s.backend.Save(s.name, data); err != nil {
		return fmt.Errorf("commit state %s: %w", s.name, err)
	}

	s.modified = false
	s.logger.Debug("Committed state", "bytes", len(data))

	return nil
}
