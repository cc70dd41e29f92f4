package token

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// Sink receives every credential the store publishes. Sinks are
// best-effort: a failing sink is logged and never blocks the store.
type Sink interface {
	Publish(ctx context.Context, cred Credential) error
}

// Store holds the most recently extracted credential. Writes replace
// the whole value atomically, so readers never observe a partial pair.
// Reads never block.
type Store struct {
	cred   atomic.Pointer[Credential]
	sinks  []Sink
	logger *zap.Logger
}

// NewStore creates an empty store. Optional sinks are notified on every
// publish, in order.
func NewStore(logger *zap.Logger, sinks ...Sink) *Store {
	return &Store{
		sinks:  sinks,
		logger: logger.Named("store"),
	}
}

// Get returns the last published credential, or false if no extraction
// has ever succeeded.
func (s *Store) Get() (Credential, bool) {
	cred := s.cred.Load()
	if cred == nil {
		return Credential{}, false
	}
	return *cred, true
}

// Publish replaces the stored credential and forwards it to the sinks.
func (s *Store) Publish(ctx context.Context, cred Credential) {
	s.cred.Store(&cred)
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, cred); err != nil {
			s.logger.Warn("credential sink publish failed", zap.Error(err))
		}
	}
}
