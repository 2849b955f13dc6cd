package postgres

import (
	"context"

	"go.uber.org/zap"
)

// Store is the Mirror Store: the relational projection of rounds,
// inscriptions and stake tiers. The chain is always authoritative over it;
// every write is an upsert keyed by a natural identifier so overlapping
// invocations only ever do redundant work.
type Store struct {
	*Client
}

// NewStore connects to PostgreSQL and ensures the mirror tables exist.
func NewStore(ctx context.Context, logger *zap.Logger, url string) (*Store, error) {
	client, err := New(ctx, logger.With(zap.String("component", "mirror-store")), url)
	if err != nil {
		return nil, err
	}

	store := &Store{Client: client}
	if err := store.InitializeDB(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return store, nil
}

// InitializeDB ensures the required tables exist.
func (s *Store) InitializeDB(ctx context.Context) error {
	s.Logger.Info("initializing mirror store")

	if err := s.initRounds(ctx); err != nil {
		return err
	}
	if err := s.initInscriptions(ctx); err != nil {
		return err
	}
	if err := s.initStakes(ctx); err != nil {
		return err
	}

	return nil
}
