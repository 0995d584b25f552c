package match

import (
	"context"
	"sync"

	"github.com/gambitlab/gamecore/internal/rating"
)

// DefaultRating seeds players the store has never seen.
const DefaultRating = 1200

// MemoryRatingStore is a development and test implementation of
// RatingStore. Both writes happen under one lock, mirroring the
// all-or-nothing contract of the database store.
type MemoryRatingStore struct {
	mu      sync.RWMutex
	ratings map[string]int
}

func NewMemoryRatingStore() *MemoryRatingStore {
	return &MemoryRatingStore{ratings: make(map[string]int)}
}

// Seed sets a player's rating directly.
func (s *MemoryRatingStore) Seed(playerID string, r int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratings[playerID] = r
}

func (s *MemoryRatingStore) Rating(playerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.ratings[playerID]; ok {
		return r
	}
	return DefaultRating
}

func (s *MemoryRatingStore) Ratings(_ context.Context, whiteID, blackID string) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	white, ok := s.ratings[whiteID]
	if !ok {
		white = DefaultRating
	}
	black, ok := s.ratings[blackID]
	if !ok {
		black = DefaultRating
	}
	return white, black, nil
}

func (s *MemoryRatingStore) ApplyBoth(_ context.Context, whiteID string, white rating.Change, blackID string, black rating.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratings[whiteID] = white.New
	s.ratings[blackID] = black.New
	return nil
}
