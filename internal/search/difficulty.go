package search

import (
	"fmt"
	"strings"
)

// Difficulty is the casual-play tier a bot match is created with.
type Difficulty string

const (
	DifficultyBasic        Difficulty = "basic"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
	DifficultyPro          Difficulty = "pro"
)

// Config is the resolved search configuration for one tier. MaxDepth 0
// bypasses search entirely and plays a uniformly random legal move.
type Config struct {
	MaxDepth  int
	Randomize bool
}

// ParseDifficulty normalizes and validates a tier name.
func ParseDifficulty(raw string) (Difficulty, error) {
	switch Difficulty(strings.ToLower(strings.TrimSpace(raw))) {
	case DifficultyBasic:
		return DifficultyBasic, nil
	case DifficultyIntermediate:
		return DifficultyIntermediate, nil
	case DifficultyAdvanced:
		return DifficultyAdvanced, nil
	case DifficultyPro:
		return DifficultyPro, nil
	}
	return "", fmt.Errorf("unknown difficulty %q", raw)
}

// Config maps a tier to its search depth. Depth stays shallow: this is a
// casual-play bot, not a competitive engine.
func (d Difficulty) Config() Config {
	switch d {
	case DifficultyIntermediate:
		return Config{MaxDepth: 1, Randomize: true}
	case DifficultyAdvanced:
		return Config{MaxDepth: 2, Randomize: true}
	case DifficultyPro:
		return Config{MaxDepth: 3, Randomize: true}
	default:
		return Config{MaxDepth: 0, Randomize: true}
	}
}
