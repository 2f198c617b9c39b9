// Package window holds the in-memory conversation turns that travel with
// every generation request.
//
// The window is a FIFO over turns with a token ceiling. Token counts are
// estimated from character length, not tokenized: the ceiling guards an
// order of magnitude, not an exact model limit. When an insert pushes the
// estimate over the ceiling, the oldest turns are evicted until the total
// falls to the hysteresis target (90% of the ceiling by default), so a
// window hovering at the boundary does not evict on every single turn.
package window

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTokenCeiling is the default window budget in tokens.
	DefaultTokenCeiling = 8000

	// DefaultHysteresisRatio is the post-eviction fill target.
	DefaultHysteresisRatio = 0.9

	// DefaultCharsPerToken is the character-to-token estimate divisor.
	DefaultCharsPerToken = 4

	// DefaultMessageOverheadTokens covers role and framing tokens per turn.
	DefaultMessageOverheadTokens = 4
)

// Turn is one conversation message held in the window.
type Turn struct {
	ID        string
	Role      string
	Content   string
	Tokens    int
	CreatedAt time.Time
}

// Config holds configuration for the window.
type Config struct {
	// TokenCeiling is the window budget. Inserts beyond it trigger
	// eviction.
	TokenCeiling int

	// HysteresisRatio is the fraction of the ceiling eviction drains to.
	HysteresisRatio float64

	// CharsPerToken is the estimate divisor.
	CharsPerToken int

	// MessageOverheadTokens is added to every turn's estimate.
	MessageOverheadTokens int
}

// Window is a token-budgeted FIFO of conversation turns. Safe for
// concurrent use.
type Window struct {
	config Config

	mu     sync.Mutex
	turns  []Turn
	tokens int
}

// New creates a window, filling unset config fields with defaults.
func New(cfg Config) *Window {
	if cfg.TokenCeiling <= 0 {
		cfg.TokenCeiling = DefaultTokenCeiling
	}
	if cfg.HysteresisRatio <= 0 || cfg.HysteresisRatio > 1 {
		cfg.HysteresisRatio = DefaultHysteresisRatio
	}
	if cfg.CharsPerToken <= 0 {
		cfg.CharsPerToken = DefaultCharsPerToken
	}
	if cfg.MessageOverheadTokens < 0 {
		cfg.MessageOverheadTokens = DefaultMessageOverheadTokens
	}
	return &Window{config: cfg}
}

// EstimateTokens approximates the token cost of content under this
// window's configuration.
func (w *Window) EstimateTokens(content string) int {
	return len(content)/w.config.CharsPerToken + w.config.MessageOverheadTokens
}

// AddTurn appends a turn and evicts from the front if the budget is
// exceeded. Evicted turns are returned oldest first. The newest turn is
// never evicted, even when it alone exceeds the ceiling.
func (w *Window) AddTurn(role, content string) (Turn, []Turn) {
	turn := Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Tokens:    w.EstimateTokens(content),
		CreatedAt: time.Now(),
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.turns = append(w.turns, turn)
	w.tokens += turn.Tokens

	if w.tokens <= w.config.TokenCeiling {
		return turn, nil
	}

	target := int(float64(w.config.TokenCeiling) * w.config.HysteresisRatio)
	var evicted []Turn
	for w.tokens > target && len(w.turns) > 1 {
		head := w.turns[0]
		w.turns = w.turns[1:]
		w.tokens -= head.Tokens
		evicted = append(evicted, head)
	}
	return turn, evicted
}

// Turns returns a copy of the window contents, oldest first.
func (w *Window) Turns() []Turn {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Turn, len(w.turns))
	copy(out, w.turns)
	return out
}

// RecentTurns returns the newest turns whose estimated tokens fit within
// maxTokens, walking newest to oldest and returning them oldest first.
// The newest turn is always included, even when it alone exceeds the
// budget, so a request is never assembled empty. A non-positive budget
// returns the whole window.
func (w *Window) RecentTurns(maxTokens int) []Turn {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.turns) == 0 {
		return nil
	}

	start := 0
	if maxTokens > 0 {
		total := 0
		start = len(w.turns)
		for i := len(w.turns) - 1; i >= 0; i-- {
			if total+w.turns[i].Tokens > maxTokens && start < len(w.turns) {
				break
			}
			total += w.turns[i].Tokens
			start = i
		}
	}

	out := make([]Turn, len(w.turns)-start)
	copy(out, w.turns[start:])
	return out
}

// TokenCount reports the current estimated token total.
func (w *Window) TokenCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tokens
}

// Len reports the number of turns held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.turns)
}

// Clear empties the window and returns everything it held, oldest first.
func (w *Window) Clear() []Turn {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.turns
	w.turns = nil
	w.tokens = 0
	return out
}
