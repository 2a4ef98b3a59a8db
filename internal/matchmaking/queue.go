package matchmaking

import (
	cryptorand "crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"chess-arena/internal/game"
	"chess-arena/internal/obslog"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const processingInterval = 2 * time.Second

var (
	ErrInvalidTimeCategory = errors.New("invalid time category")
	ErrAlreadyQueued       = errors.New("player is already waiting for a match")
)

// Entry is one player waiting for an opponent
type Entry struct {
	PlayerID    string           `json:"playerId"`
	DisplayName string           `json:"displayName"`
	Rating      int              `json:"rating"`
	TimeControl game.TimeControl `json:"timeControl"`
	JoinedAt    time.Time        `json:"joinedAt"`
}

// Match pairs two entries with assigned colors
type Match struct {
	GameID      string           `json:"gameId"`
	TimeControl game.TimeControl `json:"timeControl"`
	White       Entry            `json:"white"`
	Black       Entry            `json:"black"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// Seat returns the entry and color of playerID in the match
func (m Match) Seat(playerID string) (Entry, game.Color, bool) {
	switch playerID {
	case m.White.PlayerID:
		return m.White, game.White, true
	case m.Black.PlayerID:
		return m.Black, game.Black, true
	}
	return Entry{}, game.White, false
}

// MatchNotifier is called for matches created by the background loop
type MatchNotifier func(Match)

// RatingThreshold is the largest rating gap accepted after waiting for wait
func RatingThreshold(wait time.Duration) int {
	switch {
	case wait < 30*time.Second:
		return 100
	case wait < 60*time.Second:
		return 150
	case wait < 120*time.Second:
		return 200
	default:
		return 300
	}
}

// Queue keeps one FIFO list per time category. Pairing is first-fit in queue
// order, not closest rating.
type Queue struct {
	mu            sync.Mutex
	queues        map[game.TimeCategory][]Entry
	now           func() time.Time
	interval      time.Duration
	matchNotifier MatchNotifier
	logger        *zap.Logger
	ticker        *time.Ticker
	stopCh        chan struct{}
	stopOnce      sync.Once
}

func NewQueue(logger *zap.Logger) *Queue {
	if logger == nil {
		logger = obslog.L()
	}
	q := &Queue{
		queues:   make(map[game.TimeCategory][]Entry),
		now:      time.Now,
		interval: processingInterval,
		logger:   logger.Named("matchmaking"),
		stopCh:   make(chan struct{}),
	}
	return q
}

// SetMatchNotifier registers a callback invoked when the background loop creates a match.
func (q *Queue) SetMatchNotifier(fn MatchNotifier) {
	q.matchNotifier = fn
}

// SetInterval overrides the background loop period. Call before Start.
func (q *Queue) SetInterval(d time.Duration) {
	if d > 0 {
		q.interval = d
	}
}

// SetNow replaces the time source used for wait times
func (q *Queue) SetNow(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

// Start begins the background matching loop
func (q *Queue) Start() {
	q.ticker = time.NewTicker(q.interval)
	go q.processLoop()
	q.logger.Info("matchmaking_started", zap.Duration("interval", q.interval))
}

// Stop halts the background matching loop
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		if q.ticker != nil {
			q.ticker.Stop()
		}
		close(q.stopCh)
		q.logger.Info("matchmaking_stopped")
	})
}

func (q *Queue) processLoop() {
	for {
		select {
		case <-q.ticker.C:
			q.ProcessMatches()
		case <-q.stopCh:
			return
		}
	}
}

// EnqueueOrMatch pairs entry with the first compatible waiting entry, or appends
// it to its category's queue. A nil match means the player is now waiting.
func (q *Queue) EnqueueOrMatch(entry Entry) (*Match, error) {
	tc := entry.TimeControl
	if err := tc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTimeCategory, err)
	}

	q.mu.Lock()
	now := q.now()
	if _, ok := q.findLocked(entry.PlayerID); ok {
		q.mu.Unlock()
		return nil, ErrAlreadyQueued
	}
	entry.JoinedAt = now

	waiting := q.queues[tc.Category]
	for i, candidate := range waiting {
		if !compatible(candidate, entry, now.Sub(candidate.JoinedAt)) {
			continue
		}
		q.queues[tc.Category] = append(waiting[:i:i], waiting[i+1:]...)
		q.mu.Unlock()

		match := q.createMatch(candidate, entry, now)
		return &match, nil
	}

	q.queues[tc.Category] = append(waiting, entry)
	q.mu.Unlock()

	q.logger.Debug("queue_joined",
		zap.String("player_id", entry.PlayerID),
		zap.String("category", string(tc.Category)),
		zap.Int("rating", entry.Rating))
	return nil, nil
}

// Cancel removes playerID from whichever queue holds it
func (q *Queue) Cancel(playerID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for cat, waiting := range q.queues {
		for i, e := range waiting {
			if e.PlayerID == playerID {
				q.queues[cat] = append(waiting[:i:i], waiting[i+1:]...)
				return true
			}
		}
	}
	return false
}

// IsWaiting reports whether playerID has a queue entry
func (q *Queue) IsWaiting(playerID string) bool {
	_, ok := q.Entry(playerID)
	return ok
}

// Entry returns playerID's waiting entry
func (q *Queue) Entry(playerID string) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.findLocked(playerID)
}

// Sizes returns the number of waiting entries per category
func (q *Queue) Sizes() map[game.TimeCategory]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	sizes := make(map[game.TimeCategory]int, len(game.AllTimeCategories))
	for _, cat := range game.AllTimeCategories {
		sizes[cat] = len(q.queues[cat])
	}
	return sizes
}

// ProcessMatches re-scans every queue so pairs whose threshold has widened
// while both waited are matched. The longer of the two waits counts.
func (q *Queue) ProcessMatches() []Match {
	q.mu.Lock()
	now := q.now()
	type pair struct{ first, second Entry }
	var pairs []pair
	for _, cat := range game.AllTimeCategories {
		waiting := q.queues[cat]
		matched := make([]bool, len(waiting))
		for i := range waiting {
			if matched[i] {
				continue
			}
			for j := i + 1; j < len(waiting); j++ {
				if matched[j] {
					continue
				}
				// waiting[i] joined first, so its wait is the longer one
				if compatible(waiting[i], waiting[j], now.Sub(waiting[i].JoinedAt)) {
					matched[i], matched[j] = true, true
					pairs = append(pairs, pair{waiting[i], waiting[j]})
					break
				}
			}
		}
		remaining := waiting[:0:0]
		for i, e := range waiting {
			if !matched[i] {
				remaining = append(remaining, e)
			}
		}
		q.queues[cat] = remaining
	}
	q.mu.Unlock()

	matches := make([]Match, 0, len(pairs))
	for _, p := range pairs {
		m := q.createMatch(p.first, p.second, now)
		matches = append(matches, m)
		if q.matchNotifier != nil {
			q.matchNotifier(m)
		}
	}
	return matches
}

func (q *Queue) findLocked(playerID string) (Entry, bool) {
	for _, waiting := range q.queues {
		for _, e := range waiting {
			if e.PlayerID == playerID {
				return e, true
			}
		}
	}
	return Entry{}, false
}

func compatible(a, b Entry, wait time.Duration) bool {
	if a.PlayerID == b.PlayerID || a.TimeControl != b.TimeControl {
		return false
	}
	diff := a.Rating - b.Rating
	if diff < 0 {
		diff = -diff
	}
	return diff <= RatingThreshold(wait)
}

func (q *Queue) createMatch(waiting, arriving Entry, now time.Time) Match {
	white, black := assignColors(waiting, arriving)
	m := Match{
		GameID:      uuid.NewString(),
		TimeControl: waiting.TimeControl,
		White:       white,
		Black:       black,
		CreatedAt:   now,
	}
	q.logger.Info("match_created",
		zap.String("game_id", m.GameID),
		zap.String("white", white.PlayerID),
		zap.Int("white_rating", white.Rating),
		zap.String("black", black.PlayerID),
		zap.Int("black_rating", black.Rating),
		zap.Duration("waited", now.Sub(waiting.JoinedAt)))
	return m
}

// assignColors flips a fair coin using crypto/rand
func assignColors(a, b Entry) (white, black Entry) {
	n, err := cryptorand.Int(cryptorand.Reader, big.NewInt(2))
	if err != nil || n.Int64() == 0 {
		return a, b
	}
	return b, a
}
