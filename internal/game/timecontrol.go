package game

import (
	"fmt"
	"time"
)

// TimeCategory groups time controls for matchmaking; each category has its own queue
type TimeCategory string

const (
	Bullet    TimeCategory = "bullet"
	Blitz     TimeCategory = "blitz"
	Rapid     TimeCategory = "rapid"
	Classical TimeCategory = "classical"
)

// TimeControl defines a time control configuration
type TimeControl struct {
	Category    TimeCategory `json:"category" bson:"category"`
	BaseTimeMs  int64        `json:"baseTimeMs" bson:"baseTimeMs"`   // Base time in milliseconds
	IncrementMs int64        `json:"incrementMs" bson:"incrementMs"` // Increment per move in milliseconds
}

// TimeControlConfigs maps categories to their default configurations
var TimeControlConfigs = map[TimeCategory]TimeControl{
	Bullet:    {Category: Bullet, BaseTimeMs: 1 * 60 * 1000, IncrementMs: 0},          // 1 min
	Blitz:     {Category: Blitz, BaseTimeMs: 3 * 60 * 1000, IncrementMs: 2 * 1000},     // 3 min + 2s
	Rapid:     {Category: Rapid, BaseTimeMs: 10 * 60 * 1000, IncrementMs: 5 * 1000},    // 10 min + 5s
	Classical: {Category: Classical, BaseTimeMs: 30 * 60 * 1000, IncrementMs: 0},       // 30 min
}

// AllTimeCategories lists categories in queue order
var AllTimeCategories = []TimeCategory{Bullet, Blitz, Rapid, Classical}

// MaxTimeMs bounds both the base time and the increment
const MaxTimeMs int64 = 24 * 60 * 60 * 1000

// DefaultTimeControl is used when a room is created without one
var DefaultTimeControl = TimeControlConfigs[Rapid]

// IsValidTimeCategory checks if a category string is valid
func IsValidTimeCategory(category string) bool {
	_, ok := TimeControlConfigs[TimeCategory(category)]
	return ok
}

// GetTimeControl returns the default TimeControl for a category
func GetTimeControl(category TimeCategory) (TimeControl, bool) {
	tc, ok := TimeControlConfigs[category]
	return tc, ok
}

// Validate rejects unknown categories and times outside 0..MaxTimeMs
func (tc TimeControl) Validate() error {
	if !IsValidTimeCategory(string(tc.Category)) {
		return fmt.Errorf("unknown time category %q", tc.Category)
	}
	if tc.BaseTimeMs < 0 || tc.IncrementMs < 0 {
		return fmt.Errorf("time control %s has negative time", tc)
	}
	if tc.BaseTimeMs > MaxTimeMs || tc.IncrementMs > MaxTimeMs {
		return fmt.Errorf("time control %s exceeds %dh", tc, MaxTimeMs/3600000)
	}
	return nil
}

// IsUnlimited returns true if the time control has no time limit
func (tc TimeControl) IsUnlimited() bool {
	return tc.BaseTimeMs == 0
}

// Base returns the starting time per side
func (tc TimeControl) Base() time.Duration {
	return time.Duration(tc.BaseTimeMs) * time.Millisecond
}

// Increment returns the time added after each move
func (tc TimeControl) Increment() time.Duration {
	return time.Duration(tc.IncrementMs) * time.Millisecond
}

func (tc TimeControl) String() string {
	return fmt.Sprintf("%s %d+%d", tc.Category, tc.BaseTimeMs/60000, tc.IncrementMs/1000)
}

// DisplayName returns a human-readable name for the category
func (c TimeCategory) DisplayName() string {
	switch c {
	case Bullet:
		return "Bullet (1+0)"
	case Blitz:
		return "Blitz (3+2)"
	case Rapid:
		return "Rapid (10+5)"
	case Classical:
		return "Classical (30+0)"
	default:
		return string(c)
	}
}
