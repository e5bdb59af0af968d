package snapshot

import (
	"errors"
	"fmt"
)

// DefaultInterval takes a snapshot after every third event.
const DefaultInterval = 3

var ErrInvalidInterval = errors.New("snapshot interval must be positive")

// Strategy decides whether a snapshot is taken once an aggregate has been
// persisted at the given version.
type Strategy interface {
	ShouldSnapshot(version int) bool
}

// StrategyFunc adapts a plain function to Strategy.
type StrategyFunc func(version int) bool

func (f StrategyFunc) ShouldSnapshot(version int) bool { return f(version) }

// Never disables snapshotting.
var Never Strategy = StrategyFunc(func(int) bool { return false })

// EventCount snapshots whenever the number of persisted events (version+1)
// is a multiple of Interval.
type EventCount struct {
	Interval int
}

func NewEventCount(interval int) (EventCount, error) {
	if interval <= 0 {
		return EventCount{}, fmt.Errorf("%w: got %d", ErrInvalidInterval, interval)
	}
	return EventCount{Interval: interval}, nil
}

func (s EventCount) ShouldSnapshot(version int) bool {
	if version < 0 || s.Interval <= 0 {
		return false
	}
	return (version+1)%s.Interval == 0
}
