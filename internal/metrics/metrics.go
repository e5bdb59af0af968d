// Package metrics defines what the write side reports about itself.
package metrics

import "time"

// Recorder receives command-side measurements.
type Recorder interface {
	// CommandHandled records one command with result "ok" or an error category.
	CommandHandled(command, result string, duration time.Duration)
	EventsAppended(aggregateType string, count int)
	VersionConflict(aggregateType string)
	// AggregateLoaded records whether a load started from a snapshot or a full replay.
	AggregateLoaded(aggregateType, source string)
	SnapshotSaved(aggregateType string, success bool)
	EventPublished(eventType string, success bool)
}

const (
	SourceSnapshot = "snapshot"
	SourceReplay   = "replay"
)

type nopRecorder struct{}

// Nop returns a Recorder that discards everything.
func Nop() Recorder { return nopRecorder{} }

func (nopRecorder) CommandHandled(string, string, time.Duration) {}
func (nopRecorder) EventsAppended(string, int)                   {}
func (nopRecorder) VersionConflict(string)                       {}
func (nopRecorder) AggregateLoaded(string, string)               {}
func (nopRecorder) SnapshotSaved(string, bool)                   {}
func (nopRecorder) EventPublished(string, bool)                  {}
