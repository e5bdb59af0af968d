package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Default histogram buckets for latency metrics (in seconds).
var defaultBuckets = []float64{
	.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

type promRecorder struct {
	commands         *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	eventsAppended   *prometheus.CounterVec
	versionConflicts *prometheus.CounterVec
	aggregateLoads   *prometheus.CounterVec
	snapshotSaves    *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
}

// NewPrometheus registers the bank write-side collectors on reg.
func NewPrometheus(reg prometheus.Registerer) Recorder {
	m := &promRecorder{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bank_commands_total",
			Help: "Total number of handled commands",
		}, []string{"command", "result"}),

		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bank_command_duration_seconds",
			Help:    "Command handling latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"command"}),

		eventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bank_events_appended_total",
			Help: "Total number of events appended to the event log",
		}, []string{"aggregate_type"}),

		versionConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bank_version_conflicts_total",
			Help: "Total number of optimistic concurrency failures",
		}, []string{"aggregate_type"}),

		aggregateLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bank_aggregate_loads_total",
			Help: "Total number of aggregate loads by starting point",
		}, []string{"aggregate_type", "source"}),

		snapshotSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bank_snapshot_saves_total",
			Help: "Total number of snapshot save attempts",
		}, []string{"aggregate_type", "success"}),

		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bank_events_published_total",
			Help: "Total number of event publication attempts",
		}, []string{"event_type", "success"}),
	}

	reg.MustRegister(
		m.commands,
		m.commandDuration,
		m.eventsAppended,
		m.versionConflicts,
		m.aggregateLoads,
		m.snapshotSaves,
		m.eventsPublished,
	)

	return m
}

func (m *promRecorder) CommandHandled(command, result string, duration time.Duration) {
	m.commands.WithLabelValues(command, result).Inc()
	m.commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func (m *promRecorder) EventsAppended(aggregateType string, count int) {
	m.eventsAppended.WithLabelValues(aggregateType).Add(float64(count))
}

func (m *promRecorder) VersionConflict(aggregateType string) {
	m.versionConflicts.WithLabelValues(aggregateType).Inc()
}

func (m *promRecorder) AggregateLoaded(aggregateType, source string) {
	m.aggregateLoads.WithLabelValues(aggregateType, source).Inc()
}

func (m *promRecorder) SnapshotSaved(aggregateType string, success bool) {
	m.snapshotSaves.WithLabelValues(aggregateType, strconv.FormatBool(success)).Inc()
}

func (m *promRecorder) EventPublished(eventType string, success bool) {
	m.eventsPublished.WithLabelValues(eventType, strconv.FormatBool(success)).Inc()
}
