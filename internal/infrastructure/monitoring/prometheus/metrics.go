package prometheus

import (
	"strconv"
	"time"

	"github.com/turtacn/famsim/pkg/errors"
)

// DefaultStageDurationBuckets spans sub-second toy runs up to hour-long
// sweeps over a full similarity space.
var DefaultStageDurationBuckets = []float64{.01, .1, .5, 1, 5, 10, 30, 60, 300, 900, 3600}

// PipelineMetrics holds every metric the analysis pipeline records.
type PipelineMetrics struct {
	StageDuration    HistogramVec
	StageRunsTotal   CounterVec
	GroupsTotal      CounterVec
	PairsTotal       CounterVec
	RowsWrittenTotal CounterVec
	ErrorsTotal      CounterVec
	SpaceEntities    GaugeVec
	SpacePairs       GaugeVec
	LastSuccess      GaugeVec
}

// NewPipelineMetrics registers the pipeline metrics on collector.
func NewPipelineMetrics(collector MetricsCollector) *PipelineMetrics {
	return &PipelineMetrics{
		StageDuration:    collector.RegisterHistogram("stage_duration_seconds", "Wall time per pipeline stage and depth.", nil, "stage", "depth"),
		StageRunsTotal:   collector.RegisterCounter("stage_runs_total", "Completed pipeline stage executions.", "stage", "status"),
		GroupsTotal:      collector.RegisterCounter("groups_total", "Groups processed per stage and group kind.", "stage", "kind"),
		PairsTotal:       collector.RegisterCounter("aggregated_pairs_total", "Intra-group similarity values aggregated.", "kind"),
		RowsWrittenTotal: collector.RegisterCounter("rows_written_total", "Rows written to output tables.", "table"),
		ErrorsTotal:      collector.RegisterCounter("errors_total", "Pipeline failures by error code.", "stage", "code"),
		SpaceEntities:    collector.RegisterGauge("similarity_space_entities", "Entities in the loaded similarity space."),
		SpacePairs:       collector.RegisterGauge("similarity_space_pairs", "Stored pairs in the loaded similarity space."),
		LastSuccess:      collector.RegisterGauge("last_success_timestamp_seconds", "Unix time of the last successful run."),
	}
}

// ObserveStage records one stage execution at depth (-1 for stages that are
// not per-depth) together with its outcome.
func (m *PipelineMetrics) ObserveStage(stage string, depth int, d time.Duration, err error) {
	label := "all"
	if depth >= 0 {
		label = strconv.Itoa(depth)
	}
	m.StageDuration.WithLabelValues(stage, label).Observe(d.Seconds())
	if err != nil {
		m.StageRunsTotal.WithLabelValues(stage, "error").Inc()
		m.ErrorsTotal.WithLabelValues(stage, errors.GetCode(err).String()).Inc()
		return
	}
	m.StageRunsTotal.WithLabelValues(stage, "ok").Inc()
}

// ObserveSpace records the size of the loaded similarity space.
func (m *PipelineMetrics) ObserveSpace(entities, pairs int) {
	m.SpaceEntities.WithLabelValues().Set(float64(entities))
	m.SpacePairs.WithLabelValues().Set(float64(pairs))
}

// MarkSuccess stamps the last successful run time.
func (m *PipelineMetrics) MarkSuccess(t time.Time) {
	m.LastSuccess.WithLabelValues().Set(float64(t.Unix()))
}
