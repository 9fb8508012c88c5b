package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voteflow/voteflow"
	"github.com/voteflow/voteflow/ext"
	"github.com/voteflow/voteflow/job"
	"github.com/voteflow/voteflow/vote"
)

// meterName is the instrumentation scope name for voteflow metrics.
const meterName = "github.com/voteflow/voteflow"

// Compile-time interface checks.
var (
	_ ext.Extension      = (*MetricsExtension)(nil)
	_ ext.JobEnqueued    = (*MetricsExtension)(nil)
	_ ext.JobCompleted   = (*MetricsExtension)(nil)
	_ ext.JobRejected    = (*MetricsExtension)(nil)
	_ ext.JobRetrying    = (*MetricsExtension)(nil)
	_ ext.JobFailed      = (*MetricsExtension)(nil)
	_ ext.VoteCommitted  = (*MetricsExtension)(nil)
	_ ext.SweepCompleted = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics via OpenTelemetry.
// Register it as a pipeline extension to automatically track enqueue rates,
// completion counts, rejection counts by reason, retry counts, terminal
// failures, committed votes, and janitor sweeps.
type MetricsExtension struct {
	jobEnqueued   metric.Int64Counter
	jobCompleted  metric.Int64Counter
	jobRejected   metric.Int64Counter
	jobRetried    metric.Int64Counter
	jobFailed     metric.Int64Counter
	voteCommitted metric.Int64Counter
	votePoints    metric.Int64Counter
	sweepRemoved  metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider. If none is configured, the instruments are noops.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. This variant allows injecting a specific MeterProvider for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}

	// On instrument-creation error the OTel API returns noop instruments,
	// so the extension degrades gracefully.
	m.jobEnqueued, _ = meter.Int64Counter("voteflow.job.enqueued",
		metric.WithDescription("Jobs enqueued"),
		metric.WithUnit("{job}"))
	m.jobCompleted, _ = meter.Int64Counter("voteflow.job.completed",
		metric.WithDescription("Jobs completed successfully"),
		metric.WithUnit("{job}"))
	m.jobRejected, _ = meter.Int64Counter("voteflow.job.rejected",
		metric.WithDescription("Jobs rejected by business validation"),
		metric.WithUnit("{job}"))
	m.jobRetried, _ = meter.Int64Counter("voteflow.job.retried",
		metric.WithDescription("Job retry attempts scheduled"),
		metric.WithUnit("{job}"))
	m.jobFailed, _ = meter.Int64Counter("voteflow.job.failed",
		metric.WithDescription("Jobs failed terminally"),
		metric.WithUnit("{job}"))
	m.voteCommitted, _ = meter.Int64Counter("voteflow.vote.committed",
		metric.WithDescription("Votes durably committed"),
		metric.WithUnit("{vote}"))
	m.votePoints, _ = meter.Int64Counter("voteflow.vote.points",
		metric.WithDescription("Points spent by committed votes"),
		metric.WithUnit("{point}"))
	m.sweepRemoved, _ = meter.Int64Counter("voteflow.sweep.removed",
		metric.WithDescription("Rows removed by janitor sweeps"),
		metric.WithUnit("{row}"))

	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	m.jobEnqueued.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.jobCompleted.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobRejected implements ext.JobRejected. The rejection reason is
// attached as an attribute so dashboards can break rejections down by
// cause (closed poll, insufficient points, duplicate, ...).
func (m *MetricsExtension) OnJobRejected(ctx context.Context, j *job.Job, err error) error {
	reason := "unknown"
	if r, ok := voteflow.AsRejection(err); ok {
		reason = string(r.Reason)
	}
	m.jobRejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_name", j.Name),
		attribute.String("queue", j.Queue),
		attribute.String("reason", reason),
	))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ int, _ time.Time) error {
	m.jobRetried.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.jobFailed.Add(ctx, 1, jobAttrs(j))
	return nil
}

// ── Vote lifecycle hooks ────────────────────────────

// OnVoteCommitted implements ext.VoteCommitted.
func (m *MetricsExtension) OnVoteCommitted(ctx context.Context, v *vote.Vote) error {
	attrs := metric.WithAttributes(
		attribute.String("poll_id", v.PollID.String()),
		attribute.String("participant_kind", string(v.Participant.Kind)),
	)
	m.voteCommitted.Add(ctx, 1, attrs)
	m.votePoints.Add(ctx, int64(v.Points), attrs)
	return nil
}

// ── Janitor lifecycle hooks ─────────────────────────

// OnSweepCompleted implements ext.SweepCompleted.
func (m *MetricsExtension) OnSweepCompleted(ctx context.Context, task string, removed int64) error {
	m.sweepRemoved.Add(ctx, removed, metric.WithAttributes(
		attribute.String("task", task),
	))
	return nil
}

func jobAttrs(j *job.Job) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("job_name", j.Name),
		attribute.String("queue", j.Queue),
	)
}
