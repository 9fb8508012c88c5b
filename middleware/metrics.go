package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voteflow/voteflow"
	"github.com/voteflow/voteflow/job"
)

// meterName is the instrumentation scope for voteflow metrics.
const meterName = "github.com/voteflow/voteflow"

// Metrics records execution counts and durations through the global OTel
// MeterProvider. Without a configured provider the instruments are noops.
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter is Metrics with an injected meter, for tests or
// multi-provider setups.
//
// Instruments:
//
//	voteflow.job.duration    histogram, seconds
//	voteflow.job.executions  counter
//
// both tagged with job_name, queue, and status (ok | rejected | error).
// Rejections get their own status so protocol outcomes stay out of
// error-rate alerts.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Instrument creation errors fall back to noops per the OTel API
	// contract, so they are safe to ignore here.
	duration, _ := meter.Float64Histogram(
		"voteflow.job.duration",
		metric.WithDescription("Job execution time"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"voteflow.job.executions",
		metric.WithDescription("Job executions by outcome"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		err := next(ctx)

		var status string
		switch {
		case err == nil:
			status = "ok"
		case voteflow.IsRejection(err):
			status = "rejected"
		default:
			status = "error"
		}
		attrs := metric.WithAttributes(
			attribute.String("job_name", j.Name),
			attribute.String("queue", j.Queue),
			attribute.String("status", status),
		)
		duration.Record(ctx, time.Since(start).Seconds(), attrs)
		executions.Add(ctx, 1, attrs)
		return err
	}
}
