package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/voteflow/voteflow"
	"github.com/voteflow/voteflow/job"
)

// tracerName is the instrumentation scope for voteflow tracing.
const tracerName = "github.com/voteflow/voteflow"

// Tracing wraps each execution in an OTel span via the global
// TracerProvider. With no provider configured the noop tracer makes this
// a pass-through.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer is Tracing with an injected tracer.
//
// The span carries the job id, name, queue, dedup key, and attempt count.
// A rejection ends the span Ok with a voteflow.rejected attribute; only
// transient faults mark the span as errored.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "voteflow.job.execute",
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				attribute.String("voteflow.job.id", j.ID.String()),
				attribute.String("voteflow.job.name", j.Name),
				attribute.String("voteflow.queue", j.Queue),
				attribute.String("voteflow.job.key", j.Key),
				attribute.Int("voteflow.attempts", j.Attempts),
			),
		)
		defer span.End()

		err := next(ctx)
		switch {
		case err == nil:
			span.SetStatus(codes.Ok, "")
		case voteflow.IsRejection(err):
			span.SetAttributes(attribute.Bool("voteflow.rejected", true))
			span.SetStatus(codes.Ok, "")
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
}
