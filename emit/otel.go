package emit

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OtelEmitter turns each Message into a span, ported from
// graph/emit/otel.go: span name is the task type, attributes carry
// pid/tid/nid/state, status is set to error on StateError.
type OtelEmitter struct {
	tracer trace.Tracer
}

// NewOtelEmitter returns an OtelEmitter using tracer.
func NewOtelEmitter(tracer trace.Tracer) *OtelEmitter {
	return &OtelEmitter{tracer: tracer}
}

func (o *OtelEmitter) Emit(msg Message) {
	_, span := o.tracer.Start(context.Background(), string(msg.Type))
	defer span.End()
	span.SetAttributes(
		attribute.String("pid", msg.Pid),
		attribute.String("tid", msg.Tid),
		attribute.String("nid", msg.Nid),
		attribute.String("state", string(msg.State)),
	)
	if msg.State == StateError {
		span.SetStatus(codes.Error, msg.Name)
	}
}

func (o *OtelEmitter) EmitBatch(msgs []Message) {
	for _, m := range msgs {
		o.Emit(m)
	}
}

func (o *OtelEmitter) Flush() error { return nil }
