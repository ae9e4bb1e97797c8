package docstore

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/themajix/docstore-client"

// TelemetryHandler is the outermost pipeline handler. It opens one span per
// logical operation; retries issued by handlers placed after it stay inside
// the span and show up as the attempt count attribute, not as extra spans.
type TelemetryHandler struct {
	tracer trace.Tracer
	logger Logger
}

// NewTelemetryHandler builds a telemetry handler. A nil provider selects the
// global one; a nil logger disables log output.
func NewTelemetryHandler(provider trace.TracerProvider, logger Logger) *TelemetryHandler {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}

	return &TelemetryHandler{
		tracer: provider.Tracer(instrumentationName),
		logger: logger,
	}
}

// Process implements Handler.
func (h *TelemetryHandler) Process(ctx context.Context, req *OperationRequest, next Next) (*ResponseMessage, error) {
	ctx, span := h.tracer.Start(ctx, string(req.Verb)+" "+string(req.ResourceKind),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.operation", string(req.Verb)),
			attribute.String("db.resource.kind", string(req.ResourceKind)),
			attribute.String("db.resource.address", req.ResourceAddress),
			attribute.String("db.activity_id", req.ActivityID()),
		))
	defer span.End()

	resp, err := next(ctx, req)

	if retryCtx := req.retry; retryCtx != nil {
		span.SetAttributes(attribute.Int("db.attempts", retryCtx.Attempts))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if h.logger != nil {
			h.logger.Error("operation failed", map[string]interface{}{
				"verb":        string(req.Verb),
				"address":     req.ResourceAddress,
				"activity_id": req.ActivityID(),
				"error":       err.Error(),
			})
		}

		return nil, err
	}

	span.SetAttributes(
		attribute.Int("db.status_code", resp.StatusCode),
		attribute.Float64("db.request_charge", resp.RequestCharge()),
	)

	if !resp.IsSuccess() {
		span.SetStatus(codes.Error, "service error")
	}

	if h.logger != nil {
		h.logger.Debug("operation complete", map[string]interface{}{
			"verb":        string(req.Verb),
			"address":     req.ResourceAddress,
			"status_code": resp.StatusCode,
			"attempts":    resp.Attempts,
			"activity_id": req.ActivityID(),
		})
	}

	return resp, nil
}
