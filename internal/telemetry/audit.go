package telemetry

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/trace"

	"casechat-sync/internal/observability"
)

// AuditEmitter publishes lifecycle events of the sync engine (connects,
// reconnects, room joins, send failures) to the event bus.
type AuditEmitter struct {
	routingKey  string
	service     string
	environment string
}

// AuditEnvelope is the bus schema for sync-engine audit events.
type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	CaseID        *int64       `json:"case_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

// AuditPayload carries the human-readable part of an audit event.
type AuditPayload struct {
	Level string `json:"level"`
	Event string `json:"event"`
	Text  string `json:"text"`
}

// NewAuditEmitter builds an emitter bound to one routing key.
func NewAuditEmitter(routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit publishes one audit event. Failures are logged, never propagated:
// auditing must not disturb the sync path.
func (e *AuditEmitter) Emit(ctx context.Context, level, event, text string, caseID *int64) {
	if e == nil {
		return
	}

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "sync_audit",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		CaseID:        caseID,
		Payload: AuditPayload{
			Level: level,
			Event: event,
			Text:  text,
		},
	}

	traceID := ""
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}

	if err := observability.PublishEvent(ctx, e.routingKey, envelope, observability.BuildHeaders("", traceID)); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}
