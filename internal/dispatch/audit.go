package dispatch

import (
	"context"
	"log/slog"
)

// AuditSink writes every event to the structured log, giving operators a
// durable trail of send outcomes even when no tenant webhook is configured.
type AuditSink struct {
	logger *slog.Logger
}

// NewAuditSink creates an audit sink logging at info level.
func NewAuditSink(logger *slog.Logger) *AuditSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditSink{logger: logger}
}

func (s *AuditSink) Name() string { return "audit" }

func (s *AuditSink) Handle(_ context.Context, event *Event) error {
	attrs := []any{
		"event_id", event.ID,
		"event_type", string(event.Type),
		"tenant_id", event.TenantID,
	}
	for k, v := range event.Data {
		attrs = append(attrs, k, v)
	}
	s.logger.Info("send event", attrs...)
	return nil
}

var _ Sink = (*AuditSink)(nil)
