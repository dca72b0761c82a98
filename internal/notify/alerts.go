package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sdtonline/repricer/internal/domain"
)

// AlertSink persists alerts and forwards them to the notifier. Both sides
// are best-effort: an unreachable database or channel is logged, never
// returned, so alerting can sit inside the repricing path without risk.
type AlertSink struct {
	store    domain.AlertStore
	notifier *Notifier
	logger   *slog.Logger
}

// NewAlertSink creates an AlertSink. notifier may be nil when no delivery
// channels are configured; alerts are then only persisted.
func NewAlertSink(store domain.AlertStore, notifier *Notifier, logger *slog.Logger) *AlertSink {
	return &AlertSink{
		store:    store,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "alerts")),
	}
}

// Alert records the alert and pushes it to the configured channels.
func (s *AlertSink) Alert(ctx context.Context, severity domain.AlertSeverity, message string, metadata map[string]any) {
	s.logger.Warn("alert raised",
		slog.String("severity", string(severity)),
		slog.String("message", message),
		slog.Any("metadata", metadata))

	if err := s.store.Create(ctx, domain.Alert{
		Message:  message,
		Severity: severity,
		Metadata: metadata,
	}); err != nil {
		s.logger.Error("persist alert failed", slog.String("error", err.Error()))
	}

	if s.notifier == nil {
		return
	}
	body := message
	if mp, ok := metadata["marketplace"].(string); ok {
		body = fmt.Sprintf("%s (marketplace %s)", message, mp)
	}
	if err := s.notifier.Notify(ctx, severity, fmt.Sprintf("[%s] repricer", severity), body); err != nil {
		s.logger.Error("deliver alert failed", slog.String("error", err.Error()))
	}
}
