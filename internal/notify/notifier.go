// Package notify delivers operator alerts to external channels. Alerts are
// fanned out to every configured sender; delivery failures are logged and
// never propagate into the repricing path.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sdtonline/repricer/internal/domain"
)

// Sender is one delivery channel for alerts.
type Sender interface {
	// Send delivers an alert with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel, e.g. "telegram".
	Name() string
}

// Notifier fans alerts out to its senders, filtered by a minimum severity.
// INFO alerts stay in the database; only warnings and worse reach operators
// by default.
type Notifier struct {
	senders     []Sender
	minSeverity domain.AlertSeverity
	logger      *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Alerts
// below minSeverity are dropped; an empty minSeverity forwards everything.
func NewNotifier(senders []Sender, minSeverity domain.AlertSeverity, logger *slog.Logger) *Notifier {
	return &Notifier{
		senders:     senders,
		minSeverity: minSeverity,
		logger:      logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the alert to every sender whose severity gate it passes.
// Individual sender failures are collected; one failing channel never blocks
// the others.
func (n *Notifier) Notify(ctx context.Context, severity domain.AlertSeverity, title, message string) error {
	if len(n.senders) == 0 || severityRank(severity) < severityRank(n.minSeverity) {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

func severityRank(s domain.AlertSeverity) int {
	switch s {
	case domain.SeverityCritical:
		return 2
	case domain.SeverityWarning:
		return 1
	default:
		return 0
	}
}
