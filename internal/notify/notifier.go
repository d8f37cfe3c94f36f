// Package notify delivers operator alerts for safety-critical events. An
// Alert carries a severity and structured detail fields so each channel can
// render it natively (Discord embeds, Telegram HTML). Event-type filtering
// keeps routine noise out of operator channels, but critical alerts are
// always delivered.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Severity classifies an alert for rendering and filtering.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Field is one key/value detail line attached to an alert, rendered in order.
type Field struct {
	Key   string
	Value string
}

// Alert is a single operator notification.
type Alert struct {
	Event    string // event type, e.g. "kill_switch"
	Severity Severity
	Title    string
	Body     string
	Fields   []Field
}

// Sender delivers alerts over one channel.
type Sender interface {
	Send(ctx context.Context, alert Alert) error
	// Name identifies the channel, e.g. "telegram".
	Name() string
}

// Notifier fans alerts out to every registered sender, subject to the
// configured event-type filter.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only alerts
// whose event type appears in events pass the filter; an empty events list
// allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Publish delivers the alert to all senders. Non-critical alerts whose event
// type is filtered out are dropped silently; critical alerts bypass the
// filter. A failing sender does not block delivery to the rest.
func (n *Notifier) Publish(ctx context.Context, alert Alert) error {
	if alert.Severity != SeverityCritical && len(n.events) > 0 && !n.events[alert.Event] {
		n.logger.DebugContext(ctx, "alert filtered out",
			slog.String("event", alert.Event),
		)
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, alert); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", alert.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert delivered",
			slog.String("sender", s.Name()),
			slog.String("title", alert.Title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}
