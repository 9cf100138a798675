// Package notify delivers operator alerts about synchronisation runs to chat
// channels (Telegram, Discord). Alerts can be filtered by event type so
// operators receive only the ones they care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Event types understood by the notifier configuration.
const (
	EventSyncFailed    = "sync_failed"
	EventSyncRecovered = "sync_recovered"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders, forwarding only
// event types in its allowed set. An empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders.
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

// Enabled reports whether at least one sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify sends a notification to all senders if event is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}

	return n.dispatch(ctx, title, message)
}

// SyncFailed reports a refresh run that ended with errors.
func (n *Notifier) SyncFailed(ctx context.Context, runID string, failed, total int, err error) error {
	title := fmt.Sprintf("marketsync: %d of %d partitions failed", failed, total)
	return n.Notify(ctx, EventSyncFailed, title, fmt.Sprintf("run %s\n%v", runID, err))
}

// SyncRecovered reports the first clean run after a failed one.
func (n *Notifier) SyncRecovered(ctx context.Context, runID string, updated int) error {
	title := "marketsync: refresh recovered"
	return n.Notify(ctx, EventSyncRecovered, title, fmt.Sprintf("run %s refreshed %d markets", runID, updated))
}

// dispatch sends to every sender. A single sender failure does not prevent
// delivery to the remaining senders; failures are joined.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.WarnContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), err)
	}
	return nil
}
