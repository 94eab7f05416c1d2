// Package notify fans operator alerts out to chat channels (Telegram,
// Discord). Alerts are filtered by event type, e.g. "challenge_passed".
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sender delivers one alert over a single channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

type alert struct {
	title   string
	message string
}

// Notifier dispatches alerts to every Sender. With a queue, Notify only
// enqueues and Run delivers in the background so callers holding locks never
// wait on a webhook.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	queue   chan alert
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. Only events listed in events are
// forwarded by Notify; an empty list allows all. queueSize > 0 makes
// delivery asynchronous and requires Run.
func NewNotifier(senders []Sender, events []string, queueSize int, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	n := &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
	if queueSize > 0 {
		n.queue = make(chan alert, queueSize)
	}
	return n
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Notify forwards an alert when event passes the filter. When the queue is
// full the alert is dropped and logged.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	if n.queue == nil {
		return n.dispatch(ctx, alert{title: title, message: message})
	}
	select {
	case n.queue <- alert{title: title, message: message}:
		return nil
	default:
		n.logger.WarnContext(ctx, "notification queue full, alert dropped",
			slog.String("event", event),
			slog.String("title", title),
		)
		return nil
	}
}

// NotifyAll sends an alert to all senders, bypassing the filter and queue.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, alert{title: title, message: message})
}

// Run delivers queued alerts until ctx is cancelled. It returns nil on
// shutdown.
func (n *Notifier) Run(ctx context.Context) error {
	if n.queue == nil {
		<-ctx.Done()
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case a := <-n.queue:
			_ = n.dispatch(ctx, a)
		}
	}
}

// dispatch sends to every sender; one failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, a alert) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, a.title, a.message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", a.title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
