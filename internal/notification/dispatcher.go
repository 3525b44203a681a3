// Package notification delivers series notifications assembled by the
// application layer. The dispatcher logs every message and, when a sink is
// configured, appends it as a JSON line for an external relay to pick up.
// New-series messages carry the generation's calendar invite as an ICS
// attachment.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/example/conference-repeater/internal/application"
	"github.com/example/conference-repeater/internal/ical"
)

// ErrNoRecipients indicates a notification without anyone to deliver to.
var ErrNoRecipients = errors.New("notification: no recipients")

// Dispatcher implements application.NotificationDispatch.
type Dispatcher struct {
	logger *slog.Logger
	sender string
	now    func() time.Time

	mu   sync.Mutex
	sink io.Writer
}

// NewDispatcher constructs a dispatcher that only logs deliveries.
func NewDispatcher(logger *slog.Logger, sender string) *Dispatcher {
	return NewDispatcherWithSink(logger, sender, nil)
}

// NewDispatcherWithSink constructs a dispatcher that additionally appends
// each message to the sink as one JSON line.
func NewDispatcherWithSink(logger *slog.Logger, sender string, sink io.Writer) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger, sender: sender, now: time.Now, sink: sink}
}

type outboxEntry struct {
	SentAt     string         `json:"sent_at"`
	Sender     string         `json:"sender,omitempty"`
	TemplateID string         `json:"template_id"`
	Subject    string         `json:"subject"`
	Mode       string         `json:"mode"`
	Recipients []string       `json:"recipients"`
	Context    map[string]any `json:"context,omitempty"`
	Attachment string         `json:"attachment,omitempty"`
}

// Notify records the notification for delivery.
func (d *Dispatcher) Notify(ctx context.Context, notification application.Notification) error {
	if len(notification.Recipients) == 0 {
		return ErrNoRecipients
	}

	attachment := d.renderAttachment(notification)

	d.logger.InfoContext(ctx, "notification dispatched",
		"template_id", notification.TemplateID,
		"mode", string(notification.Mode),
		"recipient_count", len(notification.Recipients),
		"has_attachment", attachment != "",
	)

	if d.sink == nil {
		return nil
	}

	entry := outboxEntry{
		SentAt:     d.now().UTC().Format(time.RFC3339),
		Sender:     d.sender,
		TemplateID: notification.TemplateID,
		Subject:    notification.Subject,
		Mode:       string(notification.Mode),
		Recipients: notification.Recipients,
		Context:    notification.Context,
		Attachment: attachment,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.sink.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing notification to sink: %w", err)
	}
	return nil
}

// renderAttachment builds the calendar invite for new-series mail. Other
// modes go out without an attachment.
func (d *Dispatcher) renderAttachment(notification application.Notification) string {
	if notification.Mode != application.ModeNewSeries || notification.Generation == nil {
		return ""
	}
	return ical.GenerationCalendar(notification.SeriesID, *notification.Generation)
}
