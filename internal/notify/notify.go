// Package notify delivers "time to leave" reminders to the user.
package notify

import (
	"fmt"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"
)

// Title is the title of every reminder notification.
const Title = "Train Reminder"

// Notifier sends a notification with a title and a message.
type Notifier interface {
	Notify(title, message string) error
}

// DepartureMessage formats the reminder body for a departure, using the 24-hour
// clock in the departure's own offset.
func DepartureMessage(departure time.Time) string {
	return fmt.Sprintf("Train departs at %s. Time to leave now.", departure.Format("15:04"))
}

// Desktop shows notifications through the operating system's notification service.
type Desktop struct {
	logger zerolog.Logger
	send   func(title, message string) error
}

// NewDesktop creates a desktop notifier.
func NewDesktop(logger zerolog.Logger) *Desktop {
	return &Desktop{
		logger: logger,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

// Notify shows a desktop notification.
func (d *Desktop) Notify(title, message string) error {
	if err := d.send(title, message); err != nil {
		return fmt.Errorf("sending desktop notification: %w", err)
	}

	d.logger.Info().
		Str("title", title).
		Str("message", message).
		Msg("notification sent")
	return nil
}

// Log writes notifications to the logger instead of the desktop, for headless hosts.
type Log struct {
	logger zerolog.Logger
}

// NewLog creates a notifier that only logs.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

// Notify logs the notification.
func (l *Log) Notify(title, message string) error {
	l.logger.Info().
		Str("title", title).
		Msg(message)
	return nil
}
