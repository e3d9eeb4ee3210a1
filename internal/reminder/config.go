// Package reminder runs the poll-decide-sleep loop that notifies the user when it
// is time to leave for the next train.
package reminder

import (
	"errors"
	"time"

	"github.com/trainreminder/trainreminder/internal/transit"
)

const (
	// DefaultReminderLead is how long before departure the user is notified.
	DefaultReminderLead = 5 * time.Minute

	// DefaultPollInterval is the pause between two polls when nothing was sent.
	DefaultPollInterval = 60 * time.Second

	// DefaultCooldown is the pause after a notification. It assumes the next
	// train worth reminding about is roughly an hour away.
	DefaultCooldown = time.Hour
)

// Configuration errors.
var (
	ErrMissingStop         = errors.New("origin and destination stop identifiers are required")
	ErrNegativeLead        = errors.New("reminder lead must not be negative")
	ErrNonPositiveInterval = errors.New("poll interval and cooldown must be positive")
)

// Config describes the monitored route and the loop timings.
// It is fixed when the loop is constructed.
type Config struct {
	// Route is the monitored origin/destination pair.
	Route transit.Route

	// ReminderLead is subtracted from the departure to get the leave-by time.
	// Default: 5 minutes
	ReminderLead time.Duration

	// PollInterval is the sleep after an iteration that did not notify.
	// Default: 60 seconds
	PollInterval time.Duration

	// Cooldown is the sleep after an iteration that notified.
	// Default: 1 hour
	Cooldown time.Duration
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Route.Origin == "" || c.Route.Destination == "" {
		return ErrMissingStop
	}
	if c.ReminderLead < 0 {
		return ErrNegativeLead
	}
	if c.PollInterval <= 0 || c.Cooldown <= 0 {
		return ErrNonPositiveInterval
	}
	return nil
}
