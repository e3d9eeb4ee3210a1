package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/trainreminder/trainreminder/internal/transit"
)

// Outcome of a single loop iteration.
const (
	OutcomeAbsent   = "absent"
	OutcomeUpcoming = "upcoming"
	OutcomeNotified = "notified"
)

// Metrics tracks loop statistics for the status endpoint.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	Polls          int64
	Absences       int64
	Notifications  int64
	NotifyFailures int64

	// Last iteration
	LastPollAt        time.Time
	LastOutcome       string
	LastDeparture     *time.Time
	LastLeaveBy       *time.Time
	LastAbsenceReason transit.AbsenceReason
	LastSleep         time.Duration
	LastNotifiedAt    *time.Time
}

// instruments are the OpenTelemetry counterparts of Metrics.
type instruments struct {
	polls             metric.Int64Counter
	absences          metric.Int64Counter
	notifications     metric.Int64Counter
	minutesUntilLeave metric.Float64Histogram
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	polls, err := meter.Int64Counter("reminder.polls",
		metric.WithDescription("Departure polls by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating polls counter: %w", err)
	}

	absences, err := meter.Int64Counter("reminder.absences",
		metric.WithDescription("Polls that produced no departure, by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating absences counter: %w", err)
	}

	notifications, err := meter.Int64Counter("reminder.notifications",
		metric.WithDescription("Reminder notifications, by delivery result"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating notifications counter: %w", err)
	}

	minutesUntilLeave, err := meter.Float64Histogram("reminder.minutes_until_leave",
		metric.WithDescription("Minutes between the poll and the leave-by time"),
		metric.WithUnit("min"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating leave histogram: %w", err)
	}

	return &instruments{
		polls:             polls,
		absences:          absences,
		notifications:     notifications,
		minutesUntilLeave: minutesUntilLeave,
	}, nil
}

func (l *Loop) record(ctx context.Context, d Decision, notifyErr error) {
	outcome := d.Outcome()

	l.instruments.polls.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if !d.Lookup.Found() {
		reason := d.Lookup.Absence.Reason
		l.instruments.absences.Add(ctx, 1, metric.WithAttributes(
			attribute.String("reason", string(reason)),
			attribute.Bool("transient", reason.Transient()),
		))
	} else {
		l.instruments.minutesUntilLeave.Record(ctx, d.LeaveBy.Sub(d.Now).Minutes())
	}
	if d.Notify {
		l.instruments.notifications.Add(ctx, 1,
			metric.WithAttributes(attribute.Bool("delivered", notifyErr == nil)))
	}

	l.metrics.mu.Lock()
	defer l.metrics.mu.Unlock()

	m := l.metrics
	m.Polls++
	m.LastPollAt = d.Now
	m.LastOutcome = outcome
	m.LastSleep = d.Sleep

	if d.Lookup.Found() {
		departure, leaveBy := d.Lookup.Departure, d.LeaveBy
		m.LastDeparture = &departure
		m.LastLeaveBy = &leaveBy
		m.LastAbsenceReason = ""
	} else {
		m.Absences++
		m.LastDeparture = nil
		m.LastLeaveBy = nil
		m.LastAbsenceReason = d.Lookup.Absence.Reason
	}

	if d.Notify {
		m.Notifications++
		now := d.Now
		m.LastNotifiedAt = &now
		if notifyErr != nil {
			m.NotifyFailures++
		}
	}
}

// GetMetrics returns a copy of the current metrics.
func (l *Loop) GetMetrics() Metrics {
	l.metrics.mu.RLock()
	defer l.metrics.mu.RUnlock()

	return Metrics{
		Polls:             l.metrics.Polls,
		Absences:          l.metrics.Absences,
		Notifications:     l.metrics.Notifications,
		NotifyFailures:    l.metrics.NotifyFailures,
		LastPollAt:        l.metrics.LastPollAt,
		LastOutcome:       l.metrics.LastOutcome,
		LastDeparture:     l.metrics.LastDeparture,
		LastLeaveBy:       l.metrics.LastLeaveBy,
		LastAbsenceReason: l.metrics.LastAbsenceReason,
		LastSleep:         l.metrics.LastSleep,
		LastNotifiedAt:    l.metrics.LastNotifiedAt,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (l *Loop) MetricsSnapshot() map[string]interface{} {
	m := l.GetMetrics()
	snapshot := map[string]interface{}{
		"polls":           m.Polls,
		"absences":        m.Absences,
		"notifications":   m.Notifications,
		"notify_failures": m.NotifyFailures,
		"last_outcome":    m.LastOutcome,
		"last_sleep":      m.LastSleep.String(),
	}
	if !m.LastPollAt.IsZero() {
		snapshot["last_poll_at"] = m.LastPollAt
	}
	if m.LastDeparture != nil {
		snapshot["last_departure"] = *m.LastDeparture
		snapshot["last_leave_by"] = *m.LastLeaveBy
	}
	if m.LastAbsenceReason != "" {
		snapshot["last_absence_reason"] = string(m.LastAbsenceReason)
	}
	if m.LastNotifiedAt != nil {
		snapshot["last_notified_at"] = *m.LastNotifiedAt
	}
	return snapshot
}
