package reminder

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/trainreminder/trainreminder/internal/notify"
	"github.com/trainreminder/trainreminder/internal/telemetry"
	"github.com/trainreminder/trainreminder/internal/transit"
)

const instrumentationName = "github.com/trainreminder/trainreminder/internal/reminder"

// Loop construction errors.
var (
	ErrNoFetcher  = errors.New("reminder loop requires a fetcher")
	ErrNoNotifier = errors.New("reminder loop requires a notifier")
)

// Fetcher looks up the next departure for a route. Implementations report
// failures as an absence instead of an error.
type Fetcher interface {
	NextDeparture(ctx context.Context, route transit.Route) transit.Lookup
}

// SleepFunc pauses for d or until ctx is done, whichever comes first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Decision is the outcome of one poll.
type Decision struct {
	// Now is the time captured before the fetch.
	Now time.Time

	// Lookup is what the fetcher returned.
	Lookup transit.Lookup

	// LeaveBy is departure minus reminder lead. Zero when nothing was found.
	LeaveBy time.Time

	// Notify is true when the user must be told to leave.
	Notify bool

	// Sleep is the pause before the next poll.
	Sleep time.Duration
}

// Outcome returns OutcomeAbsent, OutcomeUpcoming or OutcomeNotified.
func (d Decision) Outcome() string {
	switch {
	case !d.Lookup.Found():
		return OutcomeAbsent
	case d.Notify:
		return OutcomeNotified
	default:
		return OutcomeUpcoming
	}
}

// Decide computes the decision for a lookup taken at now. A departure that already
// lies in the past still notifies.
func Decide(now time.Time, lookup transit.Lookup, cfg Config) Decision {
	d := Decision{
		Now:    now,
		Lookup: lookup,
		Sleep:  cfg.PollInterval,
	}

	if !lookup.Found() {
		return d
	}

	d.LeaveBy = lookup.Departure.Add(-cfg.ReminderLead)
	if !now.Before(d.LeaveBy) {
		d.Notify = true
		d.Sleep = cfg.Cooldown
	}

	return d
}

// LoopConfig holds configuration for creating a Loop.
type LoopConfig struct {
	Config   Config
	Fetcher  Fetcher
	Notifier notify.Notifier
	Logger   zerolog.Logger

	// Meter and Tracer default to the global OpenTelemetry providers.
	Meter  metric.Meter
	Tracer trace.Tracer

	// Now and Sleep default to the wall clock and SleepContext.
	Now   func() time.Time
	Sleep SleepFunc
}

// Loop polls the fetcher, notifies when it is time to leave and sleeps in between.
// Iterations run strictly one after another.
type Loop struct {
	config   Config
	fetcher  Fetcher
	notifier notify.Notifier
	logger   zerolog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	sleep    SleepFunc

	instruments *instruments
	metrics     *Metrics
}

// NewLoop creates a reminder loop.
func NewLoop(cfg LoopConfig) (*Loop, error) {
	if err := cfg.Config.Validate(); err != nil {
		return nil, err
	}
	if cfg.Fetcher == nil {
		return nil, ErrNoFetcher
	}
	if cfg.Notifier == nil {
		return nil, ErrNoNotifier
	}

	meter := cfg.Meter
	if meter == nil {
		meter = telemetry.Meter(instrumentationName)
	}
	inst, err := newInstruments(meter)
	if err != nil {
		return nil, err
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer(instrumentationName)
	}

	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	return &Loop{
		config:      cfg.Config,
		fetcher:     cfg.Fetcher,
		notifier:    cfg.Notifier,
		logger:      cfg.Logger,
		tracer:      tracer,
		now:         now,
		sleep:       sleep,
		instruments: inst,
		metrics:     &Metrics{},
	}, nil
}

// Config returns the loop configuration.
func (l *Loop) Config() Config {
	return l.config
}

// Run polls until ctx is done. It returns nil when stopped through ctx.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info().
		Str("route", l.config.Route.String()).
		Dur("reminder_lead", l.config.ReminderLead).
		Dur("poll_interval", l.config.PollInterval).
		Msgf("monitoring trains from '%s' to '%s'", l.config.Route.Origin, l.config.Route.Destination)

	for ctx.Err() == nil {
		d := l.Step(ctx)

		if err := l.sleep(ctx, d.Sleep); err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
	}

	l.logger.Info().Msg("reminder loop stopped")
	return nil
}

// Step performs one poll and, if due, sends the notification.
// The returned decision carries the pause before the next poll.
func (l *Loop) Step(ctx context.Context) Decision {
	pollID := uuid.NewString()
	logger := l.logger.With().Str("poll_id", pollID).Logger()

	ctx, span := l.tracer.Start(ctx, "reminder.poll",
		trace.WithAttributes(
			attribute.String("poll.id", pollID),
			attribute.String("route.origin", l.config.Route.Origin),
			attribute.String("route.destination", l.config.Route.Destination),
		),
	)
	defer span.End()

	now := l.now()
	lookup := l.fetcher.NextDeparture(ctx, l.config.Route)
	d := Decide(now, lookup, l.config)

	var notifyErr error
	switch d.Outcome() {
	case OutcomeNotified:
		notifyErr = l.notifier.Notify(notify.Title, notify.DepartureMessage(lookup.Departure))
		if notifyErr != nil {
			span.RecordError(notifyErr)
			logger.Error().
				Err(notifyErr).
				Time("departure", lookup.Departure).
				Msg("failed to send reminder")
		}
		logger.Info().
			Time("departure", lookup.Departure).
			Dur("cooldown", d.Sleep).
			Msg("time to leave, pausing until the cooldown elapses")
	case OutcomeUpcoming:
		logger.Info().
			Time("departure", lookup.Departure).
			Str("notify_at", d.LeaveBy.Format("15:04")).
			Msgf("next train at %s, will notify at %s",
				lookup.Departure.Format(time.RFC3339), d.LeaveBy.Format("15:04"))
	}

	span.SetAttributes(attribute.String("poll.outcome", d.Outcome()))
	l.record(ctx, d, notifyErr)

	return d
}

// SleepContext blocks for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
