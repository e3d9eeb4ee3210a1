// Package vbb fetches the next departure between two stops from a transport.rest
// journeys endpoint (VBB, BVG and DB all expose the same shape).
package vbb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/trainreminder/trainreminder/internal/provider/resilience"
	"github.com/trainreminder/trainreminder/internal/transit"
)

const (
	// ProviderName identifies this transit provider.
	ProviderName = "vbb"

	// DefaultBaseURL is the VBB transport.rest base URL.
	DefaultBaseURL = "https://v5.vbb.transport.rest"

	// DefaultLanguage is the response language requested from the API.
	DefaultLanguage = "en"

	// DefaultTimeout bounds a single journeys request.
	DefaultTimeout = 5 * time.Second

	userAgent = "trainreminder/1.0"
)

// Diagnostic messages logged for absences that do not carry an underlying error.
const (
	MsgNoJourneys  = "No journeys found in API response."
	MsgNoLegs      = "No legs found in first journey."
	MsgNoDeparture = "No departure timestamp found in journey leg."
)

var errUnexpectedStatus = errors.New("unexpected status code")

// ClientConfig holds configuration for the VBB client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional, defaults to DefaultBaseURL).
	BaseURL string

	// Language is the requested response language (optional, defaults to "en").
	Language string

	// Timeout bounds a single request when HTTPClient is nil (optional, defaults to 5s).
	Timeout time.Duration

	// PollInterval is the pause between two calls (optional). When HTTPClient is nil,
	// the circuit breaker stays open no longer than this, so an open breaker never
	// swallows a scheduled poll.
	PollInterval time.Duration

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client that makes a single attempt per call.
	HTTPClient *resilience.Client

	// Registry receives success and failure records (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client fetches departures from a transport.rest journeys endpoint.
type Client struct {
	baseURL    string
	language   string
	httpClient *resilience.Client
	registry   *resilience.Registry
	logger     zerolog.Logger
}

// NewClient creates a new VBB client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	language := cfg.Language
	if language == "" {
		language = DefaultLanguage
	}

	logger := cfg.Logger.With().Str("provider", ProviderName).Logger()

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}

		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		if cfg.PollInterval > 0 && clientCfg.CircuitBreaker.Timeout > cfg.PollInterval {
			clientCfg.CircuitBreaker.Timeout = cfg.PollInterval
		}
		clientCfg.CircuitBreaker.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		}
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		baseURL:    baseURL,
		language:   language,
		httpClient: httpClient,
		registry:   cfg.Registry,
		logger:     logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// NextDeparture returns the departure of the first leg of the first journey from
// route.Origin to route.Destination. It never fails: every problem is reported as
// an absence and logged.
func (c *Client) NextDeparture(ctx context.Context, route transit.Route) transit.Lookup {
	resp, err := c.fetchJourneys(ctx, route)
	if err != nil {
		reason := transit.ReasonRequestFailed
		switch {
		case errors.Is(err, errUnexpectedStatus):
			reason = transit.ReasonBadStatus
		case isDecodeError(err):
			reason = transit.ReasonDecodeFailed
		}
		c.recordFailure(err)
		return c.absent(reason, fmt.Sprintf("API error: %v", err))
	}
	c.recordSuccess()

	if len(resp.Journeys) == 0 {
		return c.absent(transit.ReasonNoJourneys, MsgNoJourneys)
	}

	legs := resp.Journeys[0].Legs
	if len(legs) == 0 {
		return c.absent(transit.ReasonNoLegs, MsgNoLegs)
	}

	raw := legs[0].Departure
	if raw == nil || *raw == "" {
		return c.absent(transit.ReasonNoDeparture, MsgNoDeparture)
	}

	departure, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return c.absent(transit.ReasonInvalidDeparture, fmt.Sprintf("API error: %v", err))
	}

	return transit.FoundAt(departure)
}

func (c *Client) fetchJourneys(ctx context.Context, route transit.Route) (*transit.JourneysResponse, error) {
	query := url.Values{}
	query.Set("from", route.Origin)
	query.Set("to", route.Destination)
	query.Set("results", "1")
	query.Set("language", c.language)

	reqURL := fmt.Sprintf("%s/journeys?%s", c.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", errUnexpectedStatus, resp.StatusCode)
	}

	var body transit.JourneysResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &decodeError{err: err}
	}

	return &body, nil
}

func (c *Client) absent(reason transit.AbsenceReason, message string) transit.Lookup {
	c.logger.Warn().
		Str("reason", string(reason)).
		Bool("transient", reason.Transient()).
		Msg(message)
	return transit.Absent(reason, message)
}

func (c *Client) recordSuccess() {
	if c.registry != nil {
		c.registry.RecordSuccess(c.httpClient.Name())
	}
}

func (c *Client) recordFailure(err error) {
	if c.registry != nil {
		c.registry.RecordFailure(c.httpClient.Name(), err)
	}
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string {
	return "decoding response: " + e.err.Error()
}

func (e *decodeError) Unwrap() error {
	return e.err
}

func isDecodeError(err error) bool {
	var de *decodeError
	return errors.As(err, &de)
}
