// Package portalclient talks to the external booking backend.
package portalclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

const (
	defaultTimeout     = 10 * time.Second
	maxErrorBodyBytes  = 4 << 10
	breakerMaxRequests = 3
	breakerInterval    = time.Minute
	breakerTimeout     = 30 * time.Second
)

var (
	ErrMalformedResponse  = errors.New("malformed response from booking backend")
	ErrBackendUnavailable = errors.New("booking backend temporarily unavailable")
)

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: backend returned %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: backend returned %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// RequestObserver is told about every completed backend call.
type RequestObserver func(method, route string, status int, elapsed time.Duration)

type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	Location   *time.Location
	HTTPClient *http.Client
	Observer   RequestObserver
}

type Client struct {
	baseURL  *url.URL
	token    string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	loc      *time.Location
	observer RequestObserver
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend base URL must be http or https: %s", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "booking-backend",
		MaxRequests: breakerMaxRequests,
		Interval:    breakerInterval,
		Timeout:     breakerTimeout,
		IsSuccessful: func(err error) bool {
			var abandoned *abandonedError
			return err == nil || errors.As(err, &abandoned)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return &Client{
		baseURL:  base,
		token:    cfg.Token,
		http:     httpClient,
		breaker:  breaker,
		loc:      loc,
		observer: cfg.Observer,
	}, nil
}

// Location is the facility calendar used to interpret backend dates.
func (c *Client) Location() *time.Location {
	return c.loc
}

// abandonedError marks a request whose caller's context ended first. The
// backend is not at fault, so the breaker does not count it.
type abandonedError struct {
	err error
}

func (e *abandonedError) Error() string { return e.err.Error() }

func (e *abandonedError) Unwrap() error { return e.err }

type rawResponse struct {
	status int
	body   []byte
}

// do performs one request. Transport errors and 5xx answers count against
// the circuit breaker; 4xx answers are returned as StatusError without
// tripping it. Requests cut short by ctx never count.
func (c *Client) do(ctx context.Context, method, route, path string, query url.Values, payload any, out any) error {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = encoded
	}

	target := *c.baseURL
	target.Path = c.baseURL.Path + path
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	requestID := uuid.New().String()
	logger := log.Ctx(ctx).With().
		Str("component", "portal_client").
		Str("method", method).
		Str("route", route).
		Str("backend_request_id", requestID).
		Logger()

	started := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", requestID)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &abandonedError{err: err}
			}
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &abandonedError{err: err}
			}
			return nil, fmt.Errorf("read response body: %w", err)
		}
		raw := &rawResponse{status: resp.StatusCode, body: data}
		if resp.StatusCode >= http.StatusInternalServerError {
			return raw, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: truncate(data)}
		}
		return raw, nil
	})
	elapsed := time.Since(started)

	status := 0
	if raw, ok := result.(*rawResponse); ok && raw != nil {
		status = raw.status
	}
	if c.observer != nil {
		c.observer(method, route, status, elapsed)
	}

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logger.Warn().Err(err).Msg("Backend request blocked by circuit breaker")
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		var abandoned *abandonedError
		if errors.As(err, &abandoned) {
			logger.Debug().Err(err).Dur("duration", elapsed).Msg("Backend request abandoned by caller")
			return abandoned.err
		}
		logger.Error().Err(err).Dur("duration", elapsed).Msg("Backend request failed")
		return err
	}

	raw := result.(*rawResponse)
	logger.Debug().Int("status", raw.status).Dur("duration", elapsed).Msg("Backend request completed")
	if raw.status < 200 || raw.status >= 300 {
		return &StatusError{Method: method, Path: path, Code: raw.status, Body: truncate(raw.body)}
	}
	if out == nil || len(bytes.TrimSpace(raw.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw.body, out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrMalformedResponse, method, path, err)
	}
	return nil
}

func truncate(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBodyBytes {
		return text[:maxErrorBodyBytes]
	}
	return text
}
