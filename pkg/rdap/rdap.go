// Package rdap provides a client for RDAP domain registration lookups.
package rdap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Status is the registration state reported by an RDAP lookup.
type Status string

const (
	// StatusTaken means the registry returned a registration record.
	StatusTaken Status = "Taken"
	// StatusAvailable means the registry reported no record (404).
	StatusAvailable Status = "Available"
	// StatusUnknown means the registry answered but the response was
	// inconclusive.
	StatusUnknown Status = "Unknown"
)

// Result is the outcome of a single lookup.
type Result struct {
	Domain     string
	Status     Status
	StatusCode int
	// Handle and Events are populated only for taken domains.
	Handle string
	Events []Event
}

// Event is one lifecycle event from a registration record.
type Event struct {
	Action string `json:"eventAction"`
	Date   string `json:"eventDate"`
}

// StatusError reports a non-conclusive HTTP status from the registry.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rdap: status %d: %s", e.Code, e.Body)
}

// Client defines RDAP lookup operations.
type Client interface {
	// Lookup resolves the registration status of one domain.
	Lookup(ctx context.Context, domain string) (*Result, error)
}

// Option configures the RDAP client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing lookups at n per second with the given burst.
func WithRateLimit(n float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(n), burst)
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an RDAP client against the rdap.org aggregator.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://rdap.org",
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(10), 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rdapRecord is the subset of an RDAP domain object we read.
type rdapRecord struct {
	Handle string  `json:"handle"`
	Events []Event `json:"events"`
}

func (c *httpClient) Lookup(ctx context.Context, domain string) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rdap: rate limit wait")
	}

	reqURL := fmt.Sprintf("%s/domain/%s", c.baseURL, domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "rdap: create request")
	}
	req.Header.Set("Accept", "application/rdap+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "rdap: lookup %s", domain)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "rdap: read response body")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// No registration record: the domain is free.
		return &Result{Domain: domain, Status: StatusAvailable, StatusCode: resp.StatusCode}, nil
	case resp.StatusCode == http.StatusOK:
		res := &Result{Domain: domain, Status: StatusTaken, StatusCode: resp.StatusCode}
		var rec rdapRecord
		if err := json.Unmarshal(body, &rec); err == nil {
			res.Handle = rec.Handle
			res.Events = rec.Events
		}
		return res, nil
	case resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode >= http.StatusInternalServerError:
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(body), 200)}
	default:
		// Some registries answer 4xx for unsupported TLDs; the lookup
		// completed but tells us nothing.
		return &Result{Domain: domain, Status: StatusUnknown, StatusCode: resp.StatusCode}, nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
