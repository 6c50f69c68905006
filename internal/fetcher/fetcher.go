package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	apperrors "sdmxcli/internal/errors"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sdmx_fetch_requests_total",
		Help: "Outbound SDMX requests by outcome.",
	}, []string{"outcome"})
	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sdmx_fetch_retries_total",
		Help: "Transport-level retries against the SDMX API.",
	})
	pagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sdmx_fetch_pages_total",
		Help: "Result pages fetched from the SDMX API.",
	})
)

// OutcomeKind classifies a completed fetch.
type OutcomeKind string

const (
	// OutcomeSuccess means the server returned matching observations.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeEmpty means the server explicitly reported zero matching
	// observations. This is a valid result, not an error.
	OutcomeEmpty OutcomeKind = "empty"
)

// Outcome is the result of a successful round of requests. Transport
// and server failures are returned as errors, not outcomes.
type Outcome struct {
	Kind    OutcomeKind
	Payload []byte
	Status  int
	Pages   int
}

// morePagesHeader is set by the server when further pages exist.
const morePagesHeader = "X-More-Pages"

// Options configures a Client.
type Options struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	PageSize     int // 0 disables client-driven pagination
	RateLimit    float64
	RateBurst    int
	Logger       *slog.Logger
	Transport    http.RoundTripper
}

// Client executes queries against the SDMX REST API. Transient network
// failures are retried with exponential backoff; server-reported errors
// are surfaced immediately with their detail.
type Client struct {
	http     *http.Client
	limiter  *rate.Limiter
	retries  int
	backoff  time.Duration
	pageSize int
	logger   *slog.Logger
}

// New creates a fetch client.
func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.RateBurst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
		},
		limiter:  rate.NewLimiter(limit, burst),
		retries:  opts.MaxRetries,
		backoff:  opts.RetryBackoff,
		pageSize: opts.PageSize,
		logger:   opts.Logger,
	}
}

// Fetch runs the query, following pagination until the server stops
// signalling more pages. On timeout or cancellation the whole query
// fails; partial pages are never returned.
func (c *Client) Fetch(ctx context.Context, url string) (*Outcome, error) {
	var payload bytes.Buffer
	pages := 0

	for page := 1; ; page++ {
		pageURL := url
		if c.pageSize > 0 {
			sep := "?"
			if bytes.ContainsRune([]byte(url), '?') {
				sep = "&"
			}
			pageURL = fmt.Sprintf("%s%spage=%d&pageSize=%d", url, sep, page, c.pageSize)
		}

		body, status, header, err := c.get(ctx, pageURL)
		if err != nil {
			requestsTotal.WithLabelValues("transport_failure").Inc()
			return nil, err
		}

		switch {
		case status == http.StatusNotFound || status == http.StatusNoContent:
			// The API family reports "no data for this query" as 404.
			if pages == 0 {
				requestsTotal.WithLabelValues("empty").Inc()
				return &Outcome{Kind: OutcomeEmpty, Status: status}, nil
			}
			// A later page past the end terminates pagination.
			return &Outcome{Kind: OutcomeSuccess, Payload: payload.Bytes(), Status: http.StatusOK, Pages: pages}, nil
		case status < 200 || status > 299:
			requestsTotal.WithLabelValues("server_error").Inc()
			return nil, apperrors.NewServerError(status, truncate(string(body), 512))
		}

		pages++
		pagesTotal.Inc()
		appendPage(&payload, body, pages)

		if c.pageSize <= 0 {
			break
		}
		if header.Get(morePagesHeader) != "true" {
			break
		}
	}

	requestsTotal.WithLabelValues("success").Inc()
	return &Outcome{Kind: OutcomeSuccess, Payload: payload.Bytes(), Status: http.StatusOK, Pages: pages}, nil
}

// get performs one HTTP request with bounded retries on transport
// failures. Server responses, including errors, are never retried.
func (c *Client) get(ctx context.Context, url string) ([]byte, int, http.Header, error) {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, nil, apperrors.NewTransportError("rate limiter interrupted", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, 0, nil, apperrors.NewTransportError("failed to build request", err)
		}
		req.Header.Set("Accept", "text/csv, application/xml;q=0.9")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, nil, apperrors.NewTransportError("request cancelled", ctx.Err())
			}
			if attempt < c.retries {
				retriesTotal.Inc()
				c.logger.Warn("transient fetch failure, retrying",
					slog.String("url", url),
					slog.Int("attempt", attempt+1),
					slog.String("error", err.Error()))
				if serr := sleep(ctx, c.backoff*(1<<attempt)); serr != nil {
					return nil, 0, nil, apperrors.NewTransportError("request cancelled during backoff", serr)
				}
				continue
			}
			return nil, 0, nil, apperrors.NewTransportError(
				fmt.Sprintf("request failed after %d attempts", attempt+1), err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			if attempt < c.retries {
				retriesTotal.Inc()
				if serr := sleep(ctx, c.backoff*(1<<attempt)); serr != nil {
					return nil, 0, nil, apperrors.NewTransportError("request cancelled during backoff", serr)
				}
				continue
			}
			return nil, 0, nil, apperrors.NewTransportError("failed to read response body", readErr)
		}

		return body, resp.StatusCode, resp.Header, nil
	}
}

// appendPage concatenates a page onto the accumulated payload. For
// delimited-text pages after the first, the repeated header line is
// dropped.
func appendPage(buf *bytes.Buffer, body []byte, page int) {
	if page > 1 && len(body) > 0 && body[0] != '<' {
		if i := bytes.IndexByte(body, '\n'); i >= 0 {
			body = body[i+1:]
		}
	}
	buf.Write(body)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
