package board

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/boardlake/pkg/errors"
)

const (
	defaultPageSize       = 500
	defaultRequestTimeout = 30 * time.Second
	userAgent             = "boardlake/1.0"
)

// maxResponseBytes caps a single page response.
var maxResponseBytes int64 = 64 << 20

// transientCodes are upstream error codes that clear up on their own.
var transientCodes = map[string]struct{}{
	"ComplexityException":         {},
	"COMPLEXITY_BUDGET_EXHAUSTED": {},
	"RATE_LIMIT_EXCEEDED":         {},
	"RateLimitExceeded":           {},
	"IP_RATE_LIMIT_EXCEEDED":      {},
	"INTERNAL_SERVER_ERROR":       {},
	"InternalServerException":     {},
}

// ClientConfig configures the GraphQL page fetcher.
type ClientConfig struct {
	URL            string
	Token          string
	APIVersion     string
	PageSize       int
	RequestTimeout time.Duration
	// RateLimit is requests per second across all partitions; 0 disables limiting
	RateLimit float64
	RateBurst int
	// Transport overrides the base HTTP transport (tests)
	Transport http.RoundTripper
}

// Client fetches one page of items per call. It is safe for concurrent use.
type Client struct {
	url            string
	apiVersion     string
	pageSize       int
	requestTimeout time.Duration
	httpClient     *http.Client
	limiter        *rate.Limiter
	logger         *zap.Logger
}

// NewClient creates a page fetcher for the configured endpoint.
func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "upstream url is required")
	}
	if cfg.Token == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "upstream credential is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	base := cfg.Transport
	if base == nil {
		base = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
			ForceAttemptHTTP2:     true,
		}
	}

	c := &Client{
		url:            cfg.URL,
		apiVersion:     cfg.APIVersion,
		pageSize:       pageSize,
		requestTimeout: timeout,
		httpClient: &http.Client{
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
				Base:   base,
			},
		},
		logger: logger.With(zap.String("component", "board_client")),
	}

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return c, nil
}

// PageSize returns the bounded page size used for every request.
func (c *Client) PageSize() int {
	return c.pageSize
}

// Fetch issues a single query for partitionID continuing from cursor (empty on
// the first call). Network, timeout, 429 and 5xx failures are returned as
// ErrorTypeTransientFetch; authentication, query and payload failures as
// ErrorTypeFatalFetch. Cancellation of ctx itself yields ErrorTypeDeadline.
func (c *Client) Fetch(ctx context.Context, partitionID, cursor string) (*Page, error) {
	ctx, span := otel.Tracer("boardlake/board").Start(ctx, "board.fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("partition_id", partitionID),
		attribute.Bool("first_page", cursor == ""),
	)

	page, err := c.fetch(ctx, partitionID, cursor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errors.TypeOf(err)))
		return nil, err
	}
	span.SetAttributes(attribute.Int("items", len(page.Items)))
	return page, nil
}

func (c *Client) fetch(parent context.Context, partitionID, cursor string) (*Page, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(parent); err != nil {
			return nil, c.contextError(parent, err)
		}
	}

	ctx, cancel := context.WithTimeout(parent, c.requestTimeout)
	defer cancel()

	payload, err := gojson.Marshal(buildRequest(partitionID, cursor, c.pageSize))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFatalFetch, "failed to encode query")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFatalFetch, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.apiVersion != "" {
		req.Header.Set("API-Version", c.apiVersion)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if parent.Err() != nil {
			return nil, c.contextError(parent, err)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeTransientFetch, "request failed").
			WithDetail("partition_id", partitionID)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		if parent.Err() != nil {
			return nil, c.contextError(parent, err)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeTransientFetch, "failed to read response body").
			WithDetail("partition_id", partitionID)
	}

	c.logger.Debug("page response",
		zap.String("partition_id", partitionID),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("latency", time.Since(start)))

	oversized := int64(len(body)) > maxResponseBytes
	if oversized {
		body = body[:maxResponseBytes]
	}

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return nil, err.WithDetail("partition_id", partitionID)
	}

	if oversized {
		return nil, errors.Newf(errors.ErrorTypeFatalFetch, "response too large: exceeds %d bytes", maxResponseBytes).
			WithDetail("partition_id", partitionID)
	}

	var envelope graphQLResponse
	if err := gojson.Unmarshal(body, &envelope); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFatalFetch, "malformed response body").
			WithDetail("partition_id", partitionID)
	}

	if err := classifyGraphQLErrors(&envelope); err != nil {
		return nil, err.WithDetail("partition_id", partitionID)
	}

	return extractPage(&envelope, partitionID, cursor)
}

func (c *Client) contextError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return errors.Wrap(parent.Err(), errors.ErrorTypeDeadline, "fetch cancelled")
	}
	return errors.Wrap(err, errors.ErrorTypeTransientFetch, "fetch interrupted")
}

func classifyStatus(status int, body []byte) *errors.Error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return errors.Newf(errors.ErrorTypeTransientFetch, "upstream returned status %d", status).
			WithDetail("body", snippet(body))
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return errors.Newf(errors.ErrorTypeFatalFetch, "upstream rejected credential with status %d", status)
	default:
		return errors.Newf(errors.ErrorTypeFatalFetch, "upstream returned status %d", status).
			WithDetail("body", snippet(body))
	}
}

func classifyGraphQLErrors(resp *graphQLResponse) *errors.Error {
	if resp.ErrorCode != "" || resp.ErrorMessage != "" {
		errType := errors.ErrorTypeFatalFetch
		if _, ok := transientCodes[resp.ErrorCode]; ok || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			errType = errors.ErrorTypeTransientFetch
		}
		return errors.Newf(errType, "upstream error %s: %s", resp.ErrorCode, resp.ErrorMessage)
	}

	if len(resp.Errors) == 0 {
		return nil
	}

	messages := make([]string, 0, len(resp.Errors))
	errType := errors.ErrorTypeFatalFetch
	for _, e := range resp.Errors {
		messages = append(messages, e.Message)
		if _, ok := transientCodes[e.Extensions.Code]; ok {
			errType = errors.ErrorTypeTransientFetch
		}
	}
	return errors.New(errType, "query failed: "+strings.Join(messages, "; ")).
		WithDetail("code", resp.Errors[0].Extensions.Code)
}

func extractPage(resp *graphQLResponse, partitionID, cursor string) (*Page, error) {
	if resp.Data == nil {
		return nil, errors.New(errors.ErrorTypeFatalFetch, "response has no data").
			WithDetail("partition_id", partitionID)
	}

	var ip *itemsPage
	if cursor == "" {
		if len(resp.Data.Boards) == 0 {
			return nil, errors.New(errors.ErrorTypeFatalFetch, "board not found").
				WithDetail("partition_id", partitionID)
		}
		ip = resp.Data.Boards[0].ItemsPage
	} else {
		ip = resp.Data.NextItemsPage
	}
	if ip == nil {
		return nil, errors.New(errors.ErrorTypeFatalFetch, "response has no items page").
			WithDetail("partition_id", partitionID)
	}

	page := &Page{Items: ip.Items}
	if ip.Cursor != nil && *ip.Cursor != "" {
		if *ip.Cursor == cursor {
			return nil, errors.New(errors.ErrorTypeFatalFetch, "upstream returned the same cursor").
				WithDetail("partition_id", partitionID)
		}
		page.NextCursor = *ip.Cursor
	}
	return page, nil
}

func snippet(body []byte) string {
	const max = 256
	if len(body) > max {
		return fmt.Sprintf("%s...", body[:max])
	}
	return string(body)
}
