// Package shopify is the Admin GraphQL implementation of catalog.Gateway.
package shopify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wonderwork/funnel-upsell/internal/domain/catalog"
)

const (
	// DefaultAPIVersion is the Admin API version queried.
	DefaultAPIVersion = "2024-07"

	accessTokenHeader = "X-Shopify-Access-Token"
	maxResponseSize   = 4 << 20
)

var productQuery = `query Product($id: ID!) {
  product(id: $id) {
    id
    title
    description(truncateAt: ` + strconv.Itoa(catalog.DescriptionLimit) + `)
    featuredImage { url }
    variants(first: ` + strconv.Itoa(catalog.MaxVariants) + `) {
      nodes {
        id
        title
        displayName
        price
        availableForSale
        inventoryQuantity
        image { url altText width height }
      }
    }
  }
}`

const summaryQuery = `query ProductSummary($id: ID!) {
  product(id: $id) {
    id
    title
    featuredImage { url }
    variants(first: 1) { nodes { id price } }
  }
}`

// StatusError is a non-2xx response of the Admin API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("admin api: status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed when retried.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

var _ catalog.Gateway = (*Client)(nil)

// Client queries products through the Admin GraphQL API of a shop. Transient
// failures are retried once.
type Client struct {
	http       *http.Client
	apiVersion string
	baseURL    string
	retries    uint64
	backoff    time.Duration
	tracer     trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAPIVersion overrides DefaultAPIVersion.
func WithAPIVersion(v string) Option {
	return func(c *Client) { c.apiVersion = v }
}

// WithBaseURL sends every request to baseURL instead of https://<shop>.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithBackoff sets the wait before the retry.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// WithTracerProvider sets the tracer provider; the global one is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer("funnel-upsell/shopify") }
}

// NewClient creates a Client with a 10s request timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:       &http.Client{Timeout: 10 * time.Second},
		apiVersion: DefaultAPIVersion,
		retries:    1,
		backoff:    200 * time.Millisecond,
		tracer:     otel.GetTracerProvider().Tracer("funnel-upsell/shopify"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Product returns the product with its first catalog.MaxVariants variants.
func (c *Client) Product(ctx context.Context, shop, accessToken, productGID string) (_ *catalog.Product, rerr error) {
	ctx, span := c.start(ctx, "shopify.Product", shop, productGID)
	defer func() { endSpan(span, rerr) }()

	var p *catalog.Product
	err := c.query(ctx, shop, accessToken, productQuery, productGID, func(data []byte) (err error) {
		p, err = decodeProductResponse(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("product.variants", len(p.Variants)))
	return p, nil
}

// Summary returns the title, featured image and first variant price.
func (c *Client) Summary(ctx context.Context, shop, accessToken, productGID string) (_ *catalog.Summary, rerr error) {
	ctx, span := c.start(ctx, "shopify.Summary", shop, productGID)
	defer func() { endSpan(span, rerr) }()

	var p *catalog.Product
	err := c.query(ctx, shop, accessToken, summaryQuery, productGID, func(data []byte) (err error) {
		p, err = decodeProductResponse(data)
		return err
	})
	if err != nil {
		return nil, err
	}

	s := &catalog.Summary{
		ID:    p.ID,
		Title: p.Title,
		Image: p.FeaturedImage,
	}
	if len(p.Variants) > 0 {
		s.Price = p.Variants[0].Price
	}
	return s, nil
}

func (c *Client) start(ctx context.Context, name, shop, productGID string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("shop", shop),
			attribute.String("product.id", productGID),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (c *Client) endpoint(shop string) string {
	base := c.baseURL
	if base == "" {
		base = "https://" + shop
	}
	return base + "/admin/api/" + c.apiVersion + "/graphql.json"
}

// query posts a GraphQL request and hands the body to parse. Network errors,
// 429, 5xx and throttling are retried; everything else fails immediately.
func (c *Client) query(ctx context.Context, shop, accessToken, query, productGID string, parse func([]byte) error) error {
	body := encodeRequest(query, productGID)
	url := c.endpoint(shop)

	op := func() error {
		data, err := c.post(ctx, url, accessToken, body)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && !se.Temporary() {
				return backoff.Permanent(err)
			}
			return err
		}
		if err := parse(data); err != nil {
			var ge *GraphQLError
			if errors.As(err, &ge) && ge.Throttled {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoff
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx)

	notify := func(err error, wait time.Duration) {
		zctx.From(ctx).Warn("Retrying Admin API request",
			zap.String("shop", shop),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	return backoff.RetryNotify(op, policy, notify)
}

func (c *Client) post(ctx context.Context, url, accessToken string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(accessTokenHeader, accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := data
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	return data, nil
}
