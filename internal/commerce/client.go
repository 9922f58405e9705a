// Package commerce is the HTTP client for the remote commerce service that
// owns the product catalog and invoices sales.
package commerce

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/minimercado-till/pkg/httpmiddleware"
)

const (
	catalogPath = "/catalogo"
	salePath    = "/ventas/facturar"

	maxBodySize = 8 << 20
)

// RemoteError is a non-2xx response from the commerce service.
type RemoteError struct {
	StatusCode int
	Detail     string
}

func (e *RemoteError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("commerce service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("commerce service returned %d: %s", e.StatusCode, e.Detail)
}

// RemoteDetail returns the human-readable reason sent by the service.
func (e *RemoteError) RemoteDetail() string {
	return e.Detail
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient     *http.Client
	timeout        time.Duration
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// WithTelemetry sets the providers used by the client transport.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(o *clientOptions) {
		o.tracerProvider = tp
		o.meterProvider = mp
	}
}

// Client talks to the commerce service. It implements catalog.Source and
// checkout.Submitter.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a Client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse commerce url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("commerce url %q: scheme must be http or https", baseURL)
	}

	o := clientOptions{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	hc := o.httpClient
	if hc == nil {
		var transportOpts []otelhttp.Option
		if o.tracerProvider != nil {
			transportOpts = append(transportOpts, otelhttp.WithTracerProvider(o.tracerProvider))
		}
		if o.meterProvider != nil {
			transportOpts = append(transportOpts, otelhttp.WithMeterProvider(o.meterProvider))
		}
		hc = &http.Client{
			Timeout:   o.timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, transportOpts...),
		}
	}

	return &Client{base: u, http: hc}, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path += path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do executes the request and returns the body of a 2xx response. Other
// statuses become *RemoteError.
func (c *Client) do(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := httpmiddleware.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, req.URL.Path)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{
			StatusCode: resp.StatusCode,
			Detail:     remoteDetail(data),
		}
	}
	return data, nil
}

// remoteDetail extracts the reason from an error body. A JSON object's
// "detail" is used when present: strings verbatim, anything else as JSON
// text. Other JSON payloads are returned as JSON text and plain bodies as
// they are.
func remoteDetail(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}

	d := jx.DecodeBytes(body)
	switch d.Next() {
	case jx.Object:
		var (
			detail string
			found  bool
		)
		err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) != "detail" || found {
				return d.Skip()
			}
			found = true
			switch d.Next() {
			case jx.String:
				s, err := d.Str()
				detail = s
				return err
			case jx.Null:
				found = false
				return d.Null()
			default:
				raw, err := d.Raw()
				detail = string(raw)
				return err
			}
		})
		if err != nil {
			return string(body)
		}
		if found {
			return detail
		}
		return string(body)
	case jx.String:
		if s, err := d.Str(); err == nil {
			return s
		}
	}
	return string(body)
}
