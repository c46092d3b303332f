// Package upstream talks to the scale vendor API: telemetry export and the scale catalog.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	masterdata "scalesync/internal/masterdata/domain"
	telemetry "scalesync/internal/telemetry/domain"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
)

// FetchError reports a failed upstream call. Status is 0 for transport errors and timeouts.
type FetchError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("upstream: %s: http %d: %s", e.Op, e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("upstream: %s: http %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("upstream: %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("upstream: %s: failed", e.Op)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is makes every FetchError match telemetry.ErrUpstreamFetch.
func (e *FetchError) Is(target error) bool { return target == telemetry.ErrUpstreamFetch }

// Client is the upstream REST client.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// Option configures the client.
type Option func(*options)

type options struct {
	timeout time.Duration
	logger  *zap.Logger
	hc      *http.Client
}

// WithTimeout bounds every request.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHTTPClient overrides the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		if hc != nil {
			o.hc = hc
		}
	}
}

// NewClient constructs a client. Requests are never retried.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("upstream: empty base url")
	}
	o := options{timeout: defaultTimeout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	rc := resty.New()
	if o.hc != nil {
		rc = resty.NewWithClient(o.hc)
	}
	rc.SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(o.timeout).
		SetRetryCount(0).
		SetLogger(o.logger.Sugar()).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if token != "" {
		rc.SetAuthToken(token)
	}
	return &Client{http: rc, logger: o.logger}, nil
}

type exportRequest struct {
	Scale          string `json:"scale"`
	TimeStart      int64  `json:"time_start"`
	TimeEnd        int64  `json:"time_end"`
	TimeResolution string `json:"time_resolution"`
	Format         string `json:"format"`
}

// Export fetches raw telemetry of one scale for [start, end).
func (c *Client) Export(ctx context.Context, entityID string, res telemetry.Resolution, start, end time.Time) ([]telemetry.RawItem, error) {
	if entityID == "" {
		return nil, errors.New("upstream: empty entity id")
	}
	if !res.Valid() {
		return nil, fmt.Errorf("upstream: %w: %q", telemetry.ErrUnknownResolution, res)
	}

	body, err := c.do(ctx, "export", http.MethodPost, "/export", exportRequest{
		Scale:          entityID,
		TimeStart:      start.Unix(),
		TimeEnd:        end.Unix(),
		TimeResolution: string(res),
		Format:         "json",
	})
	if err != nil {
		return nil, err
	}

	items, err := decodeList(body)
	if err != nil {
		return nil, &FetchError{Op: "export", Err: fmt.Errorf("decode: %w", err)}
	}
	out := make([]telemetry.RawItem, 0, len(items))
	for _, item := range items {
		out = append(out, telemetry.RawItem(item))
	}
	c.logger.Debug("upstream export",
		zap.String("entity_id", entityID),
		zap.String("resolution", string(res)),
		zap.Time("start", start),
		zap.Time("end", end),
		zap.Int("items", len(out)),
	)
	return out, nil
}

// ListScales fetches the scale catalog.
func (c *Client) ListScales(ctx context.Context) ([]masterdata.Scale, error) {
	body, err := c.do(ctx, "list scales", http.MethodGet, "/scale", nil)
	if err != nil {
		return nil, err
	}
	items, err := decodeList(body)
	if err != nil {
		return nil, &FetchError{Op: "list scales", Err: fmt.Errorf("decode: %w", err)}
	}

	scales := make([]masterdata.Scale, 0, len(items))
	for _, item := range items {
		scale, ok := scaleFromItem(item)
		if !ok {
			c.logger.Warn("upstream scale without id skipped")
			continue
		}
		scales = append(scales, scale)
	}
	return scales, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	if payload != nil {
		req.SetBody(payload)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, &FetchError{Op: op, Err: err}
	}
	if resp.IsError() || resp.StatusCode() >= http.StatusMultipleChoices {
		return nil, &FetchError{Op: op, Status: resp.StatusCode(), Body: truncate(resp.String(), maxErrorBody)}
	}
	return resp.Body(), nil
}

// decodeList accepts a bare JSON array or an object carrying the array under "data".
func decodeList(body []byte) ([]map[string]any, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if body[0] == '[' {
		var items []map[string]any
		if err := dec.Decode(&items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var envelope struct {
		Data []map[string]any `json:"data"`
	}
	if err := dec.Decode(&envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

func scaleFromItem(item map[string]any) (masterdata.Scale, bool) {
	scale := masterdata.Scale{
		ID:           stringValue(item["id"]),
		SerialNumber: stringValue(item["serial_number"]),
		HardwareKey:  stringValue(item["hardware_key"]),
		Name:         stringValue(item["name"]),
		Latitude:     floatValue(item["latitude"]),
		Longitude:    floatValue(item["longitude"]),
	}
	if scale.ID == "" {
		return masterdata.Scale{}, false
	}
	if ts, ok := telemetry.ParseTime(item["last_transmission"]); ok {
		scale.LastTransmission = &ts
	}
	return scale, true
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func floatValue(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case float64:
		f = t
	default:
		return nil
	}
	return &f
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
