// Package apiclient talks to clinic-service's /api/v1 over HTTP/JSON.
package apiclient

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

	"github.com/md-rashed-zaman/clinicdesk/libs/clinic"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Error is a non-2xx answer from clinic-service.
type Error struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("clinic-service: %d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("clinic-service: %d %s %v", e.Status, e.Message, e.Fields)
}

// UserMessage is the text to show at the front desk.
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Status)
}

// IsConflict reports a slot conflict rejected by the server.
func IsConflict(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api url %q must be absolute (http://host:port)", baseURL)
	}
	c := &Client{
		base: u,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) ListDoctors(ctx context.Context) ([]clinic.Doctor, error) {
	var out []clinic.Doctor
	err := c.do(ctx, http.MethodGet, "/api/v1/doctors", nil, nil, &out)
	return out, err
}

// ListAppointments returns every appointment dated inside r.
func (c *Client) ListAppointments(ctx context.Context, r clinic.DateRange) ([]clinic.Appointment, error) {
	q := url.Values{}
	q.Set("from", r.From.String())
	q.Set("to", r.To.String())
	var out []clinic.Appointment
	err := c.do(ctx, http.MethodGet, "/api/v1/appointments", q, nil, &out)
	return out, err
}

func (c *Client) ListAvailableSlots(ctx context.Context, doctorID string, day clinic.Date) ([]string, error) {
	q := url.Values{}
	q.Set("date", day.String())
	var out []string
	err := c.do(ctx, http.MethodGet, "/api/v1/doctors/"+url.PathEscape(doctorID)+"/slots", q, nil, &out)
	return out, err
}

func (c *Client) CreateAppointment(ctx context.Context, in clinic.AppointmentInput) (clinic.Appointment, error) {
	var out clinic.Appointment
	err := c.do(ctx, http.MethodPost, "/api/v1/appointments", nil, in, &out)
	return out, err
}

func (c *Client) UpdateAppointment(ctx context.Context, id string, patch clinic.AppointmentPatch) (clinic.Appointment, error) {
	var out clinic.Appointment
	err := c.do(ctx, http.MethodPatch, "/api/v1/appointments/"+url.PathEscape(id), nil, patch, &out)
	return out, err
}

func (c *Client) DeleteAppointment(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/appointments/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if q != nil {
		u.RawQuery = q.Encode()
	}

	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Message = body.Error
		apiErr.Fields = body.Fields
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
