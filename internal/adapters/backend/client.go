// Package backend talks to the remote practice-room REST service.
package backend

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

	"github.com/dkeye/Jam/internal/core"
	"github.com/dkeye/Jam/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 4 << 20

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s %s: backend status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: backend status %d: %s", e.Method, e.Path, e.Code, e.Detail)
}

type Options struct {
	BaseURL string
	// Timeout bounds each request including rate-limit waiting.
	Timeout time.Duration
	// RPS and Burst configure the outbound token bucket; RPS <= 0 disables it.
	RPS   float64
	Burst int
	HTTP  *http.Client
}

// Client implements core.Backend over HTTP.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	timeout time.Duration
}

var _ core.Backend = (*Client)(nil)

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend url %q: scheme and host required", opts.BaseURL)
	}
	if base.Path == "" {
		base.Path = "/"
	}
	c := &Client{base: base, http: opts.HTTP, timeout: opts.Timeout}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return c, nil
}

func (c *Client) FetchRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	var room domain.Room
	if err := c.do(ctx, http.MethodGet, []string{"rooms", url.PathEscape(string(id))}, nil, nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) FetchAvailability(ctx context.Context, id domain.RoomID) ([]core.SlotVotes, error) {
	var out []core.SlotVotes
	if err := c.do(ctx, http.MethodGet, []string{"rooms", url.PathEscape(string(id)), "availability"}, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type saveAvailabilityRequest struct {
	Slots []string `json:"slots"`
}

func (c *Client) SaveAvailability(ctx context.Context, id domain.RoomID, nick domain.Nickname, slots []domain.Slot) error {
	body := saveAvailabilityRequest{Slots: make([]string, 0, len(slots))}
	for _, s := range slots {
		body.Slots = append(body.Slots, s.String())
	}
	q := url.Values{"nickname": []string{string(nick)}}
	return c.do(ctx, http.MethodPost, []string{"rooms", url.PathEscape(string(id)), "availability"}, q, body, nil)
}

func (c *Client) do(ctx context.Context, method string, segments []string, q url.Values, body, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	u := c.base.JoinPath(segments...)
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.backend").Str("method", method).Str("path", u.Path).Msg("request failed")
		return fmt.Errorf("%s %s: %w", method, u.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, u.Path, err)
	}
	log.Debug().Str("module", "adapters.backend").Str("method", method).Str("path", u.Path).Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("backend call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, Path: u.Path, Code: resp.StatusCode, Detail: detailOf(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, u.Path, err)
	}
	return nil
}

// detailOf pulls the human message out of a {"detail": ...} error body.
func detailOf(data []byte) string {
	var env struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &env); err != nil || len(env.Detail) == 0 {
		return strings.TrimSpace(string(data))
	}
	var msg string
	if err := json.Unmarshal(env.Detail, &msg); err == nil {
		return msg
	}
	return string(env.Detail)
}

// IsStatus reports whether err is a backend answer with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
