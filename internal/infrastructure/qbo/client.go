package qbo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"github.com/mufasadev/stripe2qbo/internal/config"
	apperrors "github.com/mufasadev/stripe2qbo/internal/errors"
	"github.com/mufasadev/stripe2qbo/pkg/log"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxResponseSize = 4 << 20

// Client talks to the QuickBooks Online accounting API of one company (realm).
// It implements both the target ledger and its catalog.
type Client struct {
	http         *http.Client
	baseURL      string
	realmID      string
	minorVersion string
	limiter      *rate.Limiter
	group        singleflight.Group
	logger       *zerolog.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewClient authenticates with the configured refresh token. The access token is
// refreshed on demand for as long as ctx lives.
func NewClient(ctx context.Context, cfg config.QBO) *Client {
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	httpClient := oauthConfig.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	return NewClientWithHTTP(httpClient, cfg)
}

// NewClientWithHTTP uses httpClient as is; it must add authorization itself.
func NewClientWithHTTP(httpClient *http.Client, cfg config.QBO) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		http:         httpClient,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		realmID:      cfg.RealmID,
		minorVersion: cfg.MinorVersion,
		limiter:      rate.NewLimiter(limit, burst),
		logger:       log.Component("qbo"),
		cache:        make(map[string]string),
	}
}

type fault struct {
	Type   string `json:"type"`
	Errors []struct {
		Message string `json:"Message"`
		Detail  string `json:"Detail"`
		Code    string `json:"code"`
	} `json:"Error"`
}

func (f *fault) message() string {
	parts := make([]string, 0, len(f.Errors))
	for _, e := range f.Errors {
		msg := e.Message
		if e.Detail != "" {
			msg = fmt.Sprintf("%s: %s", e.Message, e.Detail)
		}
		if e.Code != "" {
			msg = fmt.Sprintf("%s (code %s)", msg, e.Code)
		}
		parts = append(parts, msg)
	}
	if len(parts) == 0 {
		return f.Type
	}
	return strings.Join(parts, "; ")
}

// do sends one rate limited request and decodes the JSON body into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.NewTransientError("qbo rate limiter", err)
	}

	if query == nil {
		query = url.Values{}
	}
	if c.minorVersion != "" {
		query.Set("minorversion", c.minorVersion)
	}
	endpoint := fmt.Sprintf("%s/%s/%s?%s", c.baseURL, c.realmID, strings.TrimLeft(path, "/"), query.Encode())

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return apperrors.NewTransientError("read qbo response", err)
	}

	if err = statusError(resp, data); err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("qbo request failed")
		return err
	}

	if out == nil {
		return nil
	}
	if err = json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func transportError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if apperrors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= http.StatusInternalServerError {
			return apperrors.NewTransientError("qbo token endpoint unavailable", err)
		}
		reason := retrieveErr.ErrorCode
		if reason == "" {
			reason = "token refresh failed"
		}
		return apperrors.NewAuthError(fmt.Sprintf("qbo: %s", reason))
	}
	if apperrors.Is(err, context.Canceled) {
		return err
	}
	if apperrors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTransientError("qbo request timed out", err)
	}
	return apperrors.NewTransientError("qbo request failed", err)
}

func statusError(resp *http.Response, data []byte) error {
	var envelope struct {
		Fault *fault `json:"Fault"`
	}
	_ = json.Unmarshal(data, &envelope)

	message := http.StatusText(resp.StatusCode)
	if envelope.Fault != nil {
		message = envelope.Fault.message()
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.NewRateLimitedError(retryAfter(resp.Header.Get("Retry-After")))
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return apperrors.NewAuthError(fmt.Sprintf("qbo: %s", message))
	case resp.StatusCode >= http.StatusInternalServerError:
		return apperrors.NewTransientError(fmt.Sprintf("qbo returned %d", resp.StatusCode), nil)
	case resp.StatusCode >= http.StatusBadRequest, envelope.Fault != nil:
		if envelope.Fault != nil && (envelope.Fault.Type == "AuthenticationFault" || envelope.Fault.Type == "AuthorizationFault") {
			return apperrors.NewAuthError(fmt.Sprintf("qbo: %s", message))
		}
		return apperrors.NewValidationError(fmt.Sprintf("qbo: %s", message))
	}
	return nil
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}

// query runs a QuickBooks SQL-like query and decodes the rows of entity into dst.
func (c *Client) query(ctx context.Context, entity, q string, dst interface{}) error {
	var resp struct {
		QueryResponse map[string]json.RawMessage `json:"QueryResponse"`
	}
	if err := c.do(ctx, http.MethodGet, "query", url.Values{"query": {q}}, nil, &resp); err != nil {
		return err
	}
	raw, ok := resp.QueryResponse[entity]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s rows: %w", entity, err)
	}
	return nil
}

// create posts payload to the entity endpoint and returns the new record id.
func (c *Client) create(ctx context.Context, entity string, payload interface{}) (string, error) {
	var resp map[string]json.RawMessage
	if err := c.do(ctx, http.MethodPost, strings.ToLower(entity), nil, payload, &resp); err != nil {
		return "", err
	}
	raw, ok := resp[entity]
	if !ok {
		return "", fmt.Errorf("qbo %s response without %s", strings.ToLower(entity), entity)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", fmt.Errorf("decode created %s: %w", entity, err)
	}
	return rec.ID, nil
}

func (c *Client) cached(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.cache[key]
	return id, ok
}

func (c *Client) remember(key, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = id
}

// quote escapes a literal for a QuickBooks query.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}
