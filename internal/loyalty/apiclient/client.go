// Package apiclient talks to the loyalty backend. Every request carries the
// current access token; a 401 triggers one refresh and one retry of the same
// request.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/loyalty/internal/loyalty/domain"
	"github.com/aussiebroadwan/loyalty/pkg/httpx"
	"github.com/aussiebroadwan/loyalty/pkg/idx"
	"github.com/aussiebroadwan/loyalty/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	maxBodyBytes = 4 << 20

	HeaderRequestID = "X-Request-ID"
	HeaderDeviceID  = "X-Device-ID"
)

// TokenSource is the token store as the client sees it. tokens.Store
// implements it.
type TokenSource interface {
	AccessToken() string
	RefreshToken() string
	SetTokens(pair domain.TokenPair)
	ClearTokens()
}

type Options struct {
	BaseURL    string
	HTTPClient *http.Client // default: 10s timeout
	Tokens     TokenSource
	Logger     *slog.Logger
	Registerer prometheus.Registerer // nil: metrics are kept but not exported

	// RefreshLimit throttles refresh round-trips. The zero value is unlimited.
	RefreshLimit httpx.RateLimitConfig

	DeviceID  string
	UserAgent string

	// OnRefreshed runs after a refresh stored a new pair; OnSessionEnded runs
	// after a failed refresh cleared it. They keep the session in step with
	// the token source and run on the refreshing goroutine.
	OnRefreshed    func(pair domain.TokenPair)
	OnSessionEnded func(err error)
}

type Client struct {
	baseURL   string
	http      *http.Client
	tokens    TokenSource
	logger    *slog.Logger
	deviceID  string
	userAgent string

	limiter *rate.Limiter
	group   singleflight.Group
	metrics *metrics

	onRefreshed    func(pair domain.TokenPair)
	onSessionEnded func(err error)
}

func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}

	c := &Client{
		baseURL:        strings.TrimSuffix(opts.BaseURL, "/"),
		http:           hc,
		tokens:         opts.Tokens,
		logger:         slogx.OrDiscard(opts.Logger),
		deviceID:       opts.DeviceID,
		userAgent:      opts.UserAgent,
		limiter:        opts.RefreshLimit.Limiter(),
		metrics:        newMetrics(opts.Registerer),
		onRefreshed:    opts.OnRefreshed,
		onSessionEnded: opts.OnSessionEnded,
	}
	if c.onRefreshed == nil {
		c.onRefreshed = func(domain.TokenPair) {}
	}
	if c.onSessionEnded == nil {
		c.onSessionEnded = func(error) {}
	}
	return c
}

// pendingRequest is one outbound call, kept so it can be re-sent after a
// refresh. The body is buffered for that reason.
type pendingRequest struct {
	method string
	url    string
	body   []byte
	header http.Header

	// token is the access token the last attempt went out with.
	token   string
	retried bool
}

type response struct {
	status int
	body   []byte
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, in, out)
}

func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPut, path, nil, in, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, out)
}

// Do sends an authenticated request and decodes a 2xx JSON body into out
// (nil discards it). Transport errors are returned unchanged.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	pr, err := c.newPending(method, path, query, in)
	if err != nil {
		return err
	}

	reqID := idx.New().String()
	pr.header.Set(HeaderRequestID, reqID)
	ctx = slogx.WithRequestID(slogx.WithContext(ctx, c.logger.With("method", method, "path", path)), reqID)

	pr.token = c.tokens.AccessToken()
	httpx.SetBearer(pr.header, pr.token)

	for {
		resp, err := c.dispatch(ctx, pr)
		if err != nil {
			return err
		}

		if resp.status != http.StatusUnauthorized {
			return decodeResponse(resp, out)
		}

		if pr.retried {
			slogx.FromContext(ctx).Warn("retried request rejected again")
			return parseErrorResponse(resp)
		}

		if err := c.recover(ctx, pr); err != nil {
			return err
		}
	}
}

// recover runs the 401 path for pr: at most one refresh, then the header is
// patched for the single retry.
func (c *Client) recover(ctx context.Context, pr *pendingRequest) error {
	log := slogx.FromContext(ctx)
	pr.retried = true

	// Refresh is read before access: a rotation between the two reads then
	// shows up as a changed access token rather than a fresh refresh token.
	refresh := c.tokens.RefreshToken()

	// Another request already rotated the pair while this one was in flight.
	if current := c.tokens.AccessToken(); current != "" && current != pr.token {
		log.Debug("access token rotated concurrently; retrying")
		c.patch(pr, current)
		return nil
	}

	if refresh == "" {
		log.Info("access token rejected and no refresh token available")
		return ErrNoRefreshToken
	}

	log.Info("access token rejected; refreshing")
	pair, err := c.refreshShared(ctx, refresh)
	if err != nil {
		return err
	}

	c.patch(pr, pair.AccessToken)
	return nil
}

func (c *Client) patch(pr *pendingRequest, token string) {
	pr.token = token
	pr.header.Del("Authorization")
	httpx.SetBearer(pr.header, token)
	c.metrics.retries.Inc()
}

// refreshShared coalesces concurrent refreshes of the same refresh token into
// one round-trip. The outcome is applied to the token source once.
func (c *Client) refreshShared(ctx context.Context, refresh string) (domain.TokenPair, error) {
	v, err, _ := c.group.Do(refresh, func() (any, error) {
		log := slogx.FromContext(ctx)

		// A flight for this token may have finished just before we joined.
		if current := c.tokens.RefreshToken(); current != refresh {
			if access := c.tokens.AccessToken(); access != "" {
				return domain.TokenPair{AccessToken: access, RefreshToken: current}, nil
			}
			return domain.TokenPair{}, ErrNoRefreshToken
		}

		if !c.limiter.Allow() {
			c.metrics.refreshed("throttled")
			c.tokens.ClearTokens()
			c.onSessionEnded(ErrRefreshThrottled)
			log.Warn("refresh throttled; session cleared")
			return domain.TokenPair{}, ErrRefreshThrottled
		}

		// Followers share this call, so the leader's cancellation must not
		// fail them.
		pair, err := c.RefreshTokens(context.WithoutCancel(ctx), refresh)
		if err != nil {
			c.metrics.refreshed("failure")
			c.tokens.ClearTokens()
			c.onSessionEnded(err)
			log.Warn("refresh failed; session cleared", "error", err)
			return domain.TokenPair{}, err
		}

		c.metrics.refreshed("success")
		c.tokens.SetTokens(pair)
		c.onRefreshed(pair)
		log.Info("tokens refreshed")
		return pair, nil
	})
	if err != nil {
		return domain.TokenPair{}, err
	}
	return v.(domain.TokenPair), nil
}

// Refresh renews the pair outside the 401 path, for callers that refresh on
// their own schedule. It shares the in-flight refresh for the same token with
// any retrying request, so one refresh token is never spent twice. Like the
// retry path it applies the result to the token source and runs the hooks.
func (c *Client) Refresh(ctx context.Context, refresh string) (domain.TokenPair, error) {
	if refresh == "" {
		return domain.TokenPair{}, ErrNoRefreshToken
	}

	ctx = slogx.WithRequestID(slogx.WithContext(ctx, c.logger.With("op", "refresh")), idx.New().String())
	return c.refreshShared(ctx, refresh)
}

// RefreshTokens calls POST /auth/refresh-token directly. It is not subject to
// 401 interception and does not touch the token source.
func (c *Client) RefreshTokens(ctx context.Context, refresh string) (domain.TokenPair, error) {
	pr, err := c.newPending(http.MethodPost, "/auth/refresh-token", nil, domain.RefreshRequest{RefreshToken: refresh})
	if err != nil {
		return domain.TokenPair{}, err
	}
	pr.header.Set(HeaderRequestID, idx.New().String())

	resp, err := c.dispatch(ctx, pr)
	if err != nil {
		return domain.TokenPair{}, err
	}

	var pair domain.TokenPair
	if err := decodeResponse(resp, &pair); err != nil {
		return domain.TokenPair{}, err
	}

	if !pair.Complete() {
		return domain.TokenPair{}, fmt.Errorf("%w: refresh response missing token", ErrDecode)
	}
	return pair, nil
}

// Public sends a request without credentials and without 401 handling. Used
// for login.
func (c *Client) Public(ctx context.Context, method, path string, in, out any) error {
	return c.once(ctx, method, path, "", in, out)
}

// DoOnce sends an authenticated request without the 401 path: a rejected
// token comes back as *APIError and nothing is refreshed. Used for logout.
func (c *Client) DoOnce(ctx context.Context, method, path string, in, out any) error {
	return c.once(ctx, method, path, c.tokens.AccessToken(), in, out)
}

func (c *Client) once(ctx context.Context, method, path, token string, in, out any) error {
	pr, err := c.newPending(method, path, nil, in)
	if err != nil {
		return err
	}
	pr.header.Set(HeaderRequestID, idx.New().String())
	httpx.SetBearer(pr.header, token)

	resp, err := c.dispatch(ctx, pr)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

func (c *Client) newPending(method, path string, query url.Values, in any) (*pendingRequest, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	pr := &pendingRequest{method: method, url: u, header: http.Header{}}
	pr.header.Set("Accept", "application/json")

	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		pr.body = body
		pr.header.Set("Content-Type", "application/json")
	}

	if c.deviceID != "" {
		pr.header.Set(HeaderDeviceID, c.deviceID)
	}
	if c.userAgent != "" {
		pr.header.Set("User-Agent", c.userAgent)
	}
	return pr, nil
}

// dispatch sends pr once and reads the whole body.
func (c *Client) dispatch(ctx context.Context, pr *pendingRequest) (response, error) {
	var body io.Reader
	if pr.body != nil {
		body = bytes.NewReader(pr.body)
	}

	req, err := http.NewRequestWithContext(ctx, pr.method, pr.url, body)
	if err != nil {
		return response{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = pr.header.Clone()

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.observe(pr.method, 0)
		return response{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.metrics.observe(pr.method, 0)
		return response{}, fmt.Errorf("failed to read response body: %w", err)
	}

	c.metrics.observe(pr.method, resp.StatusCode)
	slogx.FromContext(ctx).Debug("api response",
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return response{status: resp.StatusCode, body: raw}, nil
}

func decodeResponse(resp response, out any) error {
	if !httpx.IsSuccess(resp.status) {
		return parseErrorResponse(resp)
	}

	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}

	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}

func parseErrorResponse(resp response) error {
	apiErr := &APIError{Status: resp.status}

	var msg httpx.MessageResponse
	if err := json.Unmarshal(resp.body, &msg); err == nil {
		apiErr.Message = msg.Message
	}
	return apiErr
}
