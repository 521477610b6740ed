package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// MaxRetries is the maximum number of retry attempts for retryable
	// transport-level failures (401/409/428/429).
	MaxRetries = 3

	// DefaultBackoff is the initial backoff duration for exponential
	// backoff on rate limiting.
	DefaultBackoff = 1 * time.Second
)

// httpTransport wraps http.Client with authentication, session, and retry
// logic. It is the transport half of HTTPClient; HTTPClient layers the wire
// protocol on top.
type httpTransport struct {
	baseURL       string
	httpClient    *http.Client
	tokenProvider TokenProvider // nil in dev mode
	sessionMgr    *SessionManager
	audience      string
	debugSub      string
}

func newHTTPTransport(baseURL string, tokenProvider TokenProvider, sessionMgr *SessionManager, audience, debugSub string) *httpTransport {
	return &httpTransport{
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		tokenProvider: tokenProvider,
		sessionMgr:    sessionMgr,
		audience:      audience,
		debugSub:      debugSub,
	}
}

func (c *httpTransport) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	correlationID := uuid.New().String()
	logger := log.With().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("correlationId", correlationID).
		Logger()
	return c.doWithRetry(ctx, req, &logger, correlationID, 0)
}

func (c *httpTransport) doWithRetry(ctx context.Context, req *http.Request, logger *zerolog.Logger, correlationID string, retryCount int) (*http.Response, error) {
	reqClone, err := cloneRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to clone request: %w", err)
	}
	reqClone.Header.Set("X-Correlation-ID", correlationID)

	if c.tokenProvider == nil {
		reqClone.Header.Set("X-Debug-Sub", c.debugSub)
	} else {
		token, err := c.tokenProvider.GetToken(ctx, c.audience, "", false)
		if err != nil {
			return nil, fmt.Errorf("failed to get auth token: %w", err)
		}
		reqClone.Header.Set("Authorization", "Bearer "+token.AccessToken)
	}

	if c.sessionMgr != nil {
		session, err := c.sessionMgr.EnsureSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to ensure sync session: %w", err)
		}
		reqClone.Header.Set("X-Sync-Session", session.ID)
		reqClone.Header.Set("X-Sync-Epoch", strconv.Itoa(session.Epoch))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(reqClone)
	duration := time.Since(start)
	if err != nil {
		logger.Error().Err(err).Dur("duration", duration).Msg("sync HTTP request failed")
		return nil, &TransportError{Err: err}
	}

	logger.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Int("retryCount", retryCount).
		Msg("sync HTTP request completed")

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return c.handleUnauthorized(ctx, req, resp, logger, correlationID, retryCount)
	case http.StatusConflict:
		return c.handleConflict(ctx, req, resp, logger, correlationID, retryCount)
	case http.StatusPreconditionRequired:
		return c.handlePreconditionRequired(ctx, req, resp, logger, correlationID, retryCount)
	case http.StatusTooManyRequests:
		return c.handleRateLimit(ctx, req, resp, logger, correlationID, retryCount)
	default:
		return resp, nil
	}
}

func (c *httpTransport) handleUnauthorized(ctx context.Context, req *http.Request, resp *http.Response, logger *zerolog.Logger, correlationID string, retryCount int) (*http.Response, error) {
	resp.Body.Close()
	if retryCount >= MaxRetries {
		return nil, &AuthError{Err: fmt.Errorf("authentication failed after %d retries", retryCount)}
	}
	if c.tokenProvider == nil {
		return nil, &AuthError{Err: fmt.Errorf("authentication failed in dev mode")}
	}
	logger.Warn().Msg("401 Unauthorized - invalidating token and retrying")
	c.tokenProvider.InvalidateToken(c.audience, "")
	return c.doWithRetry(ctx, req, logger, correlationID, retryCount+1)
}

func (c *httpTransport) handleConflict(ctx context.Context, req *http.Request, resp *http.Response, logger *zerolog.Logger, correlationID string, retryCount int) (*http.Response, error) {
	var errResp struct {
		Error string `json:"error"`
		Epoch int    `json:"epoch,omitempty"`
	}
	bodyBytes, err := io.ReadAll(resp.Body)
	resp.Body.Close()

	if err == nil {
		if jsonErr := json.Unmarshal(bodyBytes, &errResp); jsonErr == nil && errResp.Error == "epoch_mismatch" {
			if h := resp.Header.Get("X-Sync-Epoch"); h != "" {
				if e, parseErr := strconv.Atoi(h); parseErr == nil {
					errResp.Epoch = e
				}
			}
			return c.handleEpochMismatch(ctx, req, errResp.Epoch, logger, correlationID, retryCount)
		}
	}

	// Not an epoch mismatch: a version conflict. Reconstruct the body and
	// hand the response back so the caller (HTTPClient) can decode it into
	// a ConflictError with the server's version.
	resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	return resp, nil
}

func (c *httpTransport) handleEpochMismatch(ctx context.Context, req *http.Request, serverEpoch int, logger *zerolog.Logger, correlationID string, retryCount int) (*http.Response, error) {
	if retryCount >= MaxRetries || c.sessionMgr == nil {
		return nil, &EpochMismatchError{ServerEpoch: serverEpoch}
	}
	logger.Warn().Int("serverEpoch", serverEpoch).Msg("epoch mismatch - refreshing session and retrying")
	c.sessionMgr.InvalidateSession()
	return c.doWithRetry(ctx, req, logger, correlationID, retryCount+1)
}

func (c *httpTransport) handlePreconditionRequired(ctx context.Context, req *http.Request, resp *http.Response, logger *zerolog.Logger, correlationID string, retryCount int) (*http.Response, error) {
	resp.Body.Close()
	if retryCount >= MaxRetries || c.sessionMgr == nil {
		return nil, &TransportError{Err: fmt.Errorf("session precondition failed after %d retries", retryCount)}
	}
	logger.Warn().Msg("428 Precondition Required - session missing or expired, refreshing and retrying")
	c.sessionMgr.InvalidateSession()
	return c.doWithRetry(ctx, req, logger, correlationID, retryCount+1)
}

func (c *httpTransport) handleRateLimit(ctx context.Context, req *http.Request, resp *http.Response, logger *zerolog.Logger, correlationID string, retryCount int) (*http.Response, error) {
	resp.Body.Close()
	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))

	if retryCount >= MaxRetries {
		return nil, &RateLimitedError{RetryAfterSeconds: int(retryAfter.Seconds())}
	}
	if retryAfter == 0 {
		retryAfter = DefaultBackoff * time.Duration(1<<retryCount)
	}

	logger.Warn().Dur("retryAfter", retryAfter).Int("retryCount", retryCount).Msg("rate limited - backing off")
	select {
	case <-time.After(retryAfter):
		return c.doWithRetry(ctx, req, logger, correlationID, retryCount+1)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func cloneRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	clone, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	for k, v := range req.Header {
		switch k {
		case "Authorization", "X-Sync-Session", "X-Sync-Epoch", "X-Debug-Sub":
			continue
		}
		clone.Header[k] = v
	}
	return clone, nil
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
