package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SessionRefreshBuffer is how long before expiry EnsureSession proactively
// refreshes.
const SessionRefreshBuffer = 1 * time.Minute

// Session is an active sync session against the remote, carrying the
// tenant epoch used to detect a stale client after another device's
// force-purge.
type Session struct {
	ID        string
	Epoch     int
	ExpiresAt time.Time
}

// SessionManager caches a single Session and knows how to (re)create one
// against the remote.
type SessionManager struct {
	mu            sync.RWMutex
	baseURL       string
	httpClient    *http.Client
	tokenProvider TokenProvider
	audience      string
	devMode       bool
	debugSub      string

	cached *Session
}

// NewSessionManager creates a production-mode session manager backed by a
// TokenProvider.
func NewSessionManager(baseURL string, tokenProvider TokenProvider, audience string) *SessionManager {
	return &SessionManager{
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		tokenProvider: tokenProvider,
		audience:      audience,
	}
}

// NewDevSessionManager creates a dev-mode session manager that authenticates
// with X-Debug-Sub instead of a bearer token, for local experimentation
// against synctest.Server.
func NewDevSessionManager(baseURL, debugSub string) *SessionManager {
	return &SessionManager{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		devMode:    true,
		debugSub:   debugSub,
	}
}

// EnsureSession returns a valid session, creating or refreshing as needed.
func (sm *SessionManager) EnsureSession(ctx context.Context) (*Session, error) {
	sm.mu.RLock()
	cached := sm.cached
	sm.mu.RUnlock()

	if cached != nil && time.Now().Add(SessionRefreshBuffer).Before(cached.ExpiresAt) {
		return cached, nil
	}
	return sm.createSession(ctx)
}

// InvalidateSession clears the cached session; the next EnsureSession call
// creates a fresh one.
func (sm *SessionManager) InvalidateSession() {
	sm.mu.Lock()
	sm.cached = nil
	sm.mu.Unlock()
	log.Debug().Msg("invalidated cached sync session")
}

func (sm *SessionManager) createSession(ctx context.Context) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.cached != nil && time.Now().Add(SessionRefreshBuffer).Before(sm.cached.ExpiresAt) {
		return sm.cached, nil
	}

	url := sm.baseURL + "/v1/sync/sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if sm.devMode {
		req.Header.Set("X-Debug-Sub", sm.debugSub)
	} else {
		token, err := sm.tokenProvider.GetToken(ctx, sm.audience, "", false)
		if err != nil {
			return nil, fmt.Errorf("failed to get auth token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	}

	resp, err := sm.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session creation failed with status %d", resp.StatusCode)
	}

	var body struct {
		ID        string    `json:"id"`
		Epoch     int       `json:"epoch"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to parse session response: %w", err)
	}

	epoch := body.Epoch
	if h := resp.Header.Get("X-Sync-Epoch"); h != "" {
		if e, err := strconv.Atoi(h); err == nil {
			epoch = e
		}
	}

	session := &Session{ID: body.ID, Epoch: epoch, ExpiresAt: body.ExpiresAt}
	sm.cached = session

	log.Info().Str("sessionId", session.ID).Int("epoch", epoch).Msg("created new sync session")
	return session, nil
}
