package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/quietlog/quietlog/internal/api"
	"github.com/quietlog/quietlog/internal/common"
)

const defaultRequestTimeout = 15 * time.Second

// HTTPReplica is the typed HTTP client for the replica server. It holds the
// JWT pair and refreshes the access token once on a 401 before giving up.
type HTTPReplica struct {
	baseURL string
	http    *http.Client

	// OnTokens, when set, observes every installed pair so the caller can
	// persist the rotated refresh token across restarts.
	OnTokens func(access, refresh string)

	mu      sync.Mutex
	access  string
	refresh string
}

// NewHTTPReplica builds a client for the given base URL, e.g.
// "https://sync.example.com". A zero timeout falls back to the default.
func NewHTTPReplica(baseURL string, timeout time.Duration) *HTTPReplica {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &HTTPReplica{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// SetTokens installs a previously stored token pair.
func (r *HTTPReplica) SetTokens(access, refresh string) {
	r.mu.Lock()
	r.access, r.refresh = access, refresh
	r.mu.Unlock()

	if r.OnTokens != nil {
		r.OnTokens(access, refresh)
	}
}

// Tokens returns the current pair for persistence across restarts.
func (r *HTTPReplica) Tokens() (access, refresh string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.access, r.refresh
}

// Register creates an account and stores the issued tokens.
func (r *HTTPReplica) Register(ctx context.Context, login, password string) error {
	return r.authenticate(ctx, "/api/auth/register", login, password)
}

// Login authenticates and stores the issued tokens.
func (r *HTTPReplica) Login(ctx context.Context, login, password string) error {
	return r.authenticate(ctx, "/api/auth/login", login, password)
}

func (r *HTTPReplica) authenticate(ctx context.Context, path, login, password string) error {
	var pair api.TokenPair
	err := r.do(ctx, http.MethodPost, path, api.Credentials{Login: login, Password: password}, &pair, false)
	if err != nil {
		return err
	}
	r.SetTokens(pair.AccessToken, pair.RefreshToken)
	return nil
}

// Push implements Replica.
func (r *HTTPReplica) Push(ctx context.Context, req api.PushRequest) (*api.PushResponse, error) {
	var resp api.PushResponse
	if err := r.do(ctx, http.MethodPost, "/api/sync/push", req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Changes implements Replica.
func (r *HTTPReplica) Changes(ctx context.Context, since string) (*api.ChangesResponse, error) {
	path := "/api/sync/changes"
	if since != "" {
		path += "?since=" + url.QueryEscape(since)
	}
	var resp api.ChangesResponse
	if err := r.do(ctx, http.MethodGet, path, nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (r *HTTPReplica) do(ctx context.Context, method, path string, body, out any, authed bool) error {
	status, err := r.once(ctx, method, path, body, out, authed)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized && authed {
		if err := r.refreshTokens(ctx); err != nil {
			return err
		}
		status, err = r.once(ctx, method, path, body, out, authed)
		if err != nil {
			return err
		}
	}
	return statusError(status)
}

func (r *HTTPReplica) once(ctx context.Context, method, path string, body, out any, authed bool) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		r.mu.Lock()
		access := r.access
		r.mu.Unlock()
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return 0, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (r *HTTPReplica) refreshTokens(ctx context.Context) error {
	r.mu.Lock()
	refresh := r.refresh
	r.mu.Unlock()
	if refresh == "" {
		return common.ErrUnauthorized
	}

	var pair api.TokenPair
	status, err := r.once(ctx, http.MethodPost, "/api/auth/refresh", api.RefreshRequest{RefreshToken: refresh}, &pair, false)
	if err != nil {
		return err
	}
	if err := statusError(status); err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	r.SetTokens(pair.AccessToken, pair.RefreshToken)
	return nil
}

func statusError(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return common.ErrUnauthorized
	case status == http.StatusConflict:
		return common.ErrVersionConflict
	case status == http.StatusNotFound:
		return common.ErrNotFound
	default:
		return fmt.Errorf("replica returned status %d", status)
	}
}
