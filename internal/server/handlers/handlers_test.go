package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietlog/quietlog/internal/api"
	"github.com/quietlog/quietlog/internal/common"
	"github.com/quietlog/quietlog/internal/logging"
	"github.com/quietlog/quietlog/internal/server/users"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() logging.Logger {
	return logging.Discard()
}

type fakeUsers struct {
	registerErr error
	loginErr    error
	refreshErr  error
	tokenErr    error
	userID      string
}

func (f *fakeUsers) Register(ctx context.Context, login, password string) (*users.TokenPair, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &users.TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (f *fakeUsers) Login(ctx context.Context, login, password string) (*users.TokenPair, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &users.TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (f *fakeUsers) Refresh(ctx context.Context, refreshToken string) (*users.TokenPair, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &users.TokenPair{AccessToken: "access2", RefreshToken: "refresh2"}, nil
}

func (f *fakeUsers) UserIDFromToken(token string) (string, error) {
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return f.userID, nil
}

type fakeSync struct {
	pushUser    string
	pushRecords []api.SyncRecord
	pushErr     error
	changesUser string
	since       string
	changesErr  error
}

func (f *fakeSync) Push(ctx context.Context, userID string, records []api.SyncRecord) (*api.PushResponse, error) {
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	f.pushUser = userID
	f.pushRecords = records
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return &api.PushResponse{Accepted: ids, Cursor: "7"}, nil
}

func (f *fakeSync) Changes(ctx context.Context, userID, since string) (*api.ChangesResponse, error) {
	if f.changesErr != nil {
		return nil, f.changesErr
	}
	f.changesUser = userID
	f.since = since
	return &api.ChangesResponse{Records: nil, Cursor: "7"}, nil
}

type fakeDevices struct {
	userID   string
	deviceID string
}

func (f *fakeDevices) Touch(ctx context.Context, userID, deviceID string) error {
	f.userID = userID
	f.deviceID = deviceID
	return nil
}

func doJSON(t *testing.T, r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterHandler(t *testing.T) {
	tests := []struct {
		name string
		err  error
		body any
		want int
	}{
		{"created", nil, api.Credentials{Login: "alice", Password: "secret123"}, http.StatusCreated},
		{"validation error", fmt.Errorf("login too short: %w", common.ErrValidation), api.Credentials{Login: "al", Password: "secret123"}, http.StatusBadRequest},
		{"missing fields", nil, map[string]string{"login": "alice"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(&fakeUsers{registerErr: tt.err}, &fakeSync{}, nil, testLogger())
			w := doJSON(t, r, http.MethodPost, "/api/auth/register", "", tt.body)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestLoginHandler(t *testing.T) {
	t.Run("success returns token pair", func(t *testing.T) {
		r := NewRouter(&fakeUsers{}, &fakeSync{}, nil, testLogger())
		w := doJSON(t, r, http.MethodPost, "/api/auth/login", "", api.Credentials{Login: "alice", Password: "secret123"})
		require.Equal(t, http.StatusOK, w.Code)

		var pair api.TokenPair
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))
		assert.Equal(t, "access", pair.AccessToken)
		assert.Equal(t, "refresh", pair.RefreshToken)
	})

	t.Run("bad credentials", func(t *testing.T) {
		r := NewRouter(&fakeUsers{loginErr: common.ErrUnauthorized}, &fakeSync{}, nil, testLogger())
		w := doJSON(t, r, http.MethodPost, "/api/auth/login", "", api.Credentials{Login: "alice", Password: "wrong1234"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRefreshHandler(t *testing.T) {
	t.Run("rotates tokens", func(t *testing.T) {
		r := NewRouter(&fakeUsers{}, &fakeSync{}, nil, testLogger())
		w := doJSON(t, r, http.MethodPost, "/api/auth/refresh", "", api.RefreshRequest{RefreshToken: "refresh"})
		require.Equal(t, http.StatusOK, w.Code)

		var pair api.TokenPair
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))
		assert.Equal(t, "access2", pair.AccessToken)
	})

	t.Run("expired refresh token", func(t *testing.T) {
		r := NewRouter(&fakeUsers{refreshErr: common.ErrRefreshTokenExpired}, &fakeSync{}, nil, testLogger())
		w := doJSON(t, r, http.MethodPost, "/api/auth/refresh", "", api.RefreshRequest{RefreshToken: "stale"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestPushHandler(t *testing.T) {
	t.Run("requires token", func(t *testing.T) {
		r := NewRouter(&fakeUsers{tokenErr: common.ErrInvalidToken}, &fakeSync{}, nil, testLogger())
		w := doJSON(t, r, http.MethodPost, "/api/sync/push", "bad", api.PushRequest{})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing bearer header", func(t *testing.T) {
		r := NewRouter(&fakeUsers{}, &fakeSync{}, nil, testLogger())
		w := doJSON(t, r, http.MethodPost, "/api/sync/push", "", api.PushRequest{})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("applies records for the token's user", func(t *testing.T) {
		sync := &fakeSync{}
		devices := &fakeDevices{}
		r := NewRouter(&fakeUsers{userID: "u1"}, sync, devices, testLogger())

		id := uuid.NewString()
		req := api.PushRequest{
			DeviceID: "dev-1",
			Records:  []api.SyncRecord{{ID: id, Title: "hello", BodyFormat: "plain", Version: 1}},
		}
		w := doJSON(t, r, http.MethodPost, "/api/sync/push", "good", req)
		require.Equal(t, http.StatusOK, w.Code)

		var resp api.PushResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, []string{id}, resp.Accepted)
		assert.Equal(t, "7", resp.Cursor)

		assert.Equal(t, "u1", sync.pushUser)
		assert.Equal(t, "u1", devices.userID)
		assert.Equal(t, "dev-1", devices.deviceID)
	})

	t.Run("rejects structurally invalid records", func(t *testing.T) {
		r := NewRouter(&fakeUsers{userID: "u1"}, &fakeSync{}, nil, testLogger())
		req := api.PushRequest{
			DeviceID: "dev-1",
			Records:  []api.SyncRecord{{ID: "not-a-uuid", BodyFormat: "plain", Version: 1}},
		}
		w := doJSON(t, r, http.MethodPost, "/api/sync/push", "good", req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		r := NewRouter(&fakeUsers{userID: "u1"}, &fakeSync{}, nil, testLogger())
		req := httptest.NewRequest(http.MethodPost, "/api/sync/push", bytes.NewBufferString("{not json"))
		req.Header.Set("Authorization", "Bearer good")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestChangesHandler(t *testing.T) {
	t.Run("passes cursor through", func(t *testing.T) {
		sync := &fakeSync{}
		r := NewRouter(&fakeUsers{userID: "u1"}, sync, nil, testLogger())
		w := doJSON(t, r, http.MethodGet, "/api/sync/changes?since=3", "good", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "u1", sync.changesUser)
		assert.Equal(t, "3", sync.since)
	})

	t.Run("bad cursor", func(t *testing.T) {
		sync := &fakeSync{changesErr: fmt.Errorf("bad cursor: %w", common.ErrValidation)}
		r := NewRouter(&fakeUsers{userID: "u1"}, sync, nil, testLogger())
		w := doJSON(t, r, http.MethodGet, "/api/sync/changes?since=zzz", "good", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHealthz(t *testing.T) {
	r := NewRouter(&fakeUsers{}, &fakeSync{}, nil, testLogger())
	w := doJSON(t, r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
