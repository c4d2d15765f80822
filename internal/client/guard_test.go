package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/parkwatch/console/internal/credential"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuarded(t *testing.T, h http.Handler) (*HTTPClient, *Guard, *credential.Store) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	creds := credential.NewMemory()
	guard := NewGuard(nil, creds, nil)
	return NewHTTPClient(srv.URL, guard, 5*time.Second), guard, creds
}

func TestGuardAttachesCurrentCredential(t *testing.T) {
	var gotAuth string
	c, _, creds := newGuarded(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"current": 3, "total": 10}`))
	}))

	require.NoError(t, creds.Set("t-1"))
	_, err := c.Occupancy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer t-1", gotAuth)

	// Re-read at every request, never cached.
	require.NoError(t, creds.Set("t-2"))
	_, err = c.Occupancy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer t-2", gotAuth)
}

func TestGuardWithoutCredentialSendsNoHeader(t *testing.T) {
	var hadHeader bool
	c, _, _ := newGuarded(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hadHeader = r.Header["Authorization"]
		w.Write([]byte(`[]`))
	}))

	_, err := c.ListAlerts(context.Background())
	require.NoError(t, err)
	assert.False(t, hadHeader, "no Authorization header expected without a credential")
}

func TestGuardUnauthorizedClearsAndFails(t *testing.T) {
	c, guard, creds := newGuarded(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail": "Token expired"}`))
	}))
	var redirects atomic.Int32
	guard.OnUnauthorized(func() { redirects.Add(1) })

	require.NoError(t, creds.Set("stale"))
	_, err := c.ListAlerts(context.Background())

	require.Error(t, err, "the triggering call must still fail")
	assert.True(t, IsUnauthorized(err))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Token expired", apiErr.Message)

	_, ok := creds.Get()
	assert.False(t, ok, "credential must be cleared")
	assert.Equal(t, int32(1), redirects.Load())
}

func TestGuardPassesOtherErrorsThrough(t *testing.T) {
	c, guard, creds := newGuarded(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "database down"}`))
	}))
	guard.OnUnauthorized(func() { t.Error("hook must not run on 500") })

	require.NoError(t, creds.Set("good"))
	_, err := c.ListAlerts(context.Background())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "database down", apiErr.Message)
	assert.False(t, IsUnauthorized(err))

	tok, ok := creds.Get()
	assert.True(t, ok)
	assert.Equal(t, "good", tok)
}

func TestGuardForbiddenIsNotAuthFailure(t *testing.T) {
	c, _, creds := newGuarded(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	require.NoError(t, creds.Set("tok"))

	err := c.ResolveAlert(context.Background(), "a1")
	require.Error(t, err)
	assert.False(t, IsUnauthorized(err))
	_, ok := creds.Get()
	assert.True(t, ok)
}

func TestGuardDoesNotMutateCallerRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	creds := credential.NewMemory()
	require.NoError(t, creds.Set("tok"))
	guard := NewGuard(nil, creds, nil)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := guard.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, req.Header.Get("Authorization"))
}
