package token

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker_FetchToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"stream_token":"tok_123"}`))
	}))
	defer server.Close()

	credential := func(context.Context) string { return "ambient-cred" }
	broker := NewBroker(server.URL, NewMemoryRegistry(), credential, server.Client())

	tok := broker.FetchToken(context.Background())
	assert.Equal(t, "tok_123", tok)
	assert.Equal(t, "Bearer ambient-cred", gotAuth)
}

func TestBroker_NotFoundSetsStickyFlag(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	registry := NewMemoryRegistry()
	broker := NewBroker(server.URL, registry, nil, server.Client())

	assert.Empty(t, broker.FetchToken(context.Background()))
	require.Equal(t, int64(1), calls.Load())

	// Subsequent fetches make zero network attempts.
	assert.Empty(t, broker.FetchToken(context.Background()))
	assert.Empty(t, broker.FetchToken(context.Background()))
	assert.Equal(t, int64(1), calls.Load())

	unavailable, err := registry.Unavailable()
	require.NoError(t, err)
	assert.True(t, unavailable)
}

func TestBroker_StickyFlagSurvivesRestart(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	registry := NewMemoryRegistry()

	first := NewBroker(server.URL, registry, nil, server.Client())
	first.FetchToken(context.Background())
	require.Equal(t, int64(1), calls.Load())

	// A new broker over the same durable registry simulates a process
	// restart: the flag is read back at construction.
	second := NewBroker(server.URL, registry, nil, server.Client())
	assert.Empty(t, second.FetchToken(context.Background()))
	assert.Equal(t, int64(1), calls.Load())
}

func TestBroker_ServerErrorIsNotSticky(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	registry := NewMemoryRegistry()
	broker := NewBroker(server.URL, registry, nil, server.Client())

	assert.Empty(t, broker.FetchToken(context.Background()))
	assert.Empty(t, broker.FetchToken(context.Background()))

	// Each call retried the endpoint; the flag was never set.
	assert.Equal(t, int64(2), calls.Load())
	unavailable, err := registry.Unavailable()
	require.NoError(t, err)
	assert.False(t, unavailable)
}

func TestBroker_NetworkErrorDegradesToEmpty(t *testing.T) {
	// Point at a closed server.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	broker := NewBroker(url, NewMemoryRegistry(), nil, nil)
	assert.Empty(t, broker.FetchToken(context.Background()))
}

func TestBroker_MalformedResponseDegradesToEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	broker := NewBroker(server.URL, NewMemoryRegistry(), nil, server.Client())
	assert.Empty(t, broker.FetchToken(context.Background()))
}

func TestBroker_NoCredentialOmitsAuthHeader(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"stream_token":"t"}`))
	}))
	defer server.Close()

	broker := NewBroker(server.URL, NewMemoryRegistry(), func(context.Context) string { return "" }, server.Client())
	broker.FetchToken(context.Background())
	assert.Empty(t, gotAuth)
}

func TestMemoryRegistry_MarkIsIdempotent(t *testing.T) {
	registry := NewMemoryRegistry()

	require.NoError(t, registry.MarkUnavailable())
	require.NoError(t, registry.MarkUnavailable())

	unavailable, err := registry.Unavailable()
	require.NoError(t, err)
	assert.True(t, unavailable)
}
