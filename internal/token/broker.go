package token

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// CredentialFunc supplies the ambient bearer credential, or "" when the
// caller is unauthenticated.
type CredentialFunc func(ctx context.Context) string

// Broker fetches per-stream tokens from the issuing endpoint. Tokens are
// opaque and short-lived; each stream fetches its own and nothing is cached
// except the sticky unavailability flag.
//
// Broker never fails the streaming path: every failure degrades to an empty
// token, letting the request fall back to ambient session authentication.
type Broker struct {
	endpoint    string
	httpClient  *http.Client
	registry    AvailabilityRegistry
	credential  CredentialFunc
	unavailable atomic.Bool
}

// NewBroker creates a broker for the given token endpoint. httpClient may
// be nil, in which case a client with a short timeout is used; the token
// exchange must never stall the stream it serves.
func NewBroker(endpoint string, registry AvailabilityRegistry, credential CredentialFunc, httpClient *http.Client) *Broker {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	b := &Broker{
		endpoint:   endpoint,
		httpClient: httpClient,
		registry:   registry,
		credential: credential,
	}
	if registry != nil {
		if unavailable, err := registry.Unavailable(); err != nil {
			logrus.Warnf("[Token] Failed to read endpoint availability: %v", err)
		} else if unavailable {
			b.unavailable.Store(true)
		}
	}
	return b
}

// FetchToken attempts one token exchange and returns the issued value, or
// "" when no token could be obtained. A 404 marks the endpoint permanently
// unavailable; any other failure is silent and may succeed next time.
func (b *Broker) FetchToken(ctx context.Context) string {
	if b.unavailable.Load() {
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		logrus.Warnf("[Token] Failed to build token request: %v", err)
		return ""
	}
	req.Header.Set("Content-Type", "application/json")
	if b.credential != nil {
		if cred := b.credential(ctx); cred != "" {
			req.Header.Set("Authorization", "Bearer "+cred)
		}
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		logrus.Warnf("[Token] Token fetch failed: %v", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// The endpoint does not exist in this deployment; stop asking.
		logrus.Infof("[Token] Token endpoint not found, disabling stream token fetch")
		b.markUnavailable()
		return ""
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logrus.Warnf("[Token] Token endpoint returned status %d", resp.StatusCode)
		return ""
	}

	var body struct {
		StreamToken string `json:"stream_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		logrus.Warnf("[Token] Failed to decode token response: %v", err)
		return ""
	}
	return body.StreamToken
}

// markUnavailable sets the sticky flag in memory and in durable storage.
func (b *Broker) markUnavailable() {
	b.unavailable.Store(true)
	if b.registry == nil {
		return
	}
	if err := b.registry.MarkUnavailable(); err != nil {
		logrus.Warnf("[Token] Failed to persist endpoint unavailability: %v", err)
	}
}
