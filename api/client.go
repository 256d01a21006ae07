package api

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const peerIDHeader = "X-Peer-ID"

// peerIDInjector is a custom http.RoundTripper that injects the local peer id
// into each request.
type peerIDInjector struct {
	peerID string
	next   http.RoundTripper
}

// RoundTrip intercepts the request, adds the peer id header, and passes it to
// the next transport.
func (t *peerIDInjector) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set(peerIDHeader, t.peerID)
	return t.next.RoundTrip(req)
}

// Client delivers signaling messages to remote peers over HTTP. It implements
// signaling.Sender: each message is POSTed to the remote peer's /signal
// endpoint, addressed through a peer-id -> base-URL registry kept up to date
// by discovery.
type Client struct {
	HttpClient *http.Client

	mu       sync.RWMutex
	peerURLs map[string]string
}

// NewClient creates a new API client, configured to automatically inject the
// provided local peer id.
func NewClient(localID string) *Client {
	transport := &peerIDInjector{
		peerID: localID,
		next:   http.DefaultTransport,
	}
	return &Client{
		HttpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		peerURLs: make(map[string]string),
	}
}

// SetPeerURL records where a remote peer's signaling endpoint lives, e.g.
// "http://192.168.1.7:8080".
func (c *Client) SetPeerURL(remoteID, baseURL string) {
	c.mu.Lock()
	c.peerURLs[remoteID] = baseURL
	c.mu.Unlock()
}

// RemovePeer forgets a remote peer's endpoint.
func (c *Client) RemovePeer(remoteID string) {
	c.mu.Lock()
	delete(c.peerURLs, remoteID)
	c.mu.Unlock()
}

func (c *Client) peerURL(remoteID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	url, ok := c.peerURLs[remoteID]
	return url, ok
}

// SendSignalingMessage posts the message to the remote peer without blocking
// the caller. The result arrives on exactly one of the callbacks.
func (c *Client) SendSignalingMessage(message, remoteID string, onSuccess func(), onFailure func(code int)) {
	baseURL, ok := c.peerURL(remoteID)
	if !ok {
		slog.Warn("No signaling endpoint known for peer", "remote", remoteID)
		if onFailure != nil {
			onFailure(http.StatusNotFound)
		}
		return
	}
	go func() {
		if err := c.postSignal(context.Background(), baseURL, message); err != nil {
			slog.Warn("Failed to deliver signaling message", "remote", remoteID, "error", err)
			if onFailure != nil {
				onFailure(http.StatusBadGateway)
			}
			return
		}
		if onSuccess != nil {
			onSuccess()
		}
	}()
}

func (c *Client) postSignal(ctx context.Context, baseURL, message string) error {
	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/signal",
		bytes.NewBufferString(message))
	if err != nil {
		return fmt.Errorf("failed to create signal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send signal request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("signal responded with non-OK status: %s", resp.Status)
	}
	return nil
}
