package p2p

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/rescp17/lanPeerTalk/pkg/engine"
	"github.com/rescp17/lanPeerTalk/pkg/signaling"
)

// EngineFactory builds a fresh WebRTC engine for each channel.
type EngineFactory func() (engine.Engine, error)

// Client owns one Channel per remote peer and routes inbound signaling to the
// right one by sender id.
type Client struct {
	localID   string
	sender    signaling.Sender
	newEngine EngineFactory
	config    ChannelConfig

	mu        sync.Mutex
	channels  map[string]*Channel
	observers []ChannelObserver
}

// NewClient creates a client. The sender is shared by every channel the
// client creates.
func NewClient(localID string, sender signaling.Sender, newEngine EngineFactory) *Client {
	return &Client{
		localID:   localID,
		sender:    sender,
		newEngine: newEngine,
		config:    DefaultChannelConfig(),
		channels:  make(map[string]*Channel),
	}
}

// LocalID returns this peer's identity.
func (c *Client) LocalID() string { return c.localID }

// Channel returns the channel for the remote peer, creating it on first use.
func (c *Client) Channel(remoteID string) (*Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if channel, ok := c.channels[remoteID]; ok {
		return channel, nil
	}
	eng, err := c.newEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to create engine for %s: %w", remoteID, err)
	}
	channel := NewChannelWithConfig(c.localID, remoteID, c.sender, engine.NewAdapter(eng), c.config)
	for _, observer := range c.observers {
		channel.AddObserver(observer)
	}
	c.channels[remoteID] = channel
	return channel, nil
}

// OnIncomingSignalingMessage routes a raw signaling string from a remote
// peer, creating that peer's channel on demand.
func (c *Client) OnIncomingSignalingMessage(remoteID, raw string) {
	channel, err := c.Channel(remoteID)
	if err != nil {
		slog.Error("Dropping signaling message", "remote", remoteID, "error", err)
		return
	}
	channel.OnIncomingSignalingMessage(raw)
}

// AddObserver registers an observer on every current and future channel.
func (c *Client) AddObserver(observer ChannelObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, observer)
	for _, channel := range c.channels {
		channel.AddObserver(observer)
	}
}

// Close tears down every channel.
func (c *Client) Close() {
	c.mu.Lock()
	channels := make([]*Channel, 0, len(c.channels))
	for _, channel := range c.channels {
		channels = append(channels, channel)
	}
	c.channels = make(map[string]*Channel)
	c.mu.Unlock()
	for _, channel := range channels {
		channel.Close()
	}
}
