package p2p

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rescp17/lanPeerTalk/pkg/concurrency"
	"github.com/rescp17/lanPeerTalk/pkg/engine"
	"github.com/rescp17/lanPeerTalk/pkg/signaling"
)

const (
	// dataChannelLabel names the single data channel used for text messages.
	dataChannelLabel = "message"
	// eventQueueName names the serial queue observers run on.
	eventQueueName = "PeerConnectionChannelEventQueue"
)

// DefaultReconnectTimeout is how long a disconnected session may try to
// recover before the channel stops it.
const DefaultReconnectTimeout = 10 * time.Second

// ChannelConfig tunes a channel.
type ChannelConfig struct {
	ReconnectTimeout time.Duration
}

// DefaultChannelConfig returns the configuration used by NewChannel.
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{ReconnectTimeout: DefaultReconnectTimeout}
}

// Channel negotiates, maintains and tears down one WebRTC session with one
// remote peer. Signaling travels through an injected Sender; the WebRTC
// engine is reached through an Adapter. All observer callbacks and user
// completion callbacks are posted to a dedicated serial event queue.
type Channel struct {
	localID  string
	remoteID string
	sender   signaling.Sender
	adapter  *engine.Adapter

	eventQueue *concurrency.SerialQueue
	offerGuard *concurrency.ConcurrencyGuard

	// mu serializes session state transitions and their side effects.
	mu                sync.Mutex
	state             SessionState
	isCaller          bool
	caps              signaling.Capabilities
	negotiationNeeded bool
	// pendingRemoteOffer holds a remote offer received while the engine was
	// not stable; it is applied exactly once at the next stable state.
	pendingRemoteOffer *engine.SessionDescription
	// localDesc is the description most recently handed to the engine as
	// local description; sent to the remote side once it is applied.
	localDesc *engine.SessionDescription
	// remoteDescType remembers whether the last remote description was an
	// offer, so an answer can be generated once it is applied.
	remoteDescType   string
	lastDisconnect   time.Time
	reconnectTimeout time.Duration

	observersMu sync.RWMutex
	observers   []ChannelObserver

	publishedMu sync.Mutex
	published   map[string]struct{}

	pendingPublishMu sync.Mutex
	pendingPublish   []*engine.LocalStream

	pendingUnpublishMu sync.Mutex
	pendingUnpublish   []*engine.LocalStream

	pendingMessagesMu sync.Mutex
	pendingMessages   []string

	dataChannelMu sync.Mutex
	dataChannel   engine.DataChannel

	tracksMu           sync.Mutex
	remoteTrackSources map[string]string
	remoteStreams      map[string]*RemoteStream
}

// NewChannel creates a channel for one remote peer. The channel takes
// ownership of the sender and adapter and registers itself as the adapter's
// event handler.
func NewChannel(localID, remoteID string, sender signaling.Sender, adapter *engine.Adapter) *Channel {
	return NewChannelWithConfig(localID, remoteID, sender, adapter, DefaultChannelConfig())
}

// NewChannelWithConfig creates a channel with custom configuration.
func NewChannelWithConfig(localID, remoteID string, sender signaling.Sender, adapter *engine.Adapter, config ChannelConfig) *Channel {
	if config.ReconnectTimeout <= 0 {
		config.ReconnectTimeout = DefaultReconnectTimeout
	}
	c := &Channel{
		localID:            localID,
		remoteID:           remoteID,
		sender:             sender,
		adapter:            adapter,
		eventQueue:         concurrency.NewSerialQueue(eventQueueName),
		offerGuard:         concurrency.NewConcurrencyGuard(),
		state:              SessionStateReady,
		reconnectTimeout:   config.ReconnectTimeout,
		published:          make(map[string]struct{}),
		remoteTrackSources: make(map[string]string),
		remoteStreams:      make(map[string]*RemoteStream),
	}
	adapter.SetHandler(c)
	return c
}

// RemoteID returns the id of the remote peer this channel talks to.
func (c *Channel) RemoteID() string { return c.remoteID }

// SessionState returns the current session state.
func (c *Channel) SessionState() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AddObserver registers an observer. Registration order is notification
// order. Must not be called from within an observer callback.
func (c *Channel) AddObserver(observer ChannelObserver) {
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	c.observers = append(c.observers, observer)
}

// RemoveObserver removes every registration of the observer. Must not be
// called from within an observer callback.
func (c *Channel) RemoveObserver(observer ChannelObserver) {
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	kept := c.observers[:0]
	for _, o := range c.observers {
		if o != observer {
			kept = append(kept, o)
		}
	}
	c.observers = kept
}

// Invite asks the remote peer to start a session. Valid in Ready and Offered
// (re-invite).
func (c *Channel) Invite(onSuccess func(), onFailure func(*Error)) {
	c.mu.Lock()
	if c.state != SessionStateReady && c.state != SessionStateOffered {
		state := c.state
		c.mu.Unlock()
		slog.Warn("Cannot send invitation in this state", "state", state)
		c.postFailure(onFailure, KindInvalidState, "Cannot send invitation in this state.")
		return
	}
	// Best-effort reset of the remote side; no callback is needed.
	c.sendStop(nil, nil)
	message, err := signaling.EncodeInvitation(signaling.LocalUAInfo())
	if err != nil {
		c.mu.Unlock()
		c.postFailure(onFailure, KindInvalidArgument, err.Error())
		return
	}
	// A failed invitation send rolls the session back to Ready.
	failure := func(err *Error) {
		c.mu.Lock()
		if c.state == SessionStateOffered {
			c.changeState(SessionStateReady)
		}
		c.mu.Unlock()
		if onFailure != nil {
			onFailure(err)
		}
	}
	c.sendSignaling(message, onSuccess, failure)
	c.changeState(SessionStateOffered)
	c.mu.Unlock()
}

// Accept agrees to a pending invitation. Valid only in Pending.
func (c *Channel) Accept(onSuccess func(), onFailure func(*Error)) {
	c.mu.Lock()
	if c.state != SessionStatePending {
		c.mu.Unlock()
		c.postFailure(onFailure, KindInvalidState, "Cannot accept invitation in this state.")
		return
	}
	c.isCaller = false
	c.adapter.InitializePeerConnection()
	c.sendAcceptance(onSuccess, onFailure)
	c.changeState(SessionStateMatched)
	c.mu.Unlock()
	c.adapter.CreateDataChannel(dataChannelLabel)
}

// Deny refuses a pending invitation. Valid only in Pending.
func (c *Channel) Deny(onSuccess func(), onFailure func(*Error)) {
	c.mu.Lock()
	if c.state != SessionStatePending {
		c.mu.Unlock()
		c.postFailure(onFailure, KindInvalidState, "Cannot deny invitation in this state.")
		return
	}
	message, err := signaling.EncodeDeny()
	if err == nil {
		c.sendSignaling(message, onSuccess, onFailure)
	}
	c.changeState(SessionStateReady)
	c.mu.Unlock()
}

// Stop ends the session. From Connecting or Connected the peer connection is
// closed and OnStopped arrives later via the engine's closed event; from
// Offered it is emitted immediately.
func (c *Channel) Stop(onSuccess func(), onFailure func(*Error)) {
	slog.Info("Stop session.", "remote", c.remoteID)
	c.mu.Lock()
	switch c.state {
	case SessionStateConnecting, SessionStateConnected:
		c.adapter.ClosePeerConnection()
		c.sendStop(nil, nil)
		c.changeState(SessionStateReady)
	case SessionStateMatched:
		c.sendStop(nil, nil)
		c.changeState(SessionStateReady)
	case SessionStateOffered:
		c.sendStop(nil, nil)
		c.changeState(SessionStateReady)
		c.mu.Unlock()
		c.triggerOnStopped()
		c.postSuccess(onSuccess)
		return
	default:
		c.mu.Unlock()
		c.postFailure(onFailure, KindInvalidState, "Cannot stop a session haven't started.")
		return
	}
	c.mu.Unlock()
	c.postSuccess(onSuccess)
}

// Publish schedules a local stream for publication to the remote peer.
func (c *Channel) Publish(stream *engine.LocalStream, onSuccess func(), onFailure func(*Error)) {
	slog.Info("Publish a local stream.")
	if stream == nil {
		c.postFailure(onFailure, KindInvalidArgument, "Nil stream is not allowed.")
		return
	}

	c.mu.Lock()
	state := c.state
	caps := c.caps
	c.mu.Unlock()

	if state != SessionStateConnected {
		slog.Warn("Cannot publish a stream when connection is not established.")
		c.postFailure(onFailure, KindInvalidState,
			"Cannot publish a stream when connection is not established.")
		return
	}

	c.pendingPublishMu.Lock()
	pendingCount := len(c.pendingPublish)
	c.pendingPublishMu.Unlock()
	c.publishedMu.Lock()
	if !caps.SupportsPlanB && len(c.published)+pendingCount > 0 {
		c.publishedMu.Unlock()
		slog.Warn("Remote side does not support Plan B, so at most one stream can be published.")
		c.postFailure(onFailure, KindUnsupportedMethod,
			"Cannot publish multiple streams to remote side.")
		return
	}
	if _, exists := c.published[stream.Label()]; exists {
		c.publishedMu.Unlock()
		c.postFailure(onFailure, KindInvalidArgument, "The stream is already published.")
		return
	}
	c.published[stream.Label()] = struct{}{}
	c.publishedMu.Unlock()

	c.pendingPublishMu.Lock()
	c.pendingPublish = append(c.pendingPublish, stream)
	c.pendingPublishMu.Unlock()

	if c.SessionState() == SessionStateConnected &&
		c.adapter.SignalingState() == engine.SignalingStateStable {
		c.drainPendingStreams()
	}
	c.postSuccess(onSuccess)
}

// Unpublish withdraws a previously published stream.
func (c *Channel) Unpublish(stream *engine.LocalStream, onSuccess func(), onFailure func(*Error)) {
	if stream == nil {
		c.postFailure(onFailure, KindInvalidArgument, "Nil stream is not allowed.")
		return
	}
	c.mu.Lock()
	caps := c.caps
	c.mu.Unlock()
	if !caps.SupportsRemoveStream {
		slog.Warn("Remote side does not support removeStream.")
		c.postFailure(onFailure, KindUnsupportedMethod, "Remote side does not support unpublish.")
		return
	}
	c.publishedMu.Lock()
	if _, exists := c.published[stream.Label()]; !exists {
		c.publishedMu.Unlock()
		c.postFailure(onFailure, KindInvalidArgument, "The stream is not published.")
		return
	}
	delete(c.published, stream.Label())
	c.publishedMu.Unlock()

	c.pendingUnpublishMu.Lock()
	c.pendingUnpublish = append(c.pendingUnpublish, stream)
	c.pendingUnpublishMu.Unlock()

	c.postSuccess(onSuccess)

	if c.SessionState() == SessionStateConnected &&
		c.adapter.SignalingState() == engine.SignalingStateStable {
		c.drainPendingStreams()
	}
}

// Send delivers a text message over the data channel, buffering it until the
// channel opens. Enqueueing counts as success; delivery is best-effort.
func (c *Channel) Send(message string, onSuccess func(), onFailure func(*Error)) {
	c.dataChannelMu.Lock()
	dc := c.dataChannel
	c.dataChannelMu.Unlock()

	if dc != nil && dc.State() == engine.DataChannelStateOpen {
		if err := dc.Send(message); err != nil {
			slog.Warn("Failed to send message on data channel", "error", err)
		}
	} else {
		c.pendingMessagesMu.Lock()
		c.pendingMessages = append(c.pendingMessages, message)
		c.pendingMessagesMu.Unlock()
		if dc == nil { // Otherwise, wait for data channel ready.
			c.adapter.CreateDataChannel(dataChannelLabel)
		}
	}
	c.postSuccess(onSuccess)
}

// GetConnectionStats fetches a transport stats snapshot. Requires state
// Connected.
func (c *Channel) GetConnectionStats(onSuccess func(*engine.ConnectionStats), onFailure func(*Error)) {
	if onSuccess == nil {
		c.postFailure(onFailure, KindInvalidArgument,
			"onSuccess cannot be nil. Please provide onSuccess to get connection stats data.")
		return
	}
	if c.SessionState() != SessionStateConnected {
		c.postFailure(onFailure, KindInvalidState,
			"Cannot get connection stats in this state. Please try it after connection is established.")
		return
	}
	c.adapter.GetStats(
		func(stats *engine.ConnectionStats) {
			c.eventQueue.Post(func() { onSuccess(stats) })
		},
		func(err error) {
			c.postFailure(onFailure, KindInvalidArgument, err.Error())
		},
	)
}

// OnIncomingSignalingMessage feeds a raw signaling string into the channel.
// Unparseable or unknown messages are logged and dropped.
func (c *Channel) OnIncomingSignalingMessage(raw string) {
	slog.Info("OnIncomingMessage", "remote", c.remoteID)
	msg, err := signaling.Decode(raw)
	if err != nil {
		slog.Warn("Dropping signaling message", "error", err)
		return
	}
	switch msg.Type {
	case signaling.ChatInvitation:
		c.onMessageInvitation(*msg.UA)
	case signaling.ChatAccept:
		c.onMessageAcceptance(*msg.UA)
	case signaling.ChatDeny:
		c.onMessageDeny()
	case signaling.ChatStop:
		c.onMessageStop()
	case signaling.ChatSignal:
		c.onMessageSignal(msg)
	case signaling.ChatNegotiationNeeded:
		c.onMessageNegotiationNeeded()
	case signaling.ChatTrackSources:
		c.onMessageTrackSources(msg.TrackSources)
	}
}

// Close releases the channel's event queue and engine adapter. The channel
// must not be used afterwards.
func (c *Channel) Close() {
	// Disarm any pending reconnect check before tearing down.
	c.mu.Lock()
	c.lastDisconnect = time.Time{}
	c.mu.Unlock()
	c.adapter.Shutdown()
	c.eventQueue.Close()
}

// --- inbound signaling ---

func (c *Channel) onMessageInvitation(ua signaling.UAInfo) {
	caps := signaling.ClassifyCapabilities(ua)
	c.mu.Lock()
	c.caps = caps
	switch c.state {
	case SessionStateReady, SessionStatePending:
		c.changeState(SessionStatePending)
		c.mu.Unlock()
		c.notifyObservers(func(o ChannelObserver) { o.OnInvited(c.remoteID) })
	case SessionStateOffered:
		// Both sides invited at once. The peer with the larger id wins the
		// caller role; the smaller id becomes callee and accepts.
		if c.remoteID > c.localID {
			c.isCaller = false
			c.adapter.InitializePeerConnection()
			c.sendAcceptance(nil, nil)
			c.changeState(SessionStateMatched)
			c.mu.Unlock()
			c.adapter.CreateDataChannel(dataChannelLabel)
			return
		}
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		slog.Info("Ignore invitation because already connected.")
	}
}

func (c *Channel) onMessageAcceptance(ua signaling.UAInfo) {
	slog.Info("Remote user accepted invitation.", "remote", c.remoteID)
	c.mu.Lock()
	if c.state != SessionStateOffered && c.state != SessionStateMatched {
		c.mu.Unlock()
		return
	}
	c.changeState(SessionStateMatched)
	c.isCaller = true
	c.caps = signaling.ClassifyCapabilities(ua)
	c.adapter.InitializePeerConnection()
	c.changeState(SessionStateConnecting)
	c.mu.Unlock()

	c.notifyObservers(func(o ChannelObserver) { o.OnAccepted(c.remoteID) })
	c.adapter.CreateDataChannel(dataChannelLabel)
}

func (c *Channel) onMessageStop() {
	c.mu.Lock()
	switch c.state {
	case SessionStateConnecting, SessionStateConnected:
		c.adapter.ClosePeerConnection()
		c.changeState(SessionStateReady)
		c.mu.Unlock()
	case SessionStatePending, SessionStateMatched:
		c.changeState(SessionStateReady)
		c.mu.Unlock()
		// The invitation has been canceled and the session is stopped.
		c.triggerOnStopped()
	default:
		state := c.state
		c.mu.Unlock()
		slog.Warn("Received stop event on unexpected state", "state", state)
	}
}

func (c *Channel) onMessageDeny() {
	slog.Info("Remote user denied invitation", "remote", c.remoteID)
	c.notifyObservers(func(o ChannelObserver) { o.OnDenied(c.remoteID) })
	c.mu.Lock()
	c.changeState(SessionStateReady)
	c.mu.Unlock()
}

func (c *Channel) onMessageNegotiationNeeded() {
	slog.Info("Received negotiation needed event", "remote", c.remoteID)
	c.mu.Lock()
	c.negotiationNeeded = true
	c.mu.Unlock()
	if c.adapter.SignalingState() == engine.SignalingStateStable {
		c.createOffer()
	}
}

func (c *Channel) onMessageSignal(msg signaling.Message) {
	c.mu.Lock()
	if c.state == SessionStateReady || c.state == SessionStateOffered ||
		c.state == SessionStatePending {
		state := c.state
		c.mu.Unlock()
		slog.Warn("Received signaling message in invalid state", "state", state)
		return
	}
	switch {
	case msg.Description != nil:
		desc := engine.SessionDescription{
			Type: msg.Description.Type,
			SDP:  msg.Description.SDP,
		}
		if desc.Type == signaling.SignalTypeOffer && c.state == SessionStateMatched {
			c.changeState(SessionStateConnecting)
		}
		if desc.Type == signaling.SignalTypeOffer &&
			c.adapter.SignalingState() != engine.SignalingStateStable {
			// Hold the offer until the engine settles; a newer offer replaces
			// an older deferred one.
			c.pendingRemoteOffer = &desc
			c.mu.Unlock()
			return
		}
		c.remoteDescType = desc.Type
		c.mu.Unlock()
		c.adapter.SetRemoteDescription(desc)
	case msg.Candidate != nil:
		c.mu.Unlock()
		c.adapter.AddICECandidate(engine.ICECandidate{
			SDPMid:        msg.Candidate.SDPMid,
			SDPMLineIndex: msg.Candidate.SDPMLineIndex,
			Candidate:     msg.Candidate.Candidate,
		})
	default:
		c.mu.Unlock()
	}
}

func (c *Channel) onMessageTrackSources(sources []signaling.TrackSource) {
	c.tracksMu.Lock()
	defer c.tracksMu.Unlock()
	for _, source := range sources {
		c.remoteTrackSources[source.ID] = source.Source
	}
}

// --- engine events (engine.EventHandler) ---

func (c *Channel) OnSignalingChange(state engine.SignalingState) {
	slog.Info("Signaling state changed", "state", state)
	if state != engine.SignalingStateStable {
		return
	}
	c.mu.Lock()
	deferred := c.pendingRemoteOffer
	c.pendingRemoteOffer = nil
	if deferred != nil {
		c.remoteDescType = deferred.Type
	}
	c.mu.Unlock()
	if deferred != nil {
		slog.Info("Set stored remote description.")
		c.adapter.SetRemoteDescription(*deferred)
		return
	}
	c.checkWaitedList()
}

func (c *Channel) OnICEConnectionChange(state engine.ICEConnectionState) {
	slog.Info("Ice connection state changed", "state", state)
	switch state {
	case engine.ICEConnectionStateConnected, engine.ICEConnectionStateCompleted:
		c.mu.Lock()
		wasConnecting := c.state == SessionStateConnecting
		c.changeState(SessionStateConnected)
		c.lastDisconnect = time.Time{}
		c.mu.Unlock()
		if wasConnecting {
			c.notifyObservers(func(o ChannelObserver) { o.OnStarted(c.remoteID) })
		}
		c.checkWaitedList()
	case engine.ICEConnectionStateDisconnected:
		c.mu.Lock()
		c.lastDisconnect = time.Now()
		timeout := c.reconnectTimeout
		c.mu.Unlock()
		// Check again after a grace period; a reconnect clears lastDisconnect.
		time.AfterFunc(timeout, func() {
			c.mu.Lock()
			expired := !c.lastDisconnect.IsZero() &&
				time.Since(c.lastDisconnect) >= timeout
			c.mu.Unlock()
			if expired {
				slog.Info("Detect reconnection failed, stop this session.")
				c.Stop(nil, nil)
			} else {
				slog.Info("Detect reconnection succeed.")
			}
		})
	case engine.ICEConnectionStateClosed:
		c.triggerOnStopped()
		c.cleanLastPeerConnection()
	}
}

func (c *Channel) OnICECandidate(candidate engine.ICECandidate) {
	slog.Info("On ice candidate")
	message, err := signaling.EncodeCandidateSignal(
		candidate.SDPMid, candidate.SDPMLineIndex, candidate.Candidate)
	if err != nil {
		slog.Error("Failed to serialize candidate", "error", err)
		return
	}
	c.sendSignaling(message, nil, nil)
}

func (c *Channel) OnCreateDescriptionSuccess(desc engine.SessionDescription) {
	slog.Info("Create sdp success.")
	c.mu.Lock()
	c.localDesc = &desc
	c.mu.Unlock()
	c.adapter.SetLocalDescription(desc)
}

func (c *Channel) OnCreateDescriptionFailure(err error) {
	slog.Info("Create sdp failed.", "error", err)
	c.Stop(nil, nil)
}

func (c *Channel) OnSetLocalDescriptionSuccess() {
	slog.Info("Set local sdp success.")
	c.offerGuard.End()
	c.mu.Lock()
	desc := c.localDesc
	c.mu.Unlock()
	if desc == nil {
		return
	}
	message, err := signaling.EncodeDescriptionSignal(desc.Type, desc.SDP)
	if err != nil {
		slog.Error("Failed to encode local description", "error", err)
		return
	}
	c.sendSignaling(message, nil, nil)
}

func (c *Channel) OnSetLocalDescriptionFailure(err error) {
	slog.Info("Set local sdp failed.", "error", err)
	c.Stop(nil, nil)
}

func (c *Channel) OnSetRemoteDescriptionSuccess() {
	c.mu.Lock()
	wasOffer := c.remoteDescType == signaling.SignalTypeOffer
	c.mu.Unlock()
	if wasOffer {
		slog.Info("Create answer.")
		c.adapter.CreateAnswer()
	}
}

func (c *Channel) OnSetRemoteDescriptionFailure(err error) {
	slog.Info("Set remote sdp failed.", "error", err)
	c.Stop(nil, nil)
}

func (c *Channel) OnAddStream(stream engine.MediaStream) {
	slog.Info("OnAddStream", "label", stream.Label())
	c.tracksMu.Lock()
	noAudioSource := true
	for _, track := range stream.AudioTracks() {
		if _, ok := c.remoteTrackSources[track.ID]; ok {
			noAudioSource = false
			break
		}
	}
	noVideoSource := true
	videoTrackSource := ""
	for _, track := range stream.VideoTracks() {
		if source, ok := c.remoteTrackSources[track.ID]; ok {
			noVideoSource = false
			videoTrackSource = source
			break
		}
	}
	c.tracksMu.Unlock()

	if noAudioSource && noVideoSource {
		slog.Warn("No track source information specified for newly added stream.")
		return
	}

	switch videoTrackSource {
	case signaling.SourceScreenCast, signaling.SourceCamera:
		remoteStream := newRemoteStream(stream, c.remoteID, videoTrackSource)
		c.tracksMu.Lock()
		c.remoteStreams[stream.Label()] = remoteStream
		c.tracksMu.Unlock()
		c.notifyObservers(func(o ChannelObserver) { o.OnStreamAdded(remoteStream) })
	default:
		slog.Error("Newly added stream is not recognized")
	}
}

func (c *Channel) OnRemoveStream(stream engine.MediaStream) {
	c.tracksMu.Lock()
	remoteStream, known := c.remoteStreams[stream.Label()]
	if !known {
		c.tracksMu.Unlock()
		slog.Warn("Remove an invalid stream.")
		return
	}
	delete(c.remoteStreams, stream.Label())
	for _, track := range stream.AudioTracks() {
		delete(c.remoteTrackSources, track.ID)
	}
	for _, track := range stream.VideoTracks() {
		delete(c.remoteTrackSources, track.ID)
	}
	c.tracksMu.Unlock()
	c.notifyObservers(func(o ChannelObserver) { o.OnStreamRemoved(remoteStream) })
}

func (c *Channel) OnDataChannel(channel engine.DataChannel) {
	// Only one data channel per connection; a newer one replaces the old to
	// save resources.
	c.dataChannelMu.Lock()
	c.dataChannel = channel
	c.dataChannelMu.Unlock()
	c.drainPendingMessages()
}

func (c *Channel) OnRenegotiationNeeded() {
	slog.Info("On negotiation needed.")
	c.mu.Lock()
	isCaller := c.isCaller
	state := c.state
	c.mu.Unlock()
	if !isCaller {
		if state == SessionStateConnecting || state == SessionStateConnected {
			message, err := signaling.EncodeNegotiationNeeded()
			if err == nil {
				c.sendSignaling(message, nil, nil)
			}
		}
		// If the session is not connected yet, the offer will be sent later.
		return
	}
	if c.adapter.SignalingState() == engine.SignalingStateStable {
		c.createOffer()
		return
	}
	c.mu.Lock()
	c.negotiationNeeded = true
	c.mu.Unlock()
}

func (c *Channel) OnDataChannelStateChange(state engine.DataChannelState) {
	if state == engine.DataChannelStateOpen {
		c.drainPendingMessages()
	}
}

func (c *Channel) OnDataChannelMessage(message string) {
	c.notifyObservers(func(o ChannelObserver) { o.OnData(c.remoteID, message) })
}

// --- internals ---

// changeState must run with c.mu held.
func (c *Channel) changeState(state SessionState) {
	slog.Info("PeerConnectionChannel change session state", "state", state)
	c.state = state
}

// createOffer requests a new offer unless one is already in flight, in which
// case the request is remembered via negotiationNeeded.
func (c *Channel) createOffer() {
	if !c.offerGuard.TryBegin() {
		// Store creating offer request.
		c.mu.Lock()
		c.negotiationNeeded = true
		c.mu.Unlock()
		return
	}
	slog.Info("Create offer.")
	c.mu.Lock()
	c.negotiationNeeded = false
	c.mu.Unlock()
	c.adapter.CreateOffer()
}

// checkWaitedList drains deferred work once the engine settles: pending
// stream changes if any are queued, otherwise a postponed renegotiation when
// this side is the caller.
func (c *Channel) checkWaitedList() {
	slog.Info("CheckWaitedList")
	c.pendingPublishMu.Lock()
	havePublish := len(c.pendingPublish) > 0
	c.pendingPublishMu.Unlock()
	c.pendingUnpublishMu.Lock()
	haveUnpublish := len(c.pendingUnpublish) > 0
	c.pendingUnpublishMu.Unlock()

	if havePublish || haveUnpublish {
		c.drainPendingStreams()
		return
	}
	c.mu.Lock()
	needed := c.negotiationNeeded && c.isCaller
	c.mu.Unlock()
	if needed {
		c.createOffer()
	}
}

// drainPendingStreams flushes queued publications and unpublications. Track
// source announcements always precede the engine's add-stream call.
func (c *Channel) drainPendingStreams() {
	slog.Info("Draining pending stream")
	c.pendingPublishMu.Lock()
	pending := c.pendingPublish
	c.pendingPublish = nil
	c.pendingPublishMu.Unlock()
	for _, stream := range pending {
		audioSource := engine.AudioSourceMic
		videoSource := engine.VideoSourceCamera
		if stream.Source().Audio == engine.AudioSourceScreenCast {
			audioSource = engine.AudioSourceScreenCast
		}
		if stream.Source().Video == engine.VideoSourceScreenCast {
			videoSource = engine.VideoSourceScreenCast
		}
		var sources []signaling.TrackSource
		for _, track := range stream.AudioTracks() {
			sources = append(sources, signaling.TrackSource{ID: track.ID, Source: audioSource})
		}
		for _, track := range stream.VideoTracks() {
			sources = append(sources, signaling.TrackSource{ID: track.ID, Source: videoSource})
		}
		message, err := signaling.EncodeTrackSources(sources)
		if err != nil {
			slog.Error("Failed to encode track sources", "error", err)
			continue
		}
		c.sendSignaling(message, nil, nil)
		slog.Info("Post add stream")
		c.adapter.AddStream(stream)
	}

	c.pendingUnpublishMu.Lock()
	unpublish := c.pendingUnpublish
	c.pendingUnpublish = nil
	c.pendingUnpublishMu.Unlock()
	for _, stream := range unpublish {
		slog.Info("Post remove stream")
		c.adapter.RemoveStream(stream)
	}
}

// drainPendingMessages flushes buffered text messages once the data channel
// is open.
func (c *Channel) drainPendingMessages() {
	c.dataChannelMu.Lock()
	dc := c.dataChannel
	c.dataChannelMu.Unlock()
	if dc == nil || dc.State() != engine.DataChannelStateOpen {
		return
	}
	c.pendingMessagesMu.Lock()
	pending := c.pendingMessages
	c.pendingMessages = nil
	c.pendingMessagesMu.Unlock()
	slog.Info("Draining pending messages.", "count", len(pending))
	for _, message := range pending {
		if err := dc.Send(message); err != nil {
			slog.Warn("Failed to send buffered message", "error", err)
		}
	}
}

func (c *Channel) cleanLastPeerConnection() {
	c.mu.Lock()
	c.pendingRemoteOffer = nil
	c.negotiationNeeded = false
	c.lastDisconnect = time.Time{}
	c.mu.Unlock()
}

func (c *Channel) sendAcceptance(onSuccess func(), onFailure func(*Error)) {
	message, err := signaling.EncodeAcceptance(signaling.LocalUAInfo())
	if err != nil {
		c.postFailure(onFailure, KindInvalidArgument, err.Error())
		return
	}
	c.sendSignaling(message, onSuccess, onFailure)
}

func (c *Channel) sendStop(onSuccess func(), onFailure func(*Error)) {
	slog.Info("Send stop.")
	message, err := signaling.EncodeStop()
	if err != nil {
		return
	}
	c.sendSignaling(message, onSuccess, onFailure)
}

// sendSignaling hands a message to the transport. A transport failure
// surfaces as InvalidArgument on the caller's failure callback.
func (c *Channel) sendSignaling(message string, onSuccess func(), onFailure func(*Error)) {
	c.sender.SendSignalingMessage(message, c.remoteID,
		func() {
			c.postSuccess(onSuccess)
		},
		func(code int) {
			slog.Warn("Failed to send signaling message", "code", code)
			c.postFailure(onFailure, KindInvalidArgument, "Send signaling message failed.")
		},
	)
}

func (c *Channel) triggerOnStopped() {
	c.notifyObservers(func(o ChannelObserver) { o.OnStopped(c.remoteID) })
}

// notifyObservers posts one event-queue task that walks the observer list in
// registration order.
func (c *Channel) notifyObservers(notify func(ChannelObserver)) {
	c.observersMu.RLock()
	observers := append([]ChannelObserver(nil), c.observers...)
	c.observersMu.RUnlock()
	c.eventQueue.Post(func() {
		for _, o := range observers {
			notify(o)
		}
	})
}

func (c *Channel) postSuccess(onSuccess func()) {
	if onSuccess == nil {
		return
	}
	c.eventQueue.Post(func() { onSuccess() })
}

func (c *Channel) postFailure(onFailure func(*Error), kind ErrorKind, message string) {
	if onFailure == nil {
		return
	}
	c.eventQueue.Post(func() { onFailure(newError(kind, message)) })
}
