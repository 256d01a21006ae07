package engine

import (
	"log/slog"
	"sync"

	"github.com/rescp17/lanPeerTalk/pkg/concurrency"
)

const workerQueueName = "PeerConnectionWorker"

// Adapter is the only path a session channel uses to reach the engine. Every
// engine mutation is posted onto a single worker goroutine, so the engine
// never sees concurrent calls, and every spontaneous engine event is funneled
// through the same worker before it reaches the handler. Completions of the
// SDP operations are delivered as handler events instead of return values.
type Adapter struct {
	engine Engine
	worker *concurrency.SerialQueue

	mu      sync.RWMutex
	handler EventHandler
}

// NewAdapter wraps an engine. SetHandler must be called before any operation.
func NewAdapter(e Engine) *Adapter {
	return &Adapter{
		engine: e,
		worker: concurrency.NewSerialQueue(workerQueueName),
	}
}

// SetHandler registers the consumer of engine events.
func (a *Adapter) SetHandler(h EventHandler) {
	a.mu.Lock()
	a.handler = h
	a.mu.Unlock()
}

func (a *Adapter) currentHandler() EventHandler {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.handler
}

// InitializePeerConnection prepares the underlying peer connection. Safe to
// call more than once within a session.
func (a *Adapter) InitializePeerConnection() {
	a.worker.Post(func() {
		if err := a.engine.InitializePeerConnection(a); err != nil {
			slog.Error("Failed to initialize peer connection", "error", err)
		}
	})
}

// CreateOffer asks the engine for an offer. The result arrives via
// OnCreateDescriptionSuccess or OnCreateDescriptionFailure.
func (a *Adapter) CreateOffer() {
	a.worker.Post(func() {
		desc, err := a.engine.CreateOffer()
		h := a.currentHandler()
		if h == nil {
			return
		}
		if err != nil {
			h.OnCreateDescriptionFailure(err)
			return
		}
		h.OnCreateDescriptionSuccess(desc)
	})
}

// CreateAnswer asks the engine for an answer. Completion arrives on the same
// events as CreateOffer.
func (a *Adapter) CreateAnswer() {
	a.worker.Post(func() {
		desc, err := a.engine.CreateAnswer()
		h := a.currentHandler()
		if h == nil {
			return
		}
		if err != nil {
			h.OnCreateDescriptionFailure(err)
			return
		}
		h.OnCreateDescriptionSuccess(desc)
	})
}

// SetLocalDescription applies a local description; completion arrives via the
// OnSetLocalDescription events.
func (a *Adapter) SetLocalDescription(desc SessionDescription) {
	a.worker.Post(func() {
		err := a.engine.SetLocalDescription(desc)
		h := a.currentHandler()
		if h == nil {
			return
		}
		if err != nil {
			h.OnSetLocalDescriptionFailure(err)
			return
		}
		h.OnSetLocalDescriptionSuccess()
	})
}

// SetRemoteDescription applies a remote description; completion arrives via
// the OnSetRemoteDescription events.
func (a *Adapter) SetRemoteDescription(desc SessionDescription) {
	a.worker.Post(func() {
		err := a.engine.SetRemoteDescription(desc)
		h := a.currentHandler()
		if h == nil {
			return
		}
		if err != nil {
			h.OnSetRemoteDescriptionFailure(err)
			return
		}
		h.OnSetRemoteDescriptionSuccess()
	})
}

// AddICECandidate feeds a remote candidate to the engine.
func (a *Adapter) AddICECandidate(candidate ICECandidate) {
	a.worker.Post(func() {
		if err := a.engine.AddICECandidate(candidate); err != nil {
			slog.Warn("Failed to add ICE candidate", "error", err)
		}
	})
}

// AddStream attaches a local stream to the peer connection.
func (a *Adapter) AddStream(stream *LocalStream) {
	a.worker.Post(func() {
		if err := a.engine.AddStream(stream); err != nil {
			slog.Error("Failed to add stream", "label", stream.Label(), "error", err)
		}
	})
}

// RemoveStream detaches a local stream from the peer connection.
func (a *Adapter) RemoveStream(stream *LocalStream) {
	a.worker.Post(func() {
		if err := a.engine.RemoveStream(stream); err != nil {
			slog.Error("Failed to remove stream", "label", stream.Label(), "error", err)
		}
	})
}

// CreateDataChannel opens a data channel; the handle arrives via
// OnDataChannel.
func (a *Adapter) CreateDataChannel(label string) {
	a.worker.Post(func() {
		if err := a.engine.CreateDataChannel(label); err != nil {
			slog.Error("Failed to create data channel", "label", label, "error", err)
		}
	})
}

// ClosePeerConnection posts a teardown of the peer connection. It does not
// wait: callers may hold locks that tasks already queued on the worker need.
func (a *Adapter) ClosePeerConnection() {
	a.worker.Post(func() {
		if err := a.engine.ClosePeerConnection(); err != nil {
			slog.Warn("Failed to close peer connection", "error", err)
		}
	})
}

// GetStats fetches a stats snapshot and reports it on the given callbacks
// from the worker goroutine.
func (a *Adapter) GetStats(onSuccess func(*ConnectionStats), onFailure func(error)) {
	a.worker.Post(func() {
		stats, err := a.engine.GetStats()
		if err != nil {
			if onFailure != nil {
				onFailure(err)
			}
			return
		}
		if onSuccess != nil {
			onSuccess(stats)
		}
	})
}

// SignalingState reads the engine's signaling state directly.
func (a *Adapter) SignalingState() SignalingState {
	return a.engine.SignalingState()
}

// Shutdown stops the worker after draining queued operations. The adapter
// must not be used afterwards.
func (a *Adapter) Shutdown() {
	a.worker.Close()
}

// Observer implementation: spontaneous engine events are re-posted onto the
// worker so they are serialized with operation completions.

func (a *Adapter) OnSignalingChange(state SignalingState) {
	a.forward(func(h EventHandler) { h.OnSignalingChange(state) })
}

func (a *Adapter) OnICEConnectionChange(state ICEConnectionState) {
	a.forward(func(h EventHandler) { h.OnICEConnectionChange(state) })
}

func (a *Adapter) OnICECandidate(candidate ICECandidate) {
	a.forward(func(h EventHandler) { h.OnICECandidate(candidate) })
}

func (a *Adapter) OnAddStream(stream MediaStream) {
	a.forward(func(h EventHandler) { h.OnAddStream(stream) })
}

func (a *Adapter) OnRemoveStream(stream MediaStream) {
	a.forward(func(h EventHandler) { h.OnRemoveStream(stream) })
}

func (a *Adapter) OnDataChannel(channel DataChannel) {
	a.forward(func(h EventHandler) { h.OnDataChannel(channel) })
}

func (a *Adapter) OnRenegotiationNeeded() {
	a.forward(func(h EventHandler) { h.OnRenegotiationNeeded() })
}

func (a *Adapter) OnDataChannelStateChange(state DataChannelState) {
	a.forward(func(h EventHandler) { h.OnDataChannelStateChange(state) })
}

func (a *Adapter) OnDataChannelMessage(message string) {
	a.forward(func(h EventHandler) { h.OnDataChannelMessage(message) })
}

func (a *Adapter) forward(deliver func(EventHandler)) {
	a.worker.Post(func() {
		if h := a.currentHandler(); h != nil {
			deliver(h)
		}
	})
}
