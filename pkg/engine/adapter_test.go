package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingEngine captures calls in order and lets tests inject failures.
type recordingEngine struct {
	mu       sync.Mutex
	calls    []string
	observer Observer

	createOfferErr error
	setLocalErr    error
}

func (e *recordingEngine) record(call string) {
	e.mu.Lock()
	e.calls = append(e.calls, call)
	e.mu.Unlock()
}

func (e *recordingEngine) callList() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *recordingEngine) InitializePeerConnection(observer Observer) error {
	e.mu.Lock()
	e.observer = observer
	e.mu.Unlock()
	e.record("init")
	return nil
}

func (e *recordingEngine) CreateOffer() (SessionDescription, error) {
	e.record("create-offer")
	if e.createOfferErr != nil {
		return SessionDescription{}, e.createOfferErr
	}
	return SessionDescription{Type: "offer", SDP: "sdp"}, nil
}

func (e *recordingEngine) CreateAnswer() (SessionDescription, error) {
	e.record("create-answer")
	return SessionDescription{Type: "answer", SDP: "sdp"}, nil
}

func (e *recordingEngine) SetLocalDescription(SessionDescription) error {
	e.record("set-local")
	return e.setLocalErr
}

func (e *recordingEngine) SetRemoteDescription(SessionDescription) error {
	e.record("set-remote")
	return nil
}

func (e *recordingEngine) AddICECandidate(ICECandidate) error {
	e.record("add-candidate")
	return nil
}

func (e *recordingEngine) AddStream(stream *LocalStream) error {
	e.record("add-stream:" + stream.Label())
	return nil
}

func (e *recordingEngine) RemoveStream(stream *LocalStream) error {
	e.record("remove-stream:" + stream.Label())
	return nil
}

func (e *recordingEngine) CreateDataChannel(label string) error {
	e.record("create-data-channel:" + label)
	return nil
}

func (e *recordingEngine) ClosePeerConnection() error {
	e.record("close")
	return nil
}

func (e *recordingEngine) GetStats() (*ConnectionStats, error) {
	e.record("get-stats")
	return &ConnectionStats{BytesSent: 1}, nil
}

func (e *recordingEngine) SignalingState() SignalingState { return SignalingStateStable }

// recordingHandler captures handler events.
type recordingHandler struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHandler) record(event string) {
	h.mu.Lock()
	h.events = append(h.events, event)
	h.mu.Unlock()
}

func (h *recordingHandler) eventList() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func (h *recordingHandler) has(event string) bool {
	for _, e := range h.eventList() {
		if e == event {
			return true
		}
	}
	return false
}

func (h *recordingHandler) OnSignalingChange(state SignalingState) {
	h.record("signaling:" + state.String())
}
func (h *recordingHandler) OnICEConnectionChange(state ICEConnectionState) {
	h.record("ice:" + state.String())
}
func (h *recordingHandler) OnICECandidate(ICECandidate)      { h.record("candidate") }
func (h *recordingHandler) OnAddStream(s MediaStream)        { h.record("add-stream:" + s.Label()) }
func (h *recordingHandler) OnRemoveStream(s MediaStream)     { h.record("remove-stream:" + s.Label()) }
func (h *recordingHandler) OnDataChannel(dc DataChannel)     { h.record("data-channel:" + dc.Label()) }
func (h *recordingHandler) OnRenegotiationNeeded()           { h.record("renegotiation") }
func (h *recordingHandler) OnDataChannelStateChange(s DataChannelState) {
	h.record("dc-state:" + s.String())
}
func (h *recordingHandler) OnDataChannelMessage(m string)          { h.record("dc-message:" + m) }
func (h *recordingHandler) OnCreateDescriptionSuccess(d SessionDescription) {
	h.record("create-success:" + d.Type)
}
func (h *recordingHandler) OnCreateDescriptionFailure(err error) { h.record("create-failure") }
func (h *recordingHandler) OnSetLocalDescriptionSuccess()        { h.record("set-local-success") }
func (h *recordingHandler) OnSetLocalDescriptionFailure(error)   { h.record("set-local-failure") }
func (h *recordingHandler) OnSetRemoteDescriptionSuccess()       { h.record("set-remote-success") }
func (h *recordingHandler) OnSetRemoteDescriptionFailure(error)  { h.record("set-remote-failure") }

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestAdapterSerializesOperations(t *testing.T) {
	eng := &recordingEngine{}
	adapter := NewAdapter(eng)
	defer adapter.Shutdown()
	handler := &recordingHandler{}
	adapter.SetHandler(handler)

	adapter.InitializePeerConnection()
	adapter.CreateOffer()
	adapter.SetRemoteDescription(SessionDescription{Type: "answer"})
	adapter.AddICECandidate(ICECandidate{Candidate: "c"})
	adapter.ClosePeerConnection()

	waitUntil(t, func() bool { return len(eng.callList()) == 5 })
	assert.Equal(t, []string{"init", "create-offer", "set-remote", "add-candidate", "close"},
		eng.callList())
}

func TestAdapterDeliversCompletions(t *testing.T) {
	eng := &recordingEngine{}
	adapter := NewAdapter(eng)
	defer adapter.Shutdown()
	handler := &recordingHandler{}
	adapter.SetHandler(handler)

	adapter.CreateOffer()
	waitUntil(t, func() bool { return handler.has("create-success:offer") })

	adapter.SetLocalDescription(SessionDescription{Type: "offer"})
	waitUntil(t, func() bool { return handler.has("set-local-success") })

	adapter.SetRemoteDescription(SessionDescription{Type: "answer"})
	waitUntil(t, func() bool { return handler.has("set-remote-success") })
}

func TestAdapterDeliversFailures(t *testing.T) {
	eng := &recordingEngine{
		createOfferErr: errors.New("no offer for you"),
		setLocalErr:    errors.New("nope"),
	}
	adapter := NewAdapter(eng)
	defer adapter.Shutdown()
	handler := &recordingHandler{}
	adapter.SetHandler(handler)

	adapter.CreateOffer()
	waitUntil(t, func() bool { return handler.has("create-failure") })

	adapter.SetLocalDescription(SessionDescription{Type: "offer"})
	waitUntil(t, func() bool { return handler.has("set-local-failure") })
}

func TestAdapterForwardsSpontaneousEvents(t *testing.T) {
	eng := &recordingEngine{}
	adapter := NewAdapter(eng)
	defer adapter.Shutdown()
	handler := &recordingHandler{}
	adapter.SetHandler(handler)

	adapter.InitializePeerConnection()
	waitUntil(t, func() bool {
		eng.mu.Lock()
		defer eng.mu.Unlock()
		return eng.observer != nil
	})

	eng.observer.OnICEConnectionChange(ICEConnectionStateConnected)
	eng.observer.OnRenegotiationNeeded()
	eng.observer.OnDataChannelMessage("hi")

	waitUntil(t, func() bool { return handler.has("dc-message:hi") })
	assert.Equal(t, []string{"ice:connected", "renegotiation", "dc-message:hi"},
		handler.eventList())
}

func TestAdapterGetStats(t *testing.T) {
	eng := &recordingEngine{}
	adapter := NewAdapter(eng)
	defer adapter.Shutdown()
	adapter.SetHandler(&recordingHandler{})

	statsCh := make(chan *ConnectionStats, 1)
	adapter.GetStats(func(stats *ConnectionStats) { statsCh <- stats }, nil)

	select {
	case stats := <-statsCh:
		assert.Equal(t, uint64(1), stats.BytesSent)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stats")
	}
}

func TestLocalStreamTrackGrouping(t *testing.T) {
	stream := NewLocalStream("label",
		StreamSource{Audio: AudioSourceMic, Video: VideoSourceCamera},
		MediaTrack{ID: "a", Kind: TrackKindAudio},
		MediaTrack{ID: "v", Kind: TrackKindVideo},
		MediaTrack{ID: "a2", Kind: TrackKindAudio},
	)
	assert.Equal(t, "label", stream.Label())
	assert.Len(t, stream.AudioTracks(), 2)
	assert.Len(t, stream.VideoTracks(), 1)
	assert.Equal(t, AudioSourceMic, stream.Source().Audio)
}
