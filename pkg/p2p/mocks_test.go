package p2p

import (
	"fmt"
	"sync"

	"github.com/rescp17/lanPeerTalk/pkg/engine"
	"github.com/rescp17/lanPeerTalk/pkg/signaling"
)

// eventLog records engine operations and outgoing signaling in one global
// order so tests can assert cross-component sequencing.
type eventLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *eventLog) add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func (l *eventLog) count(entry string) int {
	n := 0
	for _, e := range l.snapshot() {
		if e == entry {
			n++
		}
	}
	return n
}

func (l *eventLog) contains(entry string) bool {
	return l.count(entry) > 0
}

// indexOf returns the position of the first occurrence, or -1.
func (l *eventLog) indexOf(entry string) int {
	for i, e := range l.snapshot() {
		if e == entry {
			return i
		}
	}
	return -1
}

// mockEngine implements engine.Engine for tests. Spontaneous events are fired
// through the observer registered at initialization, i.e. through the adapter
// worker, the same path the pion engine uses.
type mockEngine struct {
	log *eventLog

	mu          sync.Mutex
	observer    engine.Observer
	sigState    engine.SignalingState
	dataChannel *mockDataChannel
	createErr   error
	setLocalErr error
}

func newMockEngine(log *eventLog) *mockEngine {
	return &mockEngine{log: log, sigState: engine.SignalingStateStable}
}

func (e *mockEngine) InitializePeerConnection(observer engine.Observer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer = observer
	e.log.add("init")
	return nil
}

func (e *mockEngine) CreateOffer() (engine.SessionDescription, error) {
	e.log.add("create-offer")
	e.mu.Lock()
	err := e.createErr
	e.mu.Unlock()
	if err != nil {
		return engine.SessionDescription{}, err
	}
	return engine.SessionDescription{Type: "offer", SDP: "offer-sdp"}, nil
}

func (e *mockEngine) CreateAnswer() (engine.SessionDescription, error) {
	e.log.add("create-answer")
	return engine.SessionDescription{Type: "answer", SDP: "answer-sdp"}, nil
}

func (e *mockEngine) SetLocalDescription(desc engine.SessionDescription) error {
	e.log.add("set-local:" + desc.Type)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setLocalErr
}

func (e *mockEngine) SetRemoteDescription(desc engine.SessionDescription) error {
	e.log.add(fmt.Sprintf("set-remote:%s:%s", desc.Type, desc.SDP))
	return nil
}

func (e *mockEngine) AddICECandidate(candidate engine.ICECandidate) error {
	e.log.add("add-candidate:" + candidate.Candidate)
	return nil
}

func (e *mockEngine) AddStream(stream *engine.LocalStream) error {
	e.log.add("add-stream:" + stream.Label())
	return nil
}

func (e *mockEngine) RemoveStream(stream *engine.LocalStream) error {
	e.log.add("remove-stream:" + stream.Label())
	return nil
}

func (e *mockEngine) CreateDataChannel(label string) error {
	e.log.add("create-data-channel:" + label)
	dc := &mockDataChannel{label: label, state: engine.DataChannelStateConnecting, log: e.log}
	e.mu.Lock()
	e.dataChannel = dc
	observer := e.observer
	e.mu.Unlock()
	if observer != nil {
		observer.OnDataChannel(dc)
	}
	return nil
}

func (e *mockEngine) ClosePeerConnection() error {
	e.log.add("close")
	return nil
}

func (e *mockEngine) GetStats() (*engine.ConnectionStats, error) {
	return &engine.ConnectionStats{BytesSent: 42, BytesReceived: 7}, nil
}

func (e *mockEngine) SignalingState() engine.SignalingState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sigState
}

func (e *mockEngine) setSignalingState(state engine.SignalingState) {
	e.mu.Lock()
	e.sigState = state
	e.mu.Unlock()
}

func (e *mockEngine) currentObserver() engine.Observer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.observer
}

func (e *mockEngine) currentDataChannel() *mockDataChannel {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dataChannel
}

type mockDataChannel struct {
	log *eventLog

	mu    sync.Mutex
	label string
	state engine.DataChannelState
	sent  []string
}

func (c *mockDataChannel) Label() string { return c.label }

func (c *mockDataChannel) State() engine.DataChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *mockDataChannel) setState(state engine.DataChannelState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *mockDataChannel) Send(message string) error {
	c.mu.Lock()
	c.sent = append(c.sent, message)
	c.mu.Unlock()
	c.log.add("dc-send:" + message)
	return nil
}

func (c *mockDataChannel) sentMessages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// mockSender records outgoing signaling, decoded, and reports success (or a
// configured failure code) immediately.
type mockSender struct {
	log *eventLog

	mu       sync.Mutex
	messages []signaling.Message
	failCode int
	failing  bool
}

func newMockSender(log *eventLog) *mockSender {
	return &mockSender{log: log}
}

func (s *mockSender) SendSignalingMessage(message, remoteID string, onSuccess func(), onFailure func(code int)) {
	decoded, err := signaling.Decode(message)
	if err != nil {
		panic("mock sender received undecodable message: " + err.Error())
	}
	s.mu.Lock()
	s.messages = append(s.messages, decoded)
	failing, code := s.failing, s.failCode
	s.mu.Unlock()
	s.log.add("send:" + string(decoded.Type))
	if failing {
		if onFailure != nil {
			onFailure(code)
		}
		return
	}
	if onSuccess != nil {
		onSuccess()
	}
}

func (s *mockSender) fail(code int) {
	s.mu.Lock()
	s.failing = true
	s.failCode = code
	s.mu.Unlock()
}

func (s *mockSender) sentTypes() []signaling.MessageType {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]signaling.MessageType, 0, len(s.messages))
	for _, m := range s.messages {
		types = append(types, m.Type)
	}
	return types
}

func (s *mockSender) countType(t signaling.MessageType) int {
	n := 0
	for _, typ := range s.sentTypes() {
		if typ == t {
			n++
		}
	}
	return n
}

func (s *mockSender) lastDescription() *signaling.DescriptionSignal {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Description != nil {
			return s.messages[i].Description
		}
	}
	return nil
}

func (s *mockSender) lastTrackSources() []signaling.TrackSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Type == signaling.ChatTrackSources {
			return s.messages[i].TrackSources
		}
	}
	return nil
}

// mockObserver records lifecycle callbacks in arrival order.
type mockObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *mockObserver) record(event string) {
	o.mu.Lock()
	o.events = append(o.events, event)
	o.mu.Unlock()
}

func (o *mockObserver) OnInvited(remoteID string)  { o.record("invited:" + remoteID) }
func (o *mockObserver) OnAccepted(remoteID string) { o.record("accepted:" + remoteID) }
func (o *mockObserver) OnDenied(remoteID string)   { o.record("denied:" + remoteID) }
func (o *mockObserver) OnStarted(remoteID string)  { o.record("started:" + remoteID) }
func (o *mockObserver) OnStopped(remoteID string)  { o.record("stopped:" + remoteID) }
func (o *mockObserver) OnData(remoteID, message string) {
	o.record("data:" + message)
}
func (o *mockObserver) OnStreamAdded(stream *RemoteStream) {
	o.record("stream-added:" + stream.Label())
}
func (o *mockObserver) OnStreamRemoved(stream *RemoteStream) {
	o.record("stream-removed:" + stream.Label())
}

func (o *mockObserver) count(event string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, e := range o.events {
		if e == event {
			n++
		}
	}
	return n
}

func (o *mockObserver) has(event string) bool { return o.count(event) > 0 }

// mockMediaStream is a fake remote media stream for OnAddStream tests.
type mockMediaStream struct {
	label  string
	audio  []engine.MediaTrack
	video  []engine.MediaTrack
}

func (s *mockMediaStream) Label() string                    { return s.label }
func (s *mockMediaStream) AudioTracks() []engine.MediaTrack { return s.audio }
func (s *mockMediaStream) VideoTracks() []engine.MediaTrack { return s.video }

// failureRecorder captures the error kinds delivered to failure callbacks.
type failureRecorder struct {
	mu     sync.Mutex
	errors []*Error
}

func (r *failureRecorder) callback() func(*Error) {
	return func(err *Error) {
		r.mu.Lock()
		r.errors = append(r.errors, err)
		r.mu.Unlock()
	}
}

func (r *failureRecorder) kinds() []ErrorKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]ErrorKind, 0, len(r.errors))
	for _, err := range r.errors {
		kinds = append(kinds, err.Kind)
	}
	return kinds
}

func (r *failureRecorder) hasKind(kind ErrorKind) bool {
	for _, k := range r.kinds() {
		if k == kind {
			return true
		}
	}
	return false
}
