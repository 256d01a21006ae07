package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"
)

const mtu uint = 1400

// Config holds the configuration for creating a PionEngine.
type Config struct {
	ICEServers []webrtc.ICEServer
}

// PionEngine implements Engine on top of pion/webrtc. All methods except
// SignalingState are expected to run on the adapter worker.
type PionEngine struct {
	api    *webrtc.API
	config Config

	mu       sync.Mutex
	pc       *webrtc.PeerConnection
	observer Observer
	// senders tracks the RTP senders of each published stream so RemoveStream
	// can detach them again.
	senders map[string][]*webrtc.RTPSender
	// remoteStreams groups remote tracks by their stream id.
	remoteStreams map[string]*remoteMediaStream
}

// NewPionEngine builds an engine with its own webrtc.API instance. Using a
// dedicated API is required for managing multiple peer connections in one
// application.
func NewPionEngine(config Config) (*PionEngine, error) {
	settings := webrtc.SettingEngine{}
	settings.SetICEMulticastDNSMode(ice.MulticastDNSModeQueryAndGather)
	settings.SetReceiveMTU(mtu)

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithSettingEngine(settings),
		webrtc.WithMediaEngine(mediaEngine),
	)
	return &PionEngine{
		api:           api,
		config:        config,
		senders:       make(map[string][]*webrtc.RTPSender),
		remoteStreams: make(map[string]*remoteMediaStream),
	}, nil
}

func (e *PionEngine) InitializePeerConnection(observer Observer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer = observer
	if e.pc != nil {
		return nil
	}

	config := e.config
	if len(config.ICEServers) == 0 {
		config.ICEServers = append(config.ICEServers, webrtc.ICEServer{
			URLs: []string{"stun:stun.l.google.com:19302"},
		})
	}
	pc, err := e.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: config.ICEServers,
	})
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	pc.OnSignalingStateChange(func(state webrtc.SignalingState) {
		observer.OnSignalingChange(fromPionSignalingState(state))
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		observer.OnICEConnectionChange(fromPionICEState(state))
	})
	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		// A nil candidate marks the end of gathering.
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		mid := ""
		if init.SDPMid != nil {
			mid = *init.SDPMid
		}
		mline := 0
		if init.SDPMLineIndex != nil {
			mline = int(*init.SDPMLineIndex)
		}
		observer.OnICECandidate(ICECandidate{
			SDPMid:        mid,
			SDPMLineIndex: mline,
			Candidate:     init.Candidate,
		})
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		e.handleRemoteTrack(track)
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		observer.OnDataChannel(e.wrapDataChannel(dc))
	})
	pc.OnNegotiationNeeded(func() {
		observer.OnRenegotiationNeeded()
	})

	e.pc = pc
	return nil
}

func (e *PionEngine) peerConnection() (*webrtc.PeerConnection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pc == nil {
		return nil, fmt.Errorf("peer connection is not initialized")
	}
	return e.pc, nil
}

func (e *PionEngine) CreateOffer() (SessionDescription, error) {
	pc, err := e.peerConnection()
	if err != nil {
		return SessionDescription{}, err
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return SessionDescription{}, fmt.Errorf("fail to createOffer %w", err)
	}
	return SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (e *PionEngine) CreateAnswer() (SessionDescription, error) {
	pc, err := e.peerConnection()
	if err != nil {
		return SessionDescription{}, err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return SessionDescription{}, fmt.Errorf("failed to create answer: %w", err)
	}
	return SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (e *PionEngine) SetLocalDescription(desc SessionDescription) error {
	pc, err := e.peerConnection()
	if err != nil {
		return err
	}
	if err := pc.SetLocalDescription(toPionDescription(desc)); err != nil {
		return fmt.Errorf("fail to set local description %w", err)
	}
	return nil
}

func (e *PionEngine) SetRemoteDescription(desc SessionDescription) error {
	pc, err := e.peerConnection()
	if err != nil {
		return err
	}
	if err := pc.SetRemoteDescription(toPionDescription(desc)); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	return nil
}

func (e *PionEngine) AddICECandidate(candidate ICECandidate) error {
	pc, err := e.peerConnection()
	if err != nil {
		return err
	}
	mid := candidate.SDPMid
	mline := uint16(candidate.SDPMLineIndex)
	init := webrtc.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &mline,
	}
	if err := pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("failed to add ice candidate: %w", err)
	}
	return nil
}

func (e *PionEngine) AddStream(stream *LocalStream) error {
	pc, err := e.peerConnection()
	if err != nil {
		return err
	}
	var senders []*webrtc.RTPSender
	for _, track := range stream.AudioTracks() {
		local, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			track.ID, stream.Label(),
		)
		if err != nil {
			return fmt.Errorf("failed to create audio track: %w", err)
		}
		sender, err := pc.AddTrack(local)
		if err != nil {
			return fmt.Errorf("failed to add audio track: %w", err)
		}
		senders = append(senders, sender)
	}
	for _, track := range stream.VideoTracks() {
		local, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			track.ID, stream.Label(),
		)
		if err != nil {
			return fmt.Errorf("failed to create video track: %w", err)
		}
		sender, err := pc.AddTrack(local)
		if err != nil {
			return fmt.Errorf("failed to add video track: %w", err)
		}
		senders = append(senders, sender)
	}
	e.mu.Lock()
	e.senders[stream.Label()] = senders
	e.mu.Unlock()
	return nil
}

func (e *PionEngine) RemoveStream(stream *LocalStream) error {
	pc, err := e.peerConnection()
	if err != nil {
		return err
	}
	e.mu.Lock()
	senders := e.senders[stream.Label()]
	delete(e.senders, stream.Label())
	e.mu.Unlock()
	for _, sender := range senders {
		if err := pc.RemoveTrack(sender); err != nil {
			return fmt.Errorf("failed to remove track: %w", err)
		}
	}
	return nil
}

func (e *PionEngine) CreateDataChannel(label string) error {
	pc, err := e.peerConnection()
	if err != nil {
		return err
	}
	e.mu.Lock()
	observer := e.observer
	e.mu.Unlock()
	dc, err := pc.CreateDataChannel(label, nil)
	if err != nil {
		return fmt.Errorf("failed to create data channel: %w", err)
	}
	if observer != nil {
		observer.OnDataChannel(e.wrapDataChannel(dc))
	}
	return nil
}

func (e *PionEngine) ClosePeerConnection() error {
	e.mu.Lock()
	pc := e.pc
	e.pc = nil
	e.senders = make(map[string][]*webrtc.RTPSender)
	e.remoteStreams = make(map[string]*remoteMediaStream)
	e.mu.Unlock()
	if pc == nil {
		return nil
	}
	slog.Info("Closing webrtc connection")
	return pc.Close()
}

func (e *PionEngine) GetStats() (*ConnectionStats, error) {
	pc, err := e.peerConnection()
	if err != nil {
		return nil, err
	}
	report := pc.GetStats()
	stats := &ConnectionStats{Timestamp: time.Now()}
	for _, entry := range report {
		if transport, ok := entry.(webrtc.TransportStats); ok {
			stats.BytesSent += transport.BytesSent
			stats.BytesReceived += transport.BytesReceived
		}
	}
	return stats, nil
}

func (e *PionEngine) SignalingState() SignalingState {
	e.mu.Lock()
	pc := e.pc
	e.mu.Unlock()
	if pc == nil {
		return SignalingStateStable
	}
	return fromPionSignalingState(pc.SignalingState())
}

// handleRemoteTrack groups incoming tracks by stream id and raises
// OnAddStream once per stream.
func (e *PionEngine) handleRemoteTrack(track *webrtc.TrackRemote) {
	kind := TrackKindAudio
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		kind = TrackKindVideo
	}
	mediaTrack := MediaTrack{ID: track.ID(), Kind: kind}

	e.mu.Lock()
	stream, known := e.remoteStreams[track.StreamID()]
	if !known {
		stream = &remoteMediaStream{label: track.StreamID()}
		e.remoteStreams[track.StreamID()] = stream
	}
	stream.add(mediaTrack)
	observer := e.observer
	e.mu.Unlock()

	if !known && observer != nil {
		observer.OnAddStream(stream)
	}
}

// remoteMediaStream is the pion-backed MediaStream for remote media.
type remoteMediaStream struct {
	label string

	mu     sync.Mutex
	audio  []MediaTrack
	video  []MediaTrack
}

func (s *remoteMediaStream) add(track MediaTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch track.Kind {
	case TrackKindAudio:
		s.audio = append(s.audio, track)
	case TrackKindVideo:
		s.video = append(s.video, track)
	}
}

func (s *remoteMediaStream) Label() string { return s.label }

func (s *remoteMediaStream) AudioTracks() []MediaTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MediaTrack(nil), s.audio...)
}

func (s *remoteMediaStream) VideoTracks() []MediaTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MediaTrack(nil), s.video...)
}

// pionDataChannel adapts *webrtc.DataChannel to the DataChannel interface and
// feeds its lifecycle into the observer.
type pionDataChannel struct {
	dc *webrtc.DataChannel
}

func (e *PionEngine) wrapDataChannel(dc *webrtc.DataChannel) DataChannel {
	e.mu.Lock()
	observer := e.observer
	e.mu.Unlock()

	dc.OnOpen(func() {
		if observer != nil {
			observer.OnDataChannelStateChange(DataChannelStateOpen)
		}
	})
	dc.OnClose(func() {
		if observer != nil {
			observer.OnDataChannelStateChange(DataChannelStateClosed)
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if !msg.IsString {
			slog.Warn("Binary data is not supported.")
			return
		}
		if observer != nil {
			observer.OnDataChannelMessage(string(msg.Data))
		}
	})
	return &pionDataChannel{dc: dc}
}

func (c *pionDataChannel) Label() string { return c.dc.Label() }

func (c *pionDataChannel) State() DataChannelState {
	switch c.dc.ReadyState() {
	case webrtc.DataChannelStateConnecting:
		return DataChannelStateConnecting
	case webrtc.DataChannelStateOpen:
		return DataChannelStateOpen
	case webrtc.DataChannelStateClosing:
		return DataChannelStateClosing
	default:
		return DataChannelStateClosed
	}
}

func (c *pionDataChannel) Send(message string) error {
	return c.dc.SendText(message)
}

func toPionDescription(desc SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	}
}

func fromPionSignalingState(state webrtc.SignalingState) SignalingState {
	switch state {
	case webrtc.SignalingStateStable:
		return SignalingStateStable
	case webrtc.SignalingStateHaveLocalOffer:
		return SignalingStateHaveLocalOffer
	case webrtc.SignalingStateHaveRemoteOffer:
		return SignalingStateHaveRemoteOffer
	case webrtc.SignalingStateHaveLocalPranswer:
		return SignalingStateHaveLocalPranswer
	case webrtc.SignalingStateHaveRemotePranswer:
		return SignalingStateHaveRemotePranswer
	default:
		return SignalingStateClosed
	}
}

func fromPionICEState(state webrtc.ICEConnectionState) ICEConnectionState {
	switch state {
	case webrtc.ICEConnectionStateNew:
		return ICEConnectionStateNew
	case webrtc.ICEConnectionStateChecking:
		return ICEConnectionStateChecking
	case webrtc.ICEConnectionStateConnected:
		return ICEConnectionStateConnected
	case webrtc.ICEConnectionStateCompleted:
		return ICEConnectionStateCompleted
	case webrtc.ICEConnectionStateDisconnected:
		return ICEConnectionStateDisconnected
	case webrtc.ICEConnectionStateFailed:
		return ICEConnectionStateFailed
	default:
		return ICEConnectionStateClosed
	}
}
