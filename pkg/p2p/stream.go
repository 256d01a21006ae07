package p2p

import (
	"github.com/rescp17/lanPeerTalk/pkg/engine"
)

// RemoteStream is a media stream published by the remote peer, classified by
// the source label it advertised over signaling.
type RemoteStream struct {
	stream engine.MediaStream
	origin string
	source string
}

func newRemoteStream(stream engine.MediaStream, origin, source string) *RemoteStream {
	return &RemoteStream{stream: stream, origin: origin, source: source}
}

// Label returns the engine's stream label.
func (s *RemoteStream) Label() string { return s.stream.Label() }

// Origin returns the id of the peer that published the stream.
func (s *RemoteStream) Origin() string { return s.origin }

// Source returns the video source classification ("camera" or "screen-cast").
func (s *RemoteStream) Source() string { return s.source }

// AudioTracks lists the stream's audio tracks.
func (s *RemoteStream) AudioTracks() []engine.MediaTrack { return s.stream.AudioTracks() }

// VideoTracks lists the stream's video tracks.
func (s *RemoteStream) VideoTracks() []engine.MediaTrack { return s.stream.VideoTracks() }
