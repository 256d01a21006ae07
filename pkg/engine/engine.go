package engine

// Observer receives events the engine raises on its own: state changes,
// trickled candidates, remote media and the data channel lifecycle.
type Observer interface {
	OnSignalingChange(state SignalingState)
	OnICEConnectionChange(state ICEConnectionState)
	OnICECandidate(candidate ICECandidate)
	OnAddStream(stream MediaStream)
	OnRemoveStream(stream MediaStream)
	OnDataChannel(channel DataChannel)
	OnRenegotiationNeeded()
	OnDataChannelStateChange(state DataChannelState)
	OnDataChannelMessage(message string)
}

// EventHandler is everything a session channel consumes from the engine:
// spontaneous events plus the completions of the asynchronous SDP operations
// issued through the Adapter.
type EventHandler interface {
	Observer
	OnCreateDescriptionSuccess(desc SessionDescription)
	OnCreateDescriptionFailure(err error)
	OnSetLocalDescriptionSuccess()
	OnSetLocalDescriptionFailure(err error)
	OnSetRemoteDescriptionSuccess()
	OnSetRemoteDescriptionFailure(err error)
}

// Engine is the low-level WebRTC capability set. Implementations are not
// required to be safe for concurrent use; the Adapter serializes every call
// onto one worker goroutine. SignalingState is the exception: it must be safe
// to call from any goroutine.
type Engine interface {
	// InitializePeerConnection prepares a fresh peer connection and registers
	// the observer. Calling it again within the same session is a no-op.
	InitializePeerConnection(observer Observer) error
	CreateOffer() (SessionDescription, error)
	CreateAnswer() (SessionDescription, error)
	SetLocalDescription(desc SessionDescription) error
	SetRemoteDescription(desc SessionDescription) error
	AddICECandidate(candidate ICECandidate) error
	AddStream(stream *LocalStream) error
	RemoveStream(stream *LocalStream) error
	// CreateDataChannel opens a local data channel. The handle is delivered
	// through Observer.OnDataChannel, same as a remotely opened channel.
	CreateDataChannel(label string) error
	ClosePeerConnection() error
	GetStats() (*ConnectionStats, error)
	SignalingState() SignalingState
}
