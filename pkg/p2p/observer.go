package p2p

// ChannelObserver receives session lifecycle events. All callbacks run on the
// channel's event queue, one at a time, in the order the events occurred.
// Observers must not add or remove observers from within a callback.
type ChannelObserver interface {
	// OnInvited is called when the remote peer sends an invitation.
	OnInvited(remoteID string)
	// OnAccepted is called when the remote peer accepts our invitation.
	OnAccepted(remoteID string)
	// OnDenied is called when the remote peer denies our invitation.
	OnDenied(remoteID string)
	// OnStarted is called when the peer connection is first established.
	OnStarted(remoteID string)
	// OnStopped is called when the session ends.
	OnStopped(remoteID string)
	// OnData is called for each text message received on the data channel.
	OnData(remoteID string, message string)
	// OnStreamAdded is called when a remote media stream becomes available.
	OnStreamAdded(stream *RemoteStream)
	// OnStreamRemoved is called when a remote media stream goes away.
	OnStreamRemoved(stream *RemoteStream)
}
