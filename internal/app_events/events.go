package appevents

import (
	"github.com/rescp17/lanPeerTalk/pkg/discovery"
)

// AppEvent is a marker interface for events sent from the TUI to the App's
// logic controller. It uses an unexported method, so a type satisfies the
// interface only by embedding Event.
type AppEvent interface {
	isAppEvent()
}

// Event is a struct that can be embedded in other event types to satisfy the
// AppEvent interface.
type Event struct{}

func (Event) isAppEvent() {}

// --- App Events (from TUI to App) ---

// CallPeerMsg asks the app to invite a discovered peer.
type CallPeerMsg struct {
	Event
	Peer discovery.ServiceInfo
}

// AcceptInviteMsg accepts a pending invitation from a peer.
type AcceptInviteMsg struct {
	Event
	PeerID string
}

// DenyInviteMsg denies a pending invitation from a peer.
type DenyInviteMsg struct {
	Event
	PeerID string
}

// SendMessageMsg sends a chat line to the connected peer.
type SendMessageMsg struct {
	Event
	PeerID string
	Text   string
}

// HangUpMsg stops the session with a peer.
type HangUpMsg struct {
	Event
	PeerID string
}

// --- UI Messages (from App to TUI, delivered as tea.Msg) ---

// FoundPeersMsg carries the current snapshot of discovered peers.
type FoundPeersMsg struct {
	Peers []discovery.ServiceInfo
}

// InvitedMsg reports an incoming invitation.
type InvitedMsg struct {
	PeerID string
}

// AcceptedMsg reports that the remote peer accepted our invitation.
type AcceptedMsg struct {
	PeerID string
}

// DeniedMsg reports that the remote peer denied our invitation.
type DeniedMsg struct {
	PeerID string
}

// SessionStartedMsg reports an established session.
type SessionStartedMsg struct {
	PeerID string
}

// SessionStoppedMsg reports a finished session.
type SessionStoppedMsg struct {
	PeerID string
}

// ChatMessageMsg carries one chat line, local or remote.
type ChatMessageMsg struct {
	PeerID  string
	Text    string
	Inbound bool
}

// StatusUpdateMsg carries a transient status line for the UI.
type StatusUpdateMsg struct {
	Message string
}

// Error carries an error for the UI.
type Error struct {
	Err error
}
