package signaling

import (
	"github.com/rescp17/lanPeerTalk/pkg/system"
)

// UAInfo describes the SDK and runtime of one side of a session. It travels
// inside chat-invitation and chat-accepted envelopes.
type UAInfo struct {
	SDK     system.SDKInfo     `json:"sdk"`
	Runtime system.RuntimeInfo `json:"runtime"`
}

// LocalUAInfo returns the UA info advertised by this peer.
func LocalUAInfo() UAInfo {
	info := system.GetInfo()
	return UAInfo{
		SDK:     info.SDK,
		Runtime: info.Runtime,
	}
}

// Capabilities are the features a remote peer is known to support, derived
// from its advertised runtime.
type Capabilities struct {
	SupportsRemoveStream bool
	SupportsPlanB        bool
}

// firefoxRuntimeName is the runtime identifier browsers advertise for
// Firefox, which supports neither removeStream nor Plan B multi-stream SDP.
const firefoxRuntimeName = "FireFox"

// ClassifyCapabilities derives the remote peer's capability flags from its
// UA. It must run before the session advances so a following Publish sees the
// correct flags.
func ClassifyCapabilities(ua UAInfo) Capabilities {
	if ua.Runtime.Name == firefoxRuntimeName {
		return Capabilities{}
	}
	return Capabilities{
		SupportsRemoveStream: true,
		SupportsPlanB:        true,
	}
}
