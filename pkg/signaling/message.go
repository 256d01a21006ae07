package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies a signaling envelope.
type MessageType string

const (
	ChatInvitation        MessageType = "chat-invitation"
	ChatAccept            MessageType = "chat-accepted"
	ChatDeny              MessageType = "chat-denied"
	ChatStop              MessageType = "chat-closed"
	ChatSignal            MessageType = "chat-signal"
	ChatNegotiationNeeded MessageType = "chat-negotiation-needed"
	ChatTrackSources      MessageType = "chat-track-sources"
)

// Signal payload type values inside a chat-signal envelope.
const (
	SignalTypeOffer      = "offer"
	SignalTypeAnswer     = "answer"
	SignalTypeCandidates = "candidates"
)

var (
	ErrMissingType = errors.New("signaling message has no type")
	ErrUnknownType = errors.New("unknown signaling message type")
)

// envelope is the wire shape of every signaling message.
type envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// uaData wraps the UA info of invitations and acceptances.
type uaData struct {
	UA UAInfo `json:"ua"`
}

// DescriptionSignal is a chat-signal payload carrying a session description.
type DescriptionSignal struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// CandidateSignal is a chat-signal payload carrying an ICE candidate.
type CandidateSignal struct {
	Type          string `json:"type"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
	Candidate     string `json:"candidate"`
}

// TrackSource associates a media track id with its source label.
type TrackSource struct {
	ID     string `json:"id"`
	Source string `json:"source"`
}

// Track source labels.
const (
	SourceMic        = "mic"
	SourceCamera     = "camera"
	SourceScreenCast = "screen-cast"
)

// Message is a decoded signaling envelope. Exactly the fields matching Type
// are populated.
type Message struct {
	Type MessageType

	// UA is set for ChatInvitation and ChatAccept.
	UA *UAInfo
	// Description is set for a ChatSignal carrying an offer or answer.
	Description *DescriptionSignal
	// Candidate is set for a ChatSignal carrying an ICE candidate.
	Candidate *CandidateSignal
	// TrackSources is set for ChatTrackSources.
	TrackSources []TrackSource
}

// Decode parses a raw signaling string. Callers are expected to log and drop
// messages that fail to decode; a decode error is never a user-facing error.
func Decode(raw string) (Message, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Message{}, fmt.Errorf("cannot parse incoming message: %w", err)
	}
	if env.Type == "" {
		return Message{}, ErrMissingType
	}
	msg := Message{Type: env.Type}
	switch env.Type {
	case ChatInvitation, ChatAccept:
		var data uaData
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &data); err != nil {
				return Message{}, fmt.Errorf("cannot parse ua data: %w", err)
			}
		}
		msg.UA = &data.UA
	case ChatDeny, ChatStop, ChatNegotiationNeeded:
		// No payload.
	case ChatSignal:
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(env.Data, &head); err != nil {
			return Message{}, fmt.Errorf("cannot parse signal data: %w", err)
		}
		switch head.Type {
		case SignalTypeOffer, SignalTypeAnswer:
			var desc DescriptionSignal
			if err := json.Unmarshal(env.Data, &desc); err != nil {
				return Message{}, fmt.Errorf("cannot parse received sdp: %w", err)
			}
			msg.Description = &desc
		case SignalTypeCandidates:
			var cand CandidateSignal
			if err := json.Unmarshal(env.Data, &cand); err != nil {
				return Message{}, fmt.Errorf("cannot parse received candidate: %w", err)
			}
			msg.Candidate = &cand
		default:
			return Message{}, fmt.Errorf("%w: signal %q", ErrUnknownType, head.Type)
		}
	case ChatTrackSources:
		var sources []TrackSource
		if err := json.Unmarshal(env.Data, &sources); err != nil {
			return Message{}, fmt.Errorf("cannot parse track sources: %w", err)
		}
		msg.TrackSources = sources
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	return msg, nil
}

func encode(t MessageType, data any) (string, error) {
	env := struct {
		Type MessageType `json:"type"`
		Data any         `json:"data,omitempty"`
	}{Type: t, Data: data}
	b, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s message: %w", t, err)
	}
	return string(b), nil
}

// EncodeInvitation builds a chat-invitation envelope carrying the local UA.
func EncodeInvitation(ua UAInfo) (string, error) {
	return encode(ChatInvitation, uaData{UA: ua})
}

// EncodeAcceptance builds a chat-accepted envelope carrying the local UA.
func EncodeAcceptance(ua UAInfo) (string, error) {
	return encode(ChatAccept, uaData{UA: ua})
}

// EncodeDeny builds a chat-denied envelope.
func EncodeDeny() (string, error) {
	return encode(ChatDeny, nil)
}

// EncodeStop builds a chat-closed envelope.
func EncodeStop() (string, error) {
	return encode(ChatStop, nil)
}

// EncodeNegotiationNeeded builds a chat-negotiation-needed envelope.
func EncodeNegotiationNeeded() (string, error) {
	return encode(ChatNegotiationNeeded, nil)
}

// EncodeDescriptionSignal builds a chat-signal envelope carrying an offer or
// answer.
func EncodeDescriptionSignal(descType, sdp string) (string, error) {
	return encode(ChatSignal, DescriptionSignal{Type: descType, SDP: sdp})
}

// EncodeCandidateSignal builds a chat-signal envelope carrying an ICE
// candidate.
func EncodeCandidateSignal(sdpMid string, sdpMLineIndex int, candidate string) (string, error) {
	return encode(ChatSignal, CandidateSignal{
		Type:          SignalTypeCandidates,
		SDPMid:        sdpMid,
		SDPMLineIndex: sdpMLineIndex,
		Candidate:     candidate,
	})
}

// EncodeTrackSources builds a chat-track-sources envelope.
func EncodeTrackSources(sources []TrackSource) (string, error) {
	return encode(ChatTrackSources, sources)
}
