package peer

import "github.com/pion/webrtc/v4"

// Transport is the media connection behind a session. Sessions call it under
// their own lock, one call at a time.
type Transport interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error

	// Restart begins recovery of a failed connection. The offering side
	// returns a restart offer to send; the answering side returns nil and
	// waits for the remote offer.
	Restart() (*webrtc.SessionDescription, error)
	// Recover applies a restart description from the remote. For an offer
	// it returns the answer to send.
	Recover(webrtc.SessionDescription) (*webrtc.SessionDescription, error)

	OnICECandidate(func(webrtc.ICECandidateInit))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	Close() error
}

// TransportFactory builds the transport for the session with peer.
type TransportFactory func(peer string) (Transport, error)

// Stats is what a transport reports about its media.
type Stats struct {
	Packets uint64
	Bytes   uint64
	Lost    uint64
	PLI     uint64
	NACK    uint64
}

type statsReporter interface {
	Stats() Stats
}

type controlSender interface {
	SendControl(ControlMessage) error
}

// Signaler delivers a session's outbound signals to the relay.
type Signaler interface {
	SendSignal(signalType, recipientID string, payload any, restart bool) error
}

// StateFunc observes session state changes.
type StateFunc func(peer string, state State)
