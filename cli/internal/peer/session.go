package peer

import (
	"log/slog"
	"sync"

	"github.com/instructify/liveclass/cli/internal/signaling"
	"github.com/pion/webrtc/v4"
)

// Side says which end of the negotiation a session plays.
type Side int

const (
	Offerer Side = iota
	Answerer
)

// maxRestarts bounds recovery attempts per session.
const maxRestarts = 3

// Info is a snapshot of one session.
type Info struct {
	Peer     string
	State    State
	Buffered int
	Applied  int
	Restarts int
	Stats    Stats
}

// Session is the negotiation state of one teacher and student pair.
//
// Descriptions are set once. Remote candidates that arrive before the remote
// description are buffered and applied in arrival order right after it is
// set, exactly once.
type Session struct {
	peer     string
	side     Side
	signaler Signaler
	onState  StateFunc
	onClose  func(*Session)
	log      *slog.Logger

	mu         sync.Mutex
	state      State
	transport  Transport
	local      *webrtc.SessionDescription
	remote     *webrtc.SessionDescription
	pending    []webrtc.ICECandidateInit
	applied    int
	restarts   int
	restarting bool
	events     []State
}

func newSession(peer string, side Side, signaler Signaler, onState StateFunc, onClose func(*Session)) *Session {
	return &Session{
		peer:     peer,
		side:     side,
		signaler: signaler,
		onState:  onState,
		onClose:  onClose,
		log:      slog.With("peer", peer),
	}
}

// Peer returns the remote participant id.
func (s *Session) Peer() string {
	return s.peer
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// unlock releases the lock and then reports the state changes made while it
// was held, so observers may call back into the session.
func (s *Session) unlock() {
	events := s.events
	s.events = nil
	s.mu.Unlock()

	for _, st := range events {
		if s.onState != nil {
			s.onState(s.peer, st)
		}
		if st == StateClosed && s.onClose != nil {
			s.onClose(s)
		}
	}
}

func (s *Session) transition(to State) bool {
	if s.state == to {
		return false
	}
	if !canTransition(s.state, to) {
		s.log.Debug("ignoring transition", "state", s.state, "to", to)
		return false
	}
	s.log.Debug("session state", "state", s.state, "to", to)
	s.state = to
	s.events = append(s.events, to)
	return true
}

// attach binds the transport. It reports false, closing t, if the session
// was closed first.
func (s *Session) attach(t Transport) bool {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		t.Close()
		return false
	}
	s.transport = t
	s.mu.Unlock()

	t.OnICECandidate(s.sendCandidate)
	t.OnConnectionStateChange(s.handleTransportState)
	return true
}

// Offer starts negotiation from the offering side.
func (s *Session) Offer() error {
	s.mu.Lock()
	defer s.unlock()

	if s.state == StateClosed {
		return NewError("offer", s.peer, ErrClosed)
	}
	if s.side != Offerer || s.state != StateNew || s.local != nil {
		return WrapError("offer", s.peer, ErrProtocolViolation, "state "+s.state.String())
	}

	offer, err := s.transport.CreateOffer()
	if err != nil {
		return s.fail("create offer", err)
	}
	s.transition(StateNegotiating)
	if err := s.transport.SetLocalDescription(offer); err != nil {
		return s.fail("set local description", err)
	}
	s.local = &offer

	return s.send(signaling.SignalOffer, offer, false)
}

// AcceptAnswer applies the remote answer on the offering side.
func (s *Session) AcceptAnswer(answer webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.unlock()

	switch {
	case s.state == StateClosed:
		return NewError("accept answer", s.peer, ErrClosed)
	case s.state == StateConnected:
		s.log.Debug("ignoring answer for connected session")
		return nil
	case s.side != Offerer || s.state != StateNegotiating || s.local == nil:
		return WrapError("accept answer", s.peer, ErrProtocolViolation, "state "+s.state.String())
	case s.remote != nil:
		return WrapError("accept answer", s.peer, ErrProtocolViolation, "remote description already set")
	}

	if err := s.transport.SetRemoteDescription(answer); err != nil {
		return s.fail("set remote description", err)
	}
	s.remote = &answer
	s.flush()
	return nil
}

// AcceptOffer applies the remote offer on the answering side and replies
// with an answer.
func (s *Session) AcceptOffer(offer webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.unlock()

	switch {
	case s.state == StateClosed:
		return NewError("accept offer", s.peer, ErrClosed)
	case s.state == StateConnected:
		s.log.Debug("ignoring offer for connected session")
		return nil
	case s.side != Answerer:
		return WrapError("accept offer", s.peer, ErrProtocolViolation, "offering side")
	case s.remote != nil:
		return WrapError("accept offer", s.peer, ErrProtocolViolation, "remote description already set")
	}

	if err := s.transport.SetRemoteDescription(offer); err != nil {
		return s.fail("set remote description", err)
	}
	s.remote = &offer
	s.flush()

	answer, err := s.transport.CreateAnswer()
	if err != nil {
		return s.fail("create answer", err)
	}
	if err := s.transport.SetLocalDescription(answer); err != nil {
		return s.fail("set local description", err)
	}
	s.local = &answer
	s.transition(StateNegotiating)

	return s.send(signaling.SignalAnswer, answer, false)
}

// AddRemoteCandidate applies c, or buffers it until the remote description
// is set.
func (s *Session) AddRemoteCandidate(c webrtc.ICECandidateInit) error {
	s.mu.Lock()
	defer s.unlock()

	if s.state == StateClosed {
		return NewError("add candidate", s.peer, ErrClosed)
	}
	if s.remote == nil {
		s.pending = append(s.pending, c)
		return nil
	}
	if err := s.transport.AddICECandidate(c); err != nil {
		return transportError("add candidate", s.peer, err)
	}
	s.applied++
	return nil
}

// flush applies buffered candidates in arrival order. A candidate the
// transport rejects is dropped; the rest still apply.
func (s *Session) flush() {
	pending := s.pending
	s.pending = nil
	for _, c := range pending {
		if err := s.transport.AddICECandidate(c); err != nil {
			s.log.Warn("buffered candidate rejected", "err", err)
			continue
		}
		s.applied++
	}
	if len(pending) > 0 {
		s.log.Debug("flushed buffered candidates", "count", len(pending))
	}
}

// AcceptRestartOffer applies an ICE restart offer on the answering side.
// The recorded descriptions stay as first negotiated.
func (s *Session) AcceptRestartOffer(offer webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.unlock()

	if s.state == StateClosed {
		return NewError("restart offer", s.peer, ErrClosed)
	}
	if s.side != Answerer || s.remote == nil {
		return WrapError("restart offer", s.peer, ErrProtocolViolation, "no negotiated session")
	}

	answer, err := s.transport.Recover(offer)
	if err != nil {
		return s.fail("recover", err)
	}
	s.restarts++
	if s.state == StateFailed {
		s.transition(StateNegotiating)
	}
	if answer == nil {
		return nil
	}
	return s.send(signaling.SignalAnswer, *answer, true)
}

// AcceptRestartAnswer completes an ICE restart started by this side.
func (s *Session) AcceptRestartAnswer(answer webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.unlock()

	if s.state == StateClosed {
		return NewError("restart answer", s.peer, ErrClosed)
	}
	if s.side != Offerer || !s.restarting {
		return WrapError("restart answer", s.peer, ErrProtocolViolation, "no restart in progress")
	}
	if _, err := s.transport.Recover(answer); err != nil {
		return s.fail("recover", err)
	}
	s.restarting = false
	return nil
}

func (s *Session) handleTransportState(pcs webrtc.PeerConnectionState) {
	s.mu.Lock()
	defer s.unlock()

	switch pcs {
	case webrtc.PeerConnectionStateConnected:
		s.restarting = false
		s.transition(StateConnected)

	case webrtc.PeerConnectionStateFailed:
		if s.transition(StateFailed) {
			s.restart()
		}

	case webrtc.PeerConnectionStateClosed:
		s.close()

	default:
		s.log.Debug("transport state", "state", pcs)
	}
}

// restart runs the transport's recovery. Running out of attempts or failing
// to restart closes the session.
func (s *Session) restart() {
	if s.restarts >= maxRestarts {
		s.log.Warn("giving up after restarts", "restarts", s.restarts)
		s.close()
		return
	}

	offer, err := s.transport.Restart()
	if err != nil {
		s.fail("restart", err)
		return
	}
	if offer == nil {
		return
	}

	s.restarts++
	s.restarting = true
	s.transition(StateNegotiating)
	s.send(signaling.SignalOffer, *offer, true)
}

func (s *Session) sendCandidate(c webrtc.ICECandidateInit) {
	s.mu.Lock()
	closed := s.state == StateClosed
	s.mu.Unlock()
	if closed {
		return
	}
	if err := s.signaler.SendSignal(signaling.SignalICECandidate, s.peer, c, false); err != nil {
		s.log.Warn("send candidate", "err", err)
	}
}

func (s *Session) send(signalType string, desc webrtc.SessionDescription, restart bool) error {
	if err := s.signaler.SendSignal(signalType, s.peer, desc, restart); err != nil {
		return WrapError("send "+signalType, s.peer, err, "")
	}
	return nil
}

// fail closes the session after a transport error and returns the error.
func (s *Session) fail(op string, err error) error {
	s.log.Warn("negotiation failed", "op", op, "err", err)
	s.close()
	return transportError(op, s.peer, err)
}

// Close tears the session down. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.unlock()
	s.close()
}

func (s *Session) close() {
	if !s.transition(StateClosed) {
		return
	}
	s.pending = nil
	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			s.log.Debug("close transport", "err", err)
		}
	}
}

// SendControl sends msg over the session's control channel.
func (s *Session) SendControl(msg ControlMessage) error {
	s.mu.Lock()
	t, state := s.transport, s.state
	s.mu.Unlock()

	if state == StateClosed {
		return NewError("send control", s.peer, ErrClosed)
	}
	cs, ok := t.(controlSender)
	if !ok {
		return NewError("send control", s.peer, ErrChannelNotOpen)
	}
	return cs.SendControl(msg)
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		Peer:     s.peer,
		State:    s.state,
		Buffered: len(s.pending),
		Applied:  s.applied,
		Restarts: s.restarts,
	}
	if r, ok := s.transport.(statsReporter); ok {
		info.Stats = r.Stats()
	}
	return info
}
