package peer

import (
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Teacher holds one session per student, keyed by student participant id.
type Teacher struct {
	sessions sync.Map
	factory  TransportFactory
	signaler Signaler
	onState  StateFunc
}

func NewTeacher(factory TransportFactory, signaler Signaler, onState StateFunc) *Teacher {
	return &Teacher{factory: factory, signaler: signaler, onState: onState}
}

// StudentReady starts negotiation with a student. A ready signal for a
// student that already has a live session is ignored.
func (t *Teacher) StudentReady(studentID string) error {
	s := newSession(studentID, Offerer, t.signaler, t.onState, t.forget)
	for {
		existing, loaded := t.sessions.LoadOrStore(studentID, s)
		if !loaded {
			break
		}
		old := existing.(*Session)
		if old.State() != StateClosed {
			slog.Debug("duplicate student_ready", "peer", studentID, "state", old.State())
			return nil
		}
		t.sessions.CompareAndDelete(studentID, old)
	}

	tr, err := t.factory(studentID)
	if err != nil {
		s.Close()
		return transportError("create transport", studentID, err)
	}
	if !s.attach(tr) {
		return NewError("student ready", studentID, ErrClosed)
	}
	return s.Offer()
}

// Answer routes a student's answer to its session.
func (t *Teacher) Answer(studentID string, desc webrtc.SessionDescription, restart bool) error {
	s, ok := t.session(studentID)
	if !ok {
		return WrapError("answer", studentID, ErrProtocolViolation, "no session")
	}
	if restart {
		return s.AcceptRestartAnswer(desc)
	}
	return s.AcceptAnswer(desc)
}

// Candidate routes a student's ICE candidate to its session.
func (t *Teacher) Candidate(studentID string, c webrtc.ICECandidateInit) error {
	s, ok := t.session(studentID)
	if !ok {
		return NewError("candidate", studentID, ErrUnknownPeer)
	}
	return s.AddRemoteCandidate(c)
}

// StudentLeft releases the student's session.
func (t *Teacher) StudentLeft(studentID string) {
	if s, ok := t.session(studentID); ok {
		s.Close()
	}
}

// Broadcast sends msg on every session's control channel and returns how
// many sessions took it.
func (t *Teacher) Broadcast(msg ControlMessage) int {
	n := 0
	t.sessions.Range(func(_, v any) bool {
		if err := v.(*Session).SendControl(msg); err == nil {
			n++
		}
		return true
	})
	return n
}

// Sessions returns a snapshot of all live sessions ordered by peer id.
func (t *Teacher) Sessions() []Info {
	var out []Info
	t.sessions.Range(func(_, v any) bool {
		out = append(out, v.(*Session).Info())
		return true
	})
	slices.SortFunc(out, func(a, b Info) int { return strings.Compare(a.Peer, b.Peer) })
	return out
}

// Close closes every session.
func (t *Teacher) Close() {
	t.sessions.Range(func(_, v any) bool {
		v.(*Session).Close()
		return true
	})
}

func (t *Teacher) session(studentID string) (*Session, bool) {
	v, ok := t.sessions.Load(studentID)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

func (t *Teacher) forget(s *Session) {
	t.sessions.CompareAndDelete(s.Peer(), s)
}
