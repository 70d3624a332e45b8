package peer

import (
	"sync"

	"github.com/instructify/liveclass/cli/internal/signaling"
	"github.com/pion/webrtc/v4"
)

// Student holds the single session with the current teacher.
type Student struct {
	factory  TransportFactory
	signaler Signaler
	onState  StateFunc

	mu        sync.Mutex
	session   *Session
	teacher   string
	announced bool
}

func NewStudent(factory TransportFactory, signaler Signaler, onState StateFunc) *Student {
	return &Student{factory: factory, signaler: signaler, onState: onState}
}

// TeacherPresent records the current teacher and sends student_ready to it,
// once per teacher. A session with a previous teacher is closed.
func (st *Student) TeacherPresent(teacherID string) error {
	st.mu.Lock()
	if st.teacher == teacherID && st.announced {
		st.mu.Unlock()
		return nil
	}
	var stale *Session
	if st.session != nil && st.session.Peer() != teacherID {
		stale, st.session = st.session, nil
	}
	st.teacher = teacherID
	st.announced = true
	st.mu.Unlock()

	if stale != nil {
		stale.Close()
	}
	return st.signaler.SendSignal(signaling.SignalStudentReady, teacherID, nil, false)
}

// TeacherLeft drops the session with teacherID and goes back to waiting.
func (st *Student) TeacherLeft(teacherID string) {
	st.mu.Lock()
	var s *Session
	if st.session != nil && st.session.Peer() == teacherID {
		s, st.session = st.session, nil
	}
	if st.teacher == teacherID {
		st.teacher = ""
		st.announced = false
	}
	st.mu.Unlock()

	if s != nil {
		s.Close()
	}
}

// Offer routes an offer from the teacher, creating the session on demand.
func (st *Student) Offer(teacherID string, desc webrtc.SessionDescription, restart bool) error {
	s, err := st.sessionFor(teacherID)
	if err != nil {
		return err
	}
	if restart {
		return s.AcceptRestartOffer(desc)
	}
	return s.AcceptOffer(desc)
}

// Candidate routes a teacher's ICE candidate. Candidates may come before
// the offer; the session buffers them.
func (st *Student) Candidate(teacherID string, c webrtc.ICECandidateInit) error {
	s, err := st.sessionFor(teacherID)
	if err != nil {
		return err
	}
	return s.AddRemoteCandidate(c)
}

// SendControl sends msg to the teacher over the control channel.
func (st *Student) SendControl(msg ControlMessage) error {
	st.mu.Lock()
	s := st.session
	st.mu.Unlock()
	if s == nil {
		return NewError("send control", "", ErrChannelNotOpen)
	}
	return s.SendControl(msg)
}

// Session returns a snapshot of the current session, if any.
func (st *Student) Session() (Info, bool) {
	st.mu.Lock()
	s := st.session
	st.mu.Unlock()
	if s == nil {
		return Info{}, false
	}
	return s.Info(), true
}

func (st *Student) Close() {
	st.mu.Lock()
	s := st.session
	st.session = nil
	st.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

// sessionFor returns the session with teacherID. Once a teacher is known,
// signals from any other sender are rejected; only TeacherPresent and
// TeacherLeft switch teachers.
func (st *Student) sessionFor(teacherID string) (*Session, error) {
	s, err := st.current(teacherID)
	if s != nil || err != nil {
		return s, err
	}

	tr, err := st.factory(teacherID)
	if err != nil {
		return nil, transportError("create transport", teacherID, err)
	}
	s = newSession(teacherID, Answerer, st.signaler, st.onState, st.forget)
	s.attach(tr)

	st.mu.Lock()
	if st.teacher != "" && st.teacher != teacherID {
		st.mu.Unlock()
		s.Close()
		return nil, NewError("signal", teacherID, ErrUnknownPeer)
	}
	if cur := st.session; cur != nil && cur.Peer() == teacherID && cur.State() != StateClosed {
		st.mu.Unlock()
		s.Close()
		return cur, nil
	}
	stale := st.session
	st.session = s
	st.mu.Unlock()

	if stale != nil {
		stale.Close()
	}
	return s, nil
}

func (st *Student) current(teacherID string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.teacher != "" && st.teacher != teacherID {
		return nil, NewError("signal", teacherID, ErrUnknownPeer)
	}
	if s := st.session; s != nil && s.Peer() == teacherID && s.State() != StateClosed {
		return s, nil
	}
	return nil, nil
}

func (st *Student) forget(s *Session) {
	st.mu.Lock()
	if st.session == s {
		st.session = nil
	}
	st.mu.Unlock()
}
