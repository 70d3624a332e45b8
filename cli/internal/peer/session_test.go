package peer

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/instructify/liveclass/cli/internal/signaling"
	"github.com/pion/webrtc/v4"
)

type fakeTransport struct {
	mu           sync.Mutex
	calls        []string
	restartOffer *webrtc.SessionDescription
	failOn       string
	closed       bool
	onState      func(webrtc.PeerConnectionState)
	onCandidate  func(webrtc.ICECandidateInit)
}

func (f *fakeTransport) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.failOn == call {
		return errors.New(call + " exploded")
	}
	return nil
}

func (f *fakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeTransport) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer"}, f.record("create-offer")
}

func (f *fakeTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}, f.record("create-answer")
}

func (f *fakeTransport) SetLocalDescription(d webrtc.SessionDescription) error {
	return f.record("set-local:" + d.SDP)
}

func (f *fakeTransport) SetRemoteDescription(d webrtc.SessionDescription) error {
	return f.record("set-remote:" + d.SDP)
}

func (f *fakeTransport) AddICECandidate(c webrtc.ICECandidateInit) error {
	return f.record("candidate:" + c.Candidate)
}

func (f *fakeTransport) Restart() (*webrtc.SessionDescription, error) {
	if err := f.record("restart"); err != nil {
		return nil, err
	}
	return f.restartOffer, nil
}

func (f *fakeTransport) Recover(d webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := f.record("recover:" + d.SDP); err != nil {
		return nil, err
	}
	if d.Type == webrtc.SDPTypeOffer {
		return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "restart-answer"}, nil
	}
	return nil, nil
}

func (f *fakeTransport) OnICECandidate(fn func(webrtc.ICECandidateInit)) { f.onCandidate = fn }

func (f *fakeTransport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) { f.onState = fn }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type transports struct {
	mu      sync.Mutex
	byPeer  map[string]*fakeTransport
	created atomic.Int32
	err     error
	restart bool
}

func newTransports() *transports {
	return &transports{byPeer: make(map[string]*fakeTransport)}
}

func (ts *transports) factory(peer string) (Transport, error) {
	ts.created.Add(1)
	if ts.err != nil {
		return nil, ts.err
	}
	ft := &fakeTransport{}
	if ts.restart {
		ft.restartOffer = &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "restart-offer"}
	}
	ts.mu.Lock()
	ts.byPeer[peer] = ft
	ts.mu.Unlock()
	return ft, nil
}

func (ts *transports) get(peer string) *fakeTransport {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.byPeer[peer]
}

type sent struct {
	signalType string
	to         string
	payload    any
	restart    bool
}

type recorder struct {
	mu  sync.Mutex
	out []sent
}

func (r *recorder) SendSignal(signalType, recipientID string, payload any, restart bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, sent{signalType, recipientID, payload, restart})
	return nil
}

func (r *recorder) Sent() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.out)
}

type stateLog struct {
	mu     sync.Mutex
	states map[string][]State
}

func (l *stateLog) observe(peer string, s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.states == nil {
		l.states = make(map[string][]State)
	}
	l.states[peer] = append(l.states[peer], s)
}

func (l *stateLog) of(peer string) []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.states[peer])
}

func cand(s string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: s}
}

var answer = webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "student-answer"}

func TestTeacherHandshakeBuffersEarlyCandidates(t *testing.T) {
	ts, sig, log := newTransports(), &recorder{}, &stateLog{}
	teacher := NewTeacher(ts.factory, sig, log.observe)

	if err := teacher.StudentReady("s1"); err != nil {
		t.Fatalf("StudentReady: %v", err)
	}
	out := sig.Sent()
	if len(out) != 1 || out[0].signalType != signaling.SignalOffer || out[0].to != "s1" || out[0].restart {
		t.Fatalf("sent = %+v", out)
	}

	for _, c := range []string{"c1", "c2"} {
		if err := teacher.Candidate("s1", cand(c)); err != nil {
			t.Fatalf("Candidate: %v", err)
		}
	}
	if info := teacher.Sessions()[0]; info.Buffered != 2 || info.Applied != 0 || info.State != StateNegotiating {
		t.Fatalf("info before answer = %+v", info)
	}

	if err := teacher.Answer("s1", answer, false); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if err := teacher.Candidate("s1", cand("c3")); err != nil {
		t.Fatalf("Candidate: %v", err)
	}

	want := []string{"create-offer", "set-local:offer", "set-remote:student-answer", "candidate:c1", "candidate:c2", "candidate:c3"}
	if got := ts.get("s1").Calls(); !slices.Equal(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if info := teacher.Sessions()[0]; info.Buffered != 0 || info.Applied != 3 {
		t.Fatalf("info after answer = %+v", info)
	}

	err := teacher.Answer("s1", answer, false)
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("second answer err = %v", err)
	}
	if got := len(ts.get("s1").Calls()); got != len(want) {
		t.Fatalf("second answer reached transport: %v", ts.get("s1").Calls())
	}

	ts.get("s1").onState(webrtc.PeerConnectionStateConnected)
	if got := log.of("s1"); !slices.Equal(got, []State{StateNegotiating, StateConnected}) {
		t.Fatalf("states = %v", got)
	}
	if err := teacher.Answer("s1", answer, false); err != nil {
		t.Fatalf("answer for connected session should be ignored, got %v", err)
	}
}

func TestTeacherDuplicateReady(t *testing.T) {
	ts, sig := newTransports(), &recorder{}
	teacher := NewTeacher(ts.factory, sig, nil)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			teacher.StudentReady("s1")
		}()
	}
	wg.Wait()

	if n := ts.created.Load(); n != 1 {
		t.Fatalf("transports created = %d", n)
	}
	if n := len(sig.Sent()); n != 1 {
		t.Fatalf("offers sent = %d", n)
	}
}

func TestTeacherSessionsAreIsolated(t *testing.T) {
	ts, sig := newTransports(), &recorder{}
	teacher := NewTeacher(ts.factory, sig, nil)

	for _, id := range []string{"a", "b"} {
		if err := teacher.StudentReady(id); err != nil {
			t.Fatal(err)
		}
	}
	teacher.Candidate("a", cand("for-a"))
	teacher.Answer("a", answer, false)

	if calls := ts.get("b").Calls(); slices.Contains(calls, "candidate:for-a") || slices.Contains(calls, "set-remote:student-answer") {
		t.Fatalf("b saw a's signals: %v", calls)
	}
	infos := teacher.Sessions()
	if len(infos) != 2 || infos[0].Peer != "a" || infos[0].Applied != 1 || infos[1].Applied != 0 {
		t.Fatalf("sessions = %+v", infos)
	}
}

func TestTeacherUnknownStudent(t *testing.T) {
	teacher := NewTeacher(newTransports().factory, &recorder{}, nil)

	if err := teacher.Answer("ghost", answer, false); !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("Answer err = %v", err)
	}
	if err := teacher.Candidate("ghost", cand("c")); !errors.Is(err, ErrUnknownPeer) {
		t.Fatalf("Candidate err = %v", err)
	}
}

func TestTeacherStudentLeft(t *testing.T) {
	ts, log := newTransports(), &stateLog{}
	teacher := NewTeacher(ts.factory, &recorder{}, log.observe)
	teacher.StudentReady("s1")

	teacher.StudentLeft("s1")
	if !ts.get("s1").Closed() {
		t.Fatal("transport not closed")
	}
	if n := len(teacher.Sessions()); n != 0 {
		t.Fatalf("sessions = %d", n)
	}
	if got := log.of("s1"); got[len(got)-1] != StateClosed {
		t.Fatalf("states = %v", got)
	}

	// A returning student negotiates afresh.
	if err := teacher.StudentReady("s1"); err != nil {
		t.Fatal(err)
	}
	if n := ts.created.Load(); n != 2 {
		t.Fatalf("transports created = %d", n)
	}
}

func TestTransportCreationFailure(t *testing.T) {
	ts := newTransports()
	ts.err = errors.New("no sockets")
	teacher := NewTeacher(ts.factory, &recorder{}, nil)

	err := teacher.StudentReady("s1")
	if !errors.Is(err, ErrTransportFailure) {
		t.Fatalf("err = %v", err)
	}
	if n := len(teacher.Sessions()); n != 0 {
		t.Fatalf("failed session kept: %d", n)
	}

	ts.err = nil
	if err := teacher.StudentReady("s1"); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestNegotiationFailureClosesSession(t *testing.T) {
	sig := &recorder{}
	teacher := NewTeacher(func(string) (Transport, error) {
		return &fakeTransport{failOn: "set-local:offer"}, nil
	}, sig, nil)

	err := teacher.StudentReady("s1")
	if !errors.Is(err, ErrTransportFailure) {
		t.Fatalf("err = %v", err)
	}
	if len(sig.Sent()) != 0 {
		t.Fatalf("offer sent after failure: %+v", sig.Sent())
	}
	if n := len(teacher.Sessions()); n != 0 {
		t.Fatalf("sessions = %d", n)
	}
}

func TestTeacherRestart(t *testing.T) {
	ts, sig, log := newTransports(), &recorder{}, &stateLog{}
	ts.restart = true
	teacher := NewTeacher(ts.factory, sig, log.observe)
	teacher.StudentReady("s1")
	teacher.Answer("s1", answer, false)

	ft := ts.get("s1")
	ft.onState(webrtc.PeerConnectionStateConnected)
	ft.onState(webrtc.PeerConnectionStateFailed)

	out := sig.Sent()
	last := out[len(out)-1]
	if last.signalType != signaling.SignalOffer || !last.restart {
		t.Fatalf("restart offer not sent: %+v", out)
	}
	if desc := last.payload.(webrtc.SessionDescription); desc.SDP != "restart-offer" {
		t.Fatalf("restart payload = %+v", desc)
	}

	restartAnswer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "student-restart"}
	if err := teacher.Answer("s1", restartAnswer, true); err != nil {
		t.Fatalf("restart answer: %v", err)
	}
	if err := teacher.Answer("s1", restartAnswer, true); !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("unsolicited restart answer err = %v", err)
	}
	ft.onState(webrtc.PeerConnectionStateConnected)

	want := []State{StateNegotiating, StateConnected, StateFailed, StateNegotiating, StateConnected}
	if got := log.of("s1"); !slices.Equal(got, want) {
		t.Fatalf("states = %v, want %v", got, want)
	}

	s, _ := teacher.session("s1")
	if s.remote.SDP != "student-answer" || s.local.SDP != "offer" {
		t.Fatalf("recorded descriptions changed: local %q remote %q", s.local.SDP, s.remote.SDP)
	}
	if !slices.Contains(ft.Calls(), "recover:student-restart") {
		t.Fatalf("calls = %v", ft.Calls())
	}
}

func TestRestartLimit(t *testing.T) {
	ts := newTransports()
	ts.restart = true
	teacher := NewTeacher(ts.factory, &recorder{}, nil)
	teacher.StudentReady("s1")
	teacher.Answer("s1", answer, false)

	ft := ts.get("s1")
	for range maxRestarts + 1 {
		ft.onState(webrtc.PeerConnectionStateConnected)
		ft.onState(webrtc.PeerConnectionStateFailed)
	}
	if !ft.Closed() {
		t.Fatal("session should close after exhausting restarts")
	}
	if n := len(teacher.Sessions()); n != 0 {
		t.Fatalf("sessions = %d", n)
	}
}

func TestRestartErrorCloses(t *testing.T) {
	log := &stateLog{}
	ft := &fakeTransport{failOn: "restart"}
	teacher := NewTeacher(func(string) (Transport, error) { return ft, nil }, &recorder{}, log.observe)
	teacher.StudentReady("s1")
	teacher.Answer("s1", answer, false)

	ft.onState(webrtc.PeerConnectionStateFailed)

	want := []State{StateNegotiating, StateFailed, StateClosed}
	if got := log.of("s1"); !slices.Equal(got, want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
}

func TestLocalCandidatesAreSignaled(t *testing.T) {
	ts, sig := newTransports(), &recorder{}
	teacher := NewTeacher(ts.factory, sig, nil)
	teacher.StudentReady("s1")

	ts.get("s1").onCandidate(cand("local-1"))
	out := sig.Sent()
	if len(out) != 2 || out[1].signalType != signaling.SignalICECandidate || out[1].to != "s1" {
		t.Fatalf("sent = %+v", out)
	}

	teacher.StudentLeft("s1")
	ts.get("s1").onCandidate(cand("local-2"))
	if len(sig.Sent()) != 2 {
		t.Fatal("candidate sent after close")
	}
}

var offer = webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "teacher-offer"}

func TestStudentAnswersAfterBufferedCandidates(t *testing.T) {
	ts, sig, log := newTransports(), &recorder{}, &stateLog{}
	student := NewStudent(ts.factory, sig, log.observe)

	student.Candidate("t1", cand("c1"))
	student.Candidate("t1", cand("c2"))
	if info, ok := student.Session(); !ok || info.Buffered != 2 || info.State != StateNew {
		t.Fatalf("session before offer = %+v %v", info, ok)
	}

	if err := student.Offer("t1", offer, false); err != nil {
		t.Fatalf("Offer: %v", err)
	}
	want := []string{"set-remote:teacher-offer", "candidate:c1", "candidate:c2", "create-answer", "set-local:answer"}
	if got := ts.get("t1").Calls(); !slices.Equal(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}

	out := sig.Sent()
	if len(out) != 1 || out[0].signalType != signaling.SignalAnswer || out[0].to != "t1" {
		t.Fatalf("sent = %+v", out)
	}
	if n := ts.created.Load(); n != 1 {
		t.Fatalf("transports = %d", n)
	}

	if err := student.Offer("t1", offer, false); !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("second offer err = %v", err)
	}
	if got := log.of("t1"); !slices.Equal(got, []State{StateNegotiating}) {
		t.Fatalf("states = %v", got)
	}
}

func TestStudentRestart(t *testing.T) {
	ts, sig := newTransports(), &recorder{}
	student := NewStudent(ts.factory, sig, nil)
	student.Offer("t1", offer, false)

	ft := ts.get("t1")
	ft.onState(webrtc.PeerConnectionStateFailed)
	if info, _ := student.Session(); info.State != StateFailed {
		t.Fatalf("state = %v", info.State)
	}

	restartOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "restart-offer"}
	if err := student.Offer("t1", restartOffer, true); err != nil {
		t.Fatalf("restart offer: %v", err)
	}
	out := sig.Sent()
	last := out[len(out)-1]
	if last.signalType != signaling.SignalAnswer || !last.restart || last.payload.(webrtc.SessionDescription).SDP != "restart-answer" {
		t.Fatalf("restart answer = %+v", last)
	}
	if info, _ := student.Session(); info.State != StateNegotiating || info.Restarts != 1 {
		t.Fatalf("info = %+v", info)
	}
}

func TestStudentRestartWithoutSession(t *testing.T) {
	student := NewStudent(newTransports().factory, &recorder{}, nil)
	err := student.Offer("t1", offer, true)
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("err = %v", err)
	}
}

func TestStudentTeacherChanges(t *testing.T) {
	ts, sig := newTransports(), &recorder{}
	student := NewStudent(ts.factory, sig, nil)

	student.TeacherPresent("t1")
	student.TeacherPresent("t1")
	if out := sig.Sent(); len(out) != 1 || out[0].signalType != signaling.SignalStudentReady || out[0].to != "t1" {
		t.Fatalf("sent = %+v", out)
	}
	student.Offer("t1", offer, false)

	student.TeacherPresent("t2")
	if !ts.get("t1").Closed() {
		t.Fatal("session with replaced teacher still open")
	}
	if _, ok := student.Session(); ok {
		t.Fatal("stale session kept")
	}

	student.TeacherLeft("t2")
	student.TeacherPresent("t2")
	ready := 0
	for _, s := range sig.Sent() {
		if s.signalType == signaling.SignalStudentReady {
			ready++
		}
	}
	if ready != 3 {
		t.Fatalf("student_ready sent %d times", ready)
	}
}

func TestStudentIgnoresPreviousTeacher(t *testing.T) {
	ts := newTransports()
	student := NewStudent(ts.factory, &recorder{}, nil)
	student.TeacherPresent("t2")
	if err := student.Offer("t2", offer, false); err != nil {
		t.Fatalf("Offer: %v", err)
	}

	if err := student.Candidate("t1", cand("late")); !errors.Is(err, ErrUnknownPeer) {
		t.Fatalf("Candidate err = %v", err)
	}
	restartOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "restart-offer"}
	if err := student.Offer("t1", restartOffer, true); !errors.Is(err, ErrUnknownPeer) {
		t.Fatalf("restart Offer err = %v", err)
	}
	if err := student.Offer("t1", offer, false); !errors.Is(err, ErrUnknownPeer) {
		t.Fatalf("Offer err = %v", err)
	}

	if ts.get("t2").Closed() {
		t.Fatal("session with current teacher closed")
	}
	if ts.get("t1") != nil {
		t.Fatal("transport created for previous teacher")
	}
	info, ok := student.Session()
	if !ok || info.Peer != "t2" || info.State != StateNegotiating {
		t.Fatalf("info = %+v ok=%v", info, ok)
	}
}

func TestStudentTeacherLeftClosesSession(t *testing.T) {
	ts := newTransports()
	student := NewStudent(ts.factory, &recorder{}, nil)
	student.TeacherPresent("t1")
	student.Offer("t1", offer, false)

	student.TeacherLeft("t1")
	if !ts.get("t1").Closed() {
		t.Fatal("transport not closed")
	}
	if _, ok := student.Session(); ok {
		t.Fatal("session kept after teacher left")
	}
	if err := student.SendControl(ControlMessage{Type: ControlHandRaise}); !errors.Is(err, ErrChannelNotOpen) {
		t.Fatalf("SendControl err = %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateNew, StateNegotiating, true},
		{StateNew, StateConnected, false},
		{StateNegotiating, StateConnected, true},
		{StateConnected, StateFailed, true},
		{StateFailed, StateNegotiating, true},
		{StateConnected, StateNegotiating, false},
		{StateNew, StateClosed, true},
		{StateClosed, StateNegotiating, false},
		{StateClosed, StateClosed, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s-%s", tt.from, tt.to), func(t *testing.T) {
			if got := canTransition(tt.from, tt.to); got != tt.want {
				t.Fatalf("canTransition = %v", got)
			}
		})
	}
}

func TestControlPayload(t *testing.T) {
	msg, err := NewControl(ControlHandRaise, HandRaise{Name: "Ada", At: 42})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := encodeControl(msg)
	if err != nil {
		t.Fatal(err)
	}
	got, err := decodeControl(raw)
	if err != nil || got.Type != ControlHandRaise {
		t.Fatalf("decode = %+v, %v", got, err)
	}
	var hr HandRaise
	if err := got.DecodePayload(&hr); err != nil || hr.Name != "Ada" || hr.At != 42 {
		t.Fatalf("payload = %+v, %v", hr, err)
	}
}
