package cmd

import (
	"strings"
	"sync"
	"testing"

	"github.com/instructify/liveclass/cli/internal/peer"
	"github.com/instructify/liveclass/cli/internal/signaling"
	"github.com/instructify/liveclass/cli/internal/ui"
)

type fakeDisplay struct {
	mu    sync.Mutex
	lines []string
	rows  []ui.PeerRow
	state string
}

func (d *fakeDisplay) SetStatus(s string) { d.mu.Lock(); d.state = s; d.mu.Unlock() }

func (d *fakeDisplay) SetPeers(r []ui.PeerRow) { d.mu.Lock(); d.rows = r; d.mu.Unlock() }

func (d *fakeDisplay) Println(l string) { d.mu.Lock(); d.lines = append(d.lines, l); d.mu.Unlock() }

func (d *fakeDisplay) Stop() {}

func (d *fakeDisplay) last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.lines) == 0 {
		return ""
	}
	return d.lines[len(d.lines)-1]
}

func newTestSession(role string) (*classroomSession, *fakeDisplay) {
	d := &fakeDisplay{}
	s := &classroomSession{
		opts:    sessionOptions{Role: role, Name: "Ada", ClassID: "AB12CD34"},
		conn:    &ConnectionContext{Client: signaling.NewClient("ws://relay.invalid")},
		display: d,
		self:    "me",
		roster:  make(map[string]signaling.Participant),
		refresh: make(chan struct{}, 1),
	}
	return s, d
}

func TestCurrentTeacherFallsBack(t *testing.T) {
	s, _ := newTestSession(signaling.RoleStudent)

	s.addParticipant(signaling.Participant{ID: "me", Name: "Ada", Role: signaling.RoleStudent})
	s.addParticipant(signaling.Participant{ID: "t1", Name: "Grace", Role: signaling.RoleTeacher})
	s.addParticipant(signaling.Participant{ID: "s2", Name: "Linus", Role: signaling.RoleStudent})
	s.addParticipant(signaling.Participant{ID: "t2", Name: "Barbara", Role: signaling.RoleTeacher})

	if len(s.participants()) != 3 {
		t.Fatalf("self should not be in roster: %+v", s.participants())
	}
	if got := s.currentTeacher(); got != "t2" {
		t.Fatalf("currentTeacher = %q", got)
	}

	s.removeParticipant("t2")
	if got := s.currentTeacher(); got != "t1" {
		t.Fatalf("after takeover teacher left, currentTeacher = %q", got)
	}
	s.removeParticipant("t1")
	if got := s.currentTeacher(); got != "" {
		t.Fatalf("currentTeacher = %q", got)
	}
	if got := s.nameOf("s2"); got != "Linus" {
		t.Fatalf("nameOf = %q", got)
	}
}

func TestHandleCommand(t *testing.T) {
	s, d := newTestSession(signaling.RoleStudent)
	s.student = peer.NewStudent(nil, s.conn.Client, nil)

	if s.handleCommand("   ") {
		t.Fatal("blank line should not quit")
	}
	if s.handleCommand("hello class") {
		t.Fatal("chat should not quit")
	}

	s.handleCommand("/ask")
	if !strings.Contains(d.last(), "usage: /ask") {
		t.Fatalf("last line = %q", d.last())
	}

	s.handleCommand("/end")
	if !strings.Contains(d.last(), "unknown command /end") {
		t.Fatalf("student /end: %q", d.last())
	}

	s.handleCommand("/hand")
	if !strings.Contains(d.last(), "not connected") {
		t.Fatalf("/hand without session: %q", d.last())
	}

	if !s.handleCommand("/quit") {
		t.Fatal("/quit should quit")
	}
}

func TestTeacherCommands(t *testing.T) {
	s, d := newTestSession(signaling.RoleTeacher)
	s.teacher = peer.NewTeacher(nil, s.conn.Client, nil)

	s.handleCommand("/board")
	if !strings.Contains(d.last(), "usage: /board") {
		t.Fatalf("last line = %q", d.last())
	}
	s.handleCommand("/notes")
	if !strings.Contains(d.last(), "generating notes") {
		t.Fatalf("last line = %q", d.last())
	}
	s.handleCommand("/peers")
	if !strings.Contains(d.last(), "Peer Sessions") {
		t.Fatalf("last line = %q", d.last())
	}
	if s.status(nil) == "" {
		t.Fatal("empty teacher status")
	}
}

func TestStudentStatus(t *testing.T) {
	s, _ := newTestSession(signaling.RoleStudent)
	if got := s.status(nil); !strings.Contains(got, "Waiting for the teacher") {
		t.Fatalf("status = %q", got)
	}
	s.addParticipant(signaling.Participant{ID: "t1", Name: "Grace", Role: signaling.RoleTeacher})
	if got := s.status(nil); !strings.Contains(got, "offer") {
		t.Fatalf("status = %q", got)
	}
	if got := s.status([]ui.PeerRow{{Name: "Grace", State: "connected"}}); !strings.Contains(got, "Grace") {
		t.Fatalf("status = %q", got)
	}
}
