package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/instructify/liveclass/cli/internal/peer"
	"github.com/instructify/liveclass/cli/internal/signaling"
	"github.com/instructify/liveclass/cli/internal/ui"
)

const (
	studentHelp = "type to chat · /ask <question> · /hand · /who · /quit"
	teacherHelp = "type to chat · /note <text> · /notes · /board <text> · /ask <question> · /who · /peers · /end · /quit"
)

func (s *classroomSession) help() string {
	if s.opts.Role == signaling.RoleTeacher {
		return teacherHelp
	}
	return studentHelp
}

// handleCommand runs one line of input. It reports true when the user asked
// to leave.
func (s *classroomSession) handleCommand(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		s.send(&signaling.ChatMessage{Type: signaling.TypeChatMessage, Message: line})
		return false
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	teacher := s.opts.Role == signaling.RoleTeacher

	switch {
	case name == "/quit" || name == "/exit":
		return true

	case name == "/help":
		s.display.Println(ui.MutedStyle.Render(s.help()))

	case name == "/who":
		s.display.Println(ui.RosterView(s.participants()))

	case name == "/ask":
		if arg == "" {
			s.usage("/ask <question>")
			break
		}
		s.send(&signaling.AIQuery{Type: signaling.TypeAIQuery, Query: arg})

	case name == "/hand" && !teacher:
		s.raiseHand()

	case name == "/note" && teacher:
		if arg == "" {
			s.usage("/note <text>")
			break
		}
		s.send(&signaling.TranscriptChunk{
			Type:      signaling.TypeTranscriptChunk,
			Text:      arg,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})

	case name == "/notes" && teacher:
		s.send(&signaling.Control{Type: signaling.TypeGenerateNotes})
		s.display.Println(ui.MutedStyle.Render(ui.IconNotes + " generating notes..."))

	case name == "/board" && teacher:
		if arg == "" {
			s.usage("/board <text>")
			break
		}
		s.send(&signaling.WhiteboardUpdate{Type: signaling.TypeWhiteboardUpdate, Data: arg})

	case name == "/peers" && teacher:
		s.renderPeers()
		s.display.Println(ui.SessionSummaryView("Peer Sessions", s.last, time.Since(s.started)))

	case name == "/end" && teacher:
		s.send(&signaling.Control{Type: signaling.TypeEndSession})

	default:
		s.display.Println(ui.WarningStyle.Render("unknown command " + name + " · " + s.help()))
	}
	return false
}

func (s *classroomSession) raiseHand() {
	msg, err := peer.NewControl(peer.ControlHandRaise, peer.HandRaise{Name: s.opts.Name, At: time.Now().Unix()})
	if err == nil {
		err = s.student.SendControl(msg)
	}
	if err != nil {
		s.display.Println(ui.WarningStyle.Render("not connected to the teacher yet"))
		return
	}
	s.display.Println(ui.IconHand + " hand raised")
}

func (s *classroomSession) send(v any) {
	if err := s.conn.Client.Send(v); err != nil {
		s.display.Println(ui.ErrorStyle.Render(fmt.Sprintf("%s send failed: %v", ui.IconError, err)))
	}
}

func (s *classroomSession) usage(u string) {
	s.display.Println(ui.WarningStyle.Render("usage: " + u))
}
