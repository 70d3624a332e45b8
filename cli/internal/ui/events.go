package ui

import (
	"fmt"
	"strings"

	"github.com/instructify/liveclass/cli/internal/signaling"
)

// FormatEvent renders a display-only frame as one line, or "" for frames
// with nothing to show.
func FormatEvent(msg *signaling.Message) string {
	switch msg.Type {
	case signaling.TypeChatMessage:
		name := StudentStyle.Render(msg.SenderName)
		if msg.SenderType == signaling.RoleTeacher {
			name = TeacherStyle.Render(msg.SenderName)
		}
		icon := IconChat
		if msg.IsDoubt {
			icon = IconDoubt
		}
		return fmt.Sprintf("%s %s: %s", icon, name, msg.Message)

	case signaling.TypeMessageBlocked:
		return ErrorStyle.Render(fmt.Sprintf("%s message blocked: %s", IconBlocked, msg.Reason))

	case signaling.TypeDoubtNotification:
		return WarningStyle.Render(fmt.Sprintf("%s doubt from %s (%.0f%%): %s",
			IconDoubt, msg.StudentName, msg.Confidence*100, msg.Message))

	case signaling.TypeAIResponse:
		return fmt.Sprintf("%s %s\n   %s", IconAI, MutedStyle.Render(msg.Query), msg.Response)

	case signaling.TypeNotesGenerated:
		source := "summary"
		if msg.AIGenerated {
			source = "AI notes"
		}
		return fmt.Sprintf("%s %s ready (%s)\n%s", IconNotes, source, msg.Filename, indent(msg.Notes))

	case signaling.TypeWhiteboardUpdate:
		return fmt.Sprintf("%s whiteboard from %s: %s", IconBoard, msg.SenderName, string(msg.Data))
	}
	return ""
}

func indent(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		lines[i] = "   " + l
	}
	return strings.Join(lines, "\n")
}
