package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/instructify/liveclass/cli/internal/signaling"
)

// PeerRow is one peer session as shown on the board and in the summary.
type PeerRow struct {
	Name     string
	State    string
	Applied  int
	Buffered int
	Restarts int
	Packets  uint64
	Bytes    uint64
	Lost     uint64
	PLI      uint64
	NACK     uint64
}

func styledTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		}).
		Render()
}

// PeerTableView renders live peer sessions.
func PeerTableView(rows []PeerRow) string {
	if len(rows) == 0 {
		return MutedStyle.Render("No peer sessions yet")
	}

	var cells [][]string
	for _, r := range rows {
		cells = append(cells, []string{
			Truncate(r.Name, 24),
			StateStyle(r.State).Render(r.State),
			fmt.Sprintf("%d/%d", r.Applied, r.Applied+r.Buffered),
			fmt.Sprintf("%d", r.Packets),
			FormatBytes(r.Bytes),
			fmt.Sprintf("%d", r.PLI),
		})
	}
	return styledTable([]string{"Peer", "State", "ICE", "Packets", "Media", "PLI"}, cells)
}

// RosterView renders the classroom roster.
func RosterView(participants []signaling.Participant) string {
	if len(participants) == 0 {
		return MutedStyle.Render("Nobody else is here yet")
	}

	var cells [][]string
	for _, p := range participants {
		role := StudentStyle.Render(IconStudent + " student")
		if p.Role == signaling.RoleTeacher {
			role = TeacherStyle.Render(IconTeacher + " teacher")
		}
		cells = append(cells, []string{Truncate(p.Name, 24), role, ShortID(p.ID)})
	}
	return styledTable([]string{"Name", "Role", "ID"}, cells)
}

// ClassroomBox announces a newly created classroom.
func ClassroomBox(classID, teacher string) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(Success).
		Padding(1, 2)

	content := fmt.Sprintf("%s Classroom ready for %s\n\n%s Code:   %s\n%s Join:   %s",
		IconClass, BoldStyle.Render(teacher),
		IconCopy, TitleStyle.Render(classID),
		IconStudent, MutedStyle.Render("liveclass join "+classID),
	)
	return box.Render(content)
}
