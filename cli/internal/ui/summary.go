package ui

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// SessionSummaryView renders the end of session report.
func SessionSummaryView(title string, rows []PeerRow, elapsed time.Duration) string {
	t := table.NewWriter()
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Peer", "State", "Candidates", "Restarts", "Packets", "Received", "Lost", "PLI", "NACK"})

	var packets, bytes uint64
	for _, r := range rows {
		packets += r.Packets
		bytes += r.Bytes
		t.AppendRow(table.Row{
			Truncate(r.Name, 24), r.State, r.Applied, r.Restarts,
			r.Packets, FormatBytes(r.Bytes), r.Lost, r.PLI, r.NACK,
		})
	}
	if len(rows) == 0 {
		t.AppendRow(table.Row{"-", "-", "-", "-", "-", "-", "-", "-", "-"})
	}

	t.AppendFooter(table.Row{"Total", fmt.Sprintf("%d peers", len(rows)), "", "", packets, FormatBytes(bytes), "", "Time", elapsed.Round(time.Second).String()})
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.Style().Format.Footer = text.FormatDefault
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	return t.Render()
}

func RenderSessionSummary(title string, rows []PeerRow, elapsed time.Duration) {
	fmt.Println(SessionSummaryView(title, rows, elapsed))
}
