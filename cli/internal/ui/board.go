package ui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Display is where a running classroom session reports to.
type Display interface {
	SetStatus(status string)
	SetPeers(rows []PeerRow)
	Println(line string)
	Stop()
}

type statusMsg string

type peersMsg []PeerRow

type boardModel struct {
	title   string
	help    string
	status  string
	peers   []PeerRow
	spinner spinner.Model
}

func (m boardModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m boardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		m.status = string(msg)
	case peersMsg:
		m.peers = msg
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m boardModel) View() string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render(m.title))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s %s\n\n", m.spinner.View(), m.status)
	b.WriteString(PeerTableView(m.peers))
	b.WriteString("\n")
	b.WriteString(FooterStyle.Render(m.help))
	b.WriteString("\n")
	return b.String()
}

// Board is a live terminal view of the session. Stdin stays with the caller;
// event lines print above the board.
type Board struct {
	program *tea.Program
	done    chan struct{}
	once    sync.Once
}

func NewBoard(title, help string) *Board {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	model := boardModel{title: title, help: help, status: "Connecting", spinner: s}
	return &Board{
		program: tea.NewProgram(model, tea.WithInput(nil), tea.WithoutSignalHandler()),
		done:    make(chan struct{}),
	}
}

func (b *Board) Start() *Board {
	go func() {
		defer close(b.done)
		if _, err := b.program.Run(); err != nil {
			fmt.Printf("UI error: %v\n", err)
		}
	}()
	return b
}

func (b *Board) SetStatus(status string) { b.program.Send(statusMsg(status)) }

func (b *Board) SetPeers(rows []PeerRow) { b.program.Send(peersMsg(rows)) }

func (b *Board) Println(line string) { b.program.Println(line) }

func (b *Board) Stop() {
	b.once.Do(func() {
		b.program.Quit()
		<-b.done
	})
}

// Plain writes status changes and events as plain lines.
type Plain struct {
	mu     sync.Mutex
	status string
	states map[string]string
}

func NewPlain() *Plain {
	return &Plain{states: make(map[string]string)}
}

func (p *Plain) SetStatus(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if status != p.status {
		p.status = status
		fmt.Println(MutedStyle.Render("· " + status))
	}
}

// SetPeers prints only the sessions whose state changed.
func (p *Plain) SetPeers(rows []PeerRow) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range rows {
		if p.states[r.Name] != r.State {
			p.states[r.Name] = r.State
			fmt.Printf("%s %s\n", r.Name, StateStyle(r.State).Render(r.State))
		}
	}
}

func (p *Plain) Println(line string) { fmt.Println(line) }

func (p *Plain) Stop() {}
