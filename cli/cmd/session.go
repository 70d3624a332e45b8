package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/instructify/liveclass/cli/internal/config"
	"github.com/instructify/liveclass/cli/internal/media"
	"github.com/instructify/liveclass/cli/internal/peer"
	"github.com/instructify/liveclass/cli/internal/signaling"
	"github.com/instructify/liveclass/cli/internal/ui"
	"github.com/pion/webrtc/v4"
)

const (
	confirmWait     = 10 * time.Second
	refreshInterval = time.Second
)

var (
	ErrDisconnected = errors.New("disconnected from relay")
	ErrJoinTimeout  = errors.New("relay did not confirm the join")
)

type ConnectionContext struct {
	Client  *signaling.Client
	Handler *signaling.Handler
	Config  *config.Config
}

func NewConnectionContext(ctx context.Context, cfg *config.Config, classID string) (*ConnectionContext, error) {
	client := signaling.NewClient(cfg.WebSocketURL(classID))
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to relay: %w", err)
	}

	handler := signaling.NewHandler(client)
	go handler.Start()

	return &ConnectionContext{Client: client, Handler: handler, Config: cfg}, nil
}

func (c *ConnectionContext) Close() {
	c.Client.Close()
}

func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}
	return cfg, nil
}

type sessionOptions struct {
	Role      string
	Name      string
	ClassID   string
	Plain     bool
	VideoRTP  string
	AudioRTP  string
	SaveNotes bool
}

// classroomSession is one participant's view of a classroom. Everything but
// the peer callbacks runs on the loop goroutine.
type classroomSession struct {
	opts    sessionOptions
	conn    *ConnectionContext
	display ui.Display
	self    string
	roster  map[string]signaling.Participant
	order   []string
	teacher *peer.Teacher
	student *peer.Student
	refresh chan struct{}
	last    []ui.PeerRow
	started time.Time
	ingest  struct{ video, audio media.Counter }
}

func runSession(ctx context.Context, cfg *config.Config, opts sessionOptions) error {
	sp := ui.NewConnectionSpinner("Connecting to relay...").Start()
	conn, err := NewConnectionContext(ctx, cfg, opts.ClassID)
	if err != nil {
		sp.Error(err.Error())
		return err
	}
	defer conn.Close()

	sp.SetMessage("Joining classroom " + opts.ClassID + "...")
	if err := conn.Client.Join(opts.Role, opts.Name); err != nil {
		sp.Stop()
		return err
	}
	confirmed, err := awaitConfirmation(ctx, conn.Handler)
	if err != nil {
		sp.Stop()
		return err
	}
	sp.Success(fmt.Sprintf("Joined %s as %s", ui.BoldStyle.Render(confirmed.ClassID), confirmed.UserType))
	fmt.Println(ui.RosterView(confirmed.Participants))
	fmt.Println()

	s := &classroomSession{
		opts:    opts,
		conn:    conn,
		self:    confirmed.ParticipantID,
		roster:  make(map[string]signaling.Participant),
		refresh: make(chan struct{}, 1),
		started: time.Now(),
	}
	for _, p := range confirmed.Participants {
		s.addParticipant(p)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := s.setupPeers(ctx, cfg); err != nil {
		return err
	}

	if opts.Plain {
		s.display = ui.NewPlain()
	} else {
		title := fmt.Sprintf("%s %s · %s", ui.IconClass, opts.ClassID, opts.Name)
		s.display = ui.NewBoard(title, s.help()).Start()
	}

	err = s.loop(ctx, readLines(os.Stdin))

	s.display.Stop()
	s.snapshot()
	s.closePeers()
	ui.RenderSessionSummary("Session Summary", s.last, time.Since(s.started))
	return err
}

func awaitConfirmation(ctx context.Context, h *signaling.Handler) (*signaling.Message, error) {
	timeout := time.NewTimer(confirmWait)
	defer timeout.Stop()

	select {
	case m, ok := <-h.Confirmed:
		if !ok {
			return nil, ErrDisconnected
		}
		return m, nil
	case e, ok := <-h.Error:
		if !ok {
			return nil, ErrDisconnected
		}
		return nil, errors.New(e)
	case <-timeout.C:
		return nil, ErrJoinTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *classroomSession) setupPeers(ctx context.Context, cfg *config.Config) error {
	api, err := peer.NewAPI()
	if err != nil {
		return err
	}
	rtcConfig := peer.Configuration(cfg)

	if s.opts.Role == signaling.RoleTeacher {
		tracks, err := media.NewTracks()
		if err != nil {
			return err
		}
		factory := peer.NewFactory(api, rtcConfig, peer.Offerer, peer.Media{
			Tracks: tracks.List(),
			StreamInfo: &peer.StreamInfo{
				ClassID: s.opts.ClassID,
				Teacher: s.opts.Name,
				Video:   s.opts.VideoRTP != "",
				Audio:   s.opts.AudioRTP != "",
			},
			OnControl: s.onControl,
		})
		s.teacher = peer.NewTeacher(factory.New, s.conn.Client, s.onState)

		s.startIngest(ctx, s.opts.VideoRTP, tracks.Video, &s.ingest.video)
		s.startIngest(ctx, s.opts.AudioRTP, tracks.Audio, &s.ingest.audio)
		return nil
	}

	factory := peer.NewFactory(api, rtcConfig, peer.Answerer, peer.Media{
		OnTrack:   s.onTrack,
		OnControl: s.onControl,
	})
	s.student = peer.NewStudent(factory.New, s.conn.Client, s.onState)
	if t := s.currentTeacher(); t != "" {
		return s.student.TeacherPresent(t)
	}
	return nil
}

func (s *classroomSession) startIngest(ctx context.Context, addr string, track *webrtc.TrackLocalStaticRTP, counter *media.Counter) {
	if addr == "" {
		return
	}
	go func() {
		if err := media.Ingest(ctx, addr, track, counter); err != nil {
			slog.Error("rtp ingest stopped", "addr", addr, "err", err)
		}
	}()
}

func (s *classroomSession) loop(ctx context.Context, lines <-chan string) error {
	h := s.conn.Handler
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	s.renderPeers()

	for {
		select {
		case <-ctx.Done():
			return nil

		case m, ok := <-h.Signal:
			if !ok {
				return ErrDisconnected
			}
			s.handleSignal(m)

		case m, ok := <-h.Joined:
			if !ok {
				return ErrDisconnected
			}
			s.handleJoined(m)

		case m, ok := <-h.Left:
			if !ok {
				return ErrDisconnected
			}
			s.handleLeft(m)

		case m, ok := <-h.Events:
			if !ok {
				return ErrDisconnected
			}
			s.handleEvent(m)

		case _, ok := <-h.Ended:
			if !ok {
				return ErrDisconnected
			}
			s.display.Println(ui.WarningStyle.Render(ui.IconEnd + " The teacher ended the session"))
			return nil

		case e, ok := <-h.Error:
			if !ok {
				return ErrDisconnected
			}
			s.display.Println(ui.ErrorStyle.Render(ui.IconError + " " + e))

		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if s.handleCommand(line) {
				return nil
			}

		case <-s.refresh:
			s.renderPeers()

		case <-ticker.C:
			s.renderPeers()
		}
	}
}

func (s *classroomSession) handleSignal(m *signaling.Message) {
	log := slog.With("peer", m.SenderID, "signal_type", m.SignalType)
	var err error

	switch {
	case m.SignalType == signaling.SignalStudentReady && s.teacher != nil:
		err = s.teacher.StudentReady(m.SenderID)

	case m.SignalType == signaling.SignalOffer && s.student != nil:
		var desc webrtc.SessionDescription
		if err = m.DecodeSignal(&desc); err == nil {
			err = s.student.Offer(m.SenderID, desc, m.Restart)
		}

	case m.SignalType == signaling.SignalAnswer && s.teacher != nil:
		var desc webrtc.SessionDescription
		if err = m.DecodeSignal(&desc); err == nil {
			err = s.teacher.Answer(m.SenderID, desc, m.Restart)
		}

	case m.SignalType == signaling.SignalICECandidate:
		var c webrtc.ICECandidateInit
		if err = m.DecodeSignal(&c); err != nil {
			break
		}
		if s.teacher != nil {
			err = s.teacher.Candidate(m.SenderID, c)
		} else {
			err = s.student.Candidate(m.SenderID, c)
		}

	default:
		log.Debug("ignoring signal for this role")
	}

	switch {
	case err == nil:
	case errors.Is(err, peer.ErrProtocolViolation), errors.Is(err, peer.ErrUnknownPeer), errors.Is(err, peer.ErrClosed):
		log.Warn("discarding signal", "err", err)
	default:
		log.Error("signal failed", "err", err)
		s.display.Println(ui.ErrorStyle.Render(fmt.Sprintf("%s connection with %s failed", ui.IconError, s.nameOf(m.SenderID))))
	}
	s.renderPeers()
}

func (s *classroomSession) handleJoined(m *signaling.Message) {
	p := signaling.Participant{ID: m.ParticipantID, Name: m.UserName, Role: m.UserType, JoinedAt: m.Timestamp}
	s.addParticipant(p)
	s.display.Println(fmt.Sprintf("%s %s joined as %s", roleIcon(p.Role), p.Name, p.Role))

	if s.student != nil && p.Role == signaling.RoleTeacher {
		if err := s.student.TeacherPresent(p.ID); err != nil {
			slog.Warn("announce to teacher", "err", err)
		}
	}
	s.renderPeers()
}

func (s *classroomSession) handleLeft(m *signaling.Message) {
	p, known := s.roster[m.ParticipantID]
	if !known {
		p = signaling.Participant{ID: m.ParticipantID, Name: m.UserName, Role: m.UserType}
	}
	s.removeParticipant(p.ID)
	s.display.Println(ui.MutedStyle.Render(fmt.Sprintf("%s %s left", roleIcon(p.Role), p.Name)))

	switch {
	case s.teacher != nil:
		s.teacher.StudentLeft(p.ID)
	case p.Role == signaling.RoleTeacher:
		s.student.TeacherLeft(p.ID)
		// The relay hands the class back to the most recent remaining teacher.
		if t := s.currentTeacher(); t != "" {
			if err := s.student.TeacherPresent(t); err != nil {
				slog.Warn("announce to teacher", "err", err)
			}
		}
	}
	s.renderPeers()
}

func (s *classroomSession) handleEvent(m *signaling.Message) {
	if line := ui.FormatEvent(m); line != "" {
		s.display.Println(line)
	}
	if m.Type == signaling.TypeNotesGenerated && s.opts.SaveNotes && m.Filename != "" {
		if err := os.WriteFile(m.Filename, []byte(m.Artifact), 0o644); err != nil {
			s.display.Println(ui.ErrorStyle.Render("save notes: " + err.Error()))
			return
		}
		s.display.Println(ui.SuccessStyle.Render(ui.IconSuccess + " notes saved to " + m.Filename))
	}
}

func (s *classroomSession) onState(peerID string, state peer.State) {
	slog.Debug("peer session", "peer", peerID, "state", state)
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

func (s *classroomSession) onTrack(_ string, kind string) {
	s.display.Println(fmt.Sprintf("%s receiving %s", ui.IconMedia, kind))
}

func (s *classroomSession) onControl(_ string, msg peer.ControlMessage) {
	switch msg.Type {
	case peer.ControlHandRaise:
		var hr peer.HandRaise
		if msg.DecodePayload(&hr) == nil {
			s.display.Println(ui.WarningStyle.Render(fmt.Sprintf("%s %s raised a hand", ui.IconHand, hr.Name)))
		}
	case peer.ControlStreamInfo:
		var info peer.StreamInfo
		if msg.DecodePayload(&info) == nil {
			s.display.Println(fmt.Sprintf("%s %s is streaming (video %s, audio %s)",
				ui.IconMedia, info.Teacher, onOff(info.Video), onOff(info.Audio)))
		}
	default:
		slog.Debug("unknown control message", "type", msg.Type)
	}
}

// snapshot collects the peer rows. The last non-empty snapshot is kept for
// the summary printed on exit.
func (s *classroomSession) snapshot() []ui.PeerRow {
	var infos []peer.Info
	if s.teacher != nil {
		infos = s.teacher.Sessions()
	} else if info, ok := s.student.Session(); ok {
		infos = []peer.Info{info}
	}

	rows := make([]ui.PeerRow, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, ui.PeerRow{
			Name:     s.nameOf(info.Peer),
			State:    info.State.String(),
			Applied:  info.Applied,
			Buffered: info.Buffered,
			Restarts: info.Restarts,
			Packets:  info.Stats.Packets,
			Bytes:    info.Stats.Bytes,
			Lost:     info.Stats.Lost,
			PLI:      info.Stats.PLI,
			NACK:     info.Stats.NACK,
		})
	}
	if len(rows) > 0 || s.last == nil {
		s.last = rows
	}
	return rows
}

func (s *classroomSession) renderPeers() {
	rows := s.snapshot()
	s.display.SetPeers(rows)
	s.display.SetStatus(s.status(rows))
}

func (s *classroomSession) status(rows []ui.PeerRow) string {
	if s.teacher != nil {
		students := 0
		for _, p := range s.roster {
			if p.Role == signaling.RoleStudent {
				students++
			}
		}
		v, a := s.ingest.video.Stats(), s.ingest.audio.Stats()
		return fmt.Sprintf("Teaching %d student(s) · ingest video %s audio %s",
			students, ui.FormatBytes(v.Bytes), ui.FormatBytes(a.Bytes))
	}

	if s.currentTeacher() == "" {
		return ui.IconWaiting + " Waiting for the teacher"
	}
	if len(rows) == 0 {
		return "Waiting for the teacher's offer"
	}
	return fmt.Sprintf("Watching %s · %s", rows[0].Name, rows[0].State)
}

func (s *classroomSession) closePeers() {
	if s.teacher != nil {
		s.teacher.Close()
	}
	if s.student != nil {
		s.student.Close()
	}
}

func (s *classroomSession) addParticipant(p signaling.Participant) {
	if p.ID == "" || p.ID == s.self {
		return
	}
	if _, ok := s.roster[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	s.roster[p.ID] = p
}

func (s *classroomSession) removeParticipant(id string) {
	delete(s.roster, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// currentTeacher is the most recently joined teacher in the roster.
func (s *classroomSession) currentTeacher() string {
	for i := len(s.order) - 1; i >= 0; i-- {
		if p := s.roster[s.order[i]]; p.Role == signaling.RoleTeacher {
			return p.ID
		}
	}
	return ""
}

func (s *classroomSession) participants() []signaling.Participant {
	out := make([]signaling.Participant, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.roster[id])
	}
	return out
}

func (s *classroomSession) nameOf(id string) string {
	if p, ok := s.roster[id]; ok && p.Name != "" {
		return p.Name
	}
	return ui.ShortID(id)
}

// readLines feeds stdin lines to the session loop.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func roleIcon(role string) string {
	if role == signaling.RoleTeacher {
		return ui.IconTeacher
	}
	return ui.IconStudent
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
