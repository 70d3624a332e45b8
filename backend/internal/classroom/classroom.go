package classroom

import (
	"sync"
	"time"
)

// maxChatHistory bounds the chat lines kept per classroom for gateway context.
const maxChatHistory = 200

// ChatLine is one accepted chat message.
type ChatLine struct {
	SenderID string
	Name     string
	Role     Role
	Text     string
	At       time.Time
}

// LinkStatus is the relay's view of a teacher/student negotiation.
type LinkStatus string

const (
	LinkReady       LinkStatus = "ready"
	LinkNegotiating LinkStatus = "negotiating"
	LinkAnswered    LinkStatus = "answered"
)

// Link is one teacher/student pair the relay has seen signaling for.
type Link struct {
	TeacherID string
	StudentID string
	Status    LinkStatus
	UpdatedAt time.Time
}

// Classroom is a live roster plus the per-session state that dies with it.
type Classroom struct {
	ID        string
	CreatedAt time.Time

	mu          sync.RWMutex
	teacherName string
	teacherID   string
	members     map[string]*Participant
	order       []string
	links       map[string]*Link // keyed by student id
	chat        []ChatLine
	transcript  []TranscriptChunk
	closed      bool
	now         func() time.Time
}

func newClassroom(id, teacherName string, now func() time.Time) *Classroom {
	return &Classroom{
		ID:          id,
		CreatedAt:   now(),
		teacherName: teacherName,
		members:     make(map[string]*Participant),
		links:       make(map[string]*Link),
		now:         now,
	}
}

// Info is the REST view of a classroom.
type Info struct {
	ID          string    `json:"class_id"`
	TeacherName string    `json:"teacher_name"`
	CreatedAt   time.Time `json:"created_at"`
	IsActive    bool      `json:"is_active"`
	Users       []Summary `json:"users"`
}

func (c *Classroom) Info() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()

	users := make([]Summary, 0, len(c.order))
	for _, id := range c.order {
		users = append(users, c.members[id].Summary())
	}
	return Info{
		ID:          c.ID,
		TeacherName: c.teacherName,
		CreatedAt:   c.CreatedAt,
		IsActive:    !c.closed,
		Users:       users,
	}
}

func (c *Classroom) TeacherName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.teacherName
}

// add registers p. A teacher joining a classroom that already has one takes
// over as the current teacher; the previous teacher stays connected.
//
// welcome runs before the roster lock is released so nothing broadcast to the
// classroom can reach p ahead of it.
func (c *Classroom) add(p *Participant, welcome WelcomeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.members[p.ID] = p
	c.order = append(c.order, p.ID)
	if p.Role == RoleTeacher {
		c.teacherID = p.ID
		c.teacherName = p.Name
	}

	if welcome != nil {
		roster := make([]Summary, 0, len(c.order))
		for _, id := range c.order {
			roster = append(roster, c.members[id].Summary())
		}
		welcome(p, roster)
	}
}

// remove drops a participant and every link it took part in. It reports the
// roster size afterwards.
func (c *Classroom) remove(id string) (*Participant, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.members[id]
	if !ok {
		return nil, len(c.members)
	}
	delete(c.members, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}

	delete(c.links, id)
	for sid, l := range c.links {
		if l.TeacherID == id {
			delete(c.links, sid)
		}
	}

	if c.teacherID == id {
		c.teacherID = ""
		// Fall back to the most recent teacher still connected.
		for i := len(c.order) - 1; i >= 0; i-- {
			if m := c.members[c.order[i]]; m.Role == RoleTeacher {
				c.teacherID = m.ID
				break
			}
		}
	}
	return p, len(c.members)
}

// release tears down every per-session resource and returns the participants
// that were still attached.
func (c *Classroom) release() []*Participant {
	c.mu.Lock()
	defer c.mu.Unlock()

	ps := make([]*Participant, 0, len(c.order))
	for _, id := range c.order {
		ps = append(ps, c.members[id])
	}
	c.closed = true
	c.members = make(map[string]*Participant)
	c.order = nil
	c.links = make(map[string]*Link)
	c.chat = nil
	c.transcript = nil
	c.teacherID = ""
	return ps
}

func (c *Classroom) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Classroom) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

// Resolve looks up a participant of this classroom by connection id.
func (c *Classroom) Resolve(id string) (*Participant, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.members[id]
	if !ok {
		return nil, WrapError("resolve participant", ErrNotFound, id)
	}
	return p, nil
}

// Participants returns the roster in join order.
func (c *Classroom) Participants() []*Participant {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ps := make([]*Participant, 0, len(c.order))
	for _, id := range c.order {
		ps = append(ps, c.members[id])
	}
	return ps
}

// ByRole returns the participants holding role, in join order.
func (c *Classroom) ByRole(role Role) []*Participant {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var ps []*Participant
	for _, id := range c.order {
		if p := c.members[id]; p.Role == role {
			ps = append(ps, p)
		}
	}
	return ps
}

// Teacher returns the current teacher, or nil when none is connected.
func (c *Classroom) Teacher() *Participant {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.teacherID == "" {
		return nil
	}
	return c.members[c.teacherID]
}

// Broadcast delivers payload to everyone except the participant with id
// except. It returns the number of participants that accepted it.
func (c *Classroom) Broadcast(payload []byte, except string) int {
	n := 0
	for _, p := range c.Participants() {
		if p.ID == except {
			continue
		}
		if p.Send(payload) {
			n++
		}
	}
	return n
}

// TrackSignal records a relayed negotiation step between a teacher and a student.
func (c *Classroom) TrackSignal(teacherID, studentID string, status LinkStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if _, ok := c.members[studentID]; !ok {
		return
	}
	l, ok := c.links[studentID]
	if !ok {
		l = &Link{StudentID: studentID}
		c.links[studentID] = l
	}
	if teacherID != "" {
		l.TeacherID = teacherID
	}
	l.Status = status
	l.UpdatedAt = c.now()
}

// Links returns a copy of the negotiation links currently tracked.
func (c *Classroom) Links() []Link {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Link, 0, len(c.links))
	for _, l := range c.links {
		out = append(out, *l)
	}
	return out
}

// AppendChat records an accepted chat line.
func (c *Classroom) AppendChat(line ChatLine) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if line.At.IsZero() {
		line.At = c.now()
	}
	c.chat = append(c.chat, line)
	if len(c.chat) > maxChatHistory {
		c.chat = append([]ChatLine(nil), c.chat[len(c.chat)-maxChatHistory:]...)
	}
}

// TeacherContext returns the text of the last n teacher chat lines, oldest first.
func (c *Classroom) TeacherContext(n int) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []string
	for i := len(c.chat) - 1; i >= 0 && len(out) < n; i-- {
		if c.chat[i].Role == RoleTeacher {
			out = append(out, c.chat[i].Text)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
