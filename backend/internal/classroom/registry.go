package classroom

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultName is used when a participant joins without a display name.
const DefaultName = "Anonymous"

// Registry is the process-wide map of live classrooms. The registry lock is
// always taken before a classroom's own lock, never the other way round.
type Registry struct {
	mu         sync.Mutex
	classrooms map[string]*Classroom

	now   func() time.Time
	newID func() (string, error)
}

type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator overrides the classroom code generator.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(r *Registry) { r.newID = gen }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		classrooms: make(map[string]*Classroom),
		now:        time.Now,
		newID:      NewClassID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create allocates a fresh classroom code and registers an empty roster.
func (r *Registry) Create(teacherName string) (*Classroom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for range maxIDAttempts {
		id, err := r.newID()
		if err != nil {
			return nil, WrapError("create classroom", err, "id generation")
		}
		if _, taken := r.classrooms[id]; taken {
			continue
		}
		c := newClassroom(id, strings.TrimSpace(teacherName), r.now)
		r.classrooms[id] = c
		slog.Info("classroom created", "class_id", id, "teacher", c.teacherName)
		return c, nil
	}
	return nil, WrapError("create classroom", ErrConflict, "identifier space exhausted")
}

// WelcomeFunc is called once a participant is on the roster, with the roster
// as it stands, before any other participant can address it.
type WelcomeFunc func(p *Participant, roster []Summary)

// Join adds a participant to a classroom. A teacher joining an unknown code
// creates the classroom under that code; a student gets ErrNotFound.
func (r *Registry) Join(classID string, role Role, name string, sink Sink, welcome WelcomeFunc) (*Classroom, *Participant, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return nil, nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.classrooms[classID]
	if !ok {
		if role != RoleTeacher || classID == "" {
			return nil, nil, WrapError("join classroom", ErrNotFound, classID)
		}
		c = newClassroom(classID, name, r.now)
		r.classrooms[classID] = c
		slog.Info("classroom created on teacher join", "class_id", classID)
	}

	p := &Participant{
		ID:       uuid.NewString(),
		Role:     role,
		Name:     name,
		JoinedAt: r.now(),
		sink:     sink,
	}
	if role == RoleTeacher {
		if prev := c.Teacher(); prev != nil {
			slog.Warn("teacher takeover", "class_id", classID, "previous", prev.ID, "participant_id", p.ID)
		}
	}
	c.add(p, welcome)
	return c, p, nil
}

// Leave removes a participant. When the roster becomes empty the classroom is
// released and dropped from the registry; removed reports that case.
func (r *Registry) Leave(classID, participantID string) (left *Participant, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.classrooms[classID]
	if !ok {
		return nil, false
	}
	left, remaining := c.remove(participantID)
	if remaining > 0 {
		return left, false
	}
	delete(r.classrooms, classID)
	c.release()
	slog.Info("classroom removed", "class_id", classID)
	return left, true
}

// End removes a classroom regardless of its roster and closes every
// participant's channel.
func (r *Registry) End(classID string) error {
	r.mu.Lock()
	c, ok := r.classrooms[classID]
	if ok {
		delete(r.classrooms, classID)
	}
	r.mu.Unlock()

	if !ok {
		return WrapError("end classroom", ErrNotFound, classID)
	}
	for _, p := range c.release() {
		p.close()
	}
	slog.Info("classroom ended", "class_id", classID)
	return nil
}

// Get returns a live classroom.
func (r *Registry) Get(classID string) (*Classroom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.classrooms[classID]
	if !ok {
		return nil, WrapError("get classroom", ErrNotFound, classID)
	}
	return c, nil
}

// Resolve finds a participant in a live classroom.
func (r *Registry) Resolve(classID, participantID string) (*Participant, error) {
	c, err := r.Get(classID)
	if err != nil {
		return nil, err
	}
	return c.Resolve(participantID)
}

// Stats is a point-in-time view of one classroom for metrics.
type Stats struct {
	ID           string `json:"class_id"`
	Participants int    `json:"participants"`
	Links        int    `json:"peer_links"`
}

// Snapshot returns stats for every live classroom.
func (r *Registry) Snapshot() []Stats {
	r.mu.Lock()
	cs := make([]*Classroom, 0, len(r.classrooms))
	for _, c := range r.classrooms {
		cs = append(cs, c)
	}
	r.mu.Unlock()

	out := make([]Stats, 0, len(cs))
	for _, c := range cs {
		out = append(out, Stats{
			ID:           c.ID,
			Participants: c.Len(),
			Links:        len(c.Links()),
		})
	}
	return out
}
