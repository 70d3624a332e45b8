package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/instructify/liveclass/backend/internal/assistant"
	"github.com/instructify/liveclass/backend/internal/classroom"
	"github.com/instructify/liveclass/backend/internal/signaling"
)

// Options configures the HTTP surface.
type Options struct {
	// AllowedOrigin is the browser frontend allowed by CORS and the websocket
	// origin check. "*" allows any origin.
	AllowedOrigin string
}

type routes struct {
	hub      *signaling.Hub
	opts     Options
	upgrader websocket.Upgrader
}

// NewRouter returns the relay's HTTP handler: REST classroom API, websocket
// endpoint, health and metrics.
func NewRouter(hub *signaling.Hub, opts Options) http.Handler {
	rt := &routes{hub: hub, opts: opts}
	rt.upgrader = websocket.Upgrader{
		ReadBufferSize:  64 * 1024, // 64 KB
		WriteBufferSize: 64 * 1024, // 64 KB
		CheckOrigin:     rt.checkOrigin,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", rt.index)
	mux.HandleFunc("GET /health", rt.health)
	mux.HandleFunc("GET /metrics", rt.metrics)
	mux.HandleFunc("POST /api/classroom/create", rt.createClassroom)
	mux.HandleFunc("GET /api/classroom/{id}", rt.getClassroom)
	mux.HandleFunc("GET /api/classroom/{id}/transcript", rt.getTranscript)
	mux.HandleFunc("POST /api/classroom/{id}/notes", rt.generateNotes)
	mux.HandleFunc("GET /ws/classroom/{id}", rt.serveWs)

	return rt.cors(mux)
}

func (rt *routes) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Native clients do not send an Origin header.
	if origin == "" || rt.opts.AllowedOrigin == "*" {
		return true
	}
	return origin == rt.opts.AllowedOrigin
}

func (rt *routes) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && rt.checkOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func (rt *routes) index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Instructify API is running"})
}

func (rt *routes) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type createRequest struct {
	TeacherName string `json:"teacher_name"`
}

type createResponse struct {
	ClassID     string `json:"class_id"`
	TeacherName string `json:"teacher_name"`
}

func (rt *routes) createClassroom(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.TeacherName = strings.TrimSpace(req.TeacherName)
	if req.TeacherName == "" {
		writeError(w, http.StatusBadRequest, "teacher_name is required")
		return
	}

	c, err := rt.hub.Registry().Create(req.TeacherName)
	if err != nil {
		slog.Error("create classroom", "err", err)
		writeError(w, http.StatusConflict, "unable to allocate a classroom id")
		return
	}
	writeJSON(w, http.StatusOK, createResponse{ClassID: c.ID, TeacherName: c.TeacherName()})
}

func (rt *routes) lookup(w http.ResponseWriter, r *http.Request) (*classroom.Classroom, bool) {
	c, err := rt.hub.Registry().Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Classroom not found")
		return nil, false
	}
	return c, true
}

func (rt *routes) getClassroom(w http.ResponseWriter, r *http.Request) {
	if c, ok := rt.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, c.Info())
	}
}

type transcriptResponse struct {
	ClassID    string                      `json:"class_id"`
	Transcript []classroom.TranscriptChunk `json:"transcript"`
}

func (rt *routes) getTranscript(w http.ResponseWriter, r *http.Request) {
	c, ok := rt.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, transcriptResponse{ClassID: c.ID, Transcript: c.Transcript()})
}

type notesResponse struct {
	ClassID     string    `json:"class_id"`
	Notes       string    `json:"notes"`
	Artifact    string    `json:"artifact"`
	Filename    string    `json:"filename"`
	AIGenerated bool      `json:"ai_generated"`
	GeneratedAt time.Time `json:"generated_at"`
}

func (rt *routes) generateNotes(w http.ResponseWriter, r *http.Request) {
	c, ok := rt.lookup(w, r)
	if !ok {
		return
	}

	n, err := rt.hub.Gateway().Notes(r.Context(), c.TranscriptText())
	if err != nil {
		if errors.Is(err, assistant.ErrEmptyTranscript) {
			writeError(w, http.StatusConflict, "No transcript available for this classroom")
			return
		}
		slog.Error("generate notes", "class_id", c.ID, "err", err)
		writeError(w, http.StatusBadGateway, "unable to generate notes")
		return
	}

	now := time.Now()
	artifact, filename := assistant.Export(c.ID, n.Text, now)
	writeJSON(w, http.StatusOK, notesResponse{
		ClassID:     c.ID,
		Notes:       n.Text,
		Artifact:    artifact,
		Filename:    filename,
		AIGenerated: n.Generated,
		GeneratedAt: now,
	})
}

type metricsResponse struct {
	ActiveClassrooms int               `json:"active_classrooms"`
	Participants     int               `json:"participants"`
	DroppedMessages  int64             `json:"dropped_messages"`
	Rooms            []classroom.Stats `json:"rooms"`
}

func (rt *routes) metrics(w http.ResponseWriter, r *http.Request) {
	rooms := rt.hub.Registry().Snapshot()
	total := 0
	for _, s := range rooms {
		total += s.Participants
	}
	writeJSON(w, http.StatusOK, metricsResponse{
		ActiveClassrooms: len(rooms),
		Participants:     total,
		DroppedMessages:  rt.hub.Dropped(),
		Rooms:            rooms,
	})
}

// serveWs upgrades the request and starts the client's pumps. The first
// frame on the socket must be the join request.
func (rt *routes) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := rt.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("failed to upgrade connection", "err", err)
		return
	}

	client := signaling.NewClient(rt.hub, conn, r.PathValue("id"))
	go client.WritePump()
	go client.ReadPump()
}
