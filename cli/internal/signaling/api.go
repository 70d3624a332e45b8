package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ClassroomInfo is the relay's classroom summary.
type ClassroomInfo struct {
	ClassID     string        `json:"class_id"`
	TeacherName string        `json:"teacher_name"`
	CreatedAt   time.Time     `json:"created_at"`
	IsActive    bool          `json:"is_active"`
	Users       []Participant `json:"users"`
}

// API talks to the relay's REST endpoints.
type API struct {
	base string
	http *http.Client
}

// NewAPI returns a REST client for the relay at base (http or https URL).
func NewAPI(base string) *API {
	return &API{base: base, http: &http.Client{Timeout: 15 * time.Second}}
}

type apiError struct {
	Detail string `json:"detail"`
}

// CreateClassroom registers a classroom and returns its id.
func (a *API) CreateClassroom(ctx context.Context, teacherName string) (string, error) {
	var out struct {
		ClassID string `json:"class_id"`
	}
	body := map[string]string{"teacher_name": teacherName}
	if err := a.do(ctx, http.MethodPost, "/api/classroom/create", body, &out); err != nil {
		return "", err
	}
	return out.ClassID, nil
}

// Classroom fetches the summary of a live classroom.
func (a *API) Classroom(ctx context.Context, classID string) (*ClassroomInfo, error) {
	var info ClassroomInfo
	if err := a.do(ctx, http.MethodGet, "/api/classroom/"+classID, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (a *API) do(ctx context.Context, method, path string, in, out any) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, &body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e apiError
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Detail != "" {
			return fmt.Errorf("%s %s: %s", method, path, e.Detail)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
