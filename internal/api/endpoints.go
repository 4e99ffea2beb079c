package api

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/observerhq/observer/internal/storage"
	"github.com/observerhq/observer/pkg/types"
)

// Login authenticates with username/password and installs the token pair.
func (c *Client) Login(username, password string) (storage.Credentials, error) {
	var resp struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
		User    struct {
			Username string `json:"username"`
			Role     string `json:"role"`
		} `json:"user"`
	}
	err := c.do(http.MethodPost, "/api/auth/login/", map[string]string{
		"username": username,
		"password": password,
	}, &resp)
	if err != nil {
		return storage.Credentials{}, err
	}
	creds := storage.Credentials{
		AccessToken:  resp.Access,
		RefreshToken: resp.Refresh,
		Username:     resp.User.Username,
		Role:         resp.User.Role,
	}
	if err := c.SetCredentials(creds); err != nil {
		return creds, fmt.Errorf("login succeeded but storing credentials failed: %w", err)
	}
	return creds, nil
}

// SessionDetail fetches one session by join code.
func (c *Client) SessionDetail(sessionCode string) (types.Session, error) {
	var s types.Session
	err := c.do(http.MethodGet, "/api/sessions/"+url.PathEscape(sessionCode)+"/", nil, &s)
	return s, err
}

// JoinSession registers the student as a participant.
func (c *Client) JoinSession(sessionCode string) error {
	return c.do(http.MethodPost, "/api/sessions/join/", map[string]string{
		"session_code": sessionCode,
	}, nil)
}

// DashboardSnapshot is the full teacher-side state fetch.
type DashboardSnapshot struct {
	Session  types.Session       `json:"session"`
	Students []types.Participant `json:"students"`
}

// Dashboard fetches the full roster snapshot for a session.
func (c *Client) Dashboard(sessionCode string) (DashboardSnapshot, error) {
	var snap DashboardSnapshot
	err := c.do(http.MethodGet, "/api/sessions/"+url.PathEscape(sessionCode)+"/dashboard/", nil, &snap)
	return snap, err
}

// SessionErrors fetches the error notification list for a session.
func (c *Client) SessionErrors(sessionCode string) ([]types.ErrorNotice, error) {
	var raw []struct {
		ID      int64 `json:"id"`
		Student struct {
			Username string `json:"username"`
			FullName string `json:"full_name"`
		} `json:"student"`
		ErrorMessage string `json:"error_message"`
		CreatedAt    string `json:"created_at"`
		IsRead       bool   `json:"is_read"`
	}
	if err := c.do(http.MethodGet, "/api/sessions/"+url.PathEscape(sessionCode)+"/errors/", nil, &raw); err != nil {
		return nil, err
	}
	notices := make([]types.ErrorNotice, 0, len(raw))
	for _, r := range raw {
		notices = append(notices, types.ErrorNotice{
			ID:           fmt.Sprintf("%d", r.ID),
			Username:     r.Student.Username,
			FullName:     r.Student.FullName,
			ErrorMessage: r.ErrorMessage,
			CreatedAt:    r.CreatedAt,
			IsRead:       r.IsRead,
		})
	}
	return notices, nil
}

// CodeSnapshot is the student's persisted buffer as the server sees it.
type CodeSnapshot struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// MyCode fetches the caller's persisted code for a session, including any
// teacher edits applied server-side.
func (c *Client) MyCode(sessionCode string) (CodeSnapshot, error) {
	var snap CodeSnapshot
	err := c.do(http.MethodGet, "/api/coding/my-code/?session_code="+url.QueryEscape(sessionCode), nil, &snap)
	return snap, err
}

// SaveCode persists the caller's buffer. This is the debounced write.
func (c *Client) SaveCode(sessionCode, code, language string) error {
	return c.do(http.MethodPost, "/api/coding/save/", map[string]string{
		"code":         code,
		"language":     language,
		"session_code": sessionCode,
	}, nil)
}

// TeacherSaveCode persists a teacher's edit of a student's buffer.
func (c *Client) TeacherSaveCode(sessionCode string, studentID int64, code, language string) error {
	return c.do(http.MethodPost, "/api/coding/teacher-save/", map[string]any{
		"student_id":   studentID,
		"code":         code,
		"language":     language,
		"session_code": sessionCode,
	}, nil)
}

// Heartbeat reports student liveness. Sent on every poll cycle regardless of
// the code-fetch guards.
func (c *Client) Heartbeat(sessionCode string) error {
	return c.do(http.MethodPost, "/api/coding/heartbeat/", map[string]string{
		"session_code": sessionCode,
	}, nil)
}

// ExecResult is the one-shot REST execution outcome.
type ExecResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error"`
}

// Execute runs code in the remote sandbox and returns the collected result.
func (c *Client) Execute(sessionCode, code, language string) (ExecResult, error) {
	var res ExecResult
	err := c.do(http.MethodPost, "/api/coding/execute/", map[string]string{
		"code":         code,
		"language":     language,
		"session_code": sessionCode,
	}, &res)
	return res, err
}

// NotifyTeacher sends a student help notification.
func (c *Client) NotifyTeacher(sessionCode, message string) error {
	return c.do(http.MethodPost, "/api/coding/notify/", map[string]string{
		"message":      message,
		"session_code": sessionCode,
	}, nil)
}

// ReportActivity reports a proctoring signal transition.
func (c *Client) ReportActivity(sessionCode string, activity types.ActivityType) error {
	return c.do(http.MethodPost, "/api/sessions/"+url.PathEscape(sessionCode)+"/activity/", map[string]string{
		"type": string(activity),
	}, nil)
}

// MarkErrorRead acknowledges one error notification.
func (c *Client) MarkErrorRead(noticeID string) error {
	return c.do(http.MethodPost, "/api/sessions/errors/"+url.PathEscape(noticeID)+"/read/", nil, nil)
}
