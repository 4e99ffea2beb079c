package roster

import (
	"time"

	"github.com/observerhq/observer/internal/api"
	"github.com/observerhq/observer/internal/ws"
	"github.com/observerhq/observer/pkg/logger"
	"github.com/observerhq/observer/pkg/types"
)

// snapshotPollInterval is the dashboard fallback poll cadence; the transport
// handles real-time updates between polls.
const snapshotPollInterval = 10 * time.Second

// RestAPI is the dashboard's REST collaborator surface.
type RestAPI interface {
	Dashboard(sessionCode string) (api.DashboardSnapshot, error)
	SessionErrors(sessionCode string) ([]types.ErrorNotice, error)
	TeacherSaveCode(sessionCode string, studentID int64, code, language string) error
}

// Dashboard wires a Reconciler to the session transport and the snapshot
// poll. All reconciler access runs on the dispatcher goroutine.
type Dashboard struct {
	sessionCode string
	rest        RestAPI
	link        *ws.Link
	rec         *Reconciler
	dispatch    *dispatcher

	onChange func()
	unsubs   []func()
	stop     chan struct{}
}

// NewDashboard creates a dashboard for one session. onChange (optional) is
// invoked after every applied mutation, on the dispatcher goroutine.
func NewDashboard(sessionCode string, rest RestAPI, link *ws.Link, onChange func()) *Dashboard {
	return &Dashboard{
		sessionCode: sessionCode,
		rest:        rest,
		link:        link,
		rec:         NewReconciler(),
		dispatch:    newDispatcher(256),
		onChange:    onChange,
	}
}

// Start performs an initial snapshot fetch, subscribes to push events, and
// begins the fallback poll.
func (d *Dashboard) Start() {
	if d.link != nil {
		d.unsubs = append(d.unsubs,
			d.link.On(ws.TypeStudentCodeUpdate, d.handleCodeUpdate),
			d.link.On(ws.TypeStudentOutput, d.handleOutput),
			d.link.On(ws.TypeUserConnected, d.handleConnect),
			d.link.On(ws.TypeUserDisconnected, d.handleDisconnect),
			d.link.On(ws.TypeStudentActivity, d.handleActivity),
		)
	}

	d.stop = make(chan struct{})
	go d.pollLoop(d.stop)
}

// Stop cancels the poll and unsubscribes from the transport.
func (d *Dashboard) Stop() {
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
	}
	for _, unsub := range d.unsubs {
		unsub()
	}
	d.unsubs = nil
}

func (d *Dashboard) pollLoop(stop chan struct{}) {
	d.pollOnce()
	ticker := time.NewTicker(snapshotPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.pollOnce()
		}
	}
}

// pollOnce fetches the full snapshot and error list. A failed poll leaves
// the prior collection untouched.
func (d *Dashboard) pollOnce() {
	snap, err := d.rest.Dashboard(d.sessionCode)
	if err != nil {
		logger.Warnf("roster: snapshot poll failed: %v", err)
		return
	}
	notices, err := d.rest.SessionErrors(d.sessionCode)
	if err != nil {
		logger.Warnf("roster: errors poll failed: %v", err)
		notices = nil
	}
	_ = d.dispatch.do(func() {
		d.rec.ApplySnapshot(snap)
		if notices != nil {
			d.rec.SetNotices(notices)
		}
		d.changed()
	})
}

// Students returns render-ready rows in stable order.
func (d *Dashboard) Students() []View {
	v, _ := d.dispatch.call(func() (interface{}, error) {
		return d.rec.Students(), nil
	})
	rows, _ := v.([]View)
	return rows
}

// Filter applies the pure filter/search projection.
func (d *Dashboard) Filter(filter, search string) []View {
	v, _ := d.dispatch.call(func() (interface{}, error) {
		return d.rec.Filter(filter, search), nil
	})
	rows, _ := v.([]View)
	return rows
}

// Session returns the last-seen session record.
func (d *Dashboard) Session() types.Session {
	v, _ := d.dispatch.call(func() (interface{}, error) {
		return d.rec.Session(), nil
	})
	s, _ := v.(types.Session)
	return s
}

// Notices returns the error notice list, newest first.
func (d *Dashboard) Notices() []types.ErrorNotice {
	v, _ := d.dispatch.call(func() (interface{}, error) {
		return d.rec.Notices(), nil
	})
	n, _ := v.([]types.ErrorNotice)
	return n
}

// Counts returns (online, total, unread errors).
func (d *Dashboard) Counts() (online, total, unreadErrors int) {
	_, _ = d.dispatch.call(func() (interface{}, error) {
		online = d.rec.OnlineCount()
		total = len(d.rec.Students())
		unreadErrors = d.rec.UnreadErrorCount()
		return nil, nil
	})
	return
}

// BeginEdit opens a teacher edit on a student's buffer.
func (d *Dashboard) BeginEdit(studentID int64) bool {
	v, _ := d.dispatch.call(func() (interface{}, error) {
		return d.rec.BeginEdit(studentID), nil
	})
	ok, _ := v.(bool)
	return ok
}

// UpdateEdit replaces the in-progress edit buffer.
func (d *Dashboard) UpdateEdit(studentID int64, text string) {
	_ = d.dispatch.do(func() {
		d.rec.UpdateEdit(studentID, text)
	})
}

// SaveEdit closes the edit, persists it via teacher-save, and pushes the
// override over the transport so the student sees it immediately.
func (d *Dashboard) SaveEdit(studentID int64, language string) error {
	v, _ := d.dispatch.call(func() (interface{}, error) {
		text, open := d.rec.EndEdit(studentID)
		if !open {
			return nil, nil
		}
		// Fold the final edit into the backing copy so the next snapshot
		// diff starts from a consistent state.
		d.rec.ApplyCodeUpdate(studentID, text, language)
		d.changed()
		return text, nil
	})
	text, ok := v.(string)
	if !ok {
		return nil
	}
	if err := d.rest.TeacherSaveCode(d.sessionCode, studentID, text, language); err != nil {
		return err
	}
	if d.link != nil {
		if err := d.link.SendTeacherEdit(studentID, text, language, 0); err != nil {
			logger.Debugf("roster: teacher edit push failed: %v", err)
		}
	}
	return nil
}

// CancelEdit discards the in-progress edit buffer.
func (d *Dashboard) CancelEdit(studentID int64) {
	_ = d.dispatch.do(func() {
		_, _ = d.rec.EndEdit(studentID)
		d.changed()
	})
}

// Push event handlers. Malformed events are dropped without affecting other
// records.

func (d *Dashboard) handleCodeUpdate(data map[string]any) {
	id, ok := intField(data, "student_id")
	if !ok {
		return
	}
	code, _ := data["code"].(string)
	language, _ := data["language"].(string)
	_ = d.dispatch.do(func() {
		d.rec.ApplyCodeUpdate(id, code, language)
		d.changed()
	})
}

func (d *Dashboard) handleOutput(data map[string]any) {
	id, ok := intField(data, "student_id")
	if !ok {
		return
	}
	success, _ := data["success"].(bool)
	message, _ := data["output"].(string)
	if !success {
		if errMsg, okErr := data["error"].(string); okErr && errMsg != "" {
			message = errMsg
		}
	}
	timestamp, _ := data["timestamp"].(string)
	username, _ := data["username"].(string)
	fullName, _ := data["full_name"].(string)
	_ = d.dispatch.do(func() {
		d.rec.ApplyOutput(id, success, message, timestamp, username, fullName)
		d.changed()
	})
}

func (d *Dashboard) handleConnect(data map[string]any) {
	if role, _ := data["role"].(string); role != "student" {
		return
	}
	id, ok := intField(data, "user_id")
	if !ok {
		return
	}
	username, _ := data["username"].(string)
	fullName, _ := data["full_name"].(string)
	_ = d.dispatch.do(func() {
		d.rec.ApplyConnect(id, username, fullName)
		d.changed()
	})
}

func (d *Dashboard) handleDisconnect(data map[string]any) {
	if role, _ := data["role"].(string); role != "student" {
		return
	}
	id, ok := intField(data, "user_id")
	if !ok {
		return
	}
	_ = d.dispatch.do(func() {
		d.rec.ApplyDisconnect(id)
		d.changed()
	})
}

func (d *Dashboard) handleActivity(data map[string]any) {
	id, ok := intField(data, "student_id")
	if !ok {
		return
	}
	activity, _ := data["activity_type"].(string)
	timestamp, _ := data["timestamp"].(string)
	_ = d.dispatch.do(func() {
		d.rec.ApplyActivity(id, types.ActivityType(activity), timestamp)
		d.changed()
	})
}

func (d *Dashboard) changed() {
	if d.onChange != nil {
		d.onChange()
	}
}

// intField extracts an integer id from a decoded JSON frame, where numbers
// arrive as float64.
func intField(data map[string]any, key string) (int64, bool) {
	switch v := data[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}
