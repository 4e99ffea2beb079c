// Package roster maintains the teacher-side participant collection, merging
// slow full-snapshot polls with fast incremental push events.
package roster

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/observerhq/observer/internal/api"
	"github.com/observerhq/observer/pkg/logger"
	"github.com/observerhq/observer/pkg/types"
)

// maxRecentLogs caps each participant's execution-log ring.
const maxRecentLogs = 10

// alertLabels maps activity signals to roster alert labels. Restorative
// signals clear the label.
var alertLabels = map[types.ActivityType]string{
	types.ActivityTabHidden:   "Tab Hidden",
	types.ActivityWindowBlur:  "Window Blur",
	types.ActivitySplitScreen: "Split Screen",
}

// Reconciler owns the ordered participant collection for one session.
//
// It is not safe for concurrent use: all mutation must be serialized by the
// caller (the dashboard dispatcher). Views receive copies.
type Reconciler struct {
	session  types.Session
	students []types.Participant
	notices  []types.ErrorNotice

	// editBuffers holds in-progress teacher edits keyed by student id. While
	// present, the student's displayed code is the edit buffer; the backing
	// record still tracks the authoritative value underneath.
	editBuffers map[int64]string
}

// NewReconciler creates an empty reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{editBuffers: make(map[int64]string)}
}

// Session returns the last-seen session record.
func (r *Reconciler) Session() types.Session { return r.session }

// ApplySnapshot replaces the entire collection from a dashboard poll. The
// replacement is stably sorted by student id so rows never reorder between
// polls; in-progress edit buffers are unaffected.
func (r *Reconciler) ApplySnapshot(snap api.DashboardSnapshot) {
	students := make([]types.Participant, len(snap.Students))
	copy(students, snap.Students)
	sort.SliceStable(students, func(i, j int) bool { return students[i].ID < students[j].ID })
	r.students = students
	r.session = snap.Session
}

// SetNotices replaces the error notice list from an errors-list poll.
func (r *Reconciler) SetNotices(notices []types.ErrorNotice) {
	r.notices = notices
}

// ApplyCodeUpdate updates only the code snapshot fields of one record.
func (r *Reconciler) ApplyCodeUpdate(studentID int64, code, language string) {
	if s := r.find(studentID); s != nil {
		s.CodeContent = code
		if language != "" {
			s.Language = language
		}
	}
}

// ApplyOutput prepends an execution result to the student's log ring and
// records an error notice on failure.
func (r *Reconciler) ApplyOutput(studentID int64, success bool, message, timestamp, username, fullName string) {
	s := r.find(studentID)
	if s == nil {
		return
	}
	logType := "output"
	if !success {
		logType = "error"
		s.HasErrors = true
	}
	ring := make([]types.LogEntry, 0, maxRecentLogs)
	ring = append(ring, types.LogEntry{LogType: logType, Message: message, CreatedAt: timestamp})
	for i, entry := range s.RecentLogs {
		if i >= maxRecentLogs-1 {
			break
		}
		ring = append(ring, entry)
	}
	s.RecentLogs = ring

	if !success {
		r.notices = append([]types.ErrorNotice{{
			ID:           uuid.NewString(),
			Username:     username,
			FullName:     fullName,
			ErrorMessage: message,
			CreatedAt:    timestamp,
		}}, r.notices...)
	}
}

// ApplyConnect marks a student connected, creating the record on first sight.
// New records are inserted in id order so the rendered order stays stable.
func (r *Reconciler) ApplyConnect(studentID int64, username, fullName string) {
	if s := r.find(studentID); s != nil {
		s.IsConnected = true
		return
	}
	fresh := types.Participant{
		ID:          studentID,
		Username:    username,
		FullName:    fullName,
		IsConnected: true,
		Language:    types.LangPython,
	}
	idx := sort.Search(len(r.students), func(i int) bool { return r.students[i].ID >= studentID })
	r.students = append(r.students, types.Participant{})
	copy(r.students[idx+1:], r.students[idx:])
	r.students[idx] = fresh
}

// ApplyDisconnect marks a student disconnected. Unknown ids are ignored.
func (r *Reconciler) ApplyDisconnect(studentID int64) {
	if s := r.find(studentID); s != nil {
		s.IsConnected = false
	}
}

// ApplyActivity sets or clears a student's proctoring alert label.
func (r *Reconciler) ApplyActivity(studentID int64, activity types.ActivityType, timestamp string) {
	s := r.find(studentID)
	if s == nil {
		return
	}
	s.LastActive = timestamp
	switch activity {
	case types.ActivityTabVisible, types.ActivityFullscreenRestored:
		s.ActivityAlert = ""
	default:
		if label, ok := alertLabels[activity]; ok {
			s.ActivityAlert = label
		}
	}
}

// BeginEdit opens a teacher edit on a student's buffer, seeding the edit
// buffer with the current authoritative code.
func (r *Reconciler) BeginEdit(studentID int64) bool {
	s := r.find(studentID)
	if s == nil {
		return false
	}
	if _, open := r.editBuffers[studentID]; !open {
		r.editBuffers[studentID] = s.CodeContent
	}
	return true
}

// UpdateEdit replaces the local edit buffer content. No-op when the student
// is not in edit mode.
func (r *Reconciler) UpdateEdit(studentID int64, text string) {
	if _, open := r.editBuffers[studentID]; open {
		r.editBuffers[studentID] = text
	}
}

// EndEdit closes the edit and returns the final edit buffer.
func (r *Reconciler) EndEdit(studentID int64) (string, bool) {
	text, open := r.editBuffers[studentID]
	if !open {
		return "", false
	}
	delete(r.editBuffers, studentID)
	return text, true
}

// Editing reports whether a teacher edit is open for the student.
func (r *Reconciler) Editing(studentID int64) bool {
	_, open := r.editBuffers[studentID]
	return open
}

// View is a render-ready participant row.
type View struct {
	types.Participant
	// Editing tells the view layer to render DisplayCode (the local edit
	// buffer) instead of the authoritative code snapshot.
	Editing     bool
	DisplayCode string
}

// Students returns the merged collection as render-ready rows, in stable id
// order.
func (r *Reconciler) Students() []View {
	out := make([]View, 0, len(r.students))
	for _, s := range r.students {
		v := View{Participant: s, DisplayCode: s.CodeContent}
		if buf, open := r.editBuffers[s.ID]; open {
			v.Editing = true
			v.DisplayCode = buf
		}
		out = append(out, v)
	}
	return out
}

// Filter is the roster's pure filter/search projection. It never mutates the
// underlying collection.
func (r *Reconciler) Filter(filter, search string) []View {
	search = strings.ToLower(strings.TrimSpace(search))
	out := make([]View, 0, len(r.students))
	for _, v := range r.Students() {
		switch filter {
		case "", "all":
		case "online":
			if !v.IsConnected {
				continue
			}
		case "offline":
			if v.IsConnected {
				continue
			}
		case "errors":
			if !v.HasErrors {
				continue
			}
		default:
			logger.Debugf("roster: unknown filter %q, showing all", filter)
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(v.Username), search) &&
			!strings.Contains(strings.ToLower(v.FullName), search) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// OnlineCount returns how many participants are connected.
func (r *Reconciler) OnlineCount() int {
	n := 0
	for _, s := range r.students {
		if s.IsConnected {
			n++
		}
	}
	return n
}

// Notices returns the error notice list, newest first.
func (r *Reconciler) Notices() []types.ErrorNotice {
	out := make([]types.ErrorNotice, len(r.notices))
	copy(out, r.notices)
	return out
}

// UnreadErrorCount returns how many notices are unread.
func (r *Reconciler) UnreadErrorCount() int {
	n := 0
	for _, e := range r.notices {
		if !e.IsRead {
			n++
		}
	}
	return n
}

func (r *Reconciler) find(studentID int64) *types.Participant {
	// Linear scan is fine at classroom scale (tens of students).
	for i := range r.students {
		if r.students[i].ID == studentID {
			return &r.students[i]
		}
	}
	return nil
}
