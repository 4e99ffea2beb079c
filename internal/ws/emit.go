package ws

// Frame types exchanged over the session endpoint.
const (
	TypeHeartbeat           = "heartbeat"
	TypeConnectionConfirmed = "connection_confirmed"
	TypeCodeChange          = "code_change"
	TypeTeacherEdit         = "teacher_edit"
	TypeTeacherEditReceived = "teacher_edit_received"
	TypeStudentCodeUpdate   = "student_code_update"
	TypeStudentOutput       = "student_output"
	TypeUserConnected       = "user_connected"
	TypeUserDisconnected    = "user_disconnected"
	TypeStudentActivity     = "student_activity"
	TypeStudentNotification = "student_notification"
	TypeRequestControl      = "request_control"
	TypeReleaseControl      = "release_control"
)

// Frame types exchanged over the execution endpoint.
const (
	TypeRun    = "run"
	TypeInput  = "input"
	TypeStop   = "stop"
	TypeStatus = "status"
	TypeOutput = "output"
	TypeError  = "error"
)

// SendCodeChange pushes the student's current buffer to the session.
func (l *Link) SendCodeChange(code, language string, cursorPosition int) error {
	return l.Send(TypeCodeChange, map[string]any{
		"code":            code,
		"language":        language,
		"cursor_position": cursorPosition,
	})
}

// SendTeacherEdit pushes a teacher's override of a student buffer.
func (l *Link) SendTeacherEdit(studentID int64, code, language string, cursorPosition int) error {
	return l.Send(TypeTeacherEdit, map[string]any{
		"student_id":      studentID,
		"code":            code,
		"language":        language,
		"cursor_position": cursorPosition,
	})
}

// RequestControl asks for exclusive control over a student's buffer.
func (l *Link) RequestControl(studentID int64) error {
	return l.Send(TypeRequestControl, map[string]any{"student_id": studentID})
}

// ReleaseControl gives back control over a student's buffer.
func (l *Link) ReleaseControl(studentID int64) error {
	return l.Send(TypeReleaseControl, map[string]any{"student_id": studentID})
}

// SendStudentAlert notifies the teacher (e.g. a help request).
func (l *Link) SendStudentAlert(message string) error {
	return l.Send(TypeStudentNotification, map[string]any{"message": message})
}
