package types

import (
	"fmt"
	"time"
)

// Session describes a classroom session as reported by the server.
//
// Sessions are created and ended by teacher REST actions; this client treats
// them as read-only.
type Session struct {
	// Code is the short opaque join code identifying the session.
	Code string `json:"session_code"`
	// Name is the teacher-assigned display name.
	Name string `json:"session_name"`
	// IsActive reports whether the session is accepting participants.
	IsActive bool `json:"is_active"`
	// DefaultLanguage is the language new participants start with.
	DefaultLanguage string `json:"default_language"`
}

// Participant is one student record in a teacher's roster view.
//
// Participant values are owned by the roster reconciler; views receive copies
// and must not mutate them.
type Participant struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	FullName    string `json:"full_name"`
	IsConnected bool   `json:"is_connected"`

	// CodeContent/Language form the student's current code snapshot.
	CodeContent string `json:"code_content"`
	Language    string `json:"language"`

	// RecentLogs holds the newest-first execution log ring (capped).
	RecentLogs []LogEntry `json:"recent_logs"`
	// HasErrors is set once any execution for this student failed.
	HasErrors bool `json:"has_errors"`

	// ActivityAlert is the current proctoring alert label, empty when clear.
	ActivityAlert string `json:"activity_alert,omitempty"`
	// LastActive is the timestamp of the most recent activity signal.
	LastActive string `json:"last_active,omitempty"`
}

// LogEntry is one entry in a participant's recent execution log.
type LogEntry struct {
	LogType   string `json:"log_type"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// ErrorNotice is a teacher-facing notification about a failed student run.
type ErrorNotice struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	FullName     string `json:"full_name"`
	ErrorMessage string `json:"error_message"`
	CreatedAt    string `json:"created_at"`
	IsRead       bool   `json:"is_read"`
}

// ActivityType enumerates proctoring signals reported by student clients.
type ActivityType string

const (
	ActivityTabHidden          ActivityType = "tab_hidden"
	ActivityTabVisible         ActivityType = "tab_visible"
	ActivityWindowBlur         ActivityType = "window_blur"
	ActivitySplitScreen        ActivityType = "split_screen"
	ActivityFullscreenRestored ActivityType = "fullscreen_restored"
)

// Languages supported by the execution backend.
const (
	LangPython     = "python"
	LangJavaScript = "javascript"
	LangC          = "c"
	LangCPP        = "cpp"
	LangJava       = "java"
)

// templates are the starter buffers installed on a language switch.
var templates = map[string]string{
	LangPython:     "# Write your Python code here\nprint(\"Hello, World!\")\n",
	LangJavaScript: "// Write your JavaScript code here\nconsole.log(\"Hello, World!\");\n",
	LangC:          "#include <stdio.h>\n\nint main() {\n    printf(\"Hello, World!\\n\");\n    return 0;\n}\n",
	LangCPP:        "#include <iostream>\nusing namespace std;\n\nint main() {\n    cout << \"Hello, World!\" << endl;\n    return 0;\n}\n",
	LangJava:       "public class Main {\n    public static void main(String[] args) {\n        System.out.println(\"Hello, World!\");\n    }\n}\n",
}

// extensions maps languages to export file extensions.
var extensions = map[string]string{
	LangPython:     "py",
	LangJavaScript: "js",
	LangC:          "c",
	LangCPP:        "cpp",
	LangJava:       "java",
}

// Template returns the starter code for a language. Unknown languages fall
// back to the Python template.
func Template(language string) string {
	if tpl, ok := templates[language]; ok {
		return tpl
	}
	return templates[LangPython]
}

// Extension returns the export file extension for a language, or "txt" for
// unknown languages.
func Extension(language string) string {
	if ext, ok := extensions[language]; ok {
		return ext
	}
	return "txt"
}

// ExportFilename builds the download filename for a buffer exported at t.
func ExportFilename(language string, t time.Time) string {
	return fmt.Sprintf("code_%s.%s", t.Format("2006-01-02"), Extension(language))
}

// ValidLanguage reports whether the execution backend supports language.
func ValidLanguage(language string) bool {
	_, ok := templates[language]
	return ok
}
