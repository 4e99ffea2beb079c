package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/observerhq/observer/internal/api"
	"github.com/observerhq/observer/internal/buffersync"
	"github.com/observerhq/observer/internal/config"
	"github.com/observerhq/observer/internal/proctor"
	"github.com/observerhq/observer/internal/ws"
	"github.com/observerhq/observer/pkg/logger"
	"github.com/observerhq/observer/pkg/types"
)

// fileWatchInterval is how often the joined file is polled for edits.
const fileWatchInterval = 500 * time.Millisecond

// JoinCommand joins a session as a student and keeps a local file in sync
// with the session buffer. Edits to the file flow through the coordinator
// exactly like keystrokes; teacher pushes and the reconciliation poll flow
// back into the file. A non-empty language overrides the saved one and
// starts from that language's template; a non-empty exportDir receives a
// dated copy of the buffer on exit.
func JoinCommand(cfg *config.Config, sessionCode, filePath, language, exportDir string) error {
	client, _, err := newClient(cfg)
	if err != nil {
		return err
	}

	if err := client.JoinSession(sessionCode); err != nil {
		return fmt.Errorf("failed to join session %s: %w", sessionCode, err)
	}
	session, err := client.SessionDetail(sessionCode)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", sessionCode, err)
	}
	logger.Infof("Joined session %s (%s)", session.Code, session.Name)

	snap, err := client.MyCode(sessionCode)
	if err != nil {
		return fmt.Errorf("failed to load saved code: %w", err)
	}
	lang := snap.Language
	if lang == "" {
		lang = session.DefaultLanguage
	}
	if !types.ValidLanguage(lang) {
		lang = types.LangPython
	}
	text := snap.Code
	if text == "" {
		text = types.Template(lang)
	}
	if language != "" {
		if !types.ValidLanguage(language) {
			return fmt.Errorf("unsupported language %q", language)
		}
		if language != lang {
			// An explicit language starts from its template, the same
			// reset a language switch performs in the editor. Persist it
			// up front so the reconciliation poll does not pull the old
			// code back.
			lang = language
			text = types.Template(lang)
			if err := client.SaveCode(sessionCode, text, lang); err != nil {
				return fmt.Errorf("failed to switch language: %w", err)
			}
		}
	}

	if filePath == "" {
		filePath = "observer_code." + types.Extension(lang)
	}
	if err := seedFile(filePath, text); err != nil {
		return err
	}
	logger.Infof("Editing %s (%s). Save the file to sync; Ctrl+C to leave.", filePath, lang)

	link := ws.NewSessionLink(cfg.WSURL, client.AccessToken)
	link.SetStateListener(func(state ws.State, err error) {
		if err != nil {
			logger.Warnf("session link %s: %v", state, err)
			return
		}
		logger.Debugf("session link %s", state)
	})
	if err := link.Connect(sessionCode); err != nil {
		return fmt.Errorf("failed to connect session socket: %w", err)
	}
	defer link.Disconnect()

	coord := buffersync.New(sessionCode, text, lang, client, link, nil)
	coord.Start()
	defer coord.Stop()

	stopProctor := startProctoring(client, sessionCode)
	defer stopProctor()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	watchFile(filePath, coord, sig)

	// Flush whatever is in the buffer before leaving so a Ctrl+C inside
	// the debounce window does not lose the last edit.
	final := coord.Buffer()
	if err := client.SaveCode(sessionCode, final.Text, final.Language); err != nil {
		logger.Warnf("final save failed: %v", err)
	}
	if exportDir != "" {
		path, err := coord.Export(exportDir)
		if err != nil {
			logger.Warnf("export failed: %v", err)
		} else {
			logger.Infof("Exported buffer to %s", path)
		}
	}
	logger.Infof("Left session %s", sessionCode)
	return nil
}

// seedFile writes the initial buffer unless the file already exists, in
// which case the local copy wins and becomes the first user edit.
func seedFile(path, text string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// watchFile mirrors file <-> buffer until a signal arrives. File changes
// become user edits; a grown line count triggers an immediate transport
// sync, matching the behavior of a newline keystroke in the editor.
func watchFile(path string, coord *buffersync.Coordinator, sig <-chan os.Signal) {
	ticker := time.NewTicker(fileWatchInterval)
	defer ticker.Stop()

	lastSeen := coord.Buffer().Text
	for {
		select {
		case <-sig:
			return
		case <-ticker.C:
		}

		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warnf("failed to read %s: %v", path, err)
			continue
		}
		onDisk := string(data)

		buf := coord.Buffer().Text
		if buf != lastSeen && buf != onDisk {
			// A poll or teacher push replaced the buffer, write it out.
			if err := os.WriteFile(path, []byte(buf), 0644); err != nil {
				logger.Warnf("failed to update %s: %v", path, err)
				continue
			}
			lastSeen = buf
			continue
		}

		if onDisk != lastSeen {
			grown := strings.Count(onDisk, "\n") > strings.Count(lastSeen, "\n")
			coord.UserEdit(onDisk)
			if grown {
				coord.ImmediateSync()
			}
			lastSeen = onDisk
		}
	}
}

// startProctoring watches the terminal geometry and reports split-workspace
// transitions to the session teacher. SIGWINCH feeds the detector's resize
// debounce. The returned func stops reporting.
func startProctoring(client *api.Client, sessionCode string) func() {
	det := proctor.New(&termViewport{}, nil, func(ev types.ActivityType) {
		if err := client.ReportActivity(sessionCode, ev); err != nil {
			logger.Debugf("activity report failed: %v", err)
		}
	})
	det.Start()

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-winch:
				det.OnResize()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(winch)
		close(done)
		det.Stop()
	}
}

// termViewport adapts the controlling terminal to the detector's viewport:
// the window is the live terminal size and the screen is the largest size
// observed since start, so shrinking the terminal past the split threshold
// classifies as a split workspace.
type termViewport struct {
	mu      sync.Mutex
	maxCols int
	maxRows int
}

func (v *termViewport) WindowSize() (int, int) {
	sz, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return 0, 0
	}
	cols, rows := int(sz.Col), int(sz.Row)
	v.mu.Lock()
	if cols > v.maxCols {
		v.maxCols = cols
	}
	if rows > v.maxRows {
		v.maxRows = rows
	}
	v.mu.Unlock()
	return cols, rows
}

func (v *termViewport) ScreenSize() (int, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.maxCols, v.maxRows
}

// NotifyCommand raises a hand: it sends a help request to the session
// teacher over REST.
func NotifyCommand(cfg *config.Config, sessionCode, message string) error {
	client, _, err := newClient(cfg)
	if err != nil {
		return err
	}
	if message == "" {
		message = "Student needs help"
	}
	if err := client.NotifyTeacher(sessionCode, message); err != nil {
		return fmt.Errorf("failed to notify teacher: %w", err)
	}
	logger.Infof("Teacher notified")
	return nil
}

// RunCommand executes a file once through the session's REST execute
// endpoint and prints the result. This is the non-interactive counterpart
// of the streaming console.
func RunCommand(cfg *config.Config, sessionCode, filePath, language string) error {
	client, _, err := newClient(cfg)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	if language == "" {
		language = types.LangPython
	}
	if !types.ValidLanguage(language) {
		return fmt.Errorf("unsupported language %q", language)
	}

	result, err := client.Execute(sessionCode, string(data), language)
	if err != nil {
		return fmt.Errorf("execution request failed: %w", err)
	}
	if result.Output != "" {
		fmt.Print(result.Output)
		if !strings.HasSuffix(result.Output, "\n") {
			fmt.Println()
		}
	}
	if !result.Success {
		if result.Error != "" {
			fmt.Fprintln(os.Stderr, result.Error)
		}
		return fmt.Errorf("program failed")
	}
	return nil
}
