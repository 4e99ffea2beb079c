package cli

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/observerhq/observer/internal/config"
	"github.com/observerhq/observer/internal/roster"
	"github.com/observerhq/observer/internal/ws"
	"github.com/observerhq/observer/pkg/logger"
)

// renderInterval paces dashboard redraws; state changes between redraws
// are batched into the next frame.
const renderInterval = time.Second

// WatchCommand runs the teacher dashboard for a session in the terminal.
// It prints a join QR code, then keeps a live roster view updated from
// snapshot polls and incremental events.
func WatchCommand(cfg *config.Config, sessionCode, filter, search string) error {
	client, _, err := newClient(cfg)
	if err != nil {
		return err
	}
	session, err := client.SessionDetail(sessionCode)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", sessionCode, err)
	}

	printJoinCode(cfg.ServerURL, session.Code)

	link := ws.NewSessionLink(cfg.WSURL, client.AccessToken)
	link.SetStateListener(func(state ws.State, err error) {
		if err != nil {
			logger.Warnf("session link %s: %v", state, err)
		}
	})
	if err := link.Connect(sessionCode); err != nil {
		return fmt.Errorf("failed to connect session socket: %w", err)
	}
	defer link.Disconnect()

	var dirty atomic.Bool
	dash := roster.NewDashboard(sessionCode, client, link, func() {
		dirty.Store(true)
	})
	dash.Start()
	defer dash.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	cmds := make(chan string)
	go readCommands(cmds)

	ticker := time.NewTicker(renderInterval)
	defer ticker.Stop()

	renderDashboard(dash, filter, search)
	for {
		select {
		case <-sig:
			fmt.Println()
			return nil
		case line, ok := <-cmds:
			if !ok {
				return nil
			}
			filter, search = applyCommand(dash, client, line, filter, search)
			dirty.Store(true)
		case <-ticker.C:
			if dirty.Swap(false) {
				renderDashboard(dash, filter, search)
			}
		}
	}
}

func readCommands(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

// applyCommand handles one dashboard command line and returns the possibly
// updated filter/search pair.
func applyCommand(dash *roster.Dashboard, client restClient, line, filter, search string) (string, string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return filter, search
	}
	switch fields[0] {
	case "f", "filter":
		if len(fields) > 1 {
			return fields[1], search
		}
		return "all", search
	case "s", "search":
		return filter, strings.Join(fields[1:], " ")
	case "push":
		if len(fields) < 3 {
			fmt.Println("usage: push <student-id> <file> [language]")
			return filter, search
		}
		pushCode(dash, fields[1], fields[2], fields[3:])
	case "read":
		if len(fields) < 2 {
			fmt.Println("usage: read <notice-id>")
			return filter, search
		}
		if err := client.MarkErrorRead(fields[1]); err != nil {
			logger.Warnf("failed to mark notice read: %v", err)
		}
	case "help":
		fmt.Println("commands: filter <all|online|offline|errors>, search <term>, push <id> <file> [lang], read <notice-id>")
	default:
		fmt.Printf("unknown command %q (try help)\n", fields[0])
	}
	return filter, search
}

type restClient interface {
	MarkErrorRead(noticeID string) error
}

// pushCode runs the teacher edit flow for one student: shield the row,
// load the replacement text, then save and broadcast it.
func pushCode(dash *roster.Dashboard, idArg, path string, rest []string) {
	studentID, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		fmt.Printf("bad student id %q\n", idArg)
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("failed to read %s: %v\n", path, err)
		return
	}
	language := ""
	if len(rest) > 0 {
		language = rest[0]
	}

	if !dash.BeginEdit(studentID) {
		fmt.Printf("student %d not found\n", studentID)
		return
	}
	dash.UpdateEdit(studentID, string(data))
	if err := dash.SaveEdit(studentID, language); err != nil {
		dash.CancelEdit(studentID)
		fmt.Printf("push failed: %v\n", err)
		return
	}
	fmt.Printf("pushed %s to student %d\n", path, studentID)
}

func renderDashboard(dash *roster.Dashboard, filter, search string) {
	session := dash.Session()
	views := dash.Filter(filter, search)
	online, total, unread := dash.Counts()

	fmt.Print("\033[2J\033[H")
	fmt.Printf("%s (%s)  online %d/%d  unread errors %d\n", session.Name, session.Code, online, total, unread)
	if filter != "" && filter != "all" {
		fmt.Printf("filter: %s", filter)
		if search != "" {
			fmt.Printf("  search: %q", search)
		}
		fmt.Println()
	} else if search != "" {
		fmt.Printf("search: %q\n", search)
	}
	fmt.Println()

	for _, v := range views {
		fmt.Println(formatStudentRow(v))
	}
	if len(views) == 0 {
		fmt.Println("  (no students)")
	}

	notices := dash.Notices()
	if len(notices) > 0 {
		fmt.Println()
		fmt.Println("recent errors:")
		for i, n := range notices {
			if i == 5 {
				fmt.Printf("  ... and %d more\n", len(notices)-i)
				break
			}
			marker := " "
			if !n.IsRead {
				marker = "*"
			}
			name := n.FullName
			if name == "" {
				name = n.Username
			}
			fmt.Printf(" %s [%s] %s: %s\n", marker, n.ID, name, firstLine(n.ErrorMessage))
		}
	}
}

func formatStudentRow(v roster.View) string {
	p := v.Participant
	status := "offline"
	if p.IsConnected {
		status = "online "
	}
	var flags []string
	if p.HasErrors {
		flags = append(flags, "errors")
	}
	if p.ActivityAlert != "" {
		flags = append(flags, p.ActivityAlert)
	}
	if v.Editing {
		flags = append(flags, "editing")
	}
	suffix := ""
	if len(flags) > 0 {
		suffix = "  [" + strings.Join(flags, ", ") + "]"
	}
	name := p.FullName
	if name == "" {
		name = p.Username
	}
	return fmt.Sprintf("  %4d  %s  %-20s %-10s %4d lines%s",
		p.ID, status, name, p.Language, strings.Count(v.DisplayCode, "\n")+1, suffix)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// printJoinCode prints the join URL for a session as a QR code so students
// can scan it from the projector.
func printJoinCode(serverURL, sessionCode string) {
	joinURL := fmt.Sprintf("%s/join?code=%s", strings.TrimRight(serverURL, "/"), sessionCode)
	qr, err := qrcode.New(joinURL, qrcode.Medium)
	if err != nil {
		logger.Warnf("failed to generate QR code: %v", err)
		logger.Infof("Join URL: %s", joinURL)
		return
	}
	fmt.Println(qr.ToSmallString(false))
	fmt.Printf("Join URL: %s\n\n", joinURL)
	// Give the QR a moment on screen before the first redraw clears it.
	time.Sleep(2 * time.Second)
}
