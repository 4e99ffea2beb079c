package cli

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/observerhq/observer/internal/config"
	"github.com/observerhq/observer/internal/execstream"
	"github.com/observerhq/observer/internal/ws"
	"github.com/observerhq/observer/pkg/logger"
	"github.com/observerhq/observer/pkg/types"
)

// ConsoleCommand runs a file on the personal execution endpoint and
// streams its output. Stdin lines are forwarded to the running program.
func ConsoleCommand(cfg *config.Config, filePath, language string) error {
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

	link := ws.NewExecuteLink(cfg.WSURL)
	done := make(chan struct{}, 1)
	link.SetStateListener(func(state ws.State, err error) {
		if err != nil {
			logger.Warnf("execute link %s: %v", state, err)
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})

	printer := newConsolePrinter()
	console := execstream.NewConsole(link, nil, nil)
	console.Attach()
	defer console.Detach()

	// The execute endpoint ignores the session argument; a non-empty tag
	// keeps the link's reconnect path armed.
	if err := link.Connect("personal"); err != nil {
		return fmt.Errorf("failed to connect execute socket: %w", err)
	}
	defer link.Disconnect()

	if err := console.Run(string(data), language); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	input := make(chan string)
	go readInput(input)

	ticker := printer.ticker()
	defer ticker.Stop()

	for {
		select {
		case <-sig:
			if console.Running() {
				if err := console.StopRun(); err != nil {
					logger.Warnf("failed to stop run: %v", err)
				}
			}
			printer.flush(console)
			return nil
		case line, ok := <-input:
			if !ok {
				// Stdin closed; stop selecting on it.
				input = nil
				continue
			}
			if err := console.SendInput(line); err != nil {
				logger.Debugf("input dropped: %v", err)
			}
		case <-done:
			printer.flush(console)
			return fmt.Errorf("execute connection lost")
		case <-ticker.C:
			printer.flush(console)
			if terminal(console.Status()) {
				if code, ok := console.ExitCode(); ok && code != 0 {
					return fmt.Errorf("program exited with code %d", code)
				}
				return nil
			}
		}
	}
}

// consolePrinter renders the console buffer incrementally. Chunk coalescing
// grows entries in place, so each flush prints only the unseen suffix of
// every entry.
type consolePrinter struct {
	printed []int
}

func newConsolePrinter() *consolePrinter {
	return &consolePrinter{}
}

func (p *consolePrinter) ticker() *time.Ticker {
	return time.NewTicker(50 * time.Millisecond)
}

func (p *consolePrinter) flush(console *execstream.Console) {
	entries := console.Entries()
	if len(entries) < len(p.printed) {
		// The buffer was cleared by a new run.
		p.printed = p.printed[:0]
	}
	for i, e := range entries {
		seen := 0
		if i < len(p.printed) {
			seen = p.printed[i]
		} else {
			p.printed = append(p.printed, 0)
		}
		if len(e.Text) <= seen {
			continue
		}
		out := os.Stdout
		if e.Kind == execstream.KindError {
			out = os.Stderr
		}
		fmt.Fprint(out, e.Text[seen:])
		p.printed[i] = len(e.Text)
	}
}

func terminal(s execstream.RunStatus) bool {
	switch s {
	case execstream.StatusFinished, execstream.StatusStopped, execstream.StatusError:
		return true
	}
	return false
}

func readInput(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}
