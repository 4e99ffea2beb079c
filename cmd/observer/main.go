package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/observerhq/observer/internal/cli"
	"github.com/observerhq/observer/internal/config"
	"github.com/observerhq/observer/internal/version"
	"github.com/observerhq/observer/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	args, opts, err := parseFlags(cfg, os.Args[1:])
	if err != nil {
		return err
	}
	if args == nil {
		return nil
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	if cfg.Debug {
		log.Printf("Config: ServerURL=%s, WSURL=%s, ObserverHome=%s", cfg.ServerURL, cfg.WSURL, cfg.ObserverHome)
	}

	if len(args) == 0 {
		printUsage()
		return nil
	}

	switch args[0] {
	case "login":
		return cli.LoginCommand(cfg)
	case "logout":
		return cli.LogoutCommand(cfg)
	case "join":
		if len(args) < 2 {
			return fmt.Errorf("usage: observer join <session-code> [file]")
		}
		file := ""
		if len(args) > 2 {
			file = args[2]
		}
		return cli.JoinCommand(cfg, args[1], file, opts.language, opts.exportDir)
	case "watch":
		if len(args) < 2 {
			return fmt.Errorf("usage: observer watch <session-code>")
		}
		return cli.WatchCommand(cfg, args[1], opts.filter, opts.search)
	case "run":
		if len(args) < 3 {
			return fmt.Errorf("usage: observer run <session-code> <file>")
		}
		return cli.RunCommand(cfg, args[1], args[2], opts.language)
	case "console":
		if len(args) < 2 {
			return fmt.Errorf("usage: observer console <file>")
		}
		return cli.ConsoleCommand(cfg, args[1], opts.language)
	case "notify":
		if len(args) < 2 {
			return fmt.Errorf("usage: observer notify <session-code> [message]")
		}
		message := ""
		if len(args) > 2 {
			message = args[2]
		}
		return cli.NotifyCommand(cfg, args[1], message)
	case "help", "--help", "-h":
		printUsage()
		return nil
	case "version", "--version", "-v":
		fmt.Printf("observer %s\n", version.RichVersion())
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

type cmdOptions struct {
	language  string
	filter    string
	search    string
	exportDir string
}

func parseFlags(cfg *config.Config, args []string) ([]string, *cmdOptions, error) {
	fs := flag.NewFlagSet("observer", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	serverURL := fs.String("server", "", "Server base URL")
	debug := fs.Bool("debug", false, "Enable debug logging")
	showHelp := fs.Bool("help", false, "Show help")

	opts := &cmdOptions{}
	fs.StringVar(&opts.language, "lang", "", "Language for join/run/console (python|javascript|c|cpp|java)")
	fs.StringVar(&opts.filter, "filter", "all", "Dashboard filter (all|online|offline|errors)")
	fs.StringVar(&opts.search, "search", "", "Dashboard search term")
	fs.StringVar(&opts.exportDir, "export", "", "Directory to export the buffer into when leaving a session")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	if *showHelp {
		printUsage()
		return nil, nil, nil
	}

	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *debug {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}

	return fs.Args(), opts, nil
}

func printUsage() {
	fmt.Println(`observer - classroom live coding client

Usage:
  observer [flags] <command> [args]

Commands:
  login                         Log in and store credentials
  logout                        Clear stored credentials
  join <code> [file]            Join a session as a student, sync a local file
  watch <code>                  Teacher dashboard for a session
  run <code> <file>             Execute a file once via the session API
  console <file>                Stream a run on the personal execute endpoint
  notify <code> [message]       Ask the teacher for help
  version                       Print version

Flags:
  -server URL      Override the server base URL
  -debug           Enable debug logging
  -lang NAME       Language for join/run/console
  -export DIR      Export the buffer into DIR when leaving a session
  -filter NAME     Dashboard filter (all|online|offline|errors)
  -search TERM     Dashboard search term

Environment:
  OBSERVER_SERVER_URL, OBSERVER_WS_URL, OBSERVER_HOME_DIR,
  OBSERVER_LOG_LEVEL, OBSERVER_DEBUG`)
}
