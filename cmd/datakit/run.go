package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dshills/datakit/internal/app"
	"github.com/dshills/datakit/internal/config"
)

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type cliOptions struct {
	configPath string
	scripts    stringList
	recordsDir string
	logLevel   string
	backend    string
	dataDir    string
	compact    bool
}

// errUsage marks a command line that could not be understood.
var errUsage = errors.New("usage")

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("datakit", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts cliOptions
	var showVersion bool
	fs.StringVar(&opts.configPath, "config", "", "Path to a TOML or YAML configuration file")
	fs.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	fs.Var(&opts.scripts, "script", "Lua store file to load (repeatable)")
	fs.StringVar(&opts.recordsDir, "records", "", "Directory serving entity records as <kind>/<name>.json")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&opts.backend, "backend", "", "Persistence backend (file, sqlite, memory)")
	fs.StringVar(&opts.dataDir, "data", "", "Persistence directory")
	fs.BoolVar(&opts.compact, "compact", false, "Print compact JSON")
	fs.BoolVar(&showVersion, "version", false, "Show version information")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "datakit - state store toolkit\n\n")
		fmt.Fprintf(stderr, "Usage: datakit [options] <command> [args...]\n\n")
		fmt.Fprintf(stderr, "Commands:\n")
		fmt.Fprintf(stderr, "  stores                              List registered stores\n")
		fmt.Fprintf(stderr, "  select STORE SELECTOR [ARG...]      Call a selector\n")
		fmt.Fprintf(stderr, "  resolve STORE SELECTOR [ARG...]     Call a selector and wait for its resolver\n")
		fmt.Fprintf(stderr, "  dispatch STORE ACTION [ARG...]      Call an action creator\n")
		fmt.Fprintf(stderr, "  query STORE EXPR [ARG...]           Evaluate an expression over a store\n")
		fmt.Fprintf(stderr, "  run STEPS.yaml                      Run a step file\n")
		fmt.Fprintf(stderr, "\nArguments are JSON values; anything else is taken as a string.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if showVersion {
		fmt.Fprintf(stdout, "datakit %s (commit %s, built %s)\n", version, commit, date)
		return 0
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	application, err := newApplication(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := &printer{w: stdout, compact: opts.compact}
	if err := dispatchCommand(ctx, application, out, fs.Arg(0), fs.Args()[1:]); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	if err := application.Close(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newApplication(opts cliOptions) (*app.Application, error) {
	overrides := map[string]any{}
	set := func(section, key string, v any) {
		m, ok := overrides[section].(map[string]any)
		if !ok {
			m = map[string]any{}
			overrides[section] = m
		}
		m[key] = v
	}
	if opts.logLevel != "" {
		set("logging", "level", opts.logLevel)
	}
	if opts.backend != "" {
		set("persistence", "backend", opts.backend)
	}
	if opts.dataDir != "" {
		set("persistence", "path", opts.dataDir)
	}

	cfg, err := config.Load(config.WithFile(opts.configPath), config.WithOverrides(overrides))
	if err != nil {
		return nil, err
	}
	return app.New(app.Options{
		Config:     cfg,
		Scripts:    opts.scripts,
		RecordsDir: opts.recordsDir,
	})
}

func dispatchCommand(ctx context.Context, a *app.Application, out *printer, cmd string, args []string) error {
	switch cmd {
	case "stores":
		return out.print(a.Registry().StoreNames())
	case "select":
		return cmdSelect(a, out, args)
	case "resolve":
		return cmdResolve(ctx, a, out, args)
	case "dispatch":
		return cmdDispatch(ctx, a, out, args)
	case "query":
		return cmdQuery(a, out, args)
	case "run":
		if len(args) != 1 {
			return fmt.Errorf("%w: run STEPS.yaml", errUsage)
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		return runSteps(ctx, a, out, f)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}
