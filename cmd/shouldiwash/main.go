package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shouldiwash/shouldiwash/pkg/api"
	"github.com/shouldiwash/shouldiwash/pkg/log"
	"github.com/shouldiwash/shouldiwash/pkg/session"
	"github.com/shouldiwash/shouldiwash/pkg/submission"
)

// env is what every command runs against.
type env struct {
	api       *api.Client
	sessions  session.Store
	submitter *submission.Submitter
	in        io.Reader
	out       io.Writer
	format    string
	now       func() time.Time
}

type runFunc func(ctx context.Context, e *env) error

type command struct {
	usage string
	// setup registers the command's flags. It runs before flags are parsed.
	setup func(e *env) runFunc
}

var commands = map[string]command{
	"login":    {usage: "log in and remember the session on this device", setup: loginCommand},
	"register": {usage: "create an account", setup: registerCommand},
	"logout":   {usage: "forget the session on this device", setup: logoutCommand},
	"profile":  {usage: "show the logged in user", setup: profileCommand},
	"validate": {usage: "check the submission form without submitting", setup: validateCommand},
	"submit":   {usage: "submit household details and show the results", setup: submitCommand},
	"results":  {usage: "show or export the chart for a submission", setup: resultsCommand},
	"history":  {usage: "list submissions made from this device", setup: historyCommand},
	"serve":    {usage: "run the local dashboard", setup: serveCommand},
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "usage: %s <command> [flags]\n\ncommands:\n", os.Args[0])
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %s\n", name, commands[name].usage)
	}
}

func main() {
	os.Exit(realMain())
}

func realMain() int {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		return 2
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		usage(os.Stderr)
		return 2
	}
	// lflag parses everything after the command name
	os.Args = append([]string{os.Args[0]}, os.Args[2:]...)

	// init packages
	client := api.Configured()
	store := session.Configured()
	sub := submission.Configured(client)
	format := lflag.String("format", "text", "Output format (text, json, yaml)")

	e := &env{
		api:       client,
		sessions:  store,
		submitter: sub,
		in:        os.Stdin,
		out:       os.Stdout,
		now:       time.Now,
	}
	run := cmd.setup(e)

	// parse flags
	lflag.Configure()

	// lflag automatically sets llog's level, but we need to set the slog level
	level, err := log.LevelFromFlags()
	if err != nil {
		panic(err)
	}
	log.SetDefaultLogLevel(level)

	switch *format {
	case "text", "json", "yaml":
		e.format = *format
	default:
		fmt.Fprintf(os.Stderr, "unknown format %q, expected text, json or yaml\n", *format)
		return 2
	}

	api.RegisterMetrics(prometheus.DefaultRegisterer)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		if err := store.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close session store", slog.Any("error", err))
		}
	}()

	if err := run(ctx, e); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "command failed", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, userMessage(err))
		return 1
	}
	return 0
}
