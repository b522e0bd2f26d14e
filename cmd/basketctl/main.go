// basketctl drives one broker account from the command line: login, catalog
// refresh, quotes, basket purchases and rebalancing.
//
//	basketctl [command] [flags]
//
// Settings come from the environment (see config.FromEnv); the trading
// policy and named baskets come from POLICY_PATH.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"basket-trading/config"
	"basket-trading/internal/logger"
	"basket-trading/internal/tradeerr"
)

type command struct {
	name    string
	usage   string
	broker  bool // needs a broker adapter (valid credentials)
	session bool // needs a live broker session; implies broker
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{}

func register(c command) { commands[c.name] = c }

func main() {
	if len(os.Args) < 2 || os.Args[1] == "help" || os.Args[1] == "-h" {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.InitWriter(os.Stderr, "basketctl", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, cmd, os.Args[2:]); err != nil {
		log.Error("command failed",
			slog.String("command", cmd.name),
			slog.String("error", err.Error()))
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, cmd command, args []string) error {
	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if cmd.broker || cmd.session {
		if err := a.connect(ctx); err != nil {
			return err
		}
	}
	if cmd.session {
		if err := a.ensureSession(ctx); err != nil {
			return err
		}
	}
	return cmd.run(ctx, a, args)
}

// exitCode maps error kinds so scripts can tell auth problems from rejects.
func exitCode(err error) int {
	switch {
	case errors.Is(err, tradeerr.ErrValidation), errors.Is(err, tradeerr.ErrInsufficientAmount):
		return 3
	case errors.Is(err, tradeerr.ErrAuth):
		return 4
	case errors.Is(err, context.Canceled):
		return 130
	}
	return 1
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: basketctl <command> [flags]\n\ncommands:")
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(os.Stderr, "  %-12s %s\n", n, commands[n].usage)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shutdownTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
