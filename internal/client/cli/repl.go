package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Init(ctx context.Context, args []string) error
	Set(ctx context.Context, args []string) error
	Identify(ctx context.Context, args []string) error
	Show(ctx context.Context) error
	Pending(ctx context.Context) error
	Replay(ctx context.Context) error
	Clear(ctx context.Context) error
	Storage(ctx context.Context, args []string) error
	Reset(ctx context.Context) error
}

const helpText = "Available commands: init [country] [lang], set name=bool..., identify <id> [provider], show, pending, replay, clear, storage [prefix], reset, exit"

// runREPL reads commands from reader and dispatches them to a until EOF,
// "exit" or "quit". Command errors are printed and the loop goes on.
// Commands may read follow-up input from the same reader.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, out io.Writer) {
	for {
		fmt.Fprintf(out, "consent %s> ", statusFn())
		line, readErr := reader.ReadString('\n')
		if readErr != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			if readErr != nil {
				return
			}
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			fmt.Fprintln(out, helpText)
		case "init":
			err = a.Init(ctx, args)
		case "set":
			err = a.Set(ctx, args)
		case "identify":
			err = a.Identify(ctx, args)
		case "show":
			err = a.Show(ctx)
		case "pending":
			err = a.Pending(ctx)
		case "replay":
			err = a.Replay(ctx)
		case "clear":
			err = a.Clear(ctx)
		case "storage":
			err = a.Storage(ctx, args)
		case "reset":
			err = a.Reset(ctx)
		case "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return
		default:
			fmt.Fprintln(out, "Unknown command:", cmd)
		}
		if err != nil {
			fmt.Fprintln(out, "Error:", err)
		}
		if readErr != nil {
			return
		}
	}
}
