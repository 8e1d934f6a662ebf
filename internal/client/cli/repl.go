package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Add(ctx context.Context) error
	List(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Edit(ctx context.Context, args []string) error
	Tag(ctx context.Context, args []string) error
	Lock(ctx context.Context, args []string) error
	Remove(ctx context.Context, args []string) error
	Sync(ctx context.Context) error
	Export(ctx context.Context, args []string) error
	RotateKey(ctx context.Context) error
	Status(ctx context.Context) error
	Conflicts(ctx context.Context) error
	Restore(ctx context.Context, args []string) error
	Discard(ctx context.Context, args []string) error
}

// runREPL starts a read–eval–print loop for the quietlog CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Any errors returned by command handlers are ignored here; handlers should
// log their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("ql> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			printlnFn("Available commands: register, login, add, (l)ist [text], show <id>, edit <id>, tag <id>, lock <id>, rm <id>..., sync, export <id>..., rotate-key, status, conflicts, restore <shadow-id>, discard <shadow-id>, exit")

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "add":
			_ = a.Add(ctx)

		case "l", "list":
			_ = a.List(ctx, args)

		case "show":
			_ = a.Show(ctx, args)

		case "edit":
			_ = a.Edit(ctx, args)

		case "tag":
			_ = a.Tag(ctx, args)

		case "lock", "unlock":
			_ = a.Lock(ctx, args)

		case "rm":
			_ = a.Remove(ctx, args)

		case "sync":
			_ = a.Sync(ctx)

		case "export":
			_ = a.Export(ctx, args)

		case "rotate-key":
			_ = a.RotateKey(ctx)

		case "status":
			_ = a.Status(ctx)

		case "conflicts":
			_ = a.Conflicts(ctx)

		case "restore":
			_ = a.Restore(ctx, args)

		case "discard":
			_ = a.Discard(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
