package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the minimal command surface the REPL needs. App satisfies it;
// tests can provide a stub.
type execIface interface {
	Login(ctx context.Context) error
	Add(ctx context.Context, kind string) error
	List(ctx context.Context, kind string) error
	Show(ctx context.Context, kind, id string) error
	Delete(ctx context.Context, kind, id string) error
	Sync(ctx context.Context) error
	Push(ctx context.Context) error
	Pull(ctx context.Context) error
	Status(ctx context.Context) error
	Outbox(ctx context.Context) error
	Logout(ctx context.Context) error
}

// runREPL reads a line, parses the first token as the command, and
// dispatches to a. Handler errors are printed by the handlers themselves;
// the loop only cares about I/O. Exits on EOF, "exit" or "quit".
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("pk> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		arg := func(i int) string {
			if i < len(args) {
				return args[i]
			}
			return ""
		}

		switch cmd {
		case "help":
			printlnFn("Commands: login, logout, add <type>, list <type>, show <type> <id>,")
			printlnFn("          del <type> <id>, sync, push, pull, status, outbox, exit")
			printlnFn("Types: receipt, device, bill, reminder, document, subscription, settings")

		case "login":
			_ = a.Login(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "add":
			_ = a.Add(ctx, arg(0))

		case "l", "list":
			_ = a.List(ctx, arg(0))

		case "show":
			_ = a.Show(ctx, arg(0), arg(1))

		case "del", "delete":
			_ = a.Delete(ctx, arg(0), arg(1))

		case "sync":
			_ = a.Sync(ctx)

		case "push":
			_ = a.Push(ctx)

		case "pull":
			_ = a.Pull(ctx)

		case "status":
			_ = a.Status(ctx)

		case "outbox":
			_ = a.Outbox(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
