package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubExec struct {
	calls []string
}

func (s *stubExec) record(format string, args ...any) error {
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
	return nil
}

func (s *stubExec) Login(ctx context.Context) error  { return s.record("login") }
func (s *stubExec) Logout(ctx context.Context) error { return s.record("logout") }
func (s *stubExec) Add(ctx context.Context, kind string) error {
	return s.record("add %s", kind)
}
func (s *stubExec) List(ctx context.Context, kind string) error {
	return s.record("list %s", kind)
}
func (s *stubExec) Show(ctx context.Context, kind, id string) error {
	return s.record("show %s %s", kind, id)
}
func (s *stubExec) Delete(ctx context.Context, kind, id string) error {
	return s.record("del %s %s", kind, id)
}
func (s *stubExec) Sync(ctx context.Context) error   { return s.record("sync") }
func (s *stubExec) Push(ctx context.Context) error   { return s.record("push") }
func (s *stubExec) Pull(ctx context.Context) error   { return s.record("pull") }
func (s *stubExec) Status(ctx context.Context) error { return s.record("status") }
func (s *stubExec) Outbox(ctx context.Context) error { return s.record("outbox") }

func runScript(t *testing.T, script string) (*stubExec, []string) {
	t.Helper()

	var printed []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		printed = append(printed, fmt.Sprintln(a...))
		return 0, nil
	}
	defer func() { printlnFn = orig }()

	stub := &stubExec{}
	runREPL(context.Background(), stub, func() string { return "offline" }, bufio.NewScanner(strings.NewReader(script)))
	return stub, printed
}

func TestREPL_DispatchesCommands(t *testing.T) {
	stub, _ := runScript(t, strings.Join([]string{
		"add receipt",
		"list receipt",
		"show receipt r1",
		"del receipt r1",
		"sync",
		"push",
		"pull",
		"status",
		"outbox",
		"exit",
	}, "\n"))

	assert.Equal(t, []string{
		"add receipt",
		"list receipt",
		"show receipt r1",
		"del receipt r1",
		"sync",
		"push",
		"pull",
		"status",
		"outbox",
	}, stub.calls)
}

func TestREPL_UnknownCommandAndEOF(t *testing.T) {
	stub, printed := runScript(t, "frobnicate\n\n")

	assert.Empty(t, stub.calls)
	joined := strings.Join(printed, "")
	assert.Contains(t, joined, "Unknown command")
}

func TestREPL_ShortAliases(t *testing.T) {
	stub, _ := runScript(t, "l bill\ndelete bill b1\nquit\n")

	assert.Equal(t, []string{"list bill", "del bill b1"}, stub.calls)
}
