package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/google/shlex"

	"securecmd/pkg/config"
	"securecmd/pkg/protocol"
)

// Executor runs one command line and renders the result as response text.
// Failures to execute are part of the text, never an error.
type Executor interface {
	Run(ctx context.Context, line string) string
}

// NewExecutor returns the executor for a config exec mode.
func NewExecutor(mode string) (Executor, error) {
	switch mode {
	case config.ExecShell, "":
		return NewShellExecutor(), nil
	case config.ExecDirect:
		return DirectExecutor{}, nil
	}
	return nil, fmt.Errorf("unknown exec mode %q", mode)
}

// ShellExecutor hands the line to the system shell.
type ShellExecutor struct {
	Shell string
	Flag  string
}

func NewShellExecutor() ShellExecutor {
	if runtime.GOOS == "windows" {
		return ShellExecutor{Shell: "cmd", Flag: "/C"}
	}
	return ShellExecutor{Shell: "sh", Flag: "-c"}
}

func (e ShellExecutor) Run(ctx context.Context, line string) string {
	return run(exec.CommandContext(ctx, e.Shell, e.Flag, line))
}

// DirectExecutor splits the line with shell quoting rules and executes the
// program without a shell, so pipes and redirections are not interpreted.
type DirectExecutor struct{}

func (DirectExecutor) Run(ctx context.Context, line string) string {
	argv, err := shlex.Split(line)
	if err != nil {
		return "error: " + err.Error()
	}
	if len(argv) == 0 {
		return protocol.NoOutput
	}
	return run(exec.CommandContext(ctx, argv[0], argv[1:]...))
}

// run captures combined output. A non-zero exit status is not an execution
// failure: whatever the process printed is returned.
func run(cmd *exec.Cmd) string {
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return "error: " + err.Error()
	}
	return render(out.Bytes())
}

// render makes output sendable: invalid UTF-8 is replaced, trailing NULs
// are trimmed and empty output becomes the placeholder.
func render(out []byte) string {
	out = bytes.TrimRight(out, "\x00")
	if len(out) == 0 {
		return protocol.NoOutput
	}
	return strings.ToValidUTF8(string(out), "\uFFFD")
}
