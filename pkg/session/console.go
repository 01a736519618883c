package session

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// Console is the client's interactive surface.
type Console interface {
	// ReadLine returns one line without its terminator, or io.EOF.
	ReadLine(prompt string) (string, error)
	ReadPassword(prompt string) (string, error)
	Confirm(prompt string) (bool, error)
	Println(a ...any)
}

// Terminal is a Console over a reader and a writer. Password input is not
// echoed when the reader is a terminal.
type Terminal struct {
	in     *bufio.Reader
	fd     uintptr
	hasTTY bool
	out    io.Writer
}

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	t := &Terminal{in: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		t.fd = f.Fd()
		t.hasTTY = true
	}
	return t
}

// NewStdTerminal is a Terminal on stdin and stdout.
func NewStdTerminal() *Terminal {
	return NewTerminal(os.Stdin, os.Stdout)
}

func (t *Terminal) ReadLine(prompt string) (string, error) {
	fmt.Fprint(t.out, prompt)
	line, err := t.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (t *Terminal) ReadPassword(prompt string) (string, error) {
	if !t.hasTTY {
		return t.ReadLine(prompt)
	}
	fmt.Fprint(t.out, prompt)
	pw, err := term.ReadPassword(int(t.fd))
	fmt.Fprintln(t.out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}

func (t *Terminal) Confirm(prompt string) (bool, error) {
	answer, err := t.ReadLine(prompt + " [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func (t *Terminal) Println(a ...any) {
	fmt.Fprintln(t.out, a...)
}
