package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
)

// maxOutput bounds how much tool output a ToolError keeps.
const maxOutput = 4096

// Command is one external tool invocation.
type Command struct {
	// Path is the executable, either a bare name looked up in PATH or a path.
	Path string
	Args []string
	// Dir is the working directory. Empty means the current one.
	Dir string
	// Interactive connects the tool to the terminal so it can ask for
	// passwords or two-factor codes. Output is still captured for errors.
	Interactive bool
	// Artifact is the artifact the command works on, for error messages.
	Artifact string
}

// Tool returns the executable's base name.
func (c Command) Tool() string {
	name := c.Path
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// Runner executes external tools.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ToolError reports a failed external tool.
type ToolError struct {
	Tool     string
	Artifact string
	// ExitCode is -1 when the tool never started or was killed.
	ExitCode int
	// Output is the tail of the tool's combined output, redacted.
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Artifact, e.Tool)
	if e.ExitCode >= 0 {
		msg += fmt.Sprintf(" exited with status %d", e.ExitCode)
	} else {
		msg += fmt.Sprintf(" failed: %v", e.Err)
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecRunner returns a runner wired to the process's stdio.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run implements Runner. The command inherits the environment; the depot
// tool needs HOME to find its credential cache.
func (r *ExecRunner) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir

	tail := &tailBuffer{limit: maxOutput}
	if c.Interactive {
		cmd.Stdin = r.Stdin
		cmd.Stdout = io.MultiWriter(orDiscard(r.Stdout), tail)
		cmd.Stderr = io.MultiWriter(orDiscard(r.Stderr), tail)
	} else {
		cmd.Stdout = tail
		cmd.Stderr = tail
	}

	err := cmd.Run()
	if err == nil {
		return nil
	}

	toolErr := &ToolError{
		Tool:     c.Tool(),
		Artifact: c.Artifact,
		ExitCode: -1,
		Output:   redactOutput(tail.String()),
		Err:      err,
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		toolErr.Err = fmt.Errorf("%w: %v", ctxErr, err)
		return toolErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		toolErr.ExitCode = exitErr.ExitCode()
	}
	return toolErr
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

var homePattern = regexp.MustCompile(`/(?:home|Users)/[^/\s]+`)

// redactOutput hides the user's home directory in tool output that ends up
// in errors and logs.
func redactOutput(out string) string {
	if home, err := os.UserHomeDir(); err == nil && home != "" && home != "/" {
		out = strings.ReplaceAll(out, home, "$HOME")
	}
	return homePattern.ReplaceAllString(out, "$$HOME")
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, cmd Command) error

// Run calls f(ctx, cmd).
func (f RunnerFunc) Run(ctx context.Context, cmd Command) error {
	return f(ctx, cmd)
}
