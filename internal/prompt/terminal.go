package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// Terminal asks questions on the controlling terminal. With a TTY on stdin
// it renders huh forms; otherwise it falls back to plain line prompts so the
// build still works when input is piped.
type Terminal struct {
	out         io.Writer
	reader      *bufio.Reader
	interactive bool
}

// NewTerminal returns a gate over stdin and stdout.
func NewTerminal() *Terminal {
	return &Terminal{
		out:         os.Stdout,
		reader:      bufio.NewReader(os.Stdin),
		interactive: term.IsTerminal(int(os.Stdin.Fd())),
	}
}

// NewLineGate returns a non-interactive gate reading answers from in.
func NewLineGate(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		out:    out,
		reader: bufio.NewReader(in),
	}
}

// Confirm implements Gate.
func (t *Terminal) Confirm(question string, defaultYes bool) (bool, error) {
	if t.interactive {
		answer := defaultYes
		field := huh.NewConfirm().
			Title(question).
			Affirmative("Yes").
			Negative("No").
			Value(&answer)
		if err := runField(field); err != nil {
			return false, err
		}
		return answer, nil
	}

	fmt.Fprintf(t.out, "%s %s ", question, Suffix(defaultYes))
	line, err := t.readLine()
	if err != nil {
		return false, err
	}
	return ParseAnswer(line, defaultYes), nil
}

// ReadLine implements Gate.
func (t *Terminal) ReadLine(question string) (string, error) {
	if t.interactive {
		var answer string
		field := huh.NewInput().
			Title(strings.TrimSpace(question)).
			Value(&answer)
		if err := runField(field); err != nil {
			return "", err
		}
		return answer, nil
	}

	fmt.Fprint(t.out, question)
	line, err := t.readLine()
	if err != nil {
		return "", err
	}
	return line, nil
}

// readLine returns one line without its terminator. A final line without a
// newline is accepted; EOF with nothing read is ErrAborted.
func (t *Terminal) readLine() (string, error) {
	line, err := t.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrAborted
		}
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runField(field huh.Field) error {
	form := huh.NewForm(huh.NewGroup(field)).WithTheme(huh.ThemeCharm())
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ErrAborted
		}
		return fmt.Errorf("run prompt: %w", err)
	}
	return nil
}
