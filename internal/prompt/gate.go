// Package prompt asks the user yes/no questions and reads short answers
// before the build does anything expensive or irreversible.
package prompt

import (
	"errors"
	"strings"
)

var (
	// ErrUserDeclined is returned when the user answers no to a question the
	// build cannot continue without.
	ErrUserDeclined = errors.New("declined by user")

	// ErrAborted is returned when the user cancels a prompt (Ctrl-C in the
	// interactive form, or end of input).
	ErrAborted = errors.New("prompt aborted")

	// ErrNoAnswer is returned by a Scripted gate that ran out of answers.
	ErrNoAnswer = errors.New("no scripted answer left")
)

// Gate is the confirmation surface the pipeline talks to.
type Gate interface {
	// Confirm asks a yes/no question. An empty answer selects defaultYes.
	Confirm(question string, defaultYes bool) (bool, error)
	// ReadLine asks for a single line of free text. The answer comes back
	// without its line terminator but otherwise untouched.
	ReadLine(question string) (string, error)
}

// ParseAnswer interprets a typed answer to a yes/no question.
func ParseAnswer(answer string, defaultYes bool) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "":
		return defaultYes
	case "y", "yes":
		return true
	default:
		return false
	}
}

// Suffix returns the "[Yn]"/"[yN]" hint appended to a question.
func Suffix(defaultYes bool) string {
	if defaultYes {
		return "[Yn]"
	}
	return "[yN]"
}
