package prompt

import (
	"fmt"
	"sync"
)

// Scripted is a Gate that replays queued answers. Tests use it to drive the
// pipeline without a terminal.
type Scripted struct {
	mu      sync.Mutex
	answers []string
	asked   []string
}

// NewScripted returns a gate that answers with answers in order. Confirm
// answers go through ParseAnswer, so "" picks the question's default.
func NewScripted(answers ...string) *Scripted {
	return &Scripted{answers: answers}
}

// Confirm implements Gate.
func (s *Scripted) Confirm(question string, defaultYes bool) (bool, error) {
	answer, err := s.next(question)
	if err != nil {
		return false, err
	}
	return ParseAnswer(answer, defaultYes), nil
}

// ReadLine implements Gate.
func (s *Scripted) ReadLine(question string) (string, error) {
	return s.next(question)
}

// Asked returns every question asked so far.
func (s *Scripted) Asked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.asked...)
}

// Remaining returns the number of unused answers.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}

func (s *Scripted) next(question string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.asked = append(s.asked, question)
	if len(s.answers) == 0 {
		return "", fmt.Errorf("%q: %w", question, ErrNoAnswer)
	}
	answer := s.answers[0]
	s.answers = s.answers[1:]
	return answer, nil
}
