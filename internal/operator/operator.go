// Package operator is the human side of a run: menus, typed confirmation and
// commit progress.
package operator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

// ErrNoAnswer is returned when a Scripted channel runs out of answers.
var ErrNoAnswer = eris.New("operator: no scripted answer left")

// Channel is how a run talks to its operator.
type Channel interface {
	// Select shows options and returns the chosen index.
	Select(ctx context.Context, prompt string, options []string) (int, error)
	// Ask returns one free-text answer.
	Ask(ctx context.Context, prompt string) (string, error)
	// Confirm shows prompt and reports whether the operator typed phrase
	// exactly.
	Confirm(ctx context.Context, prompt, phrase string) (bool, error)
	Notify(msg string)
}

// Scripted replays fixed answers. Every prompt and notice is kept in
// Transcript.
type Scripted struct {
	mu         sync.Mutex
	answers    []string
	Transcript []string
}

// NewScripted returns a channel that answers prompts in order.
func NewScripted(answers ...string) *Scripted {
	return &Scripted{answers: answers}
}

func (s *Scripted) next(prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Transcript = append(s.Transcript, prompt)
	if len(s.answers) == 0 {
		return "", eris.Wrapf(ErrNoAnswer, "operator: prompt %q", prompt)
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

func (s *Scripted) Select(ctx context.Context, prompt string, options []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	a, err := s.next(prompt)
	if err != nil {
		return 0, err
	}
	return parseChoice(a, len(options))
}

func (s *Scripted) Ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a, err := s.next(prompt)
	return strings.TrimSpace(a), err
}

func (s *Scripted) Confirm(ctx context.Context, prompt, phrase string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	a, err := s.next(prompt)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(a) == phrase, nil
}

func (s *Scripted) Notify(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Transcript = append(s.Transcript, msg)
}

// Preconfirmed approves a commit when the phrase given on the command line
// matches. It never prompts.
type Preconfirmed struct {
	Given string
}

func (p Preconfirmed) Confirm(_ context.Context, _, phrase string) (bool, error) {
	return p.Given == phrase, nil
}

// parseChoice turns a 1-based menu answer into an index.
func parseChoice(answer string, n int) (int, error) {
	var choice int
	if _, err := fmt.Sscanf(strings.TrimSpace(answer), "%d", &choice); err != nil {
		return 0, eris.Errorf("operator: %q is not a menu number", strings.TrimSpace(answer))
	}
	if choice < 1 || choice > n {
		return 0, eris.Errorf("operator: choice %d is out of range 1-%d", choice, n)
	}
	return choice - 1, nil
}
