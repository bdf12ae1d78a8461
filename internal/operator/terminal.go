package operator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/rotisserie/eris"
)

// Terminal talks to an operator over a line-oriented reader and writer,
// normally stdin and stdout.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer

	title  *color.Color
	warn   *color.Color
	notice *color.Color
}

// NewTerminal returns a Terminal reading answers from in.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		in:     bufio.NewReader(in),
		out:    out,
		title:  color.New(color.FgCyan, color.Bold),
		warn:   color.New(color.FgYellow, color.Bold),
		notice: color.New(color.FgGreen),
	}
}

func (t *Terminal) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := t.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", eris.Wrap(err, "operator: read answer")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Select prints a numbered menu and re-prompts until a valid number is
// entered.
func (t *Terminal) Select(ctx context.Context, prompt string, options []string) (int, error) {
	for {
		t.title.Fprintln(t.out, prompt) //nolint:errcheck
		for i, o := range options {
			fmt.Fprintf(t.out, "  %d) %s\n", i+1, o)
		}
		fmt.Fprint(t.out, "> ")

		line, err := t.readLine(ctx)
		if err != nil {
			return 0, err
		}
		choice, err := parseChoice(line, len(options))
		if err == nil {
			return choice, nil
		}
		t.warn.Fprintln(t.out, err.Error()) //nolint:errcheck
	}
}

func (t *Terminal) Ask(ctx context.Context, prompt string) (string, error) {
	fmt.Fprintf(t.out, "%s: ", prompt)
	line, err := t.readLine(ctx)
	return strings.TrimSpace(line), err
}

// Confirm requires the phrase typed exactly, case included.
func (t *Terminal) Confirm(ctx context.Context, prompt, phrase string) (bool, error) {
	t.warn.Fprintln(t.out, prompt) //nolint:errcheck
	fmt.Fprintf(t.out, "Type %s to continue: ", color.New(color.Bold).Sprint(phrase))
	line, err := t.readLine(ctx)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(line) != phrase {
		t.warn.Fprintln(t.out, "Confirmation did not match; nothing was written.") //nolint:errcheck
		return false, nil
	}
	return true, nil
}

func (t *Terminal) Notify(msg string) {
	t.notice.Fprintln(t.out, msg) //nolint:errcheck
}
