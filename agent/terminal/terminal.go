// Package terminal implements the interactive command-line mode: the user
// types one ledger prompt per line and gets the agent's reply printed back.
// It is a thin loop over the agent; all behavior lives below it.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danupratama/lunasin/agent"
)

// Terminal runs the interactive prompt loop.
type Terminal struct {
	agent *agent.Agent
	in    io.Reader
	out   io.Writer
}

// New creates a terminal bound to stdin and stdout.
func New(a *agent.Agent) *Terminal {
	return &Terminal{agent: a, in: os.Stdin, out: os.Stdout}
}

// NewWithIO creates a terminal with explicit streams, used in tests.
func NewWithIO(a *agent.Agent, in io.Reader, out io.Writer) *Terminal {
	return &Terminal{agent: a, in: in, out: out}
}

// Run starts the interactive session. An initial prompt from the command line
// is processed first; /quit and /exit end the session.
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	if initialPrompt != "" {
		t.processTurn(ctx, initialPrompt)
	}

	scanner := bufio.NewScanner(t.in)
	for {
		fmt.Fprint(t.out, "Anda: ")
		if !scanner.Scan() {
			// EOF or read error ends the session
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" {
			break
		}

		t.processTurn(ctx, input)
	}
	return scanner.Err()
}

// processTurn handles one prompt. Errors are shown to the user and never end
// the session.
func (t *Terminal) processTurn(ctx context.Context, prompt string) {
	res, err := t.agent.HandlePrompt(ctx, prompt)
	if err != nil {
		fmt.Fprintf(t.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(t.out, "Lunasin: %s\n", res.Message)
}
