package cli

import (
	"bufio"
	"os"
	"strings"

	"github.com/peterh/liner"
)

// newPrompt returns the confirmation prompt and a release function. On a
// real terminal it is readline-style via liner; otherwise (tests, piped
// input) it reads plain lines from stdin.
func (a *app) newPrompt() (func(string) (string, error), func()) {
	if f, ok := a.stdin.(*os.File); ok && f == os.Stdin && liner.TerminalSupported() {
		state := liner.NewLiner()
		state.SetCtrlCAborts(true)

		return state.Prompt, func() { _ = state.Close() }
	}

	reader := bufio.NewReader(a.stdin)

	return func(question string) (string, error) {
		a.io.Printf("%s", question)

		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}

		return strings.TrimRight(line, "\n"), nil
	}, func() {}
}
