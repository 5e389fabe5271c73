package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/OpenAD-Plugins/internal/application/deepsearch"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// linePrompter reads answers line by line from the command input and
// writes the labels to its error output.
type linePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(cmd *cobra.Command) *linePrompter {
	return &linePrompter{in: bufio.NewReader(cmd.InOrStdin()), out: cmd.ErrOrStderr()}
}

func (p *linePrompter) Ask(label string, secret bool) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", errors.Wrap(err, errors.ErrCodeValidation, "no answer for "+strings.ToLower(label))
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// confirm asks a yes/no question. Anything but y or yes is a no.
func (p *linePrompter) confirm(question string) bool {
	ans, err := p.Ask(question+" [y/N]", false)
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(ans)) {
	case "y", "yes":
		return true
	}
	return false
}

// confirmLarge asks before fetching a large result, unless assumeYes.
func confirmLarge(cmd *cobra.Command, assumeYes bool) func(int64) bool {
	if assumeYes {
		return nil
	}
	p := newPrompter(cmd)
	return func(expected int64) bool {
		return p.confirm(fmt.Sprintf("The search returned %s results. Fetch them all?", deepsearch.PrettyNumber(expected)))
	}
}

// statusReporter prints transient progress lines to the error output.
type statusReporter struct {
	w io.Writer
}

func (r statusReporter) Status(msg string) {
	fmt.Fprintf(r.w, "%s\n", msg)
}
