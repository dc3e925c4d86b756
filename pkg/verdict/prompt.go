package verdict

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
)

// PromptText is shown before every read.
const PromptText = "Was this commit good or bad? (type 'good', 'bad', or 'skip'): "

// Prompter asks an operator for the verdict. Unrecognized answers are asked
// again without limit.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter reads answers from in and writes prompts to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Evaluate blocks until a recognized answer is read. It fails only when the
// input is exhausted.
func (p *Prompter) Evaluate(ctx context.Context, rev string) (Verdict, error) {
	prompt := color.New(color.FgCyan, color.Bold)
	for {
		prompt.Fprint(p.out, PromptText)

		line, err := p.in.ReadString('\n')
		if v, ok := ParseToken(line); ok {
			return v, nil
		}
		if err != nil {
			if err == io.EOF {
				return "", fmt.Errorf("no verdict given for %s: input closed", rev)
			}
			return "", fmt.Errorf("failed to read verdict: %w", err)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
}
