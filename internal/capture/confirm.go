package capture

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// LineConfirmer asks a yes/no question on out and reads the answer from
// lines, which the caller feeds from the terminal. Anything but y or yes is no.
type LineConfirmer struct {
	lines <-chan string
	out   io.Writer
}

func NewLineConfirmer(lines <-chan string, out io.Writer) *LineConfirmer {
	return &LineConfirmer{lines: lines, out: out}
}

func (c *LineConfirmer) Confirm(ctx context.Context, question string) (bool, error) {
	if _, err := fmt.Fprintf(c.out, "%s [y/N] ", question); err != nil {
		return false, fmt.Errorf("write prompt: %w", err)
	}
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			return false, io.EOF
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}
