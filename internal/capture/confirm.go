package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
)

// Confirmer blocks until the operator says the browser is ready.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) error
}

// LineConfirmer prints a prompt and waits for a line (the Enter key) on In.
// One goroutine owns In for the confirmer's lifetime, so a canceled Confirm
// leaves its pending line for the next call.
type LineConfirmer struct {
	In  *bufio.Reader
	Out io.Writer

	once  sync.Once
	lines chan error
}

func NewLineConfirmer(in io.Reader, out io.Writer) *LineConfirmer {
	return &LineConfirmer{In: bufio.NewReader(in), Out: out}
}

func (c *LineConfirmer) read() {
	for {
		_, err := c.In.ReadString('\n')
		c.lines <- err
		if err != nil {
			close(c.lines)
			return
		}
	}
}

func (c *LineConfirmer) Confirm(ctx context.Context, prompt string) error {
	c.once.Do(func() {
		c.lines = make(chan error)
		go c.read()
	})
	fmt.Fprintln(c.Out, prompt)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err, ok := <-c.lines:
		if !ok || err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		return nil
	}
}
