package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Console runs the assistant as a terminal REPL.
type Console struct {
	in      io.Reader
	out     io.Writer
	chatter Chatter
}

func NewConsole(in io.Reader, out io.Writer, chatter Chatter) *Console {
	return &Console{in: in, out: out, chatter: chatter}
}

func (c *Console) Name() string {
	return "console"
}

// Run reads lines until EOF, "exit" or "quit", or until ctx is cancelled between lines.
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintln(c.out, Greeting)
	fmt.Fprintln(c.out, `Type "exit" to quit.`)

	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, "\nYou: ")
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "exit", "quit":
			fmt.Fprintln(c.out, "Goodbye!")
			return nil
		}
		reply, ok := respond(ctx, c.chatter, line)
		if !ok {
			continue
		}
		fmt.Fprintf(c.out, "Assistant: %s\n", reply)
	}
}
