package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// lockedWriter lets the prompt and background sync notices share one output.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// terminalNotifier prints sync outcomes between prompts.
type terminalNotifier struct {
	out io.Writer
}

func newTerminalNotifier(out io.Writer) *terminalNotifier {
	return &terminalNotifier{out: out}
}

func (n *terminalNotifier) Success(_ context.Context, msg string) {
	fmt.Fprintf(n.out, "[sync] %s\n", msg)
}

func (n *terminalNotifier) Failure(_ context.Context, msg string, err error) {
	if err == nil {
		fmt.Fprintf(n.out, "[sync] %s\n", msg)
		return
	}
	fmt.Fprintf(n.out, "[sync] %s: %v\n", msg, err)
}
