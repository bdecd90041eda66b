package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/keel-agent/keel/permission"
)

// terminalPrompter asks the user to approve a tool call on stdin.
type terminalPrompter struct{}

func (terminalPrompter) RequestPermission(ctx context.Context, req permission.Request) (permission.Decision, error) {
	fmt.Fprintf(os.Stderr, "\nPermission requested: %s\n", req.Key)
	fmt.Fprint(os.Stderr, "  [y] allow once  [s] allow for session  [a] always allow  [n] deny: ")

	type answer struct {
		text string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		reader := bufio.NewReader(os.Stdin)
		text, err := reader.ReadString('\n')
		ch <- answer{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return permission.Deny, ctx.Err()
	case a := <-ch:
		if a.err != nil {
			return permission.Deny, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.text)) {
		case "y", "yes":
			return permission.AllowOnce, nil
		case "s", "session":
			return permission.AllowSession, nil
		case "a", "always":
			return permission.AllowAlways, nil
		default:
			return permission.Deny, nil
		}
	}
}
