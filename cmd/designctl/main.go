// Command designctl composes, searches, revises and maintains genetic designs
// held in a designcore store.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"designcore/pkg/domain"
)

var exitFunc = os.Exit

// exitCodes maps error kinds to process exit statuses. Unclassified
// failures exit with 1.
var exitCodes = map[string]int{
	"invalid_argument": 2,
	"not_found":        3,
	"conflict":         4,
	"corrupt_chain":    5,
	"store":            6,
}

func main() {
	code := cli(context.Background(), newApp(), os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if closeErr := a.close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		if _, writeErr := fmt.Fprintf(stderr, "designctl: %v\n", err); writeErr != nil {
			return 1
		}
		if code, ok := exitCodes[domain.KindOf(err)]; ok {
			return code
		}
		return 1
	}
	return 0
}
