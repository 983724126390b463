// Command pipectl drives an editing session against a pipe backend from the
// shell. A session is kept as a JSON document between invocations:
//
//	pipectl graph -o canvas.json     load the published pipes
//	pipectl publish -f canvas.json   publish an edited canvas
//	pipectl delete 7                 delete one pipe
//	pipectl clients                  list registered daemons
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
