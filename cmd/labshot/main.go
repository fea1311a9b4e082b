// Command labshot runs UI regression suites against a JupyterLab server.
//
// Usage:
//
//	labshot run suites/notebook-run.yaml --base-url http://localhost:8888 --token $TOKEN
//	labshot validate suites/*.yaml
//	labshot history --db labshot.db
//	labshot clean notebook-run-test
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/labshot/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Interrupts cancel the suite; teardown still removes the working directory.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cli.NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "labshot:", err)
	}
	return cli.GetExitCode(err)
}
