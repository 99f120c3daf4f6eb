package main

import (
	"context"
	"os"

	"github.com/grovetools/watchd/cli"
	"github.com/grovetools/watchd/cmd"
	"github.com/grovetools/watchd/logging"
)

func main() {
	root := cmd.NewRootCmd()
	err := root.ExecuteContext(context.Background())
	_ = logging.Close()
	if err != nil {
		verbose, _ := root.PersistentFlags().GetBool("verbose")
		_ = cli.NewErrorHandler(os.Stderr, verbose).Handle(err)
		os.Exit(1)
	}
}
