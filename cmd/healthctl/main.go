package main

import (
	"fmt"
	"os"

	"example.com/healthconnect/internal/cli"
	"example.com/healthconnect/internal/logger"
)

func main() {
	opts := logger.FromEnv()
	opts.Writer = os.Stderr
	logger.Init(opts)
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
