package main

import (
	"context"
	"fmt"
	"os"

	"weekplanner/internal/cli"
	appLog "weekplanner/internal/log"
)

func main() {
	defer appLog.Sync()

	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		appLog.Sync()
		os.Exit(1)
	}
}
