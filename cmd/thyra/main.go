package main

import (
	"os"

	"github.com/rcliao/thyra/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
