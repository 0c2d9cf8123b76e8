package main

import (
	"fmt"
	"os"

	"github.com/leadpulse/backend/libs/config"
)

func main() {
	if err := newRootCmd(config.Load).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
