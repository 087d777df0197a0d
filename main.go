package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ardanlabs/dlshim/envconfig"
)

func main() {
	if err := envconfig.LoadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	args := append([]string{os.Args[0]}, envconfig.Flags...)
	args = append(args, os.Args[1:]...)

	if err := newTask(args, os.Stdout, os.Stderr).main(); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n\n%s", err, usage)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
