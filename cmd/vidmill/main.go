package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			// Interrupted runs already logged their shutdown; exit quietly
			// with the conventional SIGINT code.
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "vidmill: %v\n", err)
		os.Exit(1)
	}
}
