package main

import (
	"context"
	"errors"
	"os"

	"github.com/matzehuels/rezls/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130) // Standard shell convention for SIGINT
		}
		os.Exit(1)
	}
}
