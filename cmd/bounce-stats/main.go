// Command bounce-stats aggregates per-object-store usage from bounce operation series.
package main

import (
	"fmt"
	"os"

	"github.com/bouncestorage/bounce-stats/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
