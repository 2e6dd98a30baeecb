// Command morphoscreen is the MorphoScreen command line interface.
package main

import (
	"os"

	"github.com/turtacn/MorphoScreen/internal/interfaces/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
