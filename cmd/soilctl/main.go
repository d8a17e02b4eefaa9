// Command soilctl records soil readings and prints summaries and crop
// guidance from the same reading log the API serves.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
