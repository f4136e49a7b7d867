package main

import (
	"fmt"
	"os"
	_ "time/tzdata" // scheduler and surge window timezones on minimal images

	"github.com/jonesrussell/north-cloud/relister/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
