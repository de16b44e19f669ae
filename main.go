// The main package for the dpd-enricher executable.
package main

import (
	"github.com/dosevalidator/dpd-enricher/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
