// Command gitcon reads resources from configuration repositories and hosts
// synchronized repositories declared in a configuration file.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
