// Command jsrun is the native entry point for the worker runtime: it loads
// a root script, runs it to quiescence (or until interrupted), and exits.
// Grounded on original_source/jsrun.c's main(): parse flags, build the
// program_arguments global, load the file (or enter an interactive REPL
// with no file argument), then drive the root worker's run loop.
package main

import (
	"os"

	jww "github.com/spf13/jwalterweatherman"

	"github.com/jsrun-go/jsrun/logging"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logging.LogError("jsrun", err)
		os.Exit(1)
	}
	jww.INFO.Print("[JSRUN] exiting")
}
