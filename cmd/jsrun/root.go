package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/jsrun-go/jsrun/engine"
	"github.com/jsrun-go/jsrun/logging"
	"github.com/jsrun-go/jsrun/module"
	"github.com/jsrun-go/jsrun/script"
	"github.com/jsrun-go/jsrun/workerrt"
)

var (
	logLevel      string
	memoryLimitMB int
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jsrun [file [args...]]",
		Short: "Run a script under the worker/message-passing runtime",
		Args:  cobra.ArbitraryArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			threshold, err := parseLogLevel(logLevel)
			if err != nil {
				return err
			}
			logging.Init(threshold)

			if len(args) == 0 {
				return runInteractive()
			}
			return runFile(args[0], args[1:])
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "info",
		"log threshold: trace, debug, info, warn, error, critical, fatal")
	cmd.Flags().IntVar(&memoryLimitMB, "memory-limit-mb", 0,
		"cap each worker's script heap at this many megabytes (0 = unlimited); "+
			"the original's -r flag")

	return cmd
}

func parseLogLevel(s string) (jww.Threshold, error) {
	switch strings.ToLower(s) {
	case "trace":
		return jww.LevelTrace, nil
	case "debug":
		return jww.LevelDebug, nil
	case "info":
		return jww.LevelInfo, nil
	case "warn":
		return jww.LevelWarn, nil
	case "error":
		return jww.LevelError, nil
	case "critical":
		return jww.LevelCritical, nil
	case "fatal":
		return jww.LevelFatal, nil
	default:
		return 0, errors.Errorf("unrecognised --log-level %q", s)
	}
}

func newContextFactory() script.NewContextFunc {
	return func() (engine.Context, error) {
		return engine.NewQuickJSContext(engine.QuickJSOptions{
			MemoryLimitBytes: uintptr(memoryLimitMB) * 1024 * 1024,
		})
	}
}

func seedAmbientGlobals(ctx engine.Context, argv []string) error {
	global := ctx.Global()

	environObj := ctx.NewObject()
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if err := ctx.DefineProperty(environObj, parts[0], parts[1], nil, nil); err != nil {
			return errors.Wrapf(err, "seeding environ.%s", parts[0])
		}
	}
	if err := ctx.DefineProperty(global, "environ", environObj, nil, nil); err != nil {
		return errors.Wrap(err, "installing global environ")
	}

	args := make([]interface{}, len(argv))
	for i, a := range argv {
		args[i] = a
	}
	if err := ctx.DefineProperty(global, "program_arguments", args, nil, nil); err != nil {
		return errors.Wrap(err, "installing global program_arguments")
	}
	return nil
}

func runFile(path string, argv []string) error {
	ctx, err := newContextFactory()()
	if err != nil {
		return errors.Wrap(err, "creating root script context")
	}
	if err := seedAmbientGlobals(ctx, argv); err != nil {
		return err
	}

	loader := module.NewLoader(nil, nil)
	bindings := script.NewBindings(newContextFactory(), loader)

	source, resolvedURL, err := loader.Load(path)
	if err != nil {
		return errors.Wrapf(err, "loading %q", path)
	}

	root := workerrt.NewRoot(ctx, resolvedURL, bindings.Dispatch())
	if err := bindings.Install(ctx, root); err != nil {
		return errors.Wrap(err, "installing root bindings")
	}

	if _, err := ctx.Eval(source, resolvedURL); err != nil {
		return errors.Wrapf(err, "evaluating %q", path)
	}

	root.Run()
	return nil
}

// runInteractive is the REPL fallback when no file argument is given,
// grounded on original_source/jsrun.c's handle_interactive. The original's
// readline loop breaks as soon as the FIRST line is read instead of at EOF
// (spec.md's flagged defect); this loop breaks only when the scanner
// reports EOF, evaluating every line read in between.
func runInteractive() error {
	ctx, err := newContextFactory()()
	if err != nil {
		return errors.Wrap(err, "creating root script context")
	}
	if err := seedAmbientGlobals(ctx, nil); err != nil {
		return err
	}

	loader := module.NewLoader(nil, nil)
	bindings := script.NewBindings(newContextFactory(), loader)
	root := workerrt.NewRoot(ctx, "<stdin>", bindings.Dispatch())
	if err := bindings.Install(ctx, root); err != nil {
		return errors.Wrap(err, "installing root bindings")
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprint(os.Stderr, "> ")
	for scanner.Scan() {
		line := scanner.Text()
		if v, err := ctx.Eval(line, "<stdin>"); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		} else if v != nil {
			fmt.Fprintf(os.Stderr, "%v\n", v)
		}
		fmt.Fprint(os.Stderr, "> ")
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "reading stdin")
	}

	root.Run()
	return nil
}
