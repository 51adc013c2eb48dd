package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/StochasticTinkr/resourcescope/resource"
	"github.com/StochasticTinkr/resourcescope/scenario"
	"github.com/StochasticTinkr/resourcescope/wasmscope"
)

func main() {
	var (
		scenarioFile = flag.String("scenario", "", "Path to scenario YAML file (default: built-in demo)")
		wasmFile     = flag.String("wasm", "", "Load a core wasm module in a scope and trace its teardown")
		funcName     = flag.String("func", "", "Exported function to call with -wasm")
		args         = flag.String("args", "", "Comma-separated i32/i64 arguments for -func")
		memPages     = flag.Uint("mem-pages", 0, "Memory limit in 64KB pages for -wasm (0 = default)")
		plain        = flag.Bool("plain", false, "Disable styled output")
		verbose      = flag.Bool("v", false, "Log scope activity to stderr")
		interactive  = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		logger = l
	}
	defer logger.Sync() //nolint:errcheck
	resource.SetLogger(logger)

	r := renderer{styled: !*plain && term.IsTerminal(int(os.Stdout.Fd()))}

	if *wasmFile != "" {
		cfg := &wasmscope.Config{MemoryLimitPages: uint32(*memPages), CloseOnContextDone: true}
		if err := runWasm(r, logger, cfg, *wasmFile, *funcName, *args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	doc := scenario.Demo()
	if *scenarioFile != "" {
		var err error
		doc, err = scenario.ParseFile(*scenarioFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if *interactive {
		if err := runInteractive(doc, logger); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	run := scenario.NewRunner(doc, logger)
	fmt.Print(r.trace(doc, run.Run()))
}

func runWasm(r renderer, logger *zap.Logger, cfg *wasmscope.Config, wasmFile, funcName, argStr string) error {
	ctx := context.Background()

	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	params, err := parseParams(argStr)
	if err != nil {
		return err
	}

	var trace []scenario.Entry
	recorder := resource.ObserverFunc(func(e resource.Event) {
		trace = append(trace, scenario.Entry{Event: &e})
	})

	opts := resource.Options{Name: "wasm", Logger: logger, Observers: []resource.Observer{recorder}}
	err = resource.RunWithOptions(opts, func(s *resource.Scope) error {
		mod, err := wasmscope.Load(ctx, s, cfg, wasmFile, data)
		if err != nil {
			return err
		}
		if funcName == "" {
			return nil
		}
		results, err := wasmscope.Call(ctx, mod.Instance, funcName, params...)
		if err != nil {
			return fmt.Errorf("call %s: %w", funcName, err)
		}
		fmt.Printf("%s%v\n", r.style(handleStyle, funcName+" = "), results)
		return nil
	})

	fmt.Println(r.title("scopetrace " + wasmFile))
	for _, e := range trace {
		fmt.Println(r.entry(e))
	}
	return err
}

func parseParams(s string) ([]uint64, error) {
	if s == "" {
		return nil, nil
	}
	var params []uint64
	for _, field := range strings.Split(s, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", field, err)
		}
		params = append(params, uint64(v))
	}
	return params, nil
}
