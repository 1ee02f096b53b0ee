// Package main provides the entry point for R5Sim.
// R5Sim is a cycle-level out-of-order RV32I CPU simulator.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/sarchlab/r5sim/loader"
	"github.com/sarchlab/r5sim/timing/core"
	"github.com/sarchlab/r5sim/timing/latency"
	"github.com/sarchlab/r5sim/trace"
)

var (
	configPath = flag.String("config", "", "Path to timing configuration JSON file")
	traceSpec  = flag.String("trace", "",
		"Comma-separated trace categories (e.g. RS,ROB,COMMIT), or 'all'")
	traceStart = flag.Uint64("trace-start", 0, "First cycle to trace")
	traceEnd   = flag.Uint64("trace-end", 0, "Last cycle to trace (0 = unbounded)")
	maxCycles  = flag.Uint64("max-cycles", 0, "Stop after this many cycles (0 = unbounded)")
	verbose    = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: r5sim [options] <program.elf>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	programPath := flag.Arg(0)

	prog, err := loader.Load(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Printf("Loaded: %s\n", programPath)
		fmt.Printf("Entry point: 0x%X\n", prog.EntryPoint)
		fmt.Printf("Segments: %d\n", len(prog.Segments))
	}

	config := latency.DefaultConfig()
	if *configPath != "" {
		config, err = latency.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading timing config: %v\n", err)
			os.Exit(1)
		}
	}
	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid timing config: %v\n", err)
		os.Exit(1)
	}

	machine := core.NewCore(prog,
		core.WithConfig(config),
		core.WithTracer(buildTracer(*traceSpec)),
		core.WithStdio(os.Stdin, os.Stdout, os.Stderr))

	ran := machine.Run(*maxCycles)
	if !machine.Halted() {
		fmt.Fprintf(os.Stderr, "Cycle limit reached after %d cycles\n", ran)
	}

	printReport(programPath, machine)
	os.Exit(machine.ExitCode())
}

// buildTracer turns the -trace flag into a console tracer; an empty
// spec disables tracing entirely.
func buildTracer(spec string) *trace.Tracer {
	if spec == "" {
		return nil
	}

	var cfg trace.Config
	if spec == "all" {
		cfg = trace.EnableAll()
	} else {
		var categories []trace.Category
		for _, name := range strings.Split(spec, ",") {
			categories = append(categories,
				trace.Category(strings.ToUpper(strings.TrimSpace(name))))
		}
		cfg = trace.Enable(categories...)
	}
	cfg = cfg.WithWindow(*traceStart, *traceEnd)

	return trace.NewTracer(cfg, trace.NewConsoleSink(os.Stderr))
}

func printReport(programPath string, machine *core.Core) {
	report := machine.Report()

	fmt.Printf("\nProgram: %s\n", programPath)
	fmt.Printf("Exit code: %d\n", machine.ExitCode())
	fmt.Printf("CPI: %.2f\n\n", report.Run.CPI())

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Counter", "Value"})
	table.Append([]string{"Cycles", fmt.Sprintf("%d", report.Run.Cycles)})
	table.Append([]string{"Instructions", fmt.Sprintf("%d", report.Run.Instructions)})
	table.Append([]string{"Flushes", fmt.Sprintf("%d", report.Run.Flushes)})
	table.Append([]string{"Renames", fmt.Sprintf("%d", report.Rename.Renames)})
	table.Append([]string{"Rename stalls", fmt.Sprintf("%d", report.Rename.Stalls)})
	table.Append([]string{"RS issued", fmt.Sprintf("%d", report.Station.Issued)})
	table.Append([]string{"RS dispatched", fmt.Sprintf("%d", report.Station.Dispatched)})
	table.Append([]string{"RS stalls", fmt.Sprintf("%d", report.Station.Stalls)})
	table.Append([]string{"ROB allocated", fmt.Sprintf("%d", report.ROB.Allocated)})
	table.Append([]string{"ROB retired", fmt.Sprintf("%d", report.ROB.Retired)})
	table.Append([]string{"ROB stalls", fmt.Sprintf("%d", report.ROB.Stalls)})
	table.Render()
}
