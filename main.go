// Package main provides the entry point for R5Sim.
// R5Sim is a cycle-level out-of-order RV32I CPU simulator.
//
// For the full CLI, use: go run ./cmd/r5sim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("R5Sim - Out-of-Order RV32I CPU Simulator")
	fmt.Println("")
	fmt.Println("Usage: r5sim [options] <program.elf>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config      Path to timing configuration JSON file")
	fmt.Println("  -trace       Comma-separated trace categories, or 'all'")
	fmt.Println("  -max-cycles  Stop after this many cycles")
	fmt.Println("  -v           Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/r5sim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/r5sim' instead.")
	}
}
