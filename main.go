// Package main provides the entry point for vvsim.
// vvsim is a cycle-accurate RISC-V vector coprocessor simulator.
//
// For the full CLI, use: go run ./cmd/vvsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("vvsim - RISC-V Vector Coprocessor Simulator")
	fmt.Println("")
	fmt.Println("Usage: vvsim [options] <program.txt>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config    Path to timing configuration JSON file")
	fmt.Println("  -image     Hex memory image to preload")
	fmt.Println("  -cache     Enable the data cache")
	fmt.Println("  -v         Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/vvsim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/vvsim' instead.")
	}
}
