// Package main provides the entry point for vvsim, a cycle-accurate vector
// coprocessor simulator. It feeds an instruction stream into the core the way
// a scalar host would: offering one instruction per cycle and retrying while
// the core reports a structural or data hazard.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/vproclab/vvsim/loader"
	"github.com/vproclab/vvsim/mem"
	"github.com/vproclab/vvsim/timing/core"
	"github.com/vproclab/vvsim/timing/latency"
)

var (
	configPath = flag.String("config", "", "Path to timing configuration JSON file")
	imagePath  = flag.String("image", "", "Hex memory image to preload")
	memSize    = flag.Int("mem-size", 1<<20, "Memory size in bytes")
	useCache   = flag.Bool("cache", false, "Enable the data cache in front of memory")
	maxCycles  = flag.Uint64("cycles", 1_000_000, "Cycle budget")
	dumpRange  = flag.String("dump", "", "Memory range to dump at exit, as hexaddr:hexlen")
	dumpVRegs  = flag.Bool("dump-vregs", false, "Dump the vector register file at exit")
	verbose    = flag.Bool("v", false, "Verbose output")
)

// instruction is one stream entry: the 32-bit word plus the scalar register
// values the host would supply.
type instruction struct {
	word, rs1, rs2 uint32
	line           int
}

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: vvsim [options] <program.txt>\n\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	config := latency.DefaultConfig()
	if *configPath != "" {
		var err error
		config, err = latency.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	program, err := loadProgram(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	model := mem.NewModel(*memSize, config.MemWidthBits, config.MemLatency)
	var port mem.Port = model
	var cache *mem.Cached
	if *useCache {
		cache = mem.NewCached(mem.DefaultCacheConfig(), model)
		port = cache
	}

	if *imagePath != "" {
		img, err := loader.LoadHexFile(*imagePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading image: %v\n", err)
			os.Exit(1)
		}
		if img.Size() > *memSize {
			fmt.Fprintf(os.Stderr, "Image needs %d bytes, memory has %d\n", img.Size(), *memSize)
			os.Exit(1)
		}
		for _, seg := range img.Segments {
			model.WriteBytes(seg.Addr, seg.Data)
		}
	}

	c, err := core.NewCore(*config, port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building core: %v\n", err)
		os.Exit(1)
	}

	if ok := run(c, program); !ok {
		os.Exit(1)
	}

	if cache != nil {
		cache.Flush()
	}
	report(c, model, cache)
}

// run drives the instruction stream to completion within the cycle budget.
func run(c *core.Core, program []instruction) bool {
	cycles := uint64(0)
	tick := func() bool {
		if cycles >= *maxCycles {
			fmt.Fprintf(os.Stderr, "Cycle budget of %d exhausted\n", *maxCycles)
			return false
		}
		c.Tick()
		cycles++
		if v, ok := c.ScalarResult(); ok {
			fmt.Printf("scalar result: 0x%08X\n", v)
		}
		return true
	}

	for _, inst := range program {
		for {
			res := c.Issue(inst.word, inst.rs1, inst.rs2)
			if res.Illegal {
				fmt.Fprintf(os.Stderr, "line %d: illegal instruction 0x%08X\n", inst.line, inst.word)
				break
			}
			if res.Accepted {
				if res.HasVL && *verbose {
					fmt.Printf("line %d: vl = %d\n", inst.line, res.VL)
				}
				break
			}
			if !tick() {
				return false
			}
		}
		if !tick() {
			return false
		}
	}

	for c.Busy() {
		if !tick() {
			return false
		}
	}
	return true
}

// loadProgram reads the instruction stream: one instruction per line as
// hex words "insn [rs1 [rs2]]", with # comments.
func loadProgram(path string) ([]instruction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var program []instruction
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		if len(fields) > 3 {
			return nil, fmt.Errorf("line %d: expected 'insn [rs1 [rs2]]'", line)
		}
		var vals [3]uint32
		for i, fld := range fields {
			v, err := strconv.ParseUint(strings.TrimPrefix(fld, "0x"), 16, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad value %q: %w", line, fld, err)
			}
			vals[i] = uint32(v)
		}
		program = append(program, instruction{
			word: vals[0], rs1: vals[1], rs2: vals[2], line: line,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return program, nil
}

// report prints the end-of-run statistics and requested dumps.
func report(c *core.Core, model *mem.Model, cache *mem.Cached) {
	stats := c.Stats()
	fmt.Printf("\nCycles:          %d\n", stats.Cycles)
	fmt.Printf("Instructions:    %d\n", stats.Instructions)
	fmt.Printf("Issue stalls:    %d\n", stats.Stalls)
	fmt.Printf("Illegal:         %d\n", stats.Illegal)
	fmt.Printf("Write conflicts: %d\n", stats.WriteConflicts)
	fmt.Printf("Bus errors:      %d\n", stats.BusErrors)

	memStats := model.Stats()
	fmt.Printf("Memory reads:    %d\n", memStats.Reads)
	fmt.Printf("Memory writes:   %d\n", memStats.Writes)
	if cache != nil {
		cs := cache.Stats()
		fmt.Printf("Cache hits:      %d\n", cs.Hits)
		fmt.Printf("Cache misses:    %d\n", cs.Misses)
		fmt.Printf("Cache evictions: %d\n", cs.Evictions)
	}

	if *dumpVRegs {
		file := c.Gateway().File()
		for i := 0; i < 32; i++ {
			fmt.Printf("v%-2d: %x\n", i, file.Read(uint8(i)))
		}
	}

	if *dumpRange != "" {
		parts := strings.SplitN(*dumpRange, ":", 2)
		if len(parts) != 2 {
			fmt.Fprintf(os.Stderr, "Bad dump range %q\n", *dumpRange)
			return
		}
		addr, err1 := strconv.ParseUint(parts[0], 16, 32)
		length, err2 := strconv.ParseUint(parts[1], 16, 32)
		if err1 != nil || err2 != nil {
			fmt.Fprintf(os.Stderr, "Bad dump range %q\n", *dumpRange)
			return
		}
		data := model.ReadBytes(uint32(addr), int(length))
		for off := 0; off < len(data); off += 16 {
			end := off + 16
			if end > len(data) {
				end = len(data)
			}
			fmt.Printf("%08X: % x\n", uint64(addr)+uint64(off), data[off:end])
		}
	}
}
