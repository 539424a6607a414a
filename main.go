// SPDX-License-Identifier: Apache-2.0
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/fatih/color"
	"github.com/tliron/commonlog"

	"irobfus/internal/ir"
	"irobfus/internal/irtext"
	"irobfus/internal/pipeline"
)

func main() {
	passesFlag := flag.String("passes", "annotation", "comma-separated pipeline spec, e.g. \"annotation, mba, flatten, function-merge\"")
	seedFlag := flag.Int64("seed", 1, "seed for the PRNG driving mba/bogus-switch variant selection")
	outFlag := flag.String("o", "", "output file (default: stdout)")
	verbosity := flag.Int("v", 0, "log verbosity")
	stopOnError := flag.Bool("stop-on-error", false, "abort the pipeline on the first pass-local error instead of skipping to the next function")
	flag.Parse()

	commonlog.Configure(*verbosity, nil)

	if flag.NArg() < 1 {
		fmt.Println("Usage: irobfus -passes=<spec> -seed=<n> -o=<file> <input.irtext>")
		os.Exit(1)
	}
	path := flag.Arg(0)

	source, err := os.ReadFile(path)
	if err != nil {
		color.Red("failed to read file: %s", err)
		os.Exit(1)
	}

	mod, err := irtext.Parse(path, string(source))
	if err != nil {
		reportParseError(string(source), err)
		os.Exit(1)
	}

	passes, err := pipeline.ParseSpec(*passesFlag)
	if err != nil {
		color.Red("%s", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(*seedFlag))
	cfg := pipeline.Config{StopOnError: *stopOnError}
	if err := pipeline.Run(mod, passes, cfg, rng); err != nil {
		color.Red("pipeline failed: %s", err)
		os.Exit(1)
	}

	out := ir.Print(mod)
	if *outFlag == "" {
		fmt.Print(out)
	} else if err := os.WriteFile(*outFlag, []byte(out), 0o644); err != nil {
		color.Red("failed to write %s: %s", *outFlag, err)
		os.Exit(1)
	}

	color.Green("✅ ran [%s] over %s (%d function(s))", strings.Join(passes, " "), path, len(mod.Functions))
}

// reportParseError prints a friendly caret-style parse error message.
func reportParseError(src string, err error) {
	pe, ok := err.(participle.Error)
	if !ok {
		color.Red("Unexpected error: %s", err)
		return
	}

	pos := pe.Position()
	lines := strings.Split(src, "\n")
	if pos.Line <= 0 || pos.Line > len(lines) {
		color.Red("Syntax error at unknown location: %s", err)
		return
	}

	line := lines[pos.Line-1]
	caret := strings.Repeat(" ", pos.Column-1) + "^"

	color.Red("❌ Syntax error in %s at line %d, column %d:", pos.Filename, pos.Line, pos.Column)
	fmt.Println(line)
	color.HiRed(caret)
	fmt.Printf("→ %s\n", pe.Message())
}
