package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cairostark/cairo-stark-vm/internal/cairostark/engine"
	"github.com/cairostark/cairo-stark-vm/pkg/cairostarkvm"
)

func main() {
	if len(os.Args) < 2 {
		fatal("expected a subcommand: prove or verify")
	}

	switch os.Args[1] {
	case "prove":
		runProve(os.Args[2:])
	case "verify":
		runVerify(os.Args[2:])
	default:
		fatal(fmt.Sprintf("unknown subcommand %q: expected prove or verify", os.Args[1]))
	}
}

func runProve(args []string) {
	fs := flag.NewFlagSet("prove", flag.ExitOnError)
	program := fs.String("program", "", "path to the compiled program (flat 32-byte field elements)")
	trace := fs.String("trace", "", "path to the external register-trajectory dump")
	mem := fs.String("memory", "", "path to the external memory dump")
	output := fs.String("output", "", "path to write the proof record")

	def := engine.DefaultOptions()
	numOutputs := fs.Int("num-outputs", def.NumOutputs, "number of program outputs")
	numQueries := fs.Int("num-queries", def.NumQueries, "number of FRI query rounds, in [1,128]")
	blowupFactor := fs.Int("blowup-factor", def.BlowupFactor, "low-degree extension blowup factor, a power of two in {4,...,256}")
	grindingFactor := fs.Int("grinding-factor", def.GrindingFactor, "proof-of-work grinding bits, in [0,32]")
	friFoldingFactor := fs.Int("fri-folding-factor", def.FRIFoldingFactor, "FRI folding factor, one of {4,8,16}")
	friMaxRemainderSize := fs.Int("fri-max-remainder-size", def.FRIMaxRemainderSize, "FRI remainder size, a power of two in [32,1024]")

	if err := fs.Parse(args); err != nil {
		fatal(err.Error())
	}
	if *program == "" || *trace == "" || *mem == "" || *output == "" {
		fatal("prove requires --program, --trace, --memory, and --output")
	}

	opts := engine.Options{
		NumOutputs:          *numOutputs,
		NumQueries:          *numQueries,
		BlowupFactor:        *blowupFactor,
		GrindingFactor:      *grindingFactor,
		FRIFoldingFactor:    *friFoldingFactor,
		FRIMaxRemainderSize: *friMaxRemainderSize,
		HashFunction:        def.HashFunction,
	}

	logStderr("loading program, trace, and memory dump...")
	logStderr("proving...")
	if err := cairostarkvm.Prove(*program, *trace, *mem, *output, opts); err != nil {
		fatal(err.Error())
	}
	logStderr(fmt.Sprintf("proof written to %s", *output))
}

func runVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	proof := fs.String("proof", "", "path to the proof record")
	if err := fs.Parse(args); err != nil {
		fatal(err.Error())
	}
	if *proof == "" {
		fatal("verify requires --proof")
	}

	logStderr("verifying...")
	if err := cairostarkvm.Verify(*proof); err != nil {
		fatal(err.Error())
	}
	logStderr("proof accepted")
}

func logStderr(msg string) {
	fmt.Fprintln(os.Stderr, "cairo-stark-prover:", msg)
}

func fatal(msg string) {
	logStderr("ERROR: " + msg)
	os.Exit(1)
}
