// Package cairostarkvm is the top-level prove/verify facade: it threads a
// compiled program and an externally-produced execution (register
// trajectory plus memory dump) through the executor, trace builder,
// auxiliary-trace builder, and STARK engine, and handles the on-disk proof
// format.
package cairostarkvm

import (
	"fmt"

	"github.com/cairostark/cairo-stark-vm/internal/cairostark/auxtrace"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/engine"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/field"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/memory"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/tracebuilder"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/vmexec"
)

// deriveAuxChallenges draws the memory/range-check permutation arguments'
// Fiat-Shamir randomness (z, alpha, zPrime) from a channel seeded only with
// the main trace's commitment root. This has to happen before the "real"
// proof transcript channel runs (engine.Prove/Verify's own
// Send(main)->Send(aux)->... sequence), because z/alpha/zPrime are
// themselves required to build the auxiliary trace that Prove takes as an
// input — so they are drawn from a throwaway channel that both prover and
// verifier can reconstruct identically from the main root alone.
func deriveAuxChallenges(mainRoot []byte, hashFunc string) (z, alpha, zPrime field.Felt) {
	ch := engine.NewChannel(hashFunc)
	ch.Send(mainRoot)
	z = ch.ReceiveFelt()
	alpha = ch.ReceiveFelt()
	zPrime = ch.ReceiveFelt()
	return z, alpha, zPrime
}

// buildMemory seeds a fresh Memory with the compiled program as the public
// prefix (addresses 1..len(program)) and then overlays the external memory
// dump, which is expected to repeat the program's own values at those same
// addresses (the dump is the full final memory of an external run, program
// included) plus every other address the run touched.
func buildMemory(program []field.Felt, dump []MemoryEntry) (*memory.Memory, error) {
	mem := memory.New()
	for i, w := range program {
		addr := field.FromUint64(uint64(i + 1))
		if err := mem.WritePublic(addr, w); err != nil {
			return nil, wrapErr(ErrMemoryInconsistent, "writing program word to public memory", err)
		}
	}
	for _, e := range dump {
		addr := field.FromUint64(e.Address)
		if err := mem.Write(addr, e.Value); err != nil {
			return nil, wrapErr(ErrMemoryInconsistent, fmt.Sprintf("memory dump address %d conflicts with program", e.Address), err)
		}
	}
	return mem, nil
}

// ProveExecution runs the full pipeline (reconstruction, trace assembly,
// auxiliary segments, STARK proof) over an already-decoded program,
// register trajectory, and memory dump, and returns the public inputs, the
// engine proof, and the padded trace length the proof commits to.
func ProveExecution(program []field.Felt, trajectory []vmexec.Registers, dump []MemoryEntry, opts engine.Options) (PublicInputs, *engine.Proof, int, error) {
	if err := opts.Validate(); err != nil {
		return PublicInputs{}, nil, 0, wrapErr(ErrInvalidEncoding, "invalid proving options", err)
	}
	if len(trajectory) < 2 {
		return PublicInputs{}, nil, 0, wrapErr(ErrIO, "trace dump must contain at least two register records", nil)
	}

	mem, err := buildMemory(program, dump)
	if err != nil {
		return PublicInputs{}, nil, 0, err
	}

	executor := vmexec.New(mem, vmexec.ReconstructionMode)
	states, err := executor.RunReconstruction(trajectory)
	if err != nil {
		return PublicInputs{}, nil, 0, wrapErr(ErrMemoryInconsistent, "reconstructing execution from external trajectory", err)
	}

	init := trajectory[0]
	fin := trajectory[len(trajectory)-1]
	tr := tracebuilder.Build(states, mem, init, fin)

	mainTree, err := engine.CommitMainTrace(tr)
	if err != nil {
		return PublicInputs{}, nil, 0, wrapErr(ErrConstraintUnsatisfied, "committing main trace", err)
	}
	z, alpha, zPrime := deriveAuxChallenges(mainTree.Root(), opts.HashFunction)

	seg, err := auxtrace.Build(tr, z, alpha, zPrime)
	if err != nil {
		return PublicInputs{}, nil, 0, wrapErr(ErrConstraintUnsatisfied, "building auxiliary trace", err)
	}

	proofChannel := engine.NewChannel(opts.HashFunction)
	proof, err := engine.Prove(tr, seg, z, alpha, zPrime, proofChannel, opts)
	if err != nil {
		return PublicInputs{}, nil, 0, wrapErr(ErrConstraintUnsatisfied, "proving", err)
	}

	pub := PublicInputs{
		Init:      init,
		Fin:       fin,
		RCMin:     tr.RCMin,
		RCMax:     tr.RCMax,
		PublicMem: tr.PublicMem,
		NumSteps:  uint64(tr.NumSteps),
	}
	return pub, proof, len(tr.Rows), nil
}

// VerifyProof replays the transcript against a claimed proof and public
// inputs and reports whether the STARK engine accepts it.
func VerifyProof(pub PublicInputs, proof *engine.Proof, opts engine.Options, traceLen int) error {
	if err := opts.Validate(); err != nil {
		return wrapErr(ErrInvalidEncoding, "invalid proving options", err)
	}
	if proof == nil {
		return wrapErr(ErrVerifyFailed, "missing proof", nil)
	}

	z, alpha, zPrime := deriveAuxChallenges(proof.MainRoot, opts.HashFunction)

	numSteps := int(pub.NumSteps)
	pd := engine.PublicData{
		TraceLen:  traceLen,
		NumSteps:  numSteps,
		Init:      pub.Init,
		Fin:       pub.Fin,
		RCMin:     pub.RCMin,
		RCMax:     pub.RCMax,
		PublicMem: pub.PublicMem,
	}

	proofChannel := engine.NewChannel(opts.HashFunction)
	if err := engine.Verify(pd, z, alpha, zPrime, proof, proofChannel, opts); err != nil {
		return wrapErr(ErrVerifyFailed, "proof rejected", err)
	}
	return nil
}

// Prove is the CLI-level entry point: it loads the program, trace, and
// memory dump files, runs the full proving pipeline, and writes the
// resulting proof record to outputPath.
func Prove(programPath, tracePath, memoryPath, outputPath string, opts engine.Options) error {
	program, err := LoadProgramWords(programPath)
	if err != nil {
		return err
	}
	trajectory, err := LoadTraceDump(tracePath)
	if err != nil {
		return err
	}
	dump, err := LoadMemoryDump(memoryPath)
	if err != nil {
		return err
	}

	pub, proof, traceLen, err := ProveExecution(program, trajectory, dump, opts)
	if err != nil {
		return err
	}

	return WriteProofFile(outputPath, pub, proof, opts, traceLen)
}

// Verify is the CLI-level entry point: it loads a proof record from
// proofPath and reports whether it verifies.
func Verify(proofPath string) error {
	pub, proof, opts, traceLen, err := ReadProofFile(proofPath)
	if err != nil {
		return err
	}
	return VerifyProof(pub, proof, opts, traceLen)
}
