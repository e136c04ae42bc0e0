// Package cairostarkvm is the public prove/verify facade for a STARK
// prover/verifier over a Cairo-like register machine: program counter pc,
// allocation pointer ap, and frame pointer fp over a 252-bit prime field.
//
// # Quick start
//
// Proving an externally-produced execution:
//
//	opts := engine.DefaultOptions()
//	err := cairostarkvm.Prove("program.bin", "trace.bin", "memory.bin", "proof.bin", opts)
//
// Verifying a proof record:
//
//	err := cairostarkvm.Verify("proof.bin")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Architecture
//
// This package is a thin orchestration layer; the actual VM semantics and
// AIR live in internal/cairostark:
//
//   - internal/cairostark/field: the 252-bit prime field and its quadratic
//     extension.
//   - internal/cairostark/word: Cairo instruction word decoding.
//   - internal/cairostark/memory: the sparse, write-once memory model.
//   - internal/cairostark/vmexec: the register-machine stepper.
//   - internal/cairostark/tracebuilder: main trace assembly.
//   - internal/cairostark/auxtrace: the memory/range-check permutation
//     arguments' auxiliary segments.
//   - internal/cairostark/air: the AIR's transition and boundary
//     constraints.
//   - internal/cairostark/engine: commitment, composition, FRI, and the
//     prove/verify transcript.
//
// cairostarkvm itself owns only what the core explicitly treats as external
// collaborators: CLI-facing file formats, the on-disk proof record, and
// deriving the auxiliary trace's Fiat-Shamir challenges from the main
// trace's commitment before the engine's own transcript begins.
package cairostarkvm
