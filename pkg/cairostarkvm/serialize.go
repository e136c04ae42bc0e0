package cairostarkvm

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/cairostark/cairo-stark-vm/internal/cairostark/engine"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/field"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/vmexec"
)

// LoadProgramWords reads a compiled program as a flat concatenation of
// canonical 32-byte field elements (spec.md §6's "field element format"),
// one per program word, in address order starting at address 1.
func LoadProgramWords(path string) ([]field.Felt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapErr(ErrIO, fmt.Sprintf("reading program file %s", path), err)
	}
	if len(data)%32 != 0 {
		return nil, wrapErr(ErrIO, fmt.Sprintf("program file %s length %d is not a multiple of 32", path, len(data)), nil)
	}
	words := make([]field.Felt, len(data)/32)
	for i := range words {
		var b [32]byte
		copy(b[:], data[i*32:(i+1)*32])
		f, err := field.FromCanonicalBytes(b)
		if err != nil {
			return nil, wrapErr(ErrNonCanonical, fmt.Sprintf("program word %d is not canonical", i), err)
		}
		words[i] = f
	}
	return words, nil
}

// LoadTraceDump reads the external register-trajectory dump: a
// concatenation of 24-byte records ap‖fp‖pc, each an 8-byte little-endian
// integer (spec.md §6). Registers are small enough to always fit a uint64,
// unlike general field elements.
func LoadTraceDump(path string) ([]vmexec.Registers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapErr(ErrIO, fmt.Sprintf("reading trace file %s", path), err)
	}
	if len(data)%24 != 0 {
		return nil, wrapErr(ErrIO, fmt.Sprintf("trace file %s length %d is not a multiple of 24", path, len(data)), nil)
	}
	n := len(data) / 24
	out := make([]vmexec.Registers, n)
	for i := 0; i < n; i++ {
		rec := data[i*24 : (i+1)*24]
		ap := binary.LittleEndian.Uint64(rec[0:8])
		fp := binary.LittleEndian.Uint64(rec[8:16])
		pc := binary.LittleEndian.Uint64(rec[16:24])
		out[i] = vmexec.Registers{
			AP: field.FromUint64(ap),
			FP: field.FromUint64(fp),
			PC: field.FromUint64(pc),
		}
	}
	return out, nil
}

// MemoryEntry is one decoded record of the external memory dump.
type MemoryEntry struct {
	Address uint64
	Value   field.Felt
}

// LoadMemoryDump reads the external memory dump: a concatenation of 40-byte
// records address(8 LE)‖value(32 LE) (spec.md §6). Address 0 never appears.
func LoadMemoryDump(path string) ([]MemoryEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapErr(ErrIO, fmt.Sprintf("reading memory file %s", path), err)
	}
	if len(data)%40 != 0 {
		return nil, wrapErr(ErrIO, fmt.Sprintf("memory file %s length %d is not a multiple of 40", path, len(data)), nil)
	}
	n := len(data) / 40
	out := make([]MemoryEntry, n)
	for i := 0; i < n; i++ {
		rec := data[i*40 : (i+1)*40]
		addr := binary.LittleEndian.Uint64(rec[0:8])
		var b [32]byte
		copy(b[:], rec[8:40])
		v, err := field.FromCanonicalBytes(b)
		if err != nil {
			return nil, wrapErr(ErrNonCanonical, fmt.Sprintf("memory dump value at address %d is not canonical", addr), err)
		}
		out[i] = MemoryEntry{Address: addr, Value: v}
	}
	return out, nil
}

// proofBlob is the gob-serialized content of the on-disk proof record's
// opaque proof_bytes field. It carries everything the STARK engine's own
// Verify needs beyond the public PublicInputs record: the engine proof
// itself, the proving parameters (the verify CLI command takes no flags of
// its own, so these travel with the proof), and the padded trace length the
// prover committed to.
type proofBlob struct {
	Proof    *engine.Proof
	Opts     engine.Options
	TraceLen int
}

// ProofFile is the bincode-like on-disk record spec.md §6 names:
// { input_bytes, proof_bytes }.
type ProofFile struct {
	InputBytes []byte
	ProofBytes []byte
}

// WriteProofFile assembles and writes the on-disk proof record.
func WriteProofFile(path string, pub PublicInputs, proof *engine.Proof, opts engine.Options, traceLen int) error {
	inputBytes, err := pub.MarshalBinary()
	if err != nil {
		return wrapErr(ErrIO, "encoding public inputs", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(proofBlob{Proof: proof, Opts: opts, TraceLen: traceLen}); err != nil {
		return wrapErr(ErrIO, "encoding proof", err)
	}

	file := ProofFile{InputBytes: inputBytes, ProofBytes: buf.Bytes()}
	var outBuf bytes.Buffer
	if err := gob.NewEncoder(&outBuf).Encode(file); err != nil {
		return wrapErr(ErrIO, "encoding proof file record", err)
	}
	if err := os.WriteFile(path, outBuf.Bytes(), 0o644); err != nil {
		return wrapErr(ErrIO, fmt.Sprintf("writing proof file %s", path), err)
	}
	return nil
}

// ReadProofFile reads and decodes the on-disk proof record back into its
// public inputs, engine proof, proving options, and padded trace length.
func ReadProofFile(path string) (PublicInputs, *engine.Proof, engine.Options, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PublicInputs{}, nil, engine.Options{}, 0, wrapErr(ErrIO, fmt.Sprintf("reading proof file %s", path), err)
	}

	var file ProofFile
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&file); err != nil {
		return PublicInputs{}, nil, engine.Options{}, 0, wrapErr(ErrIO, "decoding proof file record", err)
	}

	var pub PublicInputs
	if err := pub.UnmarshalBinary(file.InputBytes); err != nil {
		return PublicInputs{}, nil, engine.Options{}, 0, err
	}

	var blob proofBlob
	if err := gob.NewDecoder(bytes.NewReader(file.ProofBytes)).Decode(&blob); err != nil {
		return PublicInputs{}, nil, engine.Options{}, 0, wrapErr(ErrIO, "decoding proof", err)
	}

	return pub, blob.Proof, blob.Opts, blob.TraceLen, nil
}
