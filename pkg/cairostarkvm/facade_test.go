package cairostarkvm

import (
	"testing"

	"github.com/cairostark/cairo-stark-vm/internal/cairostark/engine"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/field"
)

func testOptions() engine.Options {
	opts := engine.DefaultOptions()
	// A handful of queries and a small blowup are plenty to exercise the
	// pipeline without the proof ballooning for these tiny traces.
	opts.NumQueries = 8
	opts.BlowupFactor = 4
	return opts
}

func proveAndVerify(t *testing.T, s scenario) (PublicInputs, *engine.Proof, int) {
	t.Helper()
	program, trajectory, dump, fin := s.run(t)

	opts := testOptions()
	pub, proof, traceLen, err := ProveExecution(program, trajectory, dump, opts)
	if err != nil {
		t.Fatalf("ProveExecution: %v", err)
	}
	if !pub.Fin.PC.Equal(fin.PC) || !pub.Fin.AP.Equal(fin.AP) || !pub.Fin.FP.Equal(fin.FP) {
		t.Fatalf("public inputs final registers %+v do not match run result %+v", pub.Fin, fin)
	}

	if err := VerifyProof(pub, proof, opts, traceLen); err != nil {
		t.Fatalf("VerifyProof rejected a genuine proof: %v", err)
	}
	return pub, proof, traceLen
}

func TestOutputTrioComputesExpectedValues(t *testing.T) {
	s := buildOutputTrioProgram()
	_, _, dump, _ := s.run(t)

	want := map[uint64]uint64{
		s.apInit + 0: 10,
		s.apInit + 1: 20,
		s.apInit + 3: 410,
	}
	got := map[uint64]field.Felt{}
	for _, e := range dump {
		got[e.Address] = e.Value
	}
	for addr, wantVal := range want {
		v, ok := got[addr]
		if !ok {
			t.Fatalf("address %d missing from memory dump", addr)
		}
		if !v.Equal(field.FromUint64(wantVal)) {
			t.Errorf("address %d = %s, want %d", addr, v, wantVal)
		}
	}

	proveAndVerify(t, s)
}

func TestFactorialTenProvesAndVerifies(t *testing.T) {
	s := buildFactorialProgram(10)
	_, _, dump, fin := s.run(t)

	resultAddr := fin.AP.Uint64() - 1
	got := field.Zero()
	found := false
	for _, e := range dump {
		if e.Address == resultAddr {
			got = e.Value
			found = true
		}
	}
	if !found {
		t.Fatalf("result address %d missing from memory dump", resultAddr)
	}
	if !got.Equal(field.FromUint64(3628800)) {
		t.Errorf("10! = %s, want 3628800", got)
	}

	proveAndVerify(t, s)
}

func TestFibonacciFiftyProvesAndVerifies(t *testing.T) {
	s := buildFibonacciProgram(50)
	_, _, dump, fin := s.run(t)

	resultAddr := fin.AP.Uint64() - 1
	got := field.Zero()
	found := false
	for _, e := range dump {
		if e.Address == resultAddr {
			got = e.Value
			found = true
		}
	}
	if !found {
		t.Fatalf("result address %d missing from memory dump", resultAddr)
	}
	if !got.Equal(field.FromUint64(12586269025)) {
		t.Errorf("F(50) = %s, want 12586269025", got)
	}

	proveAndVerify(t, s)
}

func TestVerifyRejectsTamperedProof(t *testing.T) {
	s := buildOutputTrioProgram()
	pub, proof, traceLen := proveAndVerify(t, s)

	tampered := *proof
	tampered.MainRoot = append([]byte{}, proof.MainRoot...)
	tampered.MainRoot[0] ^= 0xFF

	opts := testOptions()
	if err := VerifyProof(pub, &tampered, opts, traceLen); err == nil {
		t.Fatal("expected a tampered proof to be rejected, got nil error")
	}
}

func TestVerifyRejectsTamperedPublicInputs(t *testing.T) {
	s := buildOutputTrioProgram()
	pub, proof, traceLen := proveAndVerify(t, s)

	tampered := pub
	tampered.Fin.PC = tampered.Fin.PC.Add(field.One())

	opts := testOptions()
	if err := VerifyProof(tampered, proof, opts, traceLen); err == nil {
		t.Fatal("expected tampered public inputs to be rejected, got nil error")
	}
}

func TestWriteAndReadProofFileRoundTrip(t *testing.T) {
	s := buildOutputTrioProgram()
	program, trajectory, dump, _ := s.run(t)

	opts := testOptions()
	pub, proof, traceLen, err := ProveExecution(program, trajectory, dump, opts)
	if err != nil {
		t.Fatalf("ProveExecution: %v", err)
	}

	path := t.TempDir() + "/proof.bin"
	if err := WriteProofFile(path, pub, proof, opts, traceLen); err != nil {
		t.Fatalf("WriteProofFile: %v", err)
	}

	gotPub, gotProof, gotOpts, gotTraceLen, err := ReadProofFile(path)
	if err != nil {
		t.Fatalf("ReadProofFile: %v", err)
	}
	if gotTraceLen != traceLen || gotOpts != opts {
		t.Fatalf("round-tripped opts/traceLen mismatch: got (%v,%d), want (%v,%d)", gotOpts, gotTraceLen, opts, traceLen)
	}

	if err := VerifyProof(gotPub, gotProof, gotOpts, gotTraceLen); err != nil {
		t.Fatalf("round-tripped proof failed to verify: %v", err)
	}
}
